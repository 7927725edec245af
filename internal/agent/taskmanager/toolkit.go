package taskmanager

import (
	"context"

	"AVA-Chain/internal/agent"
	"AVA-Chain/internal/tool"
)

// 管理工具的名字。
const (
	ToolCreateTask     = "createTask"
	ToolAssignTask     = "assignTask"
	ToolGetTask        = "getTask"
	ToolSendToObserver = "sendMessageToObserver"
	ToolSendToExecutor = "sendMessageToExecutor"
)

// Toolkit 把任务管理操作暴露为统一的工具接口，
// 供 API 层和协作智能体以工具调用的方式使用。
func (m *TaskManager) Toolkit() tool.Toolkit {
	return tool.Toolkit{
		ToolCreateTask: {
			Description: "创建一条待派发任务",
			Parameters: tool.Object(
				tool.Field{Name: "description", Type: tool.TypeString, Required: true, Description: "任务描述"},
			),
			Execute: func(ctx context.Context, args tool.Args, _ tool.Options) (tool.Result, error) {
				t, err := m.CreateTask(ctx, args.String("description"))
				if err != nil {
					return tool.Failure(err.Error()), nil
				}
				return tool.Success(t), nil
			},
		},
		ToolAssignTask: {
			Description: "把任务派发给 observer 或 executor",
			Parameters: tool.Object(
				tool.Field{Name: "taskId", Type: tool.TypeString, Required: true, Description: "任务 ID"},
				tool.Field{Name: "agent", Type: tool.TypeString, Required: true, Description: "目标智能体"},
			),
			Execute: func(ctx context.Context, args tool.Args, _ tool.Options) (tool.Result, error) {
				if err := m.AssignTask(ctx, args.String("taskId"), args.String("agent")); err != nil {
					return tool.Failure(err.Error()), nil
				}
				return tool.Success(map[string]any{"assigned": true}), nil
			},
		},
		ToolSendToObserver: {
			Description: "把任务送交观察者收集市场情报",
			Parameters: tool.Object(
				tool.Field{Name: "taskId", Type: tool.TypeString, Required: true, Description: "任务 ID"},
			),
			Execute: func(ctx context.Context, args tool.Args, _ tool.Options) (tool.Result, error) {
				if err := m.AssignTask(ctx, args.String("taskId"), agent.NameObserver); err != nil {
					return tool.Failure(err.Error()), nil
				}
				return tool.Success(map[string]any{"sent": agent.NameObserver}), nil
			},
		},
		ToolSendToExecutor: {
			Description: "把任务送交执行者发起链上操作",
			Parameters: tool.Object(
				tool.Field{Name: "taskId", Type: tool.TypeString, Required: true, Description: "任务 ID"},
			),
			Execute: func(ctx context.Context, args tool.Args, _ tool.Options) (tool.Result, error) {
				if err := m.AssignTask(ctx, args.String("taskId"), agent.NameExecutor); err != nil {
					return tool.Failure(err.Error()), nil
				}
				return tool.Success(map[string]any{"sent": agent.NameExecutor}), nil
			},
		},
		ToolGetTask: {
			Description: "查询任务当前状态",
			Parameters: tool.Object(
				tool.Field{Name: "taskId", Type: tool.TypeString, Required: true, Description: "任务 ID"},
			),
			Execute: func(ctx context.Context, args tool.Args, _ tool.Options) (tool.Result, error) {
				t, err := m.repo.Get(ctx, args.String("taskId"))
				if err != nil {
					return tool.Failure(err.Error()), nil
				}
				return tool.Success(t), nil
			},
		},
	}
}
