package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"AVA-Chain/internal/tool"
	"AVA-Chain/internal/txplan"
)

// 执行工具的名字，与执行流水线的三个阶段一一对应。
const (
	ToolSimulateTasks      = "simulateTasks"
	ToolGetTransactionData = "getTransactionData"
	ToolExecuteTransaction = "executeTransaction"
)

const advicePrompt = `你是加密资产组合助手中的执行者。
下面是全部待执行计划的模拟输出，检查代币对与金额是否合理，
指出需要修正的任务并给出修正后的指令。`

// Toolkit 把执行流水线的三个阶段暴露为统一的工具接口。
// Execute 走的是同一套阶段实现，工具形式供 API 层与协作智能体单步调用。
func (e *Executor) Toolkit() tool.Toolkit {
	return tool.Toolkit{
		ToolSimulateTasks: {
			Description: "模拟全部待执行计划并给出修正建议",
			Parameters:  tool.Object(),
			Execute: func(ctx context.Context, _ tool.Args, _ tool.Options) (tool.Result, error) {
				advisory, err := e.simulatePending(ctx)
				if err != nil {
					return tool.Failure(err.Error()), nil
				}
				return tool.Success(advisory), nil
			},
		},
		ToolGetTransactionData: {
			Description: "为一批执行指令规划交易序列并保存计划记录",
			Parameters: tool.Object(
				tool.Field{Name: "tasks", Type: tool.TypeArray, Required: true,
					Description: "任务数组，每项含 task 指令与可选 taskId"},
			),
			Execute: func(ctx context.Context, args tool.Args, _ tool.Options) (tool.Result, error) {
				entries, err := parseTaskEntries(args["tasks"])
				if err != nil {
					return tool.Failure(err.Error()), nil
				}
				// 整批成败一致：任一任务规划失败，整个调用失败。
				planned := make([]map[string]any, 0, len(entries))
				for _, entry := range entries {
					if _, err := e.plan(ctx, entry.taskID, entry.instruction); err != nil {
						return tool.Failure(fmt.Sprintf("任务 %s 规划失败: %v", entry.taskID, err)), nil
					}
					planned = append(planned, map[string]any{
						"taskId":    entry.taskID,
						"task":      entry.instruction,
						"createdAt": time.Now().UTC().Format(time.RFC3339),
					})
				}
				return tool.Success(planned), nil
			},
		},
		ToolExecuteTransaction: {
			Description: "按已保存的计划顺序上链，首笔失败即中止",
			Parameters: tool.Object(
				tool.Field{Name: "task", Type: tool.TypeString, Required: true, Description: "执行指令"},
				tool.Field{Name: "taskId", Type: tool.TypeString, Required: true, Description: "任务 ID"},
			),
			Execute: func(ctx context.Context, args tool.Args, _ tool.Options) (tool.Result, error) {
				taskID := args.String("taskId")
				plan, err := e.loadPlan(ctx, taskID)
				if err != nil {
					return tool.Failure(err.Error()), nil
				}
				hashes, err := e.executeTransactions(ctx, plan)
				if err != nil {
					return tool.Failure(fmt.Sprintf("%s (已确认 %d 笔)", err.Error(), len(hashes))), nil
				}
				if e.caps.Memory != nil {
					_ = e.caps.Memory.Delete(ctx, planKey(taskID))
				}
				return tool.Success(map[string]any{"hashes": hashes}), nil
			},
		},
	}
}

type taskEntry struct {
	taskID      string
	instruction string
}

// parseTaskEntries 解析批量任务参数。taskId 缺省时就地生成，
// 对应尚未入库的新任务。
func parseTaskEntries(raw any) ([]taskEntry, error) {
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case []map[string]any:
		items = make([]any, len(v))
		for i, item := range v {
			items[i] = item
		}
	default:
		return nil, fmt.Errorf("tasks 参数必须是任务数组")
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("tasks 数组不能为空")
	}

	entries := make([]taskEntry, 0, len(items))
	for i, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("第 %d 项任务格式不合法", i+1)
		}
		instruction, _ := fields["task"].(string)
		if strings.TrimSpace(instruction) == "" {
			return nil, fmt.Errorf("第 %d 项任务缺少 task 指令", i+1)
		}
		taskID, _ := fields["taskId"].(string)
		if taskID == "" {
			taskID = uuid.NewString()
		}
		entries = append(entries, taskEntry{taskID: taskID, instruction: instruction})
	}
	return entries, nil
}

// simulatePending 扫描全部待执行的计划记录，逐条渲染模拟输出，
// 再交给 LLM 给出修正建议。LLM 缺席或失败时返回原始渲染。
func (e *Executor) simulatePending(ctx context.Context) (string, error) {
	if e.caps.Memory == nil {
		return "", fmt.Errorf("未配置情报存储")
	}
	keys, err := e.caps.Memory.List(ctx, "plan:")
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "没有待执行的计划", nil
	}

	var b strings.Builder
	for _, key := range keys {
		taskID := strings.TrimPrefix(key, "plan:")
		plan, err := e.loadPlan(ctx, taskID)
		if err != nil {
			fmt.Fprintf(&b, "[taskId: %s] 计划记录不可读: %v\n", taskID, err)
			continue
		}
		fmt.Fprintf(&b, "[taskId: %s] %s\n", taskID, plan.Description)
		fmt.Fprintf(&b, "交易从 %s 到 %s，投入 %s，预期产出 %s，共 %d 笔。\n",
			plan.FromToken, plan.ToToken, plan.FromAmount, plan.ToAmount, len(plan.Steps))
	}
	rendered := strings.TrimSpace(b.String())

	if e.llm == nil {
		return rendered, nil
	}
	resp, err := e.llm.GenerateText(ctx, rendered, advicePrompt)
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		return rendered, nil
	}
	return strings.TrimSpace(resp.Text), nil
}

// loadPlan 从情报存储取回任务的交易计划。记录可能来自内存
// （原生结构）或 Redis（JSON 往返），统一经 JSON 还原。
func (e *Executor) loadPlan(ctx context.Context, taskID string) (*txplan.Plan, error) {
	if e.caps.Memory == nil {
		return nil, fmt.Errorf("未配置情报存储")
	}
	entry, err := e.caps.Memory.Retrieve(ctx, planKey(taskID))
	if err != nil {
		return nil, fmt.Errorf("任务 %s 没有可执行的计划记录: %w", taskID, err)
	}
	encoded, err := json.Marshal(entry.Data)
	if err != nil {
		return nil, fmt.Errorf("计划记录不合法: %w", err)
	}
	var plan txplan.Plan
	if err := json.Unmarshal(encoded, &plan); err != nil {
		return nil, fmt.Errorf("计划记录不合法: %w", err)
	}
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("任务 %s 的计划记录中没有交易", taskID)
	}
	return &plan, nil
}
