package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"AVA-Chain/internal/agent"
	"AVA-Chain/internal/bus"
	xerrors "AVA-Chain/internal/errors"
	"AVA-Chain/internal/llm"
	"AVA-Chain/internal/tool"
	"AVA-Chain/internal/web3"
	"AVA-Chain/pkg/logger"
)

const systemPrompt = `你是加密资产组合助手中的市场观察者。
根据工具采集到的行情、余额、智能体排行和社交讨论，
写出一份简短、可执行的市场观察报告。只陈述数据支持的结论。`

// CodeAllToolsFailed 表示一轮观察中全部工具执行失败。
const CodeAllToolsFailed xerrors.Code = "ALL_TOOLS_FAILED"

func init() {
	xerrors.Register(CodeAllToolsFailed, xerrors.Attributes{
		Message:  "all observation tools failed",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
}

// Observer 负责采集市场情报并产出观察报告。
// 每个工具独立失败：单个工具出错不会中断整轮观察，
// 只有全部工具失败时本轮才以 partial 状态上报。
type Observer struct {
	caps    agent.Capabilities
	llm     llm.Client
	chain   web3.Client
	data    DataSource
	toolkit tool.Toolkit
}

// Option 配置可选的观察依赖。
type Option func(*Observer)

// WithChain 注入链上客户端，启用余额查询工具。
func WithChain(chain web3.Client) Option {
	return func(o *Observer) { o.chain = chain }
}

// WithDataSource 注入行情情报数据源。
func WithDataSource(data DataSource) Option {
	return func(o *Observer) { o.data = data }
}

// New 创建观察者智能体。
func New(caps agent.Capabilities, llmClient llm.Client, opts ...Option) *Observer {
	caps.AgentName = agent.NameObserver
	o := &Observer{caps: caps, llm: llmClient}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	o.toolkit = o.buildToolkit()
	return o
}

// Name 返回智能体名字。
func (o *Observer) Name() string {
	return agent.NameObserver
}

// Toolkit 暴露观察工具集，供 API 层展示能力清单。
func (o *Observer) Toolkit() tool.Toolkit {
	return o.toolkit
}

// HandleEvent 处理任务管理器派发的观察任务。
func (o *Observer) HandleEvent(ctx context.Context, channel string, msg bus.Message) {
	if channel != bus.Direct(agent.NameTaskManager, agent.NameObserver) {
		return
	}
	o.Observe(ctx, msg.TaskID, msg.Task)
}

// observationTools 是一轮观察依次执行的工具，顺序固定。
var observationTools = []string{
	ToolMarketData,
	ToolWalletBalances,
	ToolRankedAgents,
	ToolSocialPosts,
	ToolPastReports,
}

// Observe 执行一轮完整观察并把结果上报给任务管理器。
func (o *Observer) Observe(ctx context.Context, taskID, instruction string) {
	replyChannel := bus.Direct(agent.NameObserver, agent.NameTaskManager)

	if strings.TrimSpace(instruction) == "" {
		result := tool.Invoke(ctx, o.toolkit[ToolNoFurtherActions], tool.Args{}, tool.Options{})
		var waitTime time.Duration
		if payload, ok := result.Result.(map[string]any); ok {
			if seconds, ok := payload["waitTime"].(float64); ok {
				waitTime = time.Duration(seconds * float64(time.Second))
			}
		}
		o.caps.Emit(ctx, replyChannel, bus.Message{
			TaskID:           taskID,
			Status:           bus.StatusCompleted,
			Type:             "observation",
			NoFurtherActions: true,
			WaitTime:         waitTime,
			ToolResults: []bus.ToolExecution{
				{Tool: ToolNoFurtherActions, Status: "success", Result: result.Result},
			},
		})
		return
	}

	o.caps.BroadcastAction(ctx, "observing market conditions")

	executions := make([]bus.ToolExecution, 0, len(observationTools))
	failures := 0
	for _, name := range observationTools {
		result := tool.Invoke(ctx, o.toolkit[name], o.argsFor(name, instruction), tool.Options{})
		execution := bus.ToolExecution{Tool: name}
		if result.Success {
			execution.Status = "success"
			execution.Result = result.Result
		} else {
			execution.Status = "failed"
			execution.Error = result.Error
			failures++
			logger.L().Warn("观察工具执行失败",
				slog.String("tool", name),
				slog.String("task_id", taskID),
				slog.String("error", result.Error),
			)
		}
		executions = append(executions, execution)
	}

	if failures == len(observationTools) {
		message := xerrors.New(CodeAllToolsFailed, "所有观察工具均执行失败").Error()
		o.caps.SaveThought(ctx, fmt.Sprintf("观察任务 %s 失败：%s", taskID, message), executions...)
		o.caps.BroadcastError(ctx, message)
		o.caps.Emit(ctx, replyChannel, bus.Message{
			TaskID:      taskID,
			Task:        instruction,
			Status:      bus.StatusPartial,
			Type:        "observation",
			Error:       message,
			PartialData: true,
			ToolResults: executions,
		})
		return
	}

	analysis := o.synthesize(ctx, instruction, executions)
	o.caps.SaveThought(ctx, analysis, executions...)
	o.caps.BroadcastMessage(ctx, "assistant", analysis, "observation")
	o.caps.Emit(ctx, replyChannel, bus.Message{
		TaskID:      taskID,
		Task:        instruction,
		Result:      analysis,
		Status:      bus.StatusCompleted,
		Type:        "observation",
		PartialData: failures > 0,
		ToolResults: executions,
	})
}

func (o *Observer) argsFor(name, instruction string) tool.Args {
	switch name {
	case ToolMarketData, ToolSocialPosts:
		return tool.Args{"query": instruction}
	default:
		return tool.Args{}
	}
}

// synthesize 用 LLM 把工具采集结果汇总为观察报告。
// LLM 不可用或出错时降级为结构化摘要，保证本轮观察仍有产出。
func (o *Observer) synthesize(ctx context.Context, instruction string, executions []bus.ToolExecution) string {
	fallback := o.fallbackSummary(instruction, executions)
	if o.llm == nil {
		return fallback
	}

	encoded, err := json.Marshal(executions)
	if err != nil {
		return fallback
	}
	prompt := fmt.Sprintf("观察指令: %s\n\n工具采集结果(JSON):\n%s\n\n请给出观察报告。", instruction, string(encoded))

	resp, err := o.llm.GenerateText(ctx, prompt, systemPrompt)
	if err != nil {
		logger.L().Warn("观察报告生成失败，使用降级摘要", slog.String("error", err.Error()))
		return fallback
	}
	return resp.Text
}

func (o *Observer) fallbackSummary(instruction string, executions []bus.ToolExecution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "观察指令: %s\n", instruction)
	for _, execution := range executions {
		if execution.Status == "success" {
			fmt.Fprintf(&b, "- %s: 成功\n", execution.Tool)
		} else {
			fmt.Fprintf(&b, "- %s: 失败 (%s)\n", execution.Tool, execution.Error)
		}
	}
	return strings.TrimSpace(b.String())
}

var _ agent.Agent = (*Observer)(nil)
