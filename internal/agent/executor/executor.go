package executor

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"AVA-Chain/internal/agent"
	"AVA-Chain/internal/bus"
	xerrors "AVA-Chain/internal/errors"
	"AVA-Chain/internal/llm"
	"AVA-Chain/internal/txplan"
	"AVA-Chain/internal/web3"
	"AVA-Chain/pkg/logger"
)

const simulationPrompt = `你是加密资产组合助手中的交易安全审查员。
判断下面这条链上执行指令是否可以安全执行。
可以执行时只回答 SAFE，存在明显风险时只回答 UNSAFE 并附一句原因。`

// CodeTxExecution 表示链上交易序列执行失败。
const CodeTxExecution xerrors.Code = "TX_EXECUTION_FAILED"

func init() {
	xerrors.Register(CodeTxExecution, xerrors.Attributes{
		Message:  "on-chain execution failed",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
}

// Config 描述执行者的链上身份。
type Config struct {
	ChainID int64
	Address string
}

// Executor 负责把链上执行任务走完 模拟 -> 规划 -> 执行 三个阶段。
// 阶段严格按序执行，任一阶段失败立即短路，不进入后续阶段。
// 交易序列的执行不是原子的：首笔失败即中止，已上链的交易不回滚。
type Executor struct {
	caps    agent.Capabilities
	llm     llm.Client
	planner txplan.Planner
	chain   web3.Client
	cfg     Config
}

// New 创建执行者智能体。
func New(caps agent.Capabilities, llmClient llm.Client, planner txplan.Planner, chain web3.Client, cfg Config) *Executor {
	caps.AgentName = agent.NameExecutor
	return &Executor{
		caps:    caps,
		llm:     llmClient,
		planner: planner,
		chain:   chain,
		cfg:     cfg,
	}
}

// Name 返回智能体名字。
func (e *Executor) Name() string {
	return agent.NameExecutor
}

// HandleEvent 处理任务管理器派发的执行任务。
func (e *Executor) HandleEvent(ctx context.Context, channel string, msg bus.Message) {
	if channel != bus.Direct(agent.NameTaskManager, agent.NameExecutor) {
		return
	}
	e.Execute(ctx, msg.TaskID, msg.Task)
}

// Execute 执行一条任务。非链上执行类任务以 routing 状态退回。
func (e *Executor) Execute(ctx context.Context, taskID, instruction string) {
	replyChannel := bus.Direct(agent.NameExecutor, agent.NameTaskManager)

	taskType := ClassifyTask(instruction)
	if taskType != TypeDeFiExecution {
		e.caps.Emit(ctx, replyChannel, bus.Message{
			TaskID: taskID,
			Task:   instruction,
			Status: bus.StatusRouting,
			Type:   string(taskType),
		})
		return
	}

	e.caps.BroadcastAction(ctx, "executing on-chain task")

	stages := make([]bus.ToolExecution, 0, 3)

	// 阶段一：模拟审查。
	if reason, ok := e.simulate(ctx, instruction); !ok {
		reason = "模拟审查未通过: " + reason
		stages = append(stages, bus.ToolExecution{Tool: ToolSimulateTasks, Status: "failed", Error: reason})
		e.fail(ctx, replyChannel, taskID, instruction, nil, stages, reason)
		return
	}
	stages = append(stages, bus.ToolExecution{Tool: ToolSimulateTasks, Status: "success", Result: "SAFE"})
	e.caps.BroadcastMessage(ctx, "assistant", "模拟审查通过", "execution")

	// 阶段二：交易规划。
	plan, err := e.plan(ctx, taskID, instruction)
	if err != nil {
		reason := "交易规划失败: " + err.Error()
		stages = append(stages, bus.ToolExecution{Tool: ToolGetTransactionData, Status: "failed", Error: reason})
		e.fail(ctx, replyChannel, taskID, instruction, nil, stages, reason)
		return
	}
	stages = append(stages, bus.ToolExecution{Tool: ToolGetTransactionData, Status: "success", Result: map[string]any{
		"taskId": taskID,
		"steps":  len(plan.Steps),
	}})
	e.caps.BroadcastMessage(ctx, "assistant",
		fmt.Sprintf("规划完成，共 %d 笔交易", len(plan.Steps)), "execution")

	// 阶段三：顺序上链。
	hashes, err := e.executeTransactions(ctx, plan)
	if err != nil {
		stages = append(stages, bus.ToolExecution{Tool: ToolExecuteTransaction, Status: "failed", Error: err.Error()})
		e.fail(ctx, replyChannel, taskID, instruction, hashes, stages, err.Error())
		return
	}
	stages = append(stages, bus.ToolExecution{Tool: ToolExecuteTransaction, Status: "success", Result: map[string]any{
		"hashes": hashes,
	}})

	// 全部成功后清除待执行记录。
	if e.caps.Memory != nil {
		if delErr := e.caps.Memory.Delete(ctx, planKey(taskID)); delErr != nil {
			logger.L().Warn("清除交易计划记录失败",
				slog.String("task_id", taskID),
				slog.String("error", delErr.Error()),
			)
		}
	}

	result := e.summarize(plan, hashes)
	e.caps.SaveThought(ctx, result, stages...)
	e.caps.BroadcastMessage(ctx, "assistant", result, "execution")
	e.caps.Emit(ctx, replyChannel, bus.Message{
		TaskID:      taskID,
		Task:        instruction,
		Result:      result,
		Status:      bus.StatusCompleted,
		Type:        string(TypeDeFiExecution),
		ToolResults: stages,
	})
}

// simulate 用 LLM 对执行指令做一次安全审查。LLM 未配置或调用失败时
// 降级放行，只有明确的 UNSAFE 结论会短路流水线。
func (e *Executor) simulate(ctx context.Context, instruction string) (string, bool) {
	if e.llm == nil {
		return "", true
	}
	resp, err := e.llm.GenerateText(ctx, instruction, simulationPrompt)
	if err != nil {
		logger.L().Warn("模拟审查调用失败，降级放行", slog.String("error", err.Error()))
		return "", true
	}
	verdict := strings.ToUpper(resp.Text)
	if strings.Contains(verdict, "UNSAFE") {
		return strings.TrimSpace(resp.Text), false
	}
	return "", true
}

// plan 请求交易规划并把计划落入情报存储，供失败后排查。
func (e *Executor) plan(ctx context.Context, taskID, instruction string) (*txplan.Plan, error) {
	if e.planner == nil {
		return nil, fmt.Errorf("未配置交易规划服务")
	}
	plans, err := e.planner.PlanTransaction(ctx, txplan.Request{
		Prompt:  instruction,
		ChainID: e.cfg.ChainID,
		Address: e.cfg.Address,
	})
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 || len(plans[0].Steps) == 0 {
		return nil, fmt.Errorf("规划结果中没有可执行的交易")
	}

	plan := plans[0]
	if e.caps.Memory != nil {
		if err := e.caps.StoreIntelligence(ctx, planKey(taskID), plan, map[string]any{
			"task_id": taskID,
			"steps":   len(plan.Steps),
		}); err != nil {
			logger.L().Warn("保存交易计划失败",
				slog.String("task_id", taskID),
				slog.String("error", err.Error()),
			)
		}
	}
	return &plan, nil
}

// executeTransactions 顺序发送计划中的交易并等待各自的回执。
// 返回已成功上链的交易哈希；任何一笔失败立即返回错误，不回滚。
func (e *Executor) executeTransactions(ctx context.Context, plan *txplan.Plan) ([]string, error) {
	if e.chain == nil {
		return nil, fmt.Errorf("未配置链上客户端")
	}

	hashes := make([]string, 0, len(plan.Steps))
	for i, step := range plan.Steps {
		req, err := buildRequest(step)
		if err != nil {
			return hashes, fmt.Errorf("第 %d 笔交易参数不合法: %w", i+1, err)
		}

		hash, err := e.chain.SendTransaction(ctx, req)
		if err != nil {
			return hashes, xerrors.Wrap(CodeTxExecution, err, fmt.Sprintf("第 %d 笔交易发送失败", i+1))
		}

		receipt, err := e.chain.WaitForTransactionReceipt(ctx, hash)
		if err != nil {
			return hashes, xerrors.Wrap(CodeTxExecution, err, fmt.Sprintf("第 %d 笔交易确认失败", i+1))
		}
		if !receipt.Success {
			return hashes, xerrors.New(CodeTxExecution, fmt.Sprintf("第 %d 笔交易在链上回滚: %s", i+1, hash))
		}
		hashes = append(hashes, hash)
	}
	return hashes, nil
}

func (e *Executor) fail(ctx context.Context, replyChannel, taskID, instruction string, hashes []string, stages []bus.ToolExecution, reason string) {
	logger.L().Error("执行任务失败",
		slog.String("task_id", taskID),
		slog.Int("confirmed_txs", len(hashes)),
		slog.String("error", reason),
	)
	e.caps.SaveThought(ctx, fmt.Sprintf("执行任务 %s 失败：%s", taskID, reason), stages...)
	e.caps.BroadcastError(ctx, reason)

	result := ""
	if len(hashes) > 0 {
		result = "已确认交易: " + strings.Join(hashes, ", ")
	}
	e.caps.Emit(ctx, replyChannel, bus.Message{
		TaskID:      taskID,
		Task:        instruction,
		Result:      result,
		Status:      bus.StatusFailed,
		Type:        string(TypeDeFiExecution),
		Error:       reason,
		ToolResults: stages,
	})
}

func (e *Executor) summarize(plan *txplan.Plan, hashes []string) string {
	var b strings.Builder
	if plan.Description != "" {
		b.WriteString(plan.Description)
		b.WriteString("。")
	}
	fmt.Fprintf(&b, "共执行 %d 笔交易", len(hashes))
	if len(hashes) > 0 {
		b.WriteString("：")
		b.WriteString(strings.Join(hashes, ", "))
	}
	return b.String()
}

func buildRequest(step txplan.Step) (web3.TransactionRequest, error) {
	to := strings.TrimSpace(step.To)
	if to == "" {
		return web3.TransactionRequest{}, fmt.Errorf("目标地址为空")
	}

	value := new(big.Int)
	if raw := strings.TrimSpace(step.Value); raw != "" {
		base := 10
		if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
			raw = raw[2:]
			base = 16
		}
		if _, ok := value.SetString(raw, base); !ok {
			return web3.TransactionRequest{}, fmt.Errorf("金额不合法: %s", step.Value)
		}
	}

	var data []byte
	if raw := strings.TrimPrefix(strings.TrimSpace(step.Data), "0x"); raw != "" {
		decoded, err := hex.DecodeString(raw)
		if err != nil {
			return web3.TransactionRequest{}, fmt.Errorf("calldata 不合法: %w", err)
		}
		data = decoded
	}

	return web3.TransactionRequest{To: to, Value: value, Data: data}, nil
}

func planKey(taskID string) string {
	return "plan:" + taskID
}

var _ agent.Agent = (*Executor)(nil)
