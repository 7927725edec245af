package taskmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"AVA-Chain/internal/agent"
	"AVA-Chain/internal/bus"
	xerrors "AVA-Chain/internal/errors"
	"AVA-Chain/internal/license"
	"AVA-Chain/internal/llm"
	"AVA-Chain/internal/task"
	"AVA-Chain/internal/tool"
	"AVA-Chain/pkg/logger"
)

const systemPrompt = `你是加密资产组合助手中的任务管理者。
根据观察报告提炼下一步任务：需要链上操作时给出一句明确的执行指令，
否则给出下一轮观察的关注点。输出一句话，不要解释。`

// royaltyRate 是智能体产物许可的统一分成比例。
const royaltyRate = 0.05

// CodeRoutingFailure 表示任务无法派发给目标智能体。
const CodeRoutingFailure xerrors.Code = "ROUTING_FAILED"

func init() {
	xerrors.Register(CodeRoutingFailure, xerrors.Attributes{
		Message:  "task routing failed",
		Severity: xerrors.SeverityWarning,
		Alert:    false,
	})
}

// TaskManager 负责任务的创建、派发与收尾，并为每份智能体产物
// 铸造许可以维持溯源链。
type TaskManager struct {
	caps   agent.Capabilities
	repo   task.Repository
	llm    llm.Client
	router *Router
}

// New 创建任务管理器。
func New(caps agent.Capabilities, repo task.Repository, llmClient llm.Client) *TaskManager {
	caps.AgentName = agent.NameTaskManager
	return &TaskManager{
		caps:   caps,
		repo:   repo,
		llm:    llmClient,
		router: NewRouter(),
	}
}

// Name 返回智能体名字。
func (m *TaskManager) Name() string {
	return agent.NameTaskManager
}

// HandleEvent 处理观察者与执行者的回执。
func (m *TaskManager) HandleEvent(ctx context.Context, channel string, msg bus.Message) {
	switch channel {
	case bus.Direct(agent.NameObserver, agent.NameTaskManager):
		m.HandleObserverResult(ctx, msg)
	case bus.Direct(agent.NameExecutor, agent.NameTaskManager):
		m.HandleExecutorResult(ctx, msg)
	}
}

// CreateTask 创建一条待派发任务并广播其状态。
func (m *TaskManager) CreateTask(ctx context.Context, description string) (*task.Task, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, xerrors.New(task.CodeTaskValidation, "任务描述不能为空")
	}

	t := &task.Task{
		ID:          uuid.NewString(),
		Description: description,
		Status:      task.StatusPending,
	}
	if err := m.repo.Create(ctx, t); err != nil {
		return nil, err
	}

	m.emitTaskUpdate(ctx, t, "")
	logger.L().Info("创建任务",
		slog.String("task_id", t.ID),
		slog.String("description", description),
	)
	return t, nil
}

// AssignTask 把任务派发给指定智能体。重复派发同一任务给同一智能体
// 不改变任务身份，但会重新投递一次等价的派发消息。
func (m *TaskManager) AssignTask(ctx context.Context, taskID, agentName string) error {
	if agentName != agent.NameObserver && agentName != agent.NameExecutor {
		return xerrors.New(CodeRoutingFailure,
			fmt.Sprintf("未知的目标智能体: %s", agentName))
	}

	t, err := m.repo.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status.IsTerminal() {
		return xerrors.New(task.CodeTaskConflict,
			fmt.Sprintf("任务 %s 已终结，无法派发", taskID))
	}

	t.AssignedTo = agentName
	t.Status = task.StatusInProgress
	if err := m.repo.Update(ctx, t); err != nil {
		return err
	}

	m.emitTaskUpdate(ctx, t, "")
	m.caps.Emit(ctx, bus.Direct(agent.NameTaskManager, agentName), bus.Message{
		TaskID: t.ID,
		Task:   t.Description,
		Status: bus.StatusInProgress,
	})
	logger.L().Info("派发任务",
		slog.String("task_id", t.ID),
		slog.String("assigned_to", agentName),
	)
	return nil
}

// ProcessAnalysis 把一段分析文本转化为任务并派发。
// 路由判定先行：关键词命中执行路径时任务原文直送执行者，不再有任何
// 工具调用；否则按 送观察者 -> 任务仍在进行中时送执行者 的两步工具
// 序列推进，最后用 LLM 把工具结果汇总为下一步指令并留痕。
func (m *TaskManager) ProcessAnalysis(ctx context.Context, analysis string) (*task.Task, error) {
	analysis = strings.TrimSpace(analysis)
	if analysis == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "分析文本不能为空")
	}

	t, err := m.CreateTask(ctx, analysis)
	if err != nil {
		return nil, err
	}

	if decision := m.router.Classify(analysis); decision.Route == RouteExecutor {
		if err := m.AssignTask(ctx, t.ID, agent.NameExecutor); err != nil {
			m.failTask(ctx, t, err.Error())
			return nil, err
		}
		// 派发（乃至同步完结）可能已经推进了任务状态，返回最新快照。
		return m.repo.Get(ctx, t.ID)
	}

	kit := m.Toolkit()
	toolTrail := make([]bus.ToolExecution, 0, 2)

	sent := tool.Invoke(ctx, kit[ToolSendToObserver], tool.Args{"taskId": t.ID}, tool.Options{})
	toolTrail = append(toolTrail, toolExecutionOf(ToolSendToObserver, sent))
	if !sent.Success {
		m.failTask(ctx, t, sent.Error)
		return nil, xerrors.New(CodeRoutingFailure, sent.Error)
	}

	// 观察者可能已同步完结任务，仍在进行中时才追加执行者一步。
	snapshot, err := m.repo.Get(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if snapshot.Status == task.StatusInProgress {
		sent = tool.Invoke(ctx, kit[ToolSendToExecutor], tool.Args{"taskId": t.ID}, tool.Options{})
		toolTrail = append(toolTrail, toolExecutionOf(ToolSendToExecutor, sent))
		if !sent.Success {
			m.failTask(ctx, snapshot, sent.Error)
			return nil, xerrors.New(CodeRoutingFailure, sent.Error)
		}
	}

	m.synthesizeNextSteps(ctx, analysis, toolTrail)
	return m.repo.Get(ctx, t.ID)
}

func toolExecutionOf(name string, result tool.Result) bus.ToolExecution {
	execution := bus.ToolExecution{Tool: name, Status: "success", Result: result.Result}
	if !result.Success {
		execution.Status = "failed"
		execution.Error = result.Error
		execution.Result = nil
	}
	return execution
}

// synthesizeNextSteps 用 LLM 把本轮工具结果提炼为下一步指令。
// LLM 缺席或失败不影响任务流转，只是少了一条留痕。
func (m *TaskManager) synthesizeNextSteps(ctx context.Context, analysis string, toolTrail []bus.ToolExecution) {
	if m.llm == nil {
		return
	}
	encoded, err := json.Marshal(toolTrail)
	if err != nil {
		return
	}
	prompt := fmt.Sprintf("分析: %s\n\n工具结果(JSON):\n%s\n\n给出下一步任务指令。", analysis, string(encoded))
	resp, err := m.llm.GenerateText(ctx, prompt, systemPrompt)
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		if err != nil {
			logger.L().Warn("下一步指令汇总失败", slog.String("error", err.Error()))
		}
		return
	}
	m.caps.SaveThought(ctx, strings.TrimSpace(resp.Text), toolTrail...)
	m.caps.BroadcastMessage(ctx, "assistant", strings.TrimSpace(resp.Text), "decision")
}

// HandleObserverResult 处理观察者的回执：铸造许可、归档观察结果
// 并完结任务。找不到对应任务时只记日志。
func (m *TaskManager) HandleObserverResult(ctx context.Context, msg bus.Message) {
	t, err := m.repo.Get(ctx, msg.TaskID)
	if err != nil {
		logger.L().Warn("观察回执对应的任务不存在",
			slog.String("task_id", msg.TaskID),
		)
		return
	}

	if msg.NoFurtherActions {
		const result = "no further actions"
		licenseID, err := m.mintResultLicense(ctx, t.ID, msg.Agent, "Observation", result)
		if err != nil {
			m.caps.BroadcastError(ctx, err.Error())
			m.failTask(ctx, t, err.Error())
			return
		}
		logger.L().Info("任务无需进一步动作",
			slog.String("task_id", t.ID),
			slog.Duration("wait", msg.WaitTime),
		)
		m.completeTask(ctx, t, result, licenseID)
		return
	}

	if msg.Status == bus.StatusPartial && msg.Error != "" {
		m.failTask(ctx, t, msg.Error)
		return
	}

	licenseID, err := m.mintResultLicense(ctx, t.ID, msg.Agent, "Observation", msg.Result)
	if err != nil {
		m.caps.BroadcastError(ctx, err.Error())
		m.failTask(ctx, t, err.Error())
		return
	}

	if err := m.caps.StoreIntelligence(ctx, "observation:"+t.ID, msg.Result, map[string]any{
		"task_id":    t.ID,
		"agent":      msg.Agent,
		"license_id": licenseID,
		"partial":    msg.PartialData,
	}); err != nil {
		logger.L().Warn("归档观察结果失败",
			slog.String("task_id", t.ID),
			slog.String("error", err.Error()),
		)
	}

	m.completeTask(ctx, t, msg.Result, licenseID)
}

// HandleExecutorResult 处理执行者的回执。routing 状态的回执表示任务
// 不属于链上执行，转派给观察者。
func (m *TaskManager) HandleExecutorResult(ctx context.Context, msg bus.Message) {
	t, err := m.repo.Get(ctx, msg.TaskID)
	if err != nil {
		logger.L().Warn("执行回执对应的任务不存在",
			slog.String("task_id", msg.TaskID),
		)
		return
	}

	switch msg.Status {
	case bus.StatusRouting:
		if err := m.AssignTask(ctx, t.ID, agent.NameObserver); err != nil {
			m.failTask(ctx, t, err.Error())
		}
		return
	case bus.StatusFailed:
		m.failTask(ctx, t, msg.Error)
		return
	}

	licenseID, err := m.mintResultLicense(ctx, t.ID, msg.Agent, "Execution", msg.Result)
	if err != nil {
		m.caps.BroadcastError(ctx, err.Error())
		m.failTask(ctx, t, err.Error())
		return
	}

	if err := m.caps.StoreIntelligence(ctx, "execution:"+t.ID, msg.Result, map[string]any{
		"task_id":    t.ID,
		"agent":      msg.Agent,
		"license_id": licenseID,
	}); err != nil {
		logger.L().Warn("归档执行结果失败",
			slog.String("task_id", t.ID),
			slog.String("error", err.Error()),
		)
	}

	m.completeTask(ctx, t, msg.Result, licenseID)
}

// mintResultLicense 为一份智能体产物铸造商用许可。
func (m *TaskManager) mintResultLicense(ctx context.Context, taskID, producer, kind, result string) (string, error) {
	if producer == "" {
		producer = agent.NameObserver
	}
	terms := license.Terms{
		Name:        fmt.Sprintf("Task %s Result - %s", kind, taskID),
		Description: result,
		Scope:       license.ScopeCommercial,
		RoyaltyRate: royaltyRate,
	}
	metadata := license.Metadata{
		HolderID: producer,
	}
	licenseID, err := m.caps.MintLicense(ctx, terms, metadata)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeLicenseFailure, err,
			fmt.Sprintf("为任务 %s 铸造许可失败", taskID))
	}
	return licenseID, nil
}

// completeTask 完结任务、归档最终快照并广播状态。
func (m *TaskManager) completeTask(ctx context.Context, t *task.Task, result, licenseID string) {
	t.Status = task.StatusCompleted
	t.Result = result
	t.LicenseID = licenseID
	if err := m.repo.Update(ctx, t); err != nil {
		logger.L().Error("完结任务失败",
			slog.String("task_id", t.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := m.caps.StoreIntelligence(ctx, "task:"+t.ID, t, map[string]any{
		"license_id": licenseID,
	}); err != nil {
		logger.L().Warn("归档任务快照失败",
			slog.String("task_id", t.ID),
			slog.String("error", err.Error()),
		)
	}

	m.emitTaskUpdate(ctx, t, "")
	logger.L().Info("任务完成",
		slog.String("task_id", t.ID),
		slog.String("license_id", licenseID),
	)
}

// failTask 把任务标记为失败并广播错误。
func (m *TaskManager) failTask(ctx context.Context, t *task.Task, reason string) {
	t.Status = task.StatusFailed
	t.Result = reason
	if err := m.repo.Update(ctx, t); err != nil {
		logger.L().Error("标记任务失败时出错",
			slog.String("task_id", t.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	m.emitTaskUpdate(ctx, t, reason)
}

func (m *TaskManager) emitTaskUpdate(ctx context.Context, t *task.Task, errMessage string) {
	m.caps.Emit(ctx, bus.ChannelTaskUpdate, bus.Message{
		TaskID: t.ID,
		Task:   t.Description,
		Result: t.Result,
		Status: bus.Status(t.Status),
		Error:  errMessage,
	})
}

var _ agent.Agent = (*TaskManager)(nil)
