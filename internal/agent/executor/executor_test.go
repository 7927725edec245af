package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"AVA-Chain/internal/agent"
	"AVA-Chain/internal/bus"
	"AVA-Chain/internal/llm"
	"AVA-Chain/internal/memory"
	"AVA-Chain/internal/tool"
	"AVA-Chain/internal/txplan"
	"AVA-Chain/internal/web3"
)

type stubPlanner struct {
	plans      []txplan.Plan
	err        error
	failPrompt string
	calls      int
}

func (s *stubPlanner) PlanTransaction(_ context.Context, req txplan.Request) ([]txplan.Plan, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.failPrompt != "" && req.Prompt == s.failPrompt {
		return nil, errors.New("no route for pair")
	}
	return s.plans, nil
}

type stubChain struct {
	sent      []web3.TransactionRequest
	failAtTx  int
	revertTx  int
	sendCalls int
}

func (s *stubChain) ChainID(_ context.Context) (*big.Int, error) {
	return big.NewInt(11155111), nil
}

func (s *stubChain) SendTransaction(_ context.Context, req web3.TransactionRequest) (string, error) {
	s.sendCalls++
	if s.failAtTx > 0 && s.sendCalls == s.failAtTx {
		return "", errors.New("nonce too low")
	}
	s.sent = append(s.sent, req)
	return fmt.Sprintf("0xhash%d", s.sendCalls), nil
}

func (s *stubChain) WaitForTransactionReceipt(_ context.Context, txHash string) (*web3.Receipt, error) {
	success := true
	if s.revertTx > 0 && s.sendCalls == s.revertTx {
		success = false
	}
	return &web3.Receipt{TxHash: txHash, BlockNumber: "0x1", Success: success}, nil
}

func (s *stubChain) BalanceAt(_ context.Context, _ string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (s *stubChain) Close() {}

type unsafeLLM struct{}

func (unsafeLLM) GenerateText(_ context.Context, _, _ string) (*llm.Response, error) {
	return &llm.Response{Text: "UNSAFE: draining transfer"}, nil
}

func swapPlan(steps int) []txplan.Plan {
	plan := txplan.Plan{Description: "Swap ETH for USDC", FromToken: "ETH", ToToken: "USDC"}
	for i := 0; i < steps; i++ {
		plan.Steps = append(plan.Steps, txplan.Step{
			To:    "0x1111111111111111111111111111111111111111",
			Value: "1000000000000000000",
			Data:  "0xdeadbeef",
		})
	}
	return []txplan.Plan{plan}
}

func captureReplies(b *bus.EventBus) *[]bus.Message {
	var replies []bus.Message
	b.Register(bus.Direct(agent.NameExecutor, agent.NameTaskManager), func(_ context.Context, msg bus.Message) {
		replies = append(replies, msg)
	})
	return &replies
}

func TestExecuteRoutesNonDeFiTasks(t *testing.T) {
	eventBus := bus.New()
	replies := captureReplies(eventBus)
	planner := &stubPlanner{plans: swapPlan(1)}

	exec := New(agent.Capabilities{Bus: eventBus}, nil, planner, &stubChain{}, Config{})
	exec.Execute(context.Background(), "t1", "monitor whale wallets")

	if len(*replies) != 1 {
		t.Fatalf("expected one reply, got %d", len(*replies))
	}
	reply := (*replies)[0]
	if reply.Status != bus.StatusRouting {
		t.Fatalf("expected routing status, got %s", reply.Status)
	}
	if reply.Type != string(TypeObservation) {
		t.Fatalf("unexpected task type: %s", reply.Type)
	}
	if planner.calls != 0 {
		t.Fatal("planner must not run for routed tasks")
	}
}

func TestExecuteUnsafeSimulationShortCircuits(t *testing.T) {
	eventBus := bus.New()
	replies := captureReplies(eventBus)
	planner := &stubPlanner{plans: swapPlan(1)}
	chain := &stubChain{}

	exec := New(agent.Capabilities{Bus: eventBus}, unsafeLLM{}, planner, chain, Config{})
	exec.Execute(context.Background(), "t1", "swap all ETH to USDC")

	reply := (*replies)[0]
	if reply.Status != bus.StatusFailed {
		t.Fatalf("expected failed status, got %s", reply.Status)
	}
	// 模拟阶段失败后不得进入规划与执行。
	if planner.calls != 0 || chain.sendCalls != 0 {
		t.Fatalf("pipeline did not short-circuit: planner=%d chain=%d", planner.calls, chain.sendCalls)
	}
}

func TestExecutePlannerFailureShortCircuits(t *testing.T) {
	eventBus := bus.New()
	replies := captureReplies(eventBus)
	chain := &stubChain{}

	exec := New(agent.Capabilities{Bus: eventBus}, nil, &stubPlanner{err: errors.New("planner down")}, chain, Config{})
	exec.Execute(context.Background(), "t1", "swap 1 ETH to USDC")

	reply := (*replies)[0]
	if reply.Status != bus.StatusFailed {
		t.Fatalf("expected failed status, got %s", reply.Status)
	}
	if chain.sendCalls != 0 {
		t.Fatal("no transaction may be sent when planning fails")
	}
}

func TestExecuteCompletesAndClearsPlanRecord(t *testing.T) {
	eventBus := bus.New()
	replies := captureReplies(eventBus)
	store := memory.NewInMemoryStore()
	chain := &stubChain{}

	exec := New(agent.Capabilities{Bus: eventBus, Memory: store}, nil, &stubPlanner{plans: swapPlan(2)}, chain, Config{ChainID: 11155111, Address: "0x2222222222222222222222222222222222222222"})
	exec.Execute(context.Background(), "t1", "swap 2 ETH to USDC")

	reply := (*replies)[0]
	if reply.Status != bus.StatusCompleted {
		t.Fatalf("expected completed status, got %s (error %q)", reply.Status, reply.Error)
	}
	if len(chain.sent) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(chain.sent))
	}
	if chain.sent[0].Value.String() != "1000000000000000000" {
		t.Fatalf("unexpected value: %s", chain.sent[0].Value)
	}

	// 全部成功后待执行记录被清除。
	if _, err := store.Retrieve(context.Background(), "plan:t1"); !errors.Is(err, memory.ErrKeyNotFound) {
		t.Fatalf("expected plan record to be cleared, got %v", err)
	}

	// 回执携带三个阶段的工具痕迹。
	if len(reply.ToolResults) != 3 {
		t.Fatalf("expected 3 stage results, got %d", len(reply.ToolResults))
	}
}

func TestExecuteAbortsOnFirstFailureWithoutRollback(t *testing.T) {
	eventBus := bus.New()
	replies := captureReplies(eventBus)
	store := memory.NewInMemoryStore()
	chain := &stubChain{failAtTx: 2}

	exec := New(agent.Capabilities{Bus: eventBus, Memory: store}, nil, &stubPlanner{plans: swapPlan(3)}, chain, Config{})
	exec.Execute(context.Background(), "t1", "swap 3 ETH to USDC")

	reply := (*replies)[0]
	if reply.Status != bus.StatusFailed {
		t.Fatalf("expected failed status, got %s", reply.Status)
	}
	// 第一笔已上链且不回滚；第三笔从未发送。
	if len(chain.sent) != 1 {
		t.Fatalf("expected exactly 1 confirmed transaction, got %d", len(chain.sent))
	}
	if chain.sendCalls != 2 {
		t.Fatalf("expected abort after second send, got %d calls", chain.sendCalls)
	}
	if reply.Result == "" {
		t.Fatal("expected confirmed hashes to be reported on failure")
	}

	// 失败时保留计划记录供排查。
	if _, err := store.Retrieve(context.Background(), "plan:t1"); err != nil {
		t.Fatalf("expected plan record to survive failure, got %v", err)
	}
}

func TestExecuteRevertedReceiptAborts(t *testing.T) {
	eventBus := bus.New()
	replies := captureReplies(eventBus)
	chain := &stubChain{revertTx: 1}

	exec := New(agent.Capabilities{Bus: eventBus}, nil, &stubPlanner{plans: swapPlan(2)}, chain, Config{})
	exec.Execute(context.Background(), "t1", "swap 2 ETH to USDC")

	reply := (*replies)[0]
	if reply.Status != bus.StatusFailed {
		t.Fatalf("expected failed status, got %s", reply.Status)
	}
	if chain.sendCalls != 1 {
		t.Fatalf("expected abort after reverted receipt, got %d sends", chain.sendCalls)
	}
}

func TestToolkitStagewiseExecution(t *testing.T) {
	store := memory.NewInMemoryStore()
	chain := &stubChain{}

	exec := New(agent.Capabilities{Bus: bus.New(), Memory: store}, nil, &stubPlanner{plans: swapPlan(1)}, chain, Config{ChainID: 11155111})
	toolkit := exec.Toolkit()
	ctx := context.Background()

	result := tool.Invoke(ctx, toolkit[ToolGetTransactionData], tool.Args{
		"tasks": []any{map[string]any{"task": "swap 1 ETH to USDC", "taskId": "t1"}},
	}, tool.Options{})
	if !result.Success {
		t.Fatalf("plan stage failed: %s", result.Error)
	}
	if _, err := store.Retrieve(ctx, "plan:t1"); err != nil {
		t.Fatalf("plan record not persisted: %v", err)
	}

	// 模拟工具不接收参数，扫描全部待执行计划。
	result = tool.Invoke(ctx, toolkit[ToolSimulateTasks], tool.Args{}, tool.Options{})
	if !result.Success {
		t.Fatalf("simulate stage failed: %s", result.Error)
	}
	advisory, ok := result.Result.(string)
	if !ok || !strings.Contains(advisory, "t1") {
		t.Fatalf("expected pending plan t1 in advisory, got %v", result.Result)
	}

	result = tool.Invoke(ctx, toolkit[ToolExecuteTransaction], tool.Args{"task": "swap 1 ETH to USDC", "taskId": "t1"}, tool.Options{})
	if !result.Success {
		t.Fatalf("execute stage failed: %s", result.Error)
	}
	if chain.sendCalls != 1 {
		t.Fatalf("expected one transaction, got %d", chain.sendCalls)
	}
	if _, err := store.Retrieve(ctx, "plan:t1"); !errors.Is(err, memory.ErrKeyNotFound) {
		t.Fatalf("expected plan record to be cleared, got %v", err)
	}
}

func TestToolkitBatchPlanningAllOrNothing(t *testing.T) {
	store := memory.NewInMemoryStore()
	planner := &stubPlanner{plans: swapPlan(1), failPrompt: "swap 5 DOGE to BTC"}

	exec := New(agent.Capabilities{Bus: bus.New(), Memory: store}, nil, planner, &stubChain{}, Config{})
	result := tool.Invoke(context.Background(), exec.Toolkit()[ToolGetTransactionData], tool.Args{
		"tasks": []any{
			map[string]any{"task": "swap 1 ETH to USDC", "taskId": "t1"},
			map[string]any{"task": "swap 5 DOGE to BTC", "taskId": "t2"},
		},
	}, tool.Options{})

	// 批内任一任务规划失败，整个调用失败。
	if result.Success {
		t.Fatal("expected batch failure when one task cannot be planned")
	}
	if !strings.Contains(result.Error, "t2") {
		t.Fatalf("expected failing task id in error, got %q", result.Error)
	}
}

func TestToolkitBatchGeneratesMissingTaskIDs(t *testing.T) {
	store := memory.NewInMemoryStore()

	exec := New(agent.Capabilities{Bus: bus.New(), Memory: store}, nil, &stubPlanner{plans: swapPlan(1)}, &stubChain{}, Config{})
	result := tool.Invoke(context.Background(), exec.Toolkit()[ToolGetTransactionData], tool.Args{
		"tasks": []any{map[string]any{"task": "swap 1 ETH to USDC"}},
	}, tool.Options{})
	if !result.Success {
		t.Fatalf("plan stage failed: %s", result.Error)
	}

	keys, err := store.List(context.Background(), "plan:")
	if err != nil {
		t.Fatalf("list plans: %v", err)
	}
	if len(keys) != 1 || keys[0] == "plan:" {
		t.Fatalf("expected one plan record with generated id, got %v", keys)
	}
}

func TestToolkitSimulateWithoutPlans(t *testing.T) {
	exec := New(agent.Capabilities{Bus: bus.New(), Memory: memory.NewInMemoryStore()}, nil, &stubPlanner{}, &stubChain{}, Config{})

	result := tool.Invoke(context.Background(), exec.Toolkit()[ToolSimulateTasks], tool.Args{}, tool.Options{})
	if !result.Success {
		t.Fatalf("simulate failed: %s", result.Error)
	}
	if result.Result != "没有待执行的计划" {
		t.Fatalf("unexpected advisory: %v", result.Result)
	}
}

func TestToolkitExecuteWithoutPlanFails(t *testing.T) {
	exec := New(agent.Capabilities{Bus: bus.New(), Memory: memory.NewInMemoryStore()}, nil, &stubPlanner{}, &stubChain{}, Config{})

	result := tool.Invoke(context.Background(), exec.Toolkit()[ToolExecuteTransaction], tool.Args{"task": "swap", "taskId": "missing"}, tool.Options{})
	if result.Success {
		t.Fatal("expected failure without a plan record")
	}

	// 缺少必填的 task 指令由 schema 拦截。
	result = tool.Invoke(context.Background(), exec.Toolkit()[ToolExecuteTransaction], tool.Args{"taskId": "missing"}, tool.Options{})
	if result.Success {
		t.Fatal("expected schema validation failure without task")
	}
}

func TestClassifyTask(t *testing.T) {
	cases := []struct {
		instruction string
		want        TaskType
	}{
		{"swap 1 ETH for USDC", TypeDeFiExecution},
		{"send 100 USDC to vitalik.eth", TypeDeFiExecution},
		{"monitor the mempool", TypeObservation},
		{"analyze lending rates across protocols", TypeAnalysis},
		{"hello world", TypeUnknown},
	}
	for _, tc := range cases {
		if got := ClassifyTask(tc.instruction); got != tc.want {
			t.Fatalf("ClassifyTask(%q) = %s, want %s", tc.instruction, got, tc.want)
		}
	}
}
