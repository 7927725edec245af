package agent_test

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"AVA-Chain/internal/agent"
	"AVA-Chain/internal/agent/executor"
	"AVA-Chain/internal/agent/observer"
	"AVA-Chain/internal/agent/taskmanager"
	"AVA-Chain/internal/bus"
	"AVA-Chain/internal/license"
	"AVA-Chain/internal/llm"
	"AVA-Chain/internal/memory"
	"AVA-Chain/internal/task"
	"AVA-Chain/internal/txplan"
	"AVA-Chain/internal/web3"
)

type scriptedLLM struct {
	text string
}

func (s scriptedLLM) GenerateText(_ context.Context, _, _ string) (*llm.Response, error) {
	return &llm.Response{Text: s.text}, nil
}

type scriptedPlanner struct{}

func (scriptedPlanner) PlanTransaction(_ context.Context, req txplan.Request) ([]txplan.Plan, error) {
	return []txplan.Plan{{
		Description: "Swap ETH for USDC",
		FromToken:   "ETH",
		ToToken:     "USDC",
		Steps: []txplan.Step{{
			To:    "0x1111111111111111111111111111111111111111",
			Value: "1000000000000000000",
			Data:  "0x",
		}},
	}}, nil
}

type scriptedChain struct {
	sent int
}

func (c *scriptedChain) ChainID(_ context.Context) (*big.Int, error) {
	return big.NewInt(11155111), nil
}

func (c *scriptedChain) SendTransaction(_ context.Context, _ web3.TransactionRequest) (string, error) {
	c.sent++
	return fmt.Sprintf("0xabc%d", c.sent), nil
}

func (c *scriptedChain) WaitForTransactionReceipt(_ context.Context, txHash string) (*web3.Receipt, error) {
	return &web3.Receipt{TxHash: txHash, BlockNumber: "0x1", Success: true}, nil
}

func (c *scriptedChain) BalanceAt(_ context.Context, _ string) (*big.Int, error) {
	return big.NewInt(2_000_000_000_000_000_000), nil
}

func (c *scriptedChain) Close() {}

type scriptedData struct{}

func (scriptedData) MarketData(_ context.Context, _ string) (any, error) {
	return map[string]any{"eth_usd": 3200}, nil
}

func (scriptedData) RankedAgents(_ context.Context, _ int) (any, error) {
	return []any{"alpha"}, nil
}

func (scriptedData) SocialPosts(_ context.Context, _ string) (any, error) {
	return []any{"rotation into ETH"}, nil
}

// buildSystem 按默认拓扑搭起一套完整的进程内编排系统。
func buildSystem(t *testing.T) (*bus.EventBus, *taskmanager.TaskManager, task.Repository, *memory.InMemoryStore, license.Client, *scriptedChain) {
	t.Helper()

	eventBus := bus.New()
	store := memory.NewInMemoryStore()
	lic := license.NewMemoryClient()
	repo := task.NewMemoryRepository()
	chain := &scriptedChain{}

	caps := agent.Capabilities{Bus: eventBus, Memory: store, License: lic}

	observerAgent := observer.New(caps, scriptedLLM{text: "ETH momentum is building"},
		observer.WithChain(chain), observer.WithDataSource(scriptedData{}))
	manager := taskmanager.New(caps, repo, nil)
	executorAgent := executor.New(caps, nil, scriptedPlanner{}, chain, executor.Config{
		ChainID: 11155111,
		Address: "0x2222222222222222222222222222222222222222",
	})

	registry := agent.NewRegistry(eventBus)
	registry.AttachDefault(observerAgent, manager, executorAgent)
	t.Cleanup(registry.Close)

	return eventBus, manager, repo, store, lic, chain
}

func TestSwapScenarioEndToEnd(t *testing.T) {
	eventBus, manager, repo, store, lic, chain := buildSystem(t)
	ctx := context.Background()

	updates := eventBus.Subscribe(bus.ChannelTaskUpdate)

	created, err := manager.ProcessAnalysis(ctx, "swap 1 ETH for USDC while fees are low")
	if err != nil {
		t.Fatalf("process analysis: %v", err)
	}

	final, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if final.Status != task.StatusCompleted {
		t.Fatalf("expected completed task, got %s (result %q)", final.Status, final.Result)
	}
	if final.AssignedTo != agent.NameExecutor {
		t.Fatalf("expected executor assignment, got %q", final.AssignedTo)
	}
	if chain.sent != 1 {
		t.Fatalf("expected one transaction on chain, got %d", chain.sent)
	}

	// 执行产物带许可，且归档在 execution:<id> 下。
	if final.LicenseID == "" {
		t.Fatal("expected license id on completed task")
	}
	metadata, err := lic.GetLicenseMetadata(ctx, final.LicenseID)
	if err != nil {
		t.Fatalf("license metadata: %v", err)
	}
	if metadata.HolderID != agent.NameExecutor {
		t.Fatalf("expected executor as holder, got %q", metadata.HolderID)
	}
	if _, err := store.Retrieve(ctx, "execution:"+created.ID); err != nil {
		t.Fatalf("execution record: %v", err)
	}

	// task-update 广播覆盖 pending -> in_progress -> completed。
	statuses := map[bus.Status]bool{}
	for {
		select {
		case msg := <-updates:
			statuses[msg.Status] = true
		default:
			if !statuses[bus.StatusPending] || !statuses[bus.StatusInProgress] || !statuses[bus.StatusCompleted] {
				t.Fatalf("missing lifecycle broadcasts: %v", statuses)
			}
			return
		}
	}
}

func TestObservationScenarioEndToEnd(t *testing.T) {
	_, manager, repo, store, lic, _ := buildSystem(t)
	ctx := context.Background()

	created, err := manager.ProcessAnalysis(ctx, "monitor whale wallets for unusual moves")
	if err != nil {
		t.Fatalf("process analysis: %v", err)
	}

	final, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if final.Status != task.StatusCompleted {
		t.Fatalf("expected completed task, got %s", final.Status)
	}
	if final.AssignedTo != agent.NameObserver {
		t.Fatalf("expected observer assignment, got %q", final.AssignedTo)
	}
	if final.Result != "ETH momentum is building" {
		t.Fatalf("unexpected result: %q", final.Result)
	}

	entry, err := store.Retrieve(ctx, "observation:"+created.ID)
	if err != nil {
		t.Fatalf("observation record: %v", err)
	}
	if entry.Metadata["license_id"] != final.LicenseID {
		t.Fatalf("observation record not bound to license: %+v", entry.Metadata)
	}

	terms, err := lic.GetLicenseTerms(ctx, final.LicenseID)
	if err != nil {
		t.Fatalf("license terms: %v", err)
	}
	if terms.Name != "Task Observation Result - "+created.ID {
		t.Fatalf("unexpected license name: %q", terms.Name)
	}

	// 观察者的思考被留痕在 thought: 命名空间下。
	thoughts, err := store.List(ctx, "thought:"+agent.NameObserver+":")
	if err != nil {
		t.Fatalf("list thoughts: %v", err)
	}
	if len(thoughts) == 0 {
		t.Fatal("expected at least one saved thought")
	}
}
