package agent_test

import (
	"context"
	"testing"

	"AVA-Chain/internal/agent"
	"AVA-Chain/internal/bus"
	"AVA-Chain/internal/memory"
)

func TestSaveThoughtRecordsToolTrail(t *testing.T) {
	store := memory.NewInMemoryStore()
	caps := agent.Capabilities{AgentName: "observer", Memory: store}
	ctx := context.Background()

	caps.SaveThought(ctx, "market looks stable",
		bus.ToolExecution{Tool: "getMarketData", Status: "success", Result: map[string]any{"trend": "up"}},
		bus.ToolExecution{Tool: "getWalletBalances", Status: "failed", Error: "rpc unavailable"},
	)

	keys, err := store.List(ctx, "thought:observer:")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected one thought record, got %d", len(keys))
	}

	entry, err := store.Retrieve(ctx, keys[0])
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	thought, ok := entry.Data.(agent.Thought)
	if !ok {
		t.Fatalf("unexpected record type: %T", entry.Data)
	}
	if thought.Agent != "observer" || thought.Text != "market looks stable" {
		t.Fatalf("unexpected thought: %+v", thought)
	}
	if len(thought.ToolCalls) != 2 || thought.ToolCalls[1] != "getWalletBalances" {
		t.Fatalf("unexpected tool calls: %v", thought.ToolCalls)
	}
	if len(thought.ToolResults) != 2 || thought.ToolResults[1].Error == "" {
		t.Fatalf("unexpected tool results: %+v", thought.ToolResults)
	}
}

func TestSaveThoughtWithoutTrailOrStore(t *testing.T) {
	store := memory.NewInMemoryStore()
	caps := agent.Capabilities{AgentName: "executor", Memory: store}
	ctx := context.Background()

	// 无工具痕迹的思考照常入库。
	caps.SaveThought(ctx, "nothing to execute")
	keys, err := store.List(ctx, "thought:executor:")
	if err != nil || len(keys) != 1 {
		t.Fatalf("expected one thought record, got %v (%v)", keys, err)
	}

	// 存储缺席时静默降级。
	bare := agent.Capabilities{AgentName: "executor"}
	bare.SaveThought(ctx, "dropped on the floor")
}
