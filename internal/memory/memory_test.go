package memory

import (
	"context"
	"errors"
	"testing"
)

func TestInMemoryStoreRoundTrip(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	if err := store.Store(ctx, "observation:t1", "market is calm", map[string]any{"agent": "observer"}); err != nil {
		t.Fatalf("store: %v", err)
	}

	entry, err := store.Retrieve(ctx, "observation:t1")
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if entry.Data != "market is calm" {
		t.Fatalf("unexpected data: %v", entry.Data)
	}
	if entry.Metadata["agent"] != "observer" {
		t.Fatalf("unexpected metadata: %v", entry.Metadata)
	}
	if entry.StoredAt == 0 {
		t.Fatal("expected stored_at to be set")
	}
}

func TestInMemoryStoreMissingKey(t *testing.T) {
	store := NewInMemoryStore()

	if _, err := store.Retrieve(context.Background(), "missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestInMemoryStoreRejectsEmptyKey(t *testing.T) {
	store := NewInMemoryStore()

	if err := store.Store(context.Background(), "", "data", nil); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestInMemoryStoreCoT(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	thoughts := []string{"check balances", "compare rates", "decide"}
	if err := store.StoreCoT(ctx, "thought:observer:1", thoughts, nil); err != nil {
		t.Fatalf("store cot: %v", err)
	}

	entry, err := store.RetrieveCoT(ctx, "thought:observer:1")
	if err != nil {
		t.Fatalf("retrieve cot: %v", err)
	}
	if len(entry.Thoughts) != 3 || entry.Thoughts[1] != "compare rates" {
		t.Fatalf("unexpected thoughts: %v", entry.Thoughts)
	}

	// 返回的切片是副本，修改不应影响存储内容。
	entry.Thoughts[0] = "mutated"
	again, err := store.RetrieveCoT(ctx, "thought:observer:1")
	if err != nil {
		t.Fatalf("retrieve cot again: %v", err)
	}
	if again.Thoughts[0] != "check balances" {
		t.Fatalf("stored thoughts were mutated: %v", again.Thoughts)
	}
}

func TestInMemoryStoreListByPrefix(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	for _, key := range []string{"observation:a", "observation:b", "execution:c"} {
		if err := store.Store(ctx, key, "data", nil); err != nil {
			t.Fatalf("store %s: %v", key, err)
		}
	}

	keys, err := store.List(ctx, "observation:")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
	if keys[0] != "observation:a" || keys[1] != "observation:b" {
		t.Fatalf("expected sorted keys, got %v", keys)
	}
}

func TestInMemoryStoreDelete(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	if err := store.Store(ctx, "plan:t1", "pending swap", nil); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := store.Delete(ctx, "plan:t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Retrieve(ctx, "plan:t1"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected key to be gone, got %v", err)
	}

	// 重复删除静默成功。
	if err := store.Delete(ctx, "plan:t1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}
