package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "AVA-Chain/internal/errors"
)

// ErrKeyNotFound 表示指定的键不存在。
var ErrKeyNotFound = xerrors.New(xerrors.CodeNotFound, "key not found")

// Entry 是一条带元数据的存储记录。
type Entry struct {
	Data     any            `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`
	StoredAt int64          `json:"stored_at"`
}

// CoTEntry 保存一段 chain-of-thought 记录。
type CoTEntry struct {
	Thoughts []string       `json:"thoughts"`
	Metadata map[string]any `json:"metadata,omitempty"`
	StoredAt int64          `json:"stored_at"`
}

// Store 抽象了智能体的情报存储：按命名空间键追加/覆盖写入。
type Store interface {
	Store(ctx context.Context, key string, data any, metadata map[string]any) error
	Retrieve(ctx context.Context, key string) (*Entry, error)
	StoreCoT(ctx context.Context, key string, thoughts []string, metadata map[string]any) error
	RetrieveCoT(ctx context.Context, key string) (*CoTEntry, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// InMemoryStore 以内存方式保存情报数据，主要用于测试。
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	cots    map[string]*CoTEntry
}

// NewInMemoryStore 创建 InMemoryStore。
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]*Entry),
		cots:    make(map[string]*CoTEntry),
	}
}

// Store 写入或覆盖一条记录。
func (s *InMemoryStore) Store(_ context.Context, key string, data any, metadata map[string]any) error {
	if key == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "存储键不能为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &Entry{
		Data:     data,
		Metadata: cloneMetadata(metadata),
		StoredAt: time.Now().Unix(),
	}
	return nil
}

// Retrieve 返回一条记录。
func (s *InMemoryStore) Retrieve(_ context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	clone := *entry
	clone.Metadata = cloneMetadata(entry.Metadata)
	return &clone, nil
}

// StoreCoT 写入一段思维链。
func (s *InMemoryStore) StoreCoT(_ context.Context, key string, thoughts []string, metadata map[string]any) error {
	if key == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "存储键不能为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cots[key] = &CoTEntry{
		Thoughts: append([]string(nil), thoughts...),
		Metadata: cloneMetadata(metadata),
		StoredAt: time.Now().Unix(),
	}
	return nil
}

// RetrieveCoT 返回一段思维链。
func (s *InMemoryStore) RetrieveCoT(_ context.Context, key string) (*CoTEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cots[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	clone := CoTEntry{
		Thoughts: append([]string(nil), entry.Thoughts...),
		Metadata: cloneMetadata(entry.Metadata),
		StoredAt: entry.StoredAt,
	}
	return &clone, nil
}

// Delete 删除一条记录，键不存在时静默返回。
func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	delete(s.cots, key)
	return nil
}

// List 返回具有指定前缀的全部键，按字典序排序。
func (s *InMemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0)
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close 对内存存储无需操作。
func (s *InMemoryStore) Close() error {
	return nil
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	cloned := make(map[string]any, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}
	return cloned
}

var _ Store = (*InMemoryStore)(nil)
