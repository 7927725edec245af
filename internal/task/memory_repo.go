package task

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "AVA-Chain/internal/errors"
)

// MemoryRepository 将任务保存在进程内存中，主要用于测试和单机部署。
type MemoryRepository struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewMemoryRepository 创建 MemoryRepository。
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tasks: make(map[string]*Task)}
}

// Create 插入新的任务记录。
func (r *MemoryRepository) Create(_ context.Context, t *Task) error {
	if t == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	}
	if strings.TrimSpace(t.ID) == "" {
		return xerrors.New(CodeTaskValidation, "任务 ID 不能为空")
	}
	if !IsValidStatus(t.Status) {
		return xerrors.New(CodeTaskValidation, "任务状态不合法")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[t.ID]; exists {
		return ErrTaskConflict
	}
	now := time.Now().Unix()
	t.CreatedAt = now
	t.UpdatedAt = now
	clone := *t
	r.tasks[t.ID] = &clone
	return nil
}

// Get 查询指定任务。
func (r *MemoryRepository) Get(_ context.Context, id string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	clone := *stored
	return &clone, nil
}

// Update 覆盖一条已存在的任务。
func (r *MemoryRepository) Update(_ context.Context, t *Task) error {
	if t == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	}
	if !IsValidStatus(t.Status) {
		return xerrors.New(CodeTaskValidation, "任务状态不合法")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tasks[t.ID]
	if !ok {
		return ErrTaskNotFound
	}
	t.CreatedAt = stored.CreatedAt
	t.UpdatedAt = time.Now().Unix()
	clone := *t
	r.tasks[t.ID] = &clone
	return nil
}

// Delete 删除指定任务。任务不存在时返回 ErrTaskNotFound。
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return ErrTaskNotFound
	}
	delete(r.tasks, id)
	return nil
}

// List 返回符合过滤条件的任务。
func (r *MemoryRepository) List(_ context.Context, opts ListOptions) ([]*Task, error) {
	opts.applyDefaults()

	r.mu.RLock()
	matched := make([]*Task, 0, len(r.tasks))
	for _, stored := range r.tasks {
		if !matchesFilter(stored, opts) {
			continue
		}
		clone := *stored
		matched = append(matched, &clone)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].UpdatedAt == matched[j].UpdatedAt {
			if opts.Order == SortByUpdatedAsc {
				return matched[i].ID < matched[j].ID
			}
			return matched[i].ID > matched[j].ID
		}
		if opts.Order == SortByUpdatedAsc {
			return matched[i].UpdatedAt < matched[j].UpdatedAt
		}
		return matched[i].UpdatedAt > matched[j].UpdatedAt
	})

	if opts.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[opts.Offset:]
	if len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

// Close 对内存实现无需操作。
func (r *MemoryRepository) Close() error {
	return nil
}

func matchesFilter(t *Task, opts ListOptions) bool {
	if len(opts.Statuses) > 0 {
		found := false
		for _, status := range opts.Statuses {
			if t.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if opts.AssignedTo != "" && t.AssignedTo != opts.AssignedTo {
		return false
	}
	if opts.Query != "" {
		needle := strings.ToLower(opts.Query)
		if !strings.Contains(strings.ToLower(t.ID), needle) &&
			!strings.Contains(strings.ToLower(t.Description), needle) &&
			!strings.Contains(strings.ToLower(t.Result), needle) {
			return false
		}
	}
	return true
}

var _ Repository = (*MemoryRepository)(nil)
