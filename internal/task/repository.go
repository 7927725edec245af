package task

import "context"

// SortOrder 控制 List 的排序方向。
type SortOrder string

const (
	SortByUpdatedDesc SortOrder = "updated_desc"
	SortByUpdatedAsc  SortOrder = "updated_asc"
)

// ListOptions 过滤任务列表。
type ListOptions struct {
	Statuses   []Status
	AssignedTo string
	Query      string
	Order      SortOrder
	Limit      int
	Offset     int
}

func (o *ListOptions) applyDefaults() {
	if o.Limit <= 0 || o.Limit > 200 {
		o.Limit = 50
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	if o.Order == "" {
		o.Order = SortByUpdatedDesc
	}
}

// Repository 抽象了任务的持久化。实现由外部注入，
// 任务管理器不关心任务最终落在内存、MySQL 还是别处。
type Repository interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOptions) ([]*Task, error)
	Close() error
}
