package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"AVA-Chain/pkg/logger"
)

// Status 表示事件载荷中携带的任务状态。
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusPartial    Status = "partial"
	StatusRouting    Status = "routing"
)

// 广播频道，供 UI、API 等外部消费方订阅。
const (
	ChannelTaskUpdate   = "task-update"
	ChannelAgentMessage = "agent-message"
	ChannelAgentError   = "agent-error"
	ChannelAgentAction  = "agent-action"
)

// Direct 返回 <source>-<destination> 形式的定向频道名。
func Direct(source, destination string) string {
	return source + "-" + destination
}

// ToolExecution 记录单个工具调用在事件中的结果条目。
type ToolExecution struct {
	Tool   string `json:"tool"`
	Status string `json:"status,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Message 是总线上所有频道共享的类型化载荷。
// 字段按约定填充：定向频道携带 TaskID/Task/Result/Status，
// 广播频道携带 Agent/Action/Content/Error 等。
type Message struct {
	TaskID      string          `json:"taskId,omitempty"`
	Task        string          `json:"task,omitempty"`
	Result      string          `json:"result,omitempty"`
	Status      Status          `json:"status,omitempty"`
	Type        string          `json:"type,omitempty"`
	ToolResults []ToolExecution `json:"toolResults,omitempty"`
	PartialData bool            `json:"partialData,omitempty"`
	Error       string          `json:"error,omitempty"`

	Agent             string `json:"agent,omitempty"`
	Action            string `json:"action,omitempty"`
	Role              string `json:"role,omitempty"`
	Content           string `json:"content,omitempty"`
	CollaborationType string `json:"collaborationType,omitempty"`

	NoFurtherActions bool          `json:"noFurtherActions,omitempty"`
	WaitTime         time.Duration `json:"waitTime,omitempty"`

	Timestamp string `json:"timestamp,omitempty"`
}

// Stamp 填充时间戳（若调用方未填写）并返回消息本身。
func (m Message) Stamp() Message {
	if m.Timestamp == "" {
		m.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return m
}

// Handler 处理某个频道上的一条消息。Handler 在 Emit 的调用栈内同步执行，
// 需要异步工作的处理器必须自行调度，不得阻塞总线。
type Handler func(ctx context.Context, msg Message)

// EventBus 是进程内的命名发布/订阅总线。它不是队列：
// 只有 Emit 时已注册的监听方会被调用一次，事后无法回放。
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]*registration
	subs     map[string][]chan Message
}

type registration struct {
	handler Handler
}

// New 创建一个空的事件总线。
func New() *EventBus {
	return &EventBus{
		handlers: make(map[string][]*registration),
		subs:     make(map[string][]chan Message),
	}
}

// Register 为频道注册一个处理器，按注册顺序被调用。
func (b *EventBus) Register(channel string, handler Handler) func() {
	if handler == nil {
		return func() {}
	}
	reg := &registration{handler: handler}
	b.mu.Lock()
	b.handlers[channel] = append(b.handlers[channel], reg)
	b.mu.Unlock()
	return func() { b.unregister(channel, reg) }
}

func (b *EventBus) unregister(channel string, reg *registration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	regs := b.handlers[channel]
	for i, candidate := range regs {
		if candidate == reg {
			b.handlers[channel] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// Subscribe 返回频道的消息通道，是处理器之外的第二种监听方式。
// 通道带缓冲；订阅方消费过慢时消息被丢弃而非阻塞发布方。
func (b *EventBus) Subscribe(channel string) <-chan Message {
	ch := make(chan Message, 64)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe 移除 Subscribe 返回的通道并关闭它。
func (b *EventBus) Unsubscribe(channel string, ch <-chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[channel]
	for i, candidate := range subs {
		if candidate == ch {
			b.subs[channel] = append(subs[:i:i], subs[i+1:]...)
			close(candidate)
			return
		}
	}
}

// Emit 将消息同步分发给频道的全部处理器（按注册顺序），
// 随后以非阻塞方式投递给各订阅通道。没有任何送达保证。
func (b *EventBus) Emit(ctx context.Context, channel string, msg Message) {
	msg = msg.Stamp()

	b.mu.RLock()
	regs := make([]*registration, len(b.handlers[channel]))
	copy(regs, b.handlers[channel])
	subs := make([]chan Message, len(b.subs[channel]))
	copy(subs, b.subs[channel])
	b.mu.RUnlock()

	for _, reg := range regs {
		reg.handler(ctx, msg)
	}
	for _, ch := range subs {
		select {
		case ch <- msg:
		default:
			logger.L().Warn("总线订阅通道已满，消息被丢弃",
				slog.String("channel", channel),
				slog.String("task_id", msg.TaskID),
			)
		}
	}
}
