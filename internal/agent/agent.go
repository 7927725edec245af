package agent

import (
	"context"

	"AVA-Chain/internal/bus"
)

// 系统内三个内置智能体的名字，同时作为定向频道名的组成部分。
const (
	NameObserver    = "observer"
	NameTaskManager = "task-manager"
	NameExecutor    = "executor"
)

// Agent 是所有智能体的统一契约。HandleEvent 在总线 Emit 的调用栈内
// 同步执行，channel 标识消息来自哪个频道。
type Agent interface {
	Name() string
	HandleEvent(ctx context.Context, channel string, msg bus.Message)
}

// Registry 负责把智能体接到事件总线的定向频道上。
type Registry struct {
	bus     *bus.EventBus
	cancels []func()
}

// NewRegistry 创建 Registry。
func NewRegistry(eventBus *bus.EventBus) *Registry {
	return &Registry{bus: eventBus}
}

// Attach 让智能体监听给定的频道集合。
func (r *Registry) Attach(a Agent, channels ...string) {
	for _, channel := range channels {
		ch := channel
		cancel := r.bus.Register(ch, func(ctx context.Context, msg bus.Message) {
			a.HandleEvent(ctx, ch, msg)
		})
		r.cancels = append(r.cancels, cancel)
	}
}

// AttachDefault 按默认拓扑接入三个内置智能体：
// 观察者与执行者各听任务管理器的派发频道，任务管理器听两者的回执频道。
func (r *Registry) AttachDefault(observer, taskManager, executor Agent) {
	r.Attach(observer, bus.Direct(NameTaskManager, NameObserver))
	r.Attach(executor, bus.Direct(NameTaskManager, NameExecutor))
	r.Attach(taskManager,
		bus.Direct(NameObserver, NameTaskManager),
		bus.Direct(NameExecutor, NameTaskManager),
	)
}

// Close 解除全部监听。
func (r *Registry) Close() {
	for _, cancel := range r.cancels {
		cancel()
	}
	r.cancels = nil
}
