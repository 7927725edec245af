package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"AVA-Chain/pkg/logger"
)

// RabbitMQBridgeConfig 描述广播桥接的连接参数。
type RabbitMQBridgeConfig struct {
	URL      string
	Exchange string
	Channels []string
}

// RabbitMQBridge 将总线上的广播频道转发到 RabbitMQ fanout exchange，
// 供进程外的 UI / API 消费方接收 task-update 等事件。
type RabbitMQBridge struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	cancels  []func()
}

// NewRabbitMQBridge 建立连接并声明 exchange。
func NewRabbitMQBridge(cfg RabbitMQBridgeConfig) (*RabbitMQBridge, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "ava.events"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ exchange 失败: %w", err)
	}
	return &RabbitMQBridge{conn: conn, ch: ch, exchange: exchange}, nil
}

// Attach 在总线上注册转发处理器。channels 为空时转发全部广播频道。
func (b *RabbitMQBridge) Attach(eventBus *EventBus, channels ...string) {
	if len(channels) == 0 {
		channels = []string{ChannelTaskUpdate, ChannelAgentMessage, ChannelAgentError, ChannelAgentAction}
	}
	for _, channel := range channels {
		name := channel
		cancel := eventBus.Register(name, func(ctx context.Context, msg Message) {
			if err := b.publish(ctx, name, msg); err != nil {
				logger.L().Error("广播事件转发失败",
					slog.Any("error", err),
					slog.String("channel", name),
					slog.String("task_id", msg.TaskID),
				)
			}
		})
		b.cancels = append(b.cancels, cancel)
	}
}

func (b *RabbitMQBridge) publish(ctx context.Context, channel string, msg Message) error {
	if b == nil || b.ch == nil {
		return errors.New("RabbitMQ 桥接未初始化")
	}
	body, err := json.Marshal(envelope{Channel: channel, Payload: msg})
	if err != nil {
		return fmt.Errorf("序列化广播事件失败: %w", err)
	}
	return b.ch.PublishWithContext(ctx, b.exchange, channel, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// envelope 是发往 exchange 的消息结构。
type envelope struct {
	Channel string  `json:"channel"`
	Payload Message `json:"payload"`
}

// Close 注销处理器并关闭连接。
func (b *RabbitMQBridge) Close() error {
	if b == nil {
		return nil
	}
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
