package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"AVA-Chain/internal/bus"
	xerrors "AVA-Chain/internal/errors"
	"AVA-Chain/pkg/logger"
)

// Channel 表示通知渠道。
type Channel string

// 支持的通知渠道
const (
	ChannelEmail Channel = "email"
	ChannelSlack Channel = "slack"
)

// Event 描述一次需要告警的事件。
type Event struct {
	Code       xerrors.Code
	Message    string
	Severity   xerrors.Severity
	Agent      string
	TaskID     string
	Metadata   map[string]string
	OccurredAt time.Time
}

// Notifier 负责将事件发送到指定渠道。
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// Dispatcher 将事件广播给多个通知器。
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher 实现将事件投递到多个通知器的逻辑。
type FanoutDispatcher struct {
	notifiers map[Channel]Notifier
}

// NewFanout 创建一个新的 FanoutDispatcher。
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	set := make(map[Channel]Notifier, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		set[n.Channel()] = n
	}
	return &FanoutDispatcher{notifiers: set}
}

// Notify 将事件广播至所有注册渠道。
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", notifier.Channel(), err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// AttachToBus 监听 agent-error 频道，把智能体错误转成告警事件。
// 返回解除监听的取消函数。
func AttachToBus(eventBus *bus.EventBus, dispatcher Dispatcher) func() {
	if eventBus == nil || dispatcher == nil {
		return func() {}
	}
	return eventBus.Register(bus.ChannelAgentError, func(ctx context.Context, msg bus.Message) {
		event := Event{
			Code:       xerrors.CodeUnknown,
			Message:    msg.Error,
			Severity:   xerrors.SeverityWarning,
			Agent:      msg.Agent,
			TaskID:     msg.TaskID,
			OccurredAt: time.Now(),
		}
		if err := dispatcher.Notify(ctx, event); err != nil {
			logger.L().Warn("告警投递失败",
				slog.String("agent", msg.Agent),
				slog.String("error", err.Error()),
			)
		}
	})
}

// EmailSender 定义发送邮件所需的能力。
type EmailSender interface {
	Send(ctx context.Context, subject, content string, to []string) error
}

// EmailNotifier 通过邮件发送告警。
type EmailNotifier struct {
	Sender        EmailSender
	To            []string
	SubjectPrefix string
}

// Channel 返回邮件渠道。
func (n *EmailNotifier) Channel() Channel { return ChannelEmail }

// Notify 发送邮件。
func (n *EmailNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.Sender == nil || len(n.To) == 0 {
		logger.L().Warn("EmailNotifier 未正确配置，跳过发送", slog.String("agent", event.Agent))
		return nil
	}
	subject := fmt.Sprintf("%s[%s] %s", n.SubjectPrefix, event.Severity, event.Code)
	content := fmt.Sprintf("告警时间: %s\n智能体: %s\n任务: %s\n错误码: %s\n描述: %s",
		event.OccurredAt.Format(time.RFC3339), event.Agent, event.TaskID, event.Code, event.Message)
	if len(event.Metadata) > 0 {
		content += "\n详情:\n"
		for k, v := range event.Metadata {
			content += fmt.Sprintf("- %s: %s\n", k, v)
		}
	}
	return n.Sender.Send(ctx, subject, content, n.To)
}

// SlackSender 负责向 Slack 渠道发送消息。
type SlackSender interface {
	Send(ctx context.Context, channel, content string) error
}

// WebhookSlackSender 通过 incoming webhook 投递 Slack 消息。
type WebhookSlackSender struct {
	WebhookURL string
	HTTPClient *http.Client
}

// NewWebhookSlackSender 创建 WebhookSlackSender。
func NewWebhookSlackSender(webhookURL string) *WebhookSlackSender {
	return &WebhookSlackSender{
		WebhookURL: webhookURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send 向 webhook 发送一条消息。
func (s *WebhookSlackSender) Send(ctx context.Context, channel, content string) error {
	if s == nil || s.WebhookURL == "" {
		return errors.New("webhook 未配置")
	}
	payload, err := json.Marshal(map[string]string{
		"channel": channel,
		"text":    content,
	})
	if err != nil {
		return fmt.Errorf("序列化 Slack 消息失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("构造 Slack 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("发送 Slack 消息失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("Slack webhook 返回状态码 %d", resp.StatusCode)
	}
	return nil
}

// SlackNotifier 通过 Slack 发送告警。
type SlackNotifier struct {
	Sender    SlackSender
	ChannelID string
}

// Channel 返回 Slack 渠道。
func (n *SlackNotifier) Channel() Channel { return ChannelSlack }

// Notify 发送 Slack 消息。
func (n *SlackNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.Sender == nil || n.ChannelID == "" {
		logger.L().Warn("SlackNotifier 未正确配置，跳过发送", slog.String("agent", event.Agent))
		return nil
	}
	content := fmt.Sprintf("*[%s]* %s - %s (agent %s)", event.Severity, event.Code, event.Message, event.Agent)
	return n.Sender.Send(ctx, n.ChannelID, content)
}
