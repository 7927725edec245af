package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"AVA-Chain/internal/bus"
	"AVA-Chain/internal/license"
	"AVA-Chain/internal/memory"
	"AVA-Chain/pkg/logger"
)

// Capabilities 以组合方式为智能体提供情报存储与许可协作能力。
// Memory 或 License 为 nil 时对应方法静默降级，智能体无需判空。
type Capabilities struct {
	AgentName string
	Bus       *bus.EventBus
	Memory    memory.Store
	License   license.Client
}

// Emit 向指定频道发送消息，自动补齐 Agent 字段。
func (c *Capabilities) Emit(ctx context.Context, channel string, msg bus.Message) {
	if c.Bus == nil {
		return
	}
	if msg.Agent == "" {
		msg.Agent = c.AgentName
	}
	c.Bus.Emit(ctx, channel, msg)
}

// BroadcastMessage 在 agent-message 频道上广播一条对话消息。
func (c *Capabilities) BroadcastMessage(ctx context.Context, role, content, collaborationType string) {
	c.Emit(ctx, bus.ChannelAgentMessage, bus.Message{
		Role:              role,
		Content:           content,
		CollaborationType: collaborationType,
	})
}

// BroadcastError 在 agent-error 频道上广播一条错误。
func (c *Capabilities) BroadcastError(ctx context.Context, message string) {
	c.Emit(ctx, bus.ChannelAgentError, bus.Message{Error: message})
}

// BroadcastAction 在 agent-action 频道上广播一个动作事件。
func (c *Capabilities) BroadcastAction(ctx context.Context, action string) {
	c.Emit(ctx, bus.ChannelAgentAction, bus.Message{Action: action})
}

// Thought 是一次推理步骤的留痕：产出的文本连同该步的工具调用与结果。
type Thought struct {
	Agent       string              `json:"agent"`
	Text        string              `json:"text"`
	ToolCalls   []string            `json:"toolCalls,omitempty"`
	ToolResults []bus.ToolExecution `json:"toolResults,omitempty"`
}

// SaveThought 把一条推理思考连同本步的工具痕迹写入情报存储，
// 键为 thought:<agent>:<uuid>。存储失败只记日志，不影响智能体主流程。
func (c *Capabilities) SaveThought(ctx context.Context, text string, toolResults ...bus.ToolExecution) {
	if c.Memory == nil || text == "" {
		return
	}
	var calls []string
	for _, execution := range toolResults {
		calls = append(calls, execution.Tool)
	}
	record := Thought{
		Agent:       c.AgentName,
		Text:        text,
		ToolCalls:   calls,
		ToolResults: toolResults,
	}
	key := "thought:" + c.AgentName + ":" + uuid.NewString()
	metadata := map[string]any{
		"agent":     c.AgentName,
		"timestamp": time.Now().Unix(),
	}
	if err := c.Memory.Store(ctx, key, record, metadata); err != nil {
		logger.L().Warn("保存思考记录失败",
			slog.String("agent", c.AgentName),
			slog.String("error", err.Error()),
		)
	}
}

// StoreIntelligence 写入一条情报记录。
func (c *Capabilities) StoreIntelligence(ctx context.Context, key string, data any, metadata map[string]any) error {
	if c.Memory == nil {
		return nil
	}
	return c.Memory.Store(ctx, key, data, metadata)
}

// RetrieveIntelligence 读取一条情报记录。
func (c *Capabilities) RetrieveIntelligence(ctx context.Context, key string) (*memory.Entry, error) {
	if c.Memory == nil {
		return nil, memory.ErrKeyNotFound
	}
	return c.Memory.Retrieve(ctx, key)
}

// StoreChainOfThought 写入一段思维链。
func (c *Capabilities) StoreChainOfThought(ctx context.Context, key string, thoughts []string, metadata map[string]any) error {
	if c.Memory == nil {
		return nil
	}
	return c.Memory.StoreCoT(ctx, key, thoughts, metadata)
}

// RequestIP 向另一个智能体请求其产物的许可条款。
func (c *Capabilities) RequestIP(ctx context.Context, providerID string, req license.IPRequest) (*license.Terms, *license.Metadata, error) {
	if c.License == nil {
		return nil, nil, license.ErrLicenseNotFound
	}
	return c.License.RequestIP(ctx, providerID, req)
}

// ProposeTerms 以当前智能体身份向对方提议许可条款。
func (c *Capabilities) ProposeTerms(ctx context.Context, terms license.Terms) (bool, error) {
	if c.License == nil {
		return false, nil
	}
	return c.License.ProposeTerms(ctx, c.AgentName, terms)
}

// NegotiateTerms 对一份条款提案给出还价。
func (c *Capabilities) NegotiateTerms(ctx context.Context, counterpartyID string, terms license.Terms) (*license.Terms, error) {
	if c.License == nil {
		return nil, license.ErrLicenseNotFound
	}
	return c.License.NegotiateTerms(ctx, counterpartyID, terms)
}

// MintLicense 为智能体产物铸造许可。issuer_id 恒为当前智能体，
// 调用方无法伪造签发者身份。
func (c *Capabilities) MintLicense(ctx context.Context, terms license.Terms, metadata license.Metadata) (string, error) {
	if c.License == nil {
		return "", nil
	}
	metadata.IssuerID = c.AgentName
	if metadata.Version == "" {
		metadata.Version = "1.0"
	}
	return c.License.MintLicense(ctx, terms, metadata)
}

// VerifyLicense 校验许可是否登记在案。
func (c *Capabilities) VerifyLicense(ctx context.Context, licenseID string) (bool, error) {
	if c.License == nil {
		return false, nil
	}
	return c.License.VerifyLicense(ctx, licenseID)
}

// GetLicenseTerms 查询许可条款。
func (c *Capabilities) GetLicenseTerms(ctx context.Context, licenseID string) (*license.Terms, error) {
	if c.License == nil {
		return nil, license.ErrLicenseNotFound
	}
	return c.License.GetLicenseTerms(ctx, licenseID)
}

// GetLicenseMetadata 查询许可的溯源元数据。
func (c *Capabilities) GetLicenseMetadata(ctx context.Context, licenseID string) (*license.Metadata, error) {
	if c.License == nil {
		return nil, license.ErrLicenseNotFound
	}
	return c.License.GetLicenseMetadata(ctx, licenseID)
}
