package llm

import "context"

// Usage 记录一次推理消耗的 token 数。
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response 是文本生成协作方返回的结构化输出。
type Response struct {
	Text  string
	Usage *Usage
}

// Client 定义了调用文本生成服务的统一接口。
// systemPrompt 为空时由实现自行省略 system 消息。
type Client interface {
	GenerateText(ctx context.Context, prompt, systemPrompt string) (*Response, error)
}
