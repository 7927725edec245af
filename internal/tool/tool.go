package tool

import (
	"context"
	"fmt"

	xerrors "AVA-Chain/internal/errors"
)

// CodeToolExecution 表示工具执行失败的统一错误码。
const CodeToolExecution xerrors.Code = "TOOL_EXECUTION_FAILED"

func init() {
	xerrors.Register(CodeToolExecution, xerrors.Attributes{
		Message:  "tool execution failed",
		Severity: xerrors.SeverityWarning,
		Alert:    false,
	})
}

// Result 是所有工具调用的统一响应结构。工具永远不向调用方抛错，
// 失败以 Success=false 加 Error 文本表达。
type Result struct {
	Success bool   `json:"success"`
	Result  any    `json:"result"`
	Error   string `json:"error,omitempty"`
}

// Options 携带一次调用的上下文信息。
type Options struct {
	ToolCallID string
	Messages   []string
	Severity   string
}

// Args 是经过 schema 校验的调用参数。
type Args map[string]any

// String 返回字符串参数，缺失时返回空串。
func (a Args) String(key string) string {
	v, _ := a[key].(string)
	return v
}

// Tool 描述一项可被智能体调用的能力。
type Tool struct {
	Description string
	Parameters  Schema
	Execute     func(ctx context.Context, args Args, opts Options) (Result, error)
}

// Toolkit 是一组命名工具。
type Toolkit map[string]*Tool

// Invoke 是工具的唯一调用入口：先做参数校验，再执行，
// 并把任何 panic 或 error 折叠进 Result，绝不让错误越过工具边界。
func Invoke(ctx context.Context, t *Tool, args Args, opts Options) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failure(fmt.Sprintf("tool panicked: %v", r))
		}
	}()

	if t == nil || t.Execute == nil {
		return Failure("tool not defined")
	}
	if err := t.Parameters.Validate(args); err != nil {
		return Failure(err.Error())
	}

	result, err := t.Execute(ctx, args, opts)
	if err != nil {
		return Failure(err.Error())
	}
	return result
}

// Success 构造成功结果。
func Success(value any) Result {
	return Result{Success: true, Result: value}
}

// Failure 构造失败结果。
func Failure(message string) Result {
	return Result{Success: false, Result: nil, Error: message}
}
