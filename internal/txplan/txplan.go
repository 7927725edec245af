package txplan

import (
	"context"

	xerrors "AVA-Chain/internal/errors"
)

// Step 是计划中的一笔待签名交易。Value 为十进制 wei 字符串，
// Data 为 0x 前缀的 calldata。
type Step struct {
	To    string `json:"to"`
	Value string `json:"value"`
	Data  string `json:"data"`
}

// Plan 是规划服务针对一句自然语言意图给出的交易序列。
type Plan struct {
	Description string `json:"description,omitempty"`
	FromToken   string `json:"fromToken,omitempty"`
	ToToken     string `json:"toToken,omitempty"`
	FromAmount  string `json:"fromAmount,omitempty"`
	ToAmount    string `json:"toAmount,omitempty"`
	Steps       []Step `json:"steps"`
}

// Request 描述一次规划请求。
type Request struct {
	Prompt  string `json:"prompt"`
	ChainID int64  `json:"chainId"`
	Address string `json:"address"`
}

// ErrNoSolution 表示规划服务无法为该意图生成交易序列。
var ErrNoSolution = xerrors.New(CodePlanNoSolution, "no transaction plan for intent")

const (
	CodePlanNoSolution xerrors.Code = "TXPLAN_NO_SOLUTION"
	CodePlanFailure    xerrors.Code = "TXPLAN_REQUEST_FAILED"
)

func init() {
	xerrors.Register(CodePlanNoSolution, xerrors.Attributes{
		Message:  "no transaction plan for intent",
		Severity: xerrors.SeverityInfo,
		Alert:    false,
	})
	xerrors.Register(CodePlanFailure, xerrors.Attributes{
		Message:  "transaction planning request failed",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
	})
}

// Planner 将自然语言意图翻译为可执行的交易序列。
type Planner interface {
	PlanTransaction(ctx context.Context, req Request) ([]Plan, error)
}
