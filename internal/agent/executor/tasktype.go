package executor

import "strings"

// TaskType 是执行者对任务意图的归类结果。
type TaskType string

const (
	TypeDeFiExecution TaskType = "defi_execution"
	TypeObservation   TaskType = "observation"
	TypeAnalysis      TaskType = "analysis"
	TypeUnknown       TaskType = "unknown"
)

var defiKeywords = []string{
	"swap",
	"transfer",
	"bridge",
	"buy",
	"sell",
	"stake",
	"unstake",
	"deposit",
	"withdraw",
	"send",
}

var observationKeywords = []string{
	"observe",
	"monitor",
	"watch",
	"track",
}

var analysisKeywords = []string{
	"analyze",
	"analysis",
	"research",
	"evaluate",
}

// ClassifyTask 基于关键词判定任务类型。只有 defi_execution 会进入
// 执行流水线，其余类型被退回给任务管理器重新路由。
func ClassifyTask(instruction string) TaskType {
	lowered := strings.ToLower(instruction)
	for _, keyword := range defiKeywords {
		if strings.Contains(lowered, keyword) {
			return TypeDeFiExecution
		}
	}
	for _, keyword := range observationKeywords {
		if strings.Contains(lowered, keyword) {
			return TypeObservation
		}
	}
	for _, keyword := range analysisKeywords {
		if strings.Contains(lowered, keyword) {
			return TypeAnalysis
		}
	}
	return TypeUnknown
}
