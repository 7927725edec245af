package taskmanager

import "strings"

// Route 表示分析文本应当派发给哪个智能体。
type Route string

const (
	RouteObserver Route = "observer"
	RouteExecutor Route = "executor"
)

// Decision 记录一次路由判定及命中的关键词。
type Decision struct {
	Route   Route
	Keyword string
}

// executionKeywords 命中任一关键词的分析被判定为链上执行意图。
var executionKeywords = []string{
	"swap",
	"transfer",
	"bridge",
	"buy",
	"sell",
	"stake",
	"unstake",
	"deposit",
	"withdraw",
	"execute",
	"send",
}

// Router 基于关键词把分析文本归类到观察或执行路径。
// 判定是纯函数，不依赖 LLM，结果可复现。
type Router struct {
	keywords []string
}

// NewRouter 创建默认路由器。
func NewRouter() *Router {
	return &Router{keywords: executionKeywords}
}

// Classify 返回分析文本的路由判定。未命中任何执行关键词时走观察路径。
func (r *Router) Classify(analysis string) Decision {
	lowered := strings.ToLower(analysis)
	for _, keyword := range r.keywords {
		if strings.Contains(lowered, keyword) {
			return Decision{Route: RouteExecutor, Keyword: keyword}
		}
	}
	return Decision{Route: RouteObserver}
}
