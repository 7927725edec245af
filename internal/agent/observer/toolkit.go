package observer

import (
	"context"
	"fmt"
	"time"

	"AVA-Chain/internal/memory"
	"AVA-Chain/internal/tool"
)

// 观察工具的名字与事件中的 ToolExecution.Tool 一致。
const (
	ToolMarketData       = "getMarketData"
	ToolWalletBalances   = "getWalletBalances"
	ToolRankedAgents     = "getRankedAgents"
	ToolSocialPosts      = "searchSocialPosts"
	ToolPastReports      = "getPastReports"
	ToolNoFurtherActions = "noFurtherActions"
)

const defaultRankedAgentsLimit = 10

// buildToolkit 组装观察者的全部工具。依赖缺失的工具返回失败结果，
// 不从工具集中剔除，保持每轮观察的工具条目稳定。
func (o *Observer) buildToolkit() tool.Toolkit {
	return tool.Toolkit{
		ToolMarketData: {
			Description: "获取与查询相关的行情与热门代币数据",
			Parameters: tool.Object(
				tool.Field{Name: "query", Type: tool.TypeString, Required: true, Description: "行情查询关键词"},
			),
			Execute: func(ctx context.Context, args tool.Args, _ tool.Options) (tool.Result, error) {
				if o.data == nil {
					return tool.Failure("未配置情报数据源"), nil
				}
				data, err := o.data.MarketData(ctx, args.String("query"))
				if err != nil {
					return tool.Failure(err.Error()), nil
				}
				return tool.Success(data), nil
			},
		},
		ToolWalletBalances: {
			Description: "查询钱包地址的链上余额",
			Parameters: tool.Object(
				tool.Field{Name: "address", Type: tool.TypeString, Required: false, Description: "钱包地址，缺省为执行账户"},
			),
			Execute: func(ctx context.Context, args tool.Args, _ tool.Options) (tool.Result, error) {
				if o.chain == nil {
					return tool.Failure("未配置链上客户端"), nil
				}
				balance, err := o.chain.BalanceAt(ctx, args.String("address"))
				if err != nil {
					return tool.Failure(err.Error()), nil
				}
				return tool.Success(map[string]any{
					"address": args.String("address"),
					"wei":     balance.String(),
				}), nil
			},
		},
		ToolRankedAgents: {
			Description: "获取按表现排序的链上智能体列表",
			Parameters:  tool.Object(),
			Execute: func(ctx context.Context, _ tool.Args, _ tool.Options) (tool.Result, error) {
				if o.data == nil {
					return tool.Failure("未配置情报数据源"), nil
				}
				data, err := o.data.RankedAgents(ctx, defaultRankedAgentsLimit)
				if err != nil {
					return tool.Failure(err.Error()), nil
				}
				return tool.Success(data), nil
			},
		},
		ToolSocialPosts: {
			Description: "搜索与查询相关的社交讨论",
			Parameters: tool.Object(
				tool.Field{Name: "query", Type: tool.TypeString, Required: true, Description: "搜索关键词"},
			),
			Execute: func(ctx context.Context, args tool.Args, _ tool.Options) (tool.Result, error) {
				if o.data == nil {
					return tool.Failure("未配置情报数据源"), nil
				}
				data, err := o.data.SocialPosts(ctx, args.String("query"))
				if err != nil {
					return tool.Failure(err.Error()), nil
				}
				return tool.Success(data), nil
			},
		},
		ToolPastReports: {
			Description: "取回最近保存的观察报告",
			Parameters:  tool.Object(),
			Execute: func(ctx context.Context, _ tool.Args, _ tool.Options) (tool.Result, error) {
				if o.caps.Memory == nil {
					return tool.Failure("未配置情报存储"), nil
				}
				reports, err := o.pastReports(ctx)
				if err != nil {
					return tool.Failure(err.Error()), nil
				}
				return tool.Success(reports), nil
			},
		},
		ToolNoFurtherActions: {
			Description: "声明当前没有值得上报的观察，进入等待",
			Parameters: tool.Object(
				tool.Field{Name: "waitTime", Type: tool.TypeNumber, Required: false, Description: "等待秒数"},
			),
			Execute: func(_ context.Context, args tool.Args, _ tool.Options) (tool.Result, error) {
				waitSeconds := 60.0
				if v, ok := args["waitTime"].(float64); ok && v > 0 {
					waitSeconds = v
				}
				return tool.Success(map[string]any{
					"noFurtherActions": true,
					"waitTime":         waitSeconds,
				}), nil
			},
		},
	}
}

// pastReports 取回最近的若干条观察记录。
func (o *Observer) pastReports(ctx context.Context) ([]any, error) {
	keys, err := o.caps.Memory.List(ctx, "observation:")
	if err != nil {
		return nil, err
	}
	if len(keys) > maxPastReports {
		keys = keys[len(keys)-maxPastReports:]
	}
	reports := make([]any, 0, len(keys))
	for _, key := range keys {
		entry, err := o.caps.Memory.Retrieve(ctx, key)
		if err != nil {
			if err == memory.ErrKeyNotFound {
				continue
			}
			return nil, fmt.Errorf("读取观察记录 %s 失败: %w", key, err)
		}
		reports = append(reports, map[string]any{
			"key":       key,
			"data":      entry.Data,
			"stored_at": time.Unix(entry.StoredAt, 0).UTC().Format(time.RFC3339),
		})
	}
	return reports, nil
}

const maxPastReports = 5
