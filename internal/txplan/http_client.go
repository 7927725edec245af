package txplan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "AVA-Chain/internal/errors"
)

const defaultTimeout = 30 * time.Second

// Config 描述规划服务的 HTTP 接入信息。
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPClient 通过 HTTP 调用外部交易规划服务。
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient 根据配置创建规划客户端。
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("未配置交易规划服务地址")
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// PlanTransaction 提交意图并返回规划出的交易序列。
func (c *HTTPClient) PlanTransaction(ctx context.Context, req Request) ([]Plan, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "规划意图不能为空")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("序列化规划请求失败: %w", err)
	}

	endpoint := c.baseURL + "/api/v0/agent/transaction"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构建规划请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-Brian-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, xerrors.Wrap(CodePlanFailure, err, "请求规划服务失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoSolution
	}
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, xerrors.New(CodePlanFailure,
			fmt.Sprintf("规划服务返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var decoded struct {
		Result []struct {
			Data struct {
				Description string `json:"description"`
				FromToken   struct {
					Symbol string `json:"symbol"`
				} `json:"fromToken"`
				ToToken struct {
					Symbol string `json:"symbol"`
				} `json:"toToken"`
				FromAmount string `json:"fromAmount"`
				ToAmount   string `json:"toAmount"`
				Steps      []Step `json:"steps"`
			} `json:"data"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析规划响应失败: %w", err)
	}
	if len(decoded.Result) == 0 {
		return nil, ErrNoSolution
	}

	plans := make([]Plan, 0, len(decoded.Result))
	for _, item := range decoded.Result {
		plans = append(plans, Plan{
			Description: item.Data.Description,
			FromToken:   item.Data.FromToken.Symbol,
			ToToken:     item.Data.ToToken.Symbol,
			FromAmount:  item.Data.FromAmount,
			ToAmount:    item.Data.ToAmount,
			Steps:       item.Data.Steps,
		})
	}
	return plans, nil
}

var _ Planner = (*HTTPClient)(nil)
