package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DataSource 是观察者的情报来源：行情、智能体排行与社交讨论。
type DataSource interface {
	MarketData(ctx context.Context, query string) (any, error)
	RankedAgents(ctx context.Context, limit int) (any, error)
	SocialPosts(ctx context.Context, query string) (any, error)
}

// HTTPDataSourceConfig 描述情报服务的接入信息。
type HTTPDataSourceConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPDataSource 通过 HTTP 拉取市场情报。
type HTTPDataSource struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPDataSource 根据配置创建情报客户端。
func NewHTTPDataSource(cfg HTTPDataSourceConfig) (*HTTPDataSource, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("未配置情报服务地址")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPDataSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// MarketData 返回与查询相关的行情数据。
func (s *HTTPDataSource) MarketData(ctx context.Context, query string) (any, error) {
	return s.get(ctx, "/v1/market/trending", url.Values{"query": {query}})
}

// RankedAgents 返回按表现排序的链上智能体列表。
func (s *HTTPDataSource) RankedAgents(ctx context.Context, limit int) (any, error) {
	return s.get(ctx, "/v1/agents/ranked", url.Values{"limit": {strconv.Itoa(limit)}})
}

// SocialPosts 返回与查询相关的社交讨论。
func (s *HTTPDataSource) SocialPosts(ctx context.Context, query string) (any, error) {
	return s.get(ctx, "/v1/social/search", url.Values{"query": {query}})
}

func (s *HTTPDataSource) get(ctx context.Context, path string, params url.Values) (any, error) {
	endpoint := s.baseURL + path
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("构建情报请求失败: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("X-Api-Key", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求情报服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("情报服务返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析情报响应失败: %w", err)
	}
	return decoded, nil
}

var _ DataSource = (*HTTPDataSource)(nil)
