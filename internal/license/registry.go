package license

import (
	"bytes"
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

	xerrors "AVA-Chain/internal/errors"
)

// RegistryConfig 描述外部许可登记处的接入信息。
type RegistryConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// RegistryClient 通过 HTTP 对接外部许可登记处。
type RegistryClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewRegistryClient 根据配置创建登记处客户端。
func NewRegistryClient(cfg RegistryConfig) (*RegistryClient, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("未配置许可登记处地址")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RegistryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// RequestIP 向登记处发起一次 IP 请求，返回对方的条款草案。
func (c *RegistryClient) RequestIP(ctx context.Context, providerID string, req IPRequest) (*Terms, *Metadata, error) {
	var decoded struct {
		Terms    Terms    `json:"terms"`
		Metadata Metadata `json:"metadata"`
	}
	payload := map[string]any{"provider_id": providerID, "request": req}
	if err := c.post(ctx, "/v1/ip/request", payload, &decoded); err != nil {
		return nil, nil, err
	}
	return &decoded.Terms, &decoded.Metadata, nil
}

// ProposeTerms 提交条款提案。
func (c *RegistryClient) ProposeTerms(ctx context.Context, requesterID string, terms Terms) (bool, error) {
	var decoded struct {
		Accepted bool `json:"accepted"`
	}
	payload := map[string]any{"requester_id": requesterID, "terms": terms}
	if err := c.post(ctx, "/v1/ip/propose", payload, &decoded); err != nil {
		return false, err
	}
	return decoded.Accepted, nil
}

// NegotiateTerms 与对方协商条款，返回双方接受的版本。
func (c *RegistryClient) NegotiateTerms(ctx context.Context, counterpartyID string, terms Terms) (*Terms, error) {
	var decoded struct {
		Terms Terms `json:"terms"`
	}
	payload := map[string]any{"counterparty_id": counterpartyID, "terms": terms}
	if err := c.post(ctx, "/v1/ip/negotiate", payload, &decoded); err != nil {
		return nil, err
	}
	return &decoded.Terms, nil
}

// MintLicense 在登记处铸造一份许可。
func (c *RegistryClient) MintLicense(ctx context.Context, terms Terms, metadata Metadata) (string, error) {
	var decoded struct {
		LicenseID string `json:"license_id"`
	}
	payload := map[string]any{"terms": terms, "metadata": metadata}
	if err := c.post(ctx, "/v1/licenses", payload, &decoded); err != nil {
		return "", xerrors.Wrap(xerrors.CodeLicenseFailure, err, "登记处铸造许可失败")
	}
	if decoded.LicenseID == "" {
		return "", xerrors.New(xerrors.CodeLicenseFailure, "登记处未返回许可 ID")
	}
	return decoded.LicenseID, nil
}

// VerifyLicense 查询许可是否登记在案。
func (c *RegistryClient) VerifyLicense(ctx context.Context, licenseID string) (bool, error) {
	record, err := c.record(ctx, licenseID)
	if err != nil {
		if errors.Is(err, ErrLicenseNotFound) {
			return false, nil
		}
		return false, err
	}
	return record != nil, nil
}

// GetLicenseTerms 返回许可条款。
func (c *RegistryClient) GetLicenseTerms(ctx context.Context, licenseID string) (*Terms, error) {
	record, err := c.record(ctx, licenseID)
	if err != nil {
		return nil, err
	}
	return &record.Terms, nil
}

// GetLicenseMetadata 返回许可的溯源元数据。
func (c *RegistryClient) GetLicenseMetadata(ctx context.Context, licenseID string) (*Metadata, error) {
	record, err := c.record(ctx, licenseID)
	if err != nil {
		return nil, err
	}
	return &record.Metadata, nil
}

// ListLicenses 按条件列出许可。
func (c *RegistryClient) ListLicenses(ctx context.Context, opts ListOptions) ([]Record, error) {
	params := url.Values{}
	if opts.IssuerID != "" {
		params.Set("issuer_id", opts.IssuerID)
	}
	if opts.HolderID != "" {
		params.Set("holder_id", opts.HolderID)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	endpoint := "/v1/licenses"
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var decoded struct {
		Licenses []Record `json:"licenses"`
	}
	if err := c.get(ctx, endpoint, &decoded); err != nil {
		return nil, err
	}
	return decoded.Licenses, nil
}

func (c *RegistryClient) record(ctx context.Context, licenseID string) (*Record, error) {
	if strings.TrimSpace(licenseID) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "许可 ID 不能为空")
	}
	var decoded Record
	if err := c.get(ctx, "/v1/licenses/"+url.PathEscape(licenseID), &decoded); err != nil {
		return nil, err
	}
	return &decoded, nil
}

func (c *RegistryClient) post(ctx context.Context, path string, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化登记处请求失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("构建登记处请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *RegistryClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("构建登记处请求失败: %w", err)
	}
	return c.do(req, out)
}

func (c *RegistryClient) do(req *http.Request, out any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求许可登记处失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrLicenseNotFound
	}
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("登记处返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析登记处响应失败: %w", err)
	}
	return nil
}

var _ Client = (*RegistryClient)(nil)
