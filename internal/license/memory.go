package license

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "AVA-Chain/internal/errors"
)

// MemoryClient 在进程内登记许可，用于测试和不接链上登记处的部署。
type MemoryClient struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryClient 创建 MemoryClient。
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{records: make(map[string]*Record)}
}

// RequestIP 返回一份默认条款草案，供双方继续协商。
func (c *MemoryClient) RequestIP(_ context.Context, providerID string, req IPRequest) (*Terms, *Metadata, error) {
	terms := &Terms{
		Name:               req.Type,
		Description:        req.Description,
		Scope:              ScopePersonal,
		Transferability:    false,
		OnchainEnforcement: false,
	}
	metadata := &Metadata{
		IssuerID:  providerID,
		IssueDate: time.Now().Unix(),
		Version:   "1.0",
	}
	return terms, metadata, nil
}

// ProposeTerms 在内存实现中总是接受提案。
func (c *MemoryClient) ProposeTerms(_ context.Context, _ string, _ Terms) (bool, error) {
	return true, nil
}

// NegotiateTerms 在内存实现中原样接受对方条款。
func (c *MemoryClient) NegotiateTerms(_ context.Context, _ string, terms Terms) (*Terms, error) {
	accepted := terms
	return &accepted, nil
}

// MintLicense 铸造一份许可并返回其 ID。
func (c *MemoryClient) MintLicense(_ context.Context, terms Terms, metadata Metadata) (string, error) {
	if terms.Name == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "许可名称不能为空")
	}
	licenseID := uuid.NewString()
	metadata.LicenseID = licenseID
	if metadata.IssueDate == 0 {
		metadata.IssueDate = time.Now().Unix()
	}
	c.mu.Lock()
	c.records[licenseID] = &Record{LicenseID: licenseID, Terms: terms, Metadata: metadata}
	c.mu.Unlock()
	return licenseID, nil
}

// VerifyLicense 检查许可是否登记在案。
func (c *MemoryClient) VerifyLicense(_ context.Context, licenseID string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.records[licenseID]
	return ok, nil
}

// GetLicenseTerms 返回许可条款。
func (c *MemoryClient) GetLicenseTerms(_ context.Context, licenseID string) (*Terms, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	record, ok := c.records[licenseID]
	if !ok {
		return nil, ErrLicenseNotFound
	}
	terms := record.Terms
	return &terms, nil
}

// GetLicenseMetadata 返回许可的溯源元数据。
func (c *MemoryClient) GetLicenseMetadata(_ context.Context, licenseID string) (*Metadata, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	record, ok := c.records[licenseID]
	if !ok {
		return nil, ErrLicenseNotFound
	}
	metadata := record.Metadata
	return &metadata, nil
}

// ListLicenses 返回符合过滤条件的许可，按铸造时间排序。
func (c *MemoryClient) ListLicenses(_ context.Context, opts ListOptions) ([]Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	records := make([]Record, 0, len(c.records))
	for _, record := range c.records {
		if opts.IssuerID != "" && record.Metadata.IssuerID != opts.IssuerID {
			continue
		}
		if opts.HolderID != "" && record.Metadata.HolderID != opts.HolderID {
			continue
		}
		records = append(records, *record)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Metadata.IssueDate == records[j].Metadata.IssueDate {
			return records[i].LicenseID < records[j].LicenseID
		}
		return records[i].Metadata.IssueDate < records[j].Metadata.IssueDate
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(records) {
			return nil, nil
		}
		records = records[opts.Offset:]
	}
	if opts.Limit > 0 && len(records) > opts.Limit {
		records = records[:opts.Limit]
	}
	return records, nil
}

var _ Client = (*MemoryClient)(nil)
