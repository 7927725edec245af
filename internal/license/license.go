package license

import (
	"context"

	xerrors "AVA-Chain/internal/errors"
)

// Scope 表示许可的使用范围。
type Scope string

const (
	ScopePersonal      Scope = "personal"
	ScopeCommercial    Scope = "commercial"
	ScopeSublicensable Scope = "sublicensable"
)

// Terms 定义一份产物的复用条款。
type Terms struct {
	Name                   string   `json:"name"`
	Description            string   `json:"description"`
	Scope                  Scope    `json:"scope"`
	DurationDays           int      `json:"duration,omitempty"`
	Jurisdiction           string   `json:"jurisdiction,omitempty"`
	GoverningLaw           string   `json:"governing_law,omitempty"`
	RoyaltyRate            float64  `json:"royalty_rate,omitempty"`
	Transferability        bool     `json:"transferability"`
	RevocationConditions   []string `json:"revocation_conditions,omitempty"`
	DisputeResolution      string   `json:"dispute_resolution,omitempty"`
	OnchainEnforcement     bool     `json:"onchain_enforcement"`
	OffchainEnforcement    string   `json:"offchain_enforcement,omitempty"`
	ComplianceRequirements []string `json:"compliance_requirements,omitempty"`
	IPRestrictions         []string `json:"ip_restrictions,omitempty"`
	ChainOfOwnership       []string `json:"chain_of_ownership,omitempty"`
	RevShare               float64  `json:"rev_share,omitempty"`
}

// Metadata 将许可与产物的溯源链绑定。issuer_id 恒为产出该产物的智能体。
type Metadata struct {
	LicenseID         string `json:"license_id,omitempty"`
	IssuerID          string `json:"issuer_id"`
	HolderID          string `json:"holder_id"`
	IssueDate         int64  `json:"issue_date"`
	ExpiryDate        int64  `json:"expiry_date,omitempty"`
	Version           string `json:"version"`
	LinkToTerms       string `json:"link_to_terms,omitempty"`
	PreviousLicenseID string `json:"previous_license_id,omitempty"`
	Signature         string `json:"signature,omitempty"`
}

// Record 是登记在案的一份许可。
type Record struct {
	LicenseID string   `json:"license_id"`
	Terms     Terms    `json:"terms"`
	Metadata  Metadata `json:"metadata"`
}

// IPRequest 描述一次跨智能体的 IP 请求。
type IPRequest struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// ListOptions 过滤 ListLicenses 的结果。
type ListOptions struct {
	IssuerID string
	HolderID string
	Limit    int
	Offset   int
}

// ErrLicenseNotFound 表示指定的许可不存在。
var ErrLicenseNotFound = xerrors.New(xerrors.CodeNotFound, "license not found")

// Client 定义许可协作方的统一接口。实现负责铸造许可并维护溯源登记。
type Client interface {
	RequestIP(ctx context.Context, providerID string, req IPRequest) (*Terms, *Metadata, error)
	ProposeTerms(ctx context.Context, requesterID string, terms Terms) (bool, error)
	NegotiateTerms(ctx context.Context, counterpartyID string, terms Terms) (*Terms, error)
	MintLicense(ctx context.Context, terms Terms, metadata Metadata) (string, error)
	VerifyLicense(ctx context.Context, licenseID string) (bool, error)
	GetLicenseTerms(ctx context.Context, licenseID string) (*Terms, error)
	GetLicenseMetadata(ctx context.Context, licenseID string) (*Metadata, error)
	ListLicenses(ctx context.Context, opts ListOptions) ([]Record, error)
}
