package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var bytes32Pattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

var validate = newValidator()

// maxUint256 is the largest value an on-chain uint256 argument can hold
var maxUint256 = decimal.NewFromBigInt(math.MaxBig256, 0)

func newValidator() *validator.Validate {
	v := validator.New()

	// report json field names instead of Go field names
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	_ = v.RegisterValidation("bytes32", func(fl validator.FieldLevel) bool {
		return bytes32Pattern.MatchString(fl.Field().String())
	})

	return v
}

// Payload is the decoded, validated body of a job. The set of
// implementations is closed: one per EventType.
type Payload interface {
	EventType() EventType
	CorrelationID() string
	validate() error
}

// Correlation carries the caller's transaction id through to the finalized event
type Correlation struct {
	TxID string `json:"txId" validate:"required"`
}

// CorrelationID returns the caller-supplied txId
func (c Correlation) CorrelationID() string {
	return c.TxID
}

// CreateOrgContractPayload deploys an organization contract through the factory
type CreateOrgContractPayload struct {
	Correlation
	OrganizationID                string `json:"organizationId" validate:"required"`
	PrincipalUserID               string `json:"principalUserId" validate:"required"`
	PrincipalWalletAddress        string `json:"principalWalletAddress" validate:"required,eth_addr"`
	PlatformVerifierWalletAddress string `json:"platformVerifierWalletAddress,omitempty" validate:"omitempty,eth_addr"`
}

// CreateAssetPayload registers a new asset on an organization contract
type CreateAssetPayload struct {
	Correlation
	UserID        string          `json:"userId" validate:"required"`
	SiteAddress   string          `json:"siteAddress" validate:"required,eth_addr"`
	AssetCID      string          `json:"assetCID" validate:"required"`
	MetadataHash  string          `json:"metadataHash" validate:"required,bytes32"`
	AssetHash     string          `json:"assetHash" validate:"required,bytes32"`
	Price         decimal.Decimal `json:"price"`
	IsEncrypted   bool            `json:"isEncrypted"`
	CanBeLicensed bool            `json:"canBeLicensed"`
	FxPool        string          `json:"fxPool" validate:"required,eth_addr"`
	TimeStamp     int64           `json:"timeStamp" validate:"gt=0"`

	// Descriptive metadata; carried in the finalized event's original payload only
	AssetType        string   `json:"assetType,omitempty"`
	Category         string   `json:"category,omitempty"`
	ProductionStatus string   `json:"productionStatus,omitempty"`
	Basin            string   `json:"basin,omitempty"`
	Acreage          *float64 `json:"acreage,omitempty" validate:"omitempty,gte=0"`
	State            string   `json:"state,omitempty"`
	County           string   `json:"county,omitempty"`
	Location         string   `json:"location,omitempty"`
	ProjectedROI     *float64 `json:"projectedROI,omitempty"`
}

// LicenseAssetPayload buys a license for an asset with stablecoin
type LicenseAssetPayload struct {
	Correlation
	UserID         string           `json:"userId" validate:"required"`
	SiteAddress    string           `json:"siteAddress" validate:"required,eth_addr"`
	OnChainAssetID *decimal.Decimal `json:"onChainAssetId" validate:"required"`
	Price          decimal.Decimal  `json:"price"`
	Permissions    []string         `json:"permissions" validate:"required,min=1,dive,required"`
	ResellerFee    uint32           `json:"resellerFee" validate:"lte=10000"` // basis points
}

// FundUserWalletPayload tops up a user wallet with gas and stablecoin
type FundUserWalletPayload struct {
	Correlation
	RecipientAddress string `json:"recipientAddress" validate:"required,eth_addr"`
}

// WithdrawOrgEarningsPayload withdraws an organization's accumulated revenue
type WithdrawOrgEarningsPayload struct {
	Correlation
	OrganizationID  string `json:"organizationId" validate:"required"`
	PrincipalUserID string `json:"principalUserId" validate:"required"`
}

// CreatorRole identifies the wallet whose creator role changes on an organization
type CreatorRole struct {
	Correlation
	OrganizationID    string `json:"organizationId" validate:"required"`
	UserWalletAddress string `json:"userWalletAddress" validate:"required,eth_addr"`
}

// GrantCreatorRolePayload grants the creator role
type GrantCreatorRolePayload struct {
	CreatorRole
}

// RevokeCreatorRolePayload revokes the creator role
type RevokeCreatorRolePayload struct {
	CreatorRole
}

// VerifyAssetPayload marks an asset verified by the platform verifier
type VerifyAssetPayload struct {
	Correlation
	SiteAddress    string           `json:"siteAddress" validate:"required,eth_addr"`
	OnChainAssetID *decimal.Decimal `json:"onChainAssetId" validate:"required"`
}

func (*CreateOrgContractPayload) EventType() EventType   { return EventCreateOrgContract }
func (*CreateAssetPayload) EventType() EventType         { return EventCreateAsset }
func (*LicenseAssetPayload) EventType() EventType        { return EventLicenseAsset }
func (*FundUserWalletPayload) EventType() EventType      { return EventFundUserWallet }
func (*WithdrawOrgEarningsPayload) EventType() EventType { return EventWithdrawOrgEarnings }
func (*GrantCreatorRolePayload) EventType() EventType    { return EventGrantCreatorRole }
func (*RevokeCreatorRolePayload) EventType() EventType   { return EventRevokeCreatorRole }
func (*VerifyAssetPayload) EventType() EventType         { return EventVerifyAsset }

func (p *CreateOrgContractPayload) validate() error   { return validateStruct(p) }
func (p *FundUserWalletPayload) validate() error      { return validateStruct(p) }
func (p *WithdrawOrgEarningsPayload) validate() error { return validateStruct(p) }
func (p *GrantCreatorRolePayload) validate() error    { return validateStruct(p) }
func (p *RevokeCreatorRolePayload) validate() error   { return validateStruct(p) }

func (p *CreateAssetPayload) validate() error {
	if err := validateStruct(p); err != nil {
		return err
	}
	return positive("price", p.Price)
}

func (p *LicenseAssetPayload) validate() error {
	if err := validateStruct(p); err != nil {
		return err
	}
	if err := assetID(p.OnChainAssetID); err != nil {
		return err
	}
	return positive("price", p.Price)
}

func (p *VerifyAssetPayload) validate() error {
	if err := validateStruct(p); err != nil {
		return err
	}
	return assetID(p.OnChainAssetID)
}

// NewPayload returns an empty payload variant for the event type
func NewPayload(eventType EventType) (Payload, error) {
	switch eventType {
	case EventCreateOrgContract:
		return &CreateOrgContractPayload{}, nil
	case EventCreateAsset:
		return &CreateAssetPayload{}, nil
	case EventLicenseAsset:
		return &LicenseAssetPayload{}, nil
	case EventFundUserWallet:
		return &FundUserWalletPayload{}, nil
	case EventWithdrawOrgEarnings:
		return &WithdrawOrgEarningsPayload{}, nil
	case EventGrantCreatorRole:
		return &GrantCreatorRolePayload{}, nil
	case EventRevokeCreatorRole:
		return &RevokeCreatorRolePayload{}, nil
	case EventVerifyAsset:
		return &VerifyAssetPayload{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEventType, eventType)
	}
}

// DecodePayload decodes raw JSON into the variant for eventType and validates it
func DecodePayload(eventType EventType, raw []byte) (Payload, error) {
	payload, err := NewPayload(eventType)
	if err != nil {
		return nil, err
	}

	if !IsJSONObject(raw) {
		return nil, &ValidationError{EventType: eventType, Reason: "payload must be a JSON object"}
	}

	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, &ValidationError{EventType: eventType, Reason: err.Error()}
	}

	if err := payload.validate(); err != nil {
		return nil, &ValidationError{EventType: eventType, Reason: err.Error()}
	}

	return payload, nil
}

// IsJSONObject reports whether raw is a well-formed JSON object (not null, array or scalar)
func IsJSONObject(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(trimmed)
}

// PayloadTxID extracts txId from a stored payload without validating anything else
func PayloadTxID(raw []byte) string {
	var c Correlation
	if err := json.Unmarshal(raw, &c); err != nil {
		return ""
	}
	return c.TxID
}

// WithTxID returns payload with its txId field set to txID
func WithTxID(payload []byte, txID string) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	encoded, err := json.Marshal(txID)
	if err != nil {
		return nil, err
	}
	fields["txId"] = encoded

	return json.Marshal(fields)
}

func validateStruct(p any) error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func positive(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%s must be greater than 0", field)
	}
	return nil
}

func assetID(d *decimal.Decimal) error {
	if d == nil {
		return fmt.Errorf("onChainAssetId is required")
	}
	if d.IsNegative() || !d.IsInteger() {
		return fmt.Errorf("onChainAssetId must be a non-negative integer")
	}
	if d.GreaterThan(maxUint256) {
		return fmt.Errorf("onChainAssetId exceeds the uint256 range")
	}
	return nil
}
