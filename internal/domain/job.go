package domain

import (
	"time"
)

// Status is the lifecycle state of a chain job
type Status string

// Job status constants. QUEUED → SUBMITTED → {SUCCESS | ERROR}
const (
	StatusQueued    Status = "QUEUED"
	StatusSubmitted Status = "SUBMITTED"
	StatusSuccess   Status = "SUCCESS"
	StatusError     Status = "ERROR"
)

// IsTerminal reports whether the status can no longer change
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusError
}

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusSubmitted, StatusSuccess, StatusError:
		return true
	}
	return false
}

// EventType selects the transaction sequence a job runs
type EventType string

// Supported event types
const (
	EventCreateOrgContract   EventType = "CREATE_ORG_CONTRACT"
	EventCreateAsset         EventType = "CREATE_ASSET"
	EventLicenseAsset        EventType = "LICENSE_ASSET"
	EventFundUserWallet      EventType = "FUND_USER_WALLET"
	EventWithdrawOrgEarnings EventType = "WITHDRAW_ORG_EARNINGS"
	EventGrantCreatorRole    EventType = "GRANT_CREATOR_ROLE"
	EventRevokeCreatorRole   EventType = "REVOKE_CREATOR_ROLE"
	EventVerifyAsset         EventType = "VERIFY_ASSET"
)

// EventTypes lists every supported event type
var EventTypes = []EventType{
	EventCreateOrgContract,
	EventCreateAsset,
	EventLicenseAsset,
	EventFundUserWallet,
	EventWithdrawOrgEarnings,
	EventGrantCreatorRole,
	EventRevokeCreatorRole,
	EventVerifyAsset,
}

// IsValid reports whether t is one of the supported event types
func (t EventType) IsValid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Job is the persisted unit of blockchain work
type Job struct {
	ID             string     `db:"id"`
	IdempotencyKey string     `db:"idempotency_key"`
	EventType      EventType  `db:"event_type"`
	Payload        []byte     `db:"payload"` // JSON object, always carries txId
	Status         Status     `db:"status"`
	ErrorMessage   *string    `db:"error_message"`
	FinalizedAt    *time.Time `db:"finalized_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// JobMessage is the body of a "process job" queue message
type JobMessage struct {
	JobID string `json:"jobId"`
}
