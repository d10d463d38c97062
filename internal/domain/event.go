package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// FinalStatus is the outcome reported to downstream consumers
type FinalStatus string

const (
	FinalStatusConfirmed FinalStatus = "CONFIRMED"
	FinalStatusFailed    FinalStatus = "FAILED"
)

// Unknown is the sentinel carried in txHash and blockNumber of failed events
const Unknown = "unknown"

// isoMillis matches the ISO-8601 form consumers already parse (millisecond precision, Z suffix)
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t as ISO-8601 UTC with millisecond precision
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

// BlockNumber marshals as a JSON number when known and as "unknown" otherwise
type BlockNumber struct {
	value uint64
	known bool
}

// KnownBlock wraps a mined block number
func KnownBlock(n uint64) BlockNumber {
	return BlockNumber{value: n, known: true}
}

// UnknownBlock is the failure sentinel
func UnknownBlock() BlockNumber {
	return BlockNumber{}
}

// Value returns the block number and whether it is known
func (b BlockNumber) Value() (uint64, bool) {
	return b.value, b.known
}

func (b BlockNumber) MarshalJSON() ([]byte, error) {
	if !b.known {
		return json.Marshal(Unknown)
	}
	return []byte(strconv.FormatUint(b.value, 10)), nil
}

func (b *BlockNumber) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*b = UnknownBlock()
		return nil
	}

	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*b = KnownBlock(n)
	return nil
}

// EventOutput accumulates handler results (contract address, asset id, ...) for the finalized event
type EventOutput map[string]any

// TransactionFinalizedEvent is published once per job when it reaches a terminal state
type TransactionFinalizedEvent struct {
	ID              string          `json:"id"`
	JobID           string          `json:"jobId"`
	EventType       EventType       `json:"eventType"`
	FinalStatus     FinalStatus     `json:"finalStatus"`
	TxHash          string          `json:"txHash"`
	BlockNumber     BlockNumber     `json:"blockNumber"`
	SubmittedAt     string          `json:"submittedAt"`
	FinalizedAt     string          `json:"finalizedAt"`
	OriginalPayload json.RawMessage `json:"originalPayload"`
	Error           *string         `json:"error"`
	EventOutput     EventOutput     `json:"eventOutput"`
}

// NewConfirmedEvent builds the success event from the primary transaction's coordinates
func NewConfirmedEvent(job *Job, finalizedAt time.Time, txHash string, blockNumber uint64, output EventOutput) *TransactionFinalizedEvent {
	if output == nil {
		output = EventOutput{}
	}

	return &TransactionFinalizedEvent{
		ID:              PayloadTxID(job.Payload),
		JobID:           job.ID,
		EventType:       job.EventType,
		FinalStatus:     FinalStatusConfirmed,
		TxHash:          txHash,
		BlockNumber:     KnownBlock(blockNumber),
		SubmittedAt:     FormatTimestamp(job.CreatedAt),
		FinalizedAt:     FormatTimestamp(finalizedAt),
		OriginalPayload: originalPayload(job.Payload),
		Error:           nil,
		EventOutput:     output,
	}
}

// NewFailedEvent builds the failure event; chain coordinates are the "unknown" sentinel
func NewFailedEvent(job *Job, finalizedAt time.Time, errMsg string) *TransactionFinalizedEvent {
	return &TransactionFinalizedEvent{
		ID:              PayloadTxID(job.Payload),
		JobID:           job.ID,
		EventType:       job.EventType,
		FinalStatus:     FinalStatusFailed,
		TxHash:          Unknown,
		BlockNumber:     UnknownBlock(),
		SubmittedAt:     FormatTimestamp(job.CreatedAt),
		FinalizedAt:     FormatTimestamp(finalizedAt),
		OriginalPayload: originalPayload(job.Payload),
		Error:           &errMsg,
		EventOutput:     EventOutput{},
	}
}

func originalPayload(raw []byte) json.RawMessage {
	if !json.Valid(raw) {
		return json.RawMessage("null")
	}
	return json.RawMessage(raw)
}
