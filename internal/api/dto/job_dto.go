package dto

import "encoding/json"

// IdempotencyKeyHeader carries the caller's idempotency key
const IdempotencyKeyHeader = "X-Idempotency-Key"

type CreateJobRequest struct {
	// IdempotencyKey is used when the header is absent
	IdempotencyKey string          `json:"idempotencyKey"`
	EventType      string          `json:"eventType"`
	TxID           string          `json:"txId"`
	Payload        json.RawMessage `json:"payload"`
}

type CreateJobResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

type JobStatusResponse struct {
	JobID  string  `json:"jobId"`
	Status string  `json:"status"`
	Error  *string `json:"error"`
}

type ListJobsRequest struct {
	EventType string `form:"event_type"`
	Status    string `form:"status"`
	PageSize  int    `form:"page_size"`
	Cursor    string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

type JobDTO struct {
	JobID          string          `json:"jobId"`
	IdempotencyKey string          `json:"idempotencyKey"`
	EventType      string          `json:"eventType"`
	Payload        json.RawMessage `json:"payload"`
	Status         string          `json:"status"`
	Error          *string         `json:"error"`
	CreatedAt      string          `json:"createdAt"`
	UpdatedAt      string          `json:"updatedAt"`
	FinalizedAt    *string         `json:"finalizedAt"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
