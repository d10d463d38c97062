package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/chain-job-service/internal/api/dto"
	"github.com/cuongbtq/chain-job-service/internal/api/storage"
	"github.com/cuongbtq/chain-job-service/internal/domain"
	"github.com/cuongbtq/chain-job-service/shared/rabbitmq"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	enqueueFailedReason = "failed to enqueue job"
)

// CreateJob handles POST /api/v1/jobs
// Persists a QUEUED job for the idempotency key and enqueues it for the worker
func (h *JobHandler) CreateJob(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	// 1. Resolve idempotency key (header wins over body)
	key := strings.TrimSpace(c.GetHeader(dto.IdempotencyKeyHeader))
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}
	if key == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "X-Idempotency-Key header is required",
		})
		return
	}

	logger := h.logger.With(slog.String("idempotency_key", key))

	// 2. Payload shape is checked before anything touches the database
	if !domain.IsJSONObject(req.Payload) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "payload must be a JSON object",
		})
		return
	}

	// 3. Replay of a known key returns the original job untouched
	existing, err := h.store.GetJobByIdempotencyKey(ctx, key)
	switch {
	case err == nil:
		logger.Info("Idempotent replay", slog.String("job_id", existing.ID))
		c.JSON(http.StatusOK, dto.CreateJobResponse{
			JobID:  existing.ID,
			Status: string(existing.Status),
		})
		return
	case !errors.Is(err, domain.ErrJobNotFound):
		logger.Error("Failed to look up idempotency key", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "Failed to create job",
		})
		return
	}

	// 4. Validate the payload for its event type, carrying txId inside it
	eventType := domain.EventType(req.EventType)
	payload := []byte(req.Payload)
	if req.TxID != "" {
		payload, err = domain.WithTxID(payload, req.TxID)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "Invalid payload",
				Details: err.Error(),
			})
			return
		}
	}

	if _, err := domain.DecodePayload(eventType, payload); err != nil {
		logger.Warn("Rejected job payload",
			slog.String("event_type", req.EventType),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Invalid payload",
			Details: err.Error(),
		})
		return
	}

	// 5. Insert; losing the race to a concurrent request returns the winner
	job, err := h.store.CreateJob(ctx, &domain.Job{
		ID:             uuid.NewString(),
		IdempotencyKey: key,
		EventType:      eventType,
		Payload:        payload,
		Status:         domain.StatusQueued,
	})
	if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
		winner, getErr := h.store.GetJobByIdempotencyKey(ctx, key)
		if getErr != nil {
			logger.Error("Failed to load concurrent job", slog.String("error", getErr.Error()))
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
				Error: "Failed to create job",
			})
			return
		}
		c.JSON(http.StatusOK, dto.CreateJobResponse{
			JobID:  winner.ID,
			Status: string(winner.Status),
		})
		return
	}
	if err != nil {
		logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "Failed to create job",
		})
		return
	}

	logger = logger.With(slog.String("job_id", job.ID), slog.String("event_type", string(job.EventType)))

	// 6. Enqueue
	body, err := json.Marshal(domain.JobMessage{JobID: job.ID})
	if err == nil {
		err = h.queue.PublishWithRetry(ctx, h.routingKey, rabbitmq.Message{
			Body:        body,
			ContentType: rabbitmq.ContentTypeJSON,
			MessageID:   job.ID,
		})
	}
	if err != nil {
		logger.Error("Failed to enqueue job", slog.String("error", err.Error()))
		if failErr := h.store.FailQueuedJob(ctx, job.ID, enqueueFailedReason); failErr != nil {
			logger.Error("Failed to mark job as failed", slog.String("error", failErr.Error()))
		}
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
			Error: "Failed to enqueue job",
		})
		return
	}

	logger.Info("Job queued")
	c.JSON(http.StatusAccepted, dto.CreateJobResponse{
		JobID:  job.ID,
		Status: string(job.Status),
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
// Returns the job's status and error message
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Warn("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.store.GetJobByID(c.Request.Context(), jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: "Job not found",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get job", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, dto.JobStatusResponse{
		JobID:  job.ID,
		Status: string(job.Status),
		Error:  job.ErrorMessage,
	})
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first, filtered by event type and status, with cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "Invalid query parameters",
		})
		return
	}

	if req.EventType != "" && !domain.EventType(req.EventType).IsValid() {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "Unknown event_type",
		})
		return
	}

	if req.Status != "" && !domain.Status(req.Status).IsValid() {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "Unknown status",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "Invalid cursor",
		})
		return
	}

	jobs, err := h.store.ListJobs(c.Request.Context(), storage.JobFilter{
		EventType: req.EventType,
		Status:    req.Status,
		PageSize:  req.PageSize,
		Cursor:    cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "Failed to list jobs",
		})
		return
	}

	// One extra row was fetched to tell whether another page exists
	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i, job := range jobs {
		jobResponse[i] = toJobDTO(job)
	}

	var nextCursor string
	if hasMore {
		lastJob := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: lastJob.CreatedAt,
			JobID:     lastJob.ID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

func toJobDTO(job domain.Job) dto.JobDTO {
	out := dto.JobDTO{
		JobID:          job.ID,
		IdempotencyKey: job.IdempotencyKey,
		EventType:      string(job.EventType),
		Payload:        json.RawMessage(job.Payload),
		Status:         string(job.Status),
		Error:          job.ErrorMessage,
		CreatedAt:      domain.FormatTimestamp(job.CreatedAt),
		UpdatedAt:      domain.FormatTimestamp(job.UpdatedAt),
	}
	if job.FinalizedAt != nil {
		finalizedAt := domain.FormatTimestamp(*job.FinalizedAt)
		out.FinalizedAt = &finalizedAt
	}
	if !json.Valid(out.Payload) {
		out.Payload = json.RawMessage("null")
	}
	return out
}
