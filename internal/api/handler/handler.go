package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/chain-job-service/internal/api/storage"
	"github.com/cuongbtq/chain-job-service/internal/domain"
	"github.com/cuongbtq/chain-job-service/shared/rabbitmq"
)

// JobStore is the persistence the intake endpoints need
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.Job) (*domain.Job, error)
	GetJobByID(ctx context.Context, jobID string) (*domain.Job, error)
	GetJobByIdempotencyKey(ctx context.Context, key string) (*domain.Job, error)
	FailQueuedJob(ctx context.Context, jobID, reason string) error
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
}

// JobQueue publishes "process job" messages
type JobQueue interface {
	PublishWithRetry(ctx context.Context, routingKey string, msg rabbitmq.Message) error
}

// ReadinessCheck reports whether one backing service can take traffic
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger     *slog.Logger
	Store      JobStore
	Queue      JobQueue
	RoutingKey string
	Readiness  []ReadinessCheck
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger     *slog.Logger
	store      JobStore
	queue      JobQueue
	routingKey string
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:     deps.Logger,
		store:      deps.Store,
		queue:      deps.Queue,
		routingKey: deps.RoutingKey,
	}
}
