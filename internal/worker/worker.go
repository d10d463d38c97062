package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/chain-job-service/shared/rabbitmq"
)

// ErrDeliveriesClosed is returned by Start when the broker closes the
// delivery channel while the worker is still running
var ErrDeliveriesClosed = errors.New("rabbitmq delivery channel closed")

// JobProcessor runs one job to completion
type JobProcessor interface {
	Process(ctx context.Context, jobID string) error
}

// Broker is the subset of the RabbitMQ client the worker needs
type Broker interface {
	Consume(consumerTag string, prefetchCount int) (<-chan amqp.Delivery, error)
	PublishDelayed(ctx context.Context, msg rabbitmq.Message, delay time.Duration) error
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Broker        Broker
	Processor     JobProcessor
	WorkerID      string
	QueueName     string
	Concurrency   int
	PrefetchCount int
	Retry         RetryPolicy
}

// Worker consumes "process job" messages and runs them on a fixed pool of
// goroutines
type Worker struct {
	logger        *slog.Logger
	broker        Broker
	processor     JobProcessor
	workerID      string
	queueName     string
	concurrency   int
	prefetchCount int
	retry         RetryPolicy

	jobsChan chan *jobMessage
	wg       sync.WaitGroup
	stopOnce sync.Once

	// jobs run under their own context so that stopping intake does not
	// abort a transaction sequence halfway
	jobCtx    context.Context
	cancelJob context.CancelFunc
}

// jobMessage is a validated delivery waiting for a pool slot
type jobMessage struct {
	JobID    string
	Delivery amqp.Delivery
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}

	jobCtx, cancel := context.WithCancel(context.Background())

	return &Worker{
		logger:        cfg.Logger,
		broker:        cfg.Broker,
		processor:     cfg.Processor,
		workerID:      cfg.WorkerID,
		queueName:     cfg.QueueName,
		concurrency:   concurrency,
		prefetchCount: prefetch,
		retry:         cfg.Retry.withDefaults(),
		jobsChan:      make(chan *jobMessage),
		jobCtx:        jobCtx,
		cancelJob:     cancel,
	}
}

// Start consumes until ctx is canceled or the delivery channel closes.
// In-flight jobs keep running after Start returns; call Stop to wait for them.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Int("max_attempts", w.retry.MaxAttempts),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)

	err = w.startMessageDispatcher(ctx, deliveries)
	close(w.jobsChan)
	return err
}

// Stop waits for in-flight jobs. Jobs still running after timeout are
// canceled and left for redelivery.
func (w *Worker) Stop(timeout time.Duration) {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...",
			slog.Duration("timeout", timeout),
		)

		done := make(chan struct{})
		go func() {
			w.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(timeout):
			w.logger.Warn("In-flight jobs did not finish in time, canceling them")
			w.cancelJob()
			<-done
		}

		w.cancelJob()
		w.logger.Info("Worker stopped")
	})
}
