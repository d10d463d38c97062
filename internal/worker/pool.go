package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/chain-job-service/internal/domain"
	"github.com/cuongbtq/chain-job-service/internal/metrics"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	logger := w.logger.With(slog.String("worker_name", workerName))
	logger.Debug("Worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Worker goroutine stopping - context canceled")
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				logger.Debug("Worker goroutine stopping - jobsChan closed")
				return
			}

			err := w.processor.Process(w.jobCtx, msg.JobID)
			w.settle(logger, msg, err)
		}
	}
}

// settle acknowledges the delivery according to the processing outcome
func (w *Worker) settle(logger *slog.Logger, msg *jobMessage, err error) {
	logger = logger.With(slog.String("job_id", msg.JobID))

	if err == nil {
		if ackErr := msg.Delivery.Ack(false); ackErr != nil {
			logger.Error("Failed to ACK message", slog.String("error", ackErr.Error()))
		}
		return
	}

	var retryable *domain.RetryableError
	if !errors.As(err, &retryable) {
		// processor only returns retryable errors; anything else is a bug, park it
		logger.Error("Unexpected processing error, dead-lettering", slog.String("error", err.Error()))
		w.nack(logger, msg, false)
		return
	}

	if w.jobCtx.Err() != nil {
		logger.Warn("Job interrupted by shutdown, requeueing", slog.String("error", err.Error()))
		w.nack(logger, msg, true)
		return
	}

	attempt := deliveryAttempt(msg.Delivery.Headers) + 1
	if attempt >= w.retry.MaxAttempts {
		logger.Error("Job exhausted delivery attempts, dead-lettering",
			slog.Int("attempts", attempt),
			slog.String("error", err.Error()),
		)
		metrics.Redelivery("dead_lettered")
		w.nack(logger, msg, false)
		return
	}

	delay := w.retry.Delay(attempt)
	if pubErr := w.broker.PublishDelayed(w.jobCtx, redeliveryMessage(msg.Delivery, attempt), delay); pubErr != nil {
		logger.Error("Failed to schedule redelivery, requeueing",
			slog.String("error", pubErr.Error()),
		)
		w.nack(logger, msg, true)
		return
	}

	metrics.Redelivery("scheduled")
	logger.Warn("Job will be retried",
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", w.retry.MaxAttempts),
		slog.Duration("retry_after", delay),
		slog.String("error", err.Error()),
	)

	if ackErr := msg.Delivery.Ack(false); ackErr != nil {
		logger.Error("Failed to ACK rescheduled message", slog.String("error", ackErr.Error()))
	}
}

func (w *Worker) nack(logger *slog.Logger, msg *jobMessage, requeue bool) {
	if err := msg.Delivery.Nack(false, requeue); err != nil {
		logger.Error("Failed to NACK message",
			slog.Bool("requeue", requeue),
			slog.String("error", err.Error()),
		)
	}
}
