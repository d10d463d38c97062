// Package events publishes terminal job outcomes to the blockchain events exchange.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/chain-job-service/internal/domain"
	"github.com/cuongbtq/chain-job-service/internal/metrics"
	"github.com/cuongbtq/chain-job-service/shared/rabbitmq"
)

const routingKeyPrefix = "transactions.finalized."

// MessagePublisher sends one message to the events exchange
type MessagePublisher interface {
	PublishWithRetry(ctx context.Context, routingKey string, msg rabbitmq.Message) error
}

// Publisher emits TransactionFinalizedEvent messages
type Publisher struct {
	client MessagePublisher
	logger *slog.Logger
}

// NewPublisher creates a publisher on top of a publish-only RabbitMQ client
func NewPublisher(client MessagePublisher, logger *slog.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger,
	}
}

// RoutingKey returns the topic routing key for a final status,
// e.g. transactions.finalized.confirmed
func RoutingKey(status domain.FinalStatus) string {
	return routingKeyPrefix + strings.ToLower(string(status))
}

// PublishTransactionFinalized serializes and publishes event
func (p *Publisher) PublishTransactionFinalized(ctx context.Context, event *domain.TransactionFinalizedEvent) error {
	routingKey := RoutingKey(event.FinalStatus)

	body, err := json.Marshal(event)
	if err != nil {
		metrics.EventPublished(routingKey, "error")
		return fmt.Errorf("failed to marshal finalized event: %w", err)
	}

	msg := rabbitmq.Message{
		Body:        body,
		ContentType: rabbitmq.ContentTypeJSON,
		MessageID:   event.JobID,
		Headers: amqp.Table{
			"eventType":   string(event.EventType),
			"finalStatus": string(event.FinalStatus),
		},
	}

	if err := p.client.PublishWithRetry(ctx, routingKey, msg); err != nil {
		metrics.EventPublished(routingKey, "error")
		return fmt.Errorf("failed to publish finalized event for job %s: %w", event.JobID, err)
	}

	metrics.EventPublished(routingKey, "success")
	p.logger.Info("Published finalized event",
		slog.String("job_id", event.JobID),
		slog.String("routing_key", routingKey),
		slog.String("tx_hash", event.TxHash),
	)

	return nil
}
