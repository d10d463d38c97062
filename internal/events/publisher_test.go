package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/chain-job-service/internal/domain"
	"github.com/cuongbtq/chain-job-service/shared/logger"
	"github.com/cuongbtq/chain-job-service/shared/rabbitmq"
)

type recordingPublisher struct {
	routingKey string
	msg        rabbitmq.Message
	err        error
}

func (r *recordingPublisher) PublishWithRetry(_ context.Context, routingKey string, msg rabbitmq.Message) error {
	r.routingKey = routingKey
	r.msg = msg
	return r.err
}

func testJob() *domain.Job {
	return &domain.Job{
		ID:        "3f1c2f0e-8d7b-4f7e-9b9a-3f3c0a4d2b11",
		EventType: domain.EventVerifyAsset,
		Payload:   []byte(`{"txId":"tx-1","siteAddress":"0x5FbDB2315678afecb367f032d93F642f64180aa3","onChainAssetId":4}`),
		Status:    domain.StatusSubmitted,
		CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "transactions.finalized.confirmed", RoutingKey(domain.FinalStatusConfirmed))
	assert.Equal(t, "transactions.finalized.failed", RoutingKey(domain.FinalStatusFailed))
}

func TestPublisher_PublishTransactionFinalized(t *testing.T) {
	client := &recordingPublisher{}
	publisher := NewPublisher(client, logger.NewNop())

	event := domain.NewConfirmedEvent(testJob(), time.Now(), "0xhash", 12, nil)
	require.NoError(t, publisher.PublishTransactionFinalized(context.Background(), event))

	assert.Equal(t, "transactions.finalized.confirmed", client.routingKey)
	assert.Equal(t, rabbitmq.ContentTypeJSON, client.msg.ContentType)
	assert.Equal(t, event.JobID, client.msg.MessageID)
	assert.Equal(t, "VERIFY_ASSET", client.msg.Headers["eventType"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(client.msg.Body, &decoded))
	assert.Equal(t, "tx-1", decoded["id"])
	assert.Equal(t, "CONFIRMED", decoded["finalStatus"])
	assert.Equal(t, float64(12), decoded["blockNumber"])
}

func TestPublisher_FailedEventRoute(t *testing.T) {
	client := &recordingPublisher{}
	publisher := NewPublisher(client, logger.NewNop())

	event := domain.NewFailedEvent(testJob(), time.Now(), "boom")
	require.NoError(t, publisher.PublishTransactionFinalized(context.Background(), event))
	assert.Equal(t, "transactions.finalized.failed", client.routingKey)
}

func TestPublisher_PropagatesError(t *testing.T) {
	client := &recordingPublisher{err: errors.New("channel closed")}
	publisher := NewPublisher(client, logger.NewNop())

	event := domain.NewFailedEvent(testJob(), time.Now(), "boom")
	err := publisher.PublishTransactionFinalized(context.Background(), event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")
}
