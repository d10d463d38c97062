package worker

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/chain-job-service/shared/rabbitmq"
)

// attemptHeader counts how many times a job message was redelivered
const attemptHeader = "x-attempt"

// RetryPolicy bounds queue redeliveries after infrastructure failures
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 5 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Minute
	}
	return p
}

// Delay returns the backoff before redelivery number attempt (1-based):
// BaseDelay doubled per attempt, capped at MaxDelay
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}

	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// deliveryAttempt reads the redelivery counter; first deliveries have none
func deliveryAttempt(headers amqp.Table) int {
	switch v := headers[attemptHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}

// redeliveryMessage copies d with its attempt counter set to attempt
func redeliveryMessage(d amqp.Delivery, attempt int) rabbitmq.Message {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		// broker-maintained death history is not republished
		if k == "x-death" {
			continue
		}
		headers[k] = v
	}
	headers[attemptHeader] = int32(attempt)

	return rabbitmq.Message{
		Body:        d.Body,
		ContentType: d.ContentType,
		MessageID:   d.MessageId,
		Headers:     headers,
	}
}
