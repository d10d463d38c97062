// Package metrics holds the Prometheus collectors of the chain job pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chain_jobs"

type collectors struct {
	jobsFinalized   *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobsRedelivered *prometheus.CounterVec
	transactions    *prometheus.CounterVec
	receiptWait     *prometheus.HistogramVec
	eventsPublished *prometheus.CounterVec
	jobsInFlight    prometheus.Gauge
}

var collectorsSingleton = sync.OnceValue(func() *collectors {
	return &collectors{
		jobsFinalized: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalized_total",
			Help:      "Jobs that reached a terminal state.",
		}, []string{"event_type", "status"}),
		jobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "Time from claim to terminal state.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"event_type", "status"}),
		jobsRedelivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redelivered_total",
			Help:      "Queue redeliveries scheduled or abandoned after an infrastructure failure.",
		}, []string{"outcome"}),
		transactions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transactions submitted to the chain.",
		}, []string{"contract", "method", "result"}),
		receiptWait: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "receipt_wait_seconds",
			Help:      "Time spent waiting for a transaction to be mined.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 15, 30, 60, 120},
		}, []string{"result"}),
		eventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalized_events_published_total",
			Help:      "Finalized events published to the event exchange.",
		}, []string{"routing_key", "result"}),
		jobsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight",
			Help:      "Jobs currently being processed by this worker.",
		}),
	}
})

func get() *collectors {
	return collectorsSingleton()
}

// JobFinalized records a terminal transition and how long the job ran
func JobFinalized(eventType, status string, elapsed time.Duration) {
	m := get()
	m.jobsFinalized.WithLabelValues(eventType, status).Inc()
	m.jobDuration.WithLabelValues(eventType, status).Observe(elapsed.Seconds())
}

// JobStarted increments the in-flight gauge; call the returned func when done
func JobStarted() func() {
	m := get()
	m.jobsInFlight.Inc()
	return m.jobsInFlight.Dec
}

// Redelivery records a retry decision: "scheduled" or "dead_lettered"
func Redelivery(outcome string) {
	get().jobsRedelivered.WithLabelValues(outcome).Inc()
}

// TransactionSubmitted records a submission attempt: result is "sent" or "error"
func TransactionSubmitted(contract, method, result string) {
	get().transactions.WithLabelValues(contract, method, result).Inc()
}

// ReceiptWaited records a receipt wait: result is "success", "reverted" or "error"
func ReceiptWaited(result string, elapsed time.Duration) {
	get().receiptWait.WithLabelValues(result).Observe(elapsed.Seconds())
}

// EventPublished records a finalized event publish attempt
func EventPublished(routingKey, result string) {
	get().eventsPublished.WithLabelValues(routingKey, result).Inc()
}

// Handler serves the default registry
func Handler() http.Handler {
	get()
	return promhttp.Handler()
}
