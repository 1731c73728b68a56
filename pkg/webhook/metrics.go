package webhook

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes counters for webhook ingestion outcomes. All methods are
// safe on a nil receiver so the ingestor can run without instrumentation.
type Metrics struct {
	receivedTotal      prometheus.Counter
	duplicateTotal     prometheus.Counter
	rejectedTotal      prometheus.Counter
	failedTotal        prometheus.Counter
	unprocessableTotal prometheus.Counter
	processedTotal     *prometheus.CounterVec
}

// NewMetrics creates and registers webhook counters on the given registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		receivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "billingcore",
			Subsystem: "webhook",
			Name:      "received_total",
			Help:      "Total webhook deliveries received.",
		}),
		duplicateTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "billingcore",
			Subsystem: "webhook",
			Name:      "duplicate_total",
			Help:      "Deliveries acknowledged as duplicates of an already-seen event_id.",
		}),
		rejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "billingcore",
			Subsystem: "webhook",
			Name:      "rejected_total",
			Help:      "Deliveries rejected for bad signature or unattributable payload.",
		}),
		failedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "billingcore",
			Subsystem: "webhook",
			Name:      "failed_total",
			Help:      "Deliveries that failed transiently and await redelivery.",
		}),
		unprocessableTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "billingcore",
			Subsystem: "webhook",
			Name:      "unprocessable_total",
			Help:      "Events parked for manual review after an integrity failure.",
		}),
		processedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billingcore",
			Subsystem: "webhook",
			Name:      "processed_total",
			Help:      "Events applied successfully, by event type.",
		}, []string{"event_type"}),
	}

	reg.MustRegister(
		m.receivedTotal,
		m.duplicateTotal,
		m.rejectedTotal,
		m.failedTotal,
		m.unprocessableTotal,
		m.processedTotal,
	)
	return m
}

func (m *Metrics) received() {
	if m != nil {
		m.receivedTotal.Inc()
	}
}

func (m *Metrics) duplicate() {
	if m != nil {
		m.duplicateTotal.Inc()
	}
}

func (m *Metrics) rejected() {
	if m != nil {
		m.rejectedTotal.Inc()
	}
}

func (m *Metrics) failed() {
	if m != nil {
		m.failedTotal.Inc()
	}
}

func (m *Metrics) unprocessable() {
	if m != nil {
		m.unprocessableTotal.Inc()
	}
}

func (m *Metrics) processed(eventType string) {
	if m != nil {
		m.processedTotal.WithLabelValues(eventType).Inc()
	}
}
