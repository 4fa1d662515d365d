// Package metrics records metering and reconciliation activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lang_gateway"

// Reconciliation outcomes
const (
	OutcomeReported = "reported"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Metrics exposes gateway metrics (e.g. Prometheus handler).
type Metrics interface {
	HTTPHandler() http.Handler

	// ObserveUsage counts one tracked call and its billable characters
	ObserveUsage(service, requestType, keyType string, billable uint64)
	// ObserveOverQuota counts a call rejected by the quota policy
	ObserveOverQuota(keyType string)
	// ObserveLedgerWriteFailure counts a failed best-effort bucket write
	ObserveLedgerWriteFailure(slice string)
	// ObserveAuditDropped counts a usage record that could not be queued
	ObserveAuditDropped()
	// ObserveReconcile counts one reconciliation of a key
	ObserveReconcile(outcome string, thousandChars float64)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (m *NoopMetrics) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func (m *NoopMetrics) ObserveUsage(service, requestType, keyType string, billable uint64) {}
func (m *NoopMetrics) ObserveOverQuota(keyType string)                                    {}
func (m *NoopMetrics) ObserveLedgerWriteFailure(slice string)                             {}
func (m *NoopMetrics) ObserveAuditDropped()                                               {}
func (m *NoopMetrics) ObserveReconcile(outcome string, thousandChars float64)             {}

// Collector holds the Prometheus metrics of the gateway on a private registry.
type Collector struct {
	registry *prometheus.Registry

	BillableCharacters *prometheus.CounterVec
	Requests           *prometheus.CounterVec
	OverQuota          *prometheus.CounterVec
	LedgerWriteErrors  *prometheus.CounterVec
	AuditDropped       prometheus.Counter
	Reconciliations    *prometheus.CounterVec
	ReportedThousands  prometheus.Counter
}

// New creates a collector on a fresh registry that also carries the Go runtime and
// process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry creates a collector registered on reg.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		BillableCharacters: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "billable_characters_total",
				Help:      "Billable characters tracked, after cost normalization",
			},
			[]string{"service", "request_type", "key_type"},
		),
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tracked_requests_total",
				Help:      "Calls tracked by the usage tracker",
			},
			[]string{"service", "request_type", "key_type"},
		),
		OverQuota: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "over_quota_total",
				Help:      "Calls rejected because the account is over quota",
			},
			[]string{"key_type"},
		),
		LedgerWriteErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_write_errors_total",
				Help:      "Failed best-effort usage bucket writes",
			},
			[]string{"slice"},
		),
		AuditDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "usage_audit_dropped_total",
				Help:      "Usage records that could not be queued for the audit trail",
			},
		),
		Reconciliations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliations_total",
				Help:      "Billing reconciliations by outcome",
			},
			[]string{"outcome"},
		),
		ReportedThousands: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reported_thousand_characters_total",
				Help:      "Thousand-character units reported to the billing provider",
			},
		),
	}
}

func (c *Collector) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) ObserveUsage(service, requestType, keyType string, billable uint64) {
	c.Requests.WithLabelValues(service, requestType, keyType).Inc()
	c.BillableCharacters.WithLabelValues(service, requestType, keyType).Add(float64(billable))
}

func (c *Collector) ObserveOverQuota(keyType string) {
	c.OverQuota.WithLabelValues(keyType).Inc()
}

func (c *Collector) ObserveLedgerWriteFailure(slice string) {
	c.LedgerWriteErrors.WithLabelValues(slice).Inc()
}

func (c *Collector) ObserveAuditDropped() {
	c.AuditDropped.Inc()
}

func (c *Collector) ObserveReconcile(outcome string, thousandChars float64) {
	c.Reconciliations.WithLabelValues(outcome).Inc()
	if outcome == OutcomeReported && thousandChars > 0 {
		c.ReportedThousands.Add(thousandChars)
	}
}

var (
	_ Metrics = (*NoopMetrics)(nil)
	_ Metrics = (*Collector)(nil)
)
