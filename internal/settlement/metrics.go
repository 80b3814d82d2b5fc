package settlement

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates settlement counters across all coin services. A nil
// *Metrics is valid and counts nothing.
type Metrics struct {
	registry         *prometheus.Registry
	settlementsTotal *prometheus.CounterVec
	oracleErrors     *prometheus.CounterVec
	submitRetries    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coinrails_settlements_total",
		Help: "Settlement operations by coin, kind and terminal outcome",
	}, []string{"coin", "kind", "outcome"})

	oracleErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coinrails_oracle_errors_total",
		Help: "Price feed failures by coin and classification",
	}, []string{"coin", "kind"})

	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coinrails_submit_retries_total",
		Help: "Fee-escalated broadcast retries by coin",
	}, []string{"coin"})

	r := prometheus.NewRegistry()
	r.MustRegister(settlements, oracleErrors, retries)

	return &Metrics{
		registry:         r,
		settlementsTotal: settlements,
		oracleErrors:     oracleErrors,
		submitRetries:    retries,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) incSettlement(coin, kind string, outcome Outcome) {
	if m == nil {
		return
	}
	m.settlementsTotal.WithLabelValues(coin, kind, string(outcome)).Inc()
}

func (m *Metrics) incOracleError(coin, kind string) {
	if m == nil {
		return
	}
	m.oracleErrors.WithLabelValues(coin, kind).Inc()
}

func (m *Metrics) incRetry(coin string) {
	if m == nil {
		return
	}
	m.submitRetries.WithLabelValues(coin).Inc()
}
