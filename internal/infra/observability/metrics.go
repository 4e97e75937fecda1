package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration  *prometheus.HistogramVec
	externalErrors   *prometheus.CounterVec
	verdicts         *prometheus.CounterVec
	callbackOutcomes *prometheus.CounterVec
	statusCheckFails prometheus.Counter
	sessionRestores  *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kardex_gateway_request_duration_seconds",
				Help:    "Duration of operations by name.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kardex_gateway_external_errors_total",
				Help: "Total errors from the remote KARDEX API.",
			},
			[]string{"service"},
		),
		verdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kardex_gateway_session_verdicts_total",
				Help: "Session reconciliation verdicts by outcome.",
			},
			[]string{"outcome"},
		),
		callbackOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kardex_gateway_oauth_callbacks_total",
				Help: "OAuth callback ingestions by terminal state.",
			},
			[]string{"state"},
		),
		statusCheckFails: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kardex_gateway_status_check_failures_total",
				Help: "Account-status lookups that failed and were degraded to authorized.",
			},
		),
		sessionRestores: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kardex_gateway_session_restores_total",
				Help: "Sessions restored from persisted storage by result.",
			},
			[]string{"result"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrVerdict counts a reconciliation outcome:
// "authorized", "unauthorized" or "unauthenticated".
func (m *Metrics) IncrVerdict(outcome string) {
	m.verdicts.WithLabelValues(outcome).Inc()
}

// IncrCallback counts an OAuth callback terminal state.
func (m *Metrics) IncrCallback(state string) {
	m.callbackOutcomes.WithLabelValues(state).Inc()
}

// IncrStatusCheckFailure counts a degraded account-status lookup.
func (m *Metrics) IncrStatusCheckFailure() {
	m.statusCheckFails.Inc()
}

// IncrSessionRestore counts a storage restoration: "ok" or "malformed".
func (m *Metrics) IncrSessionRestore(result string) {
	m.sessionRestores.WithLabelValues(result).Inc()
}

// SessionSnapshot is the aggregate view served by GET /v1/metrics/session.
type SessionSnapshot struct {
	VerdictsAuthorized      int64   `json:"verdictsAuthorized"`
	VerdictsUnauthorized    int64   `json:"verdictsUnauthorized"`
	VerdictsUnauthenticated int64   `json:"verdictsUnauthenticated"`
	CallbackSuccess         int64   `json:"callbackSuccess"`
	CallbackError           int64   `json:"callbackError"`
	StatusCheckFailures     int64   `json:"statusCheckFailures"`
	DenyRate                float64 `json:"denyRate"`
}

// GetSessionSnapshot reads back the counters for the session metrics
// endpoint. Prometheus counters are cumulative since process start.
func (m *Metrics) GetSessionSnapshot() *SessionSnapshot {
	authorized := getCounterValue(m.verdicts, "authorized")
	unauthorized := getCounterValue(m.verdicts, "unauthorized")
	unauthenticated := getCounterValue(m.verdicts, "unauthenticated")

	total := authorized + unauthorized + unauthenticated
	denyRate := float64(0)
	if total > 0 {
		denyRate = (unauthorized + unauthenticated) / total
	}

	return &SessionSnapshot{
		VerdictsAuthorized:      int64(authorized),
		VerdictsUnauthorized:    int64(unauthorized),
		VerdictsUnauthenticated: int64(unauthenticated),
		CallbackSuccess:         int64(getCounterValue(m.callbackOutcomes, "success")),
		CallbackError:           int64(getCounterValue(m.callbackOutcomes, "error")),
		StatusCheckFailures:     int64(readCounter(m.statusCheckFails)),
		DenyRate:                denyRate,
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	return readCounter(counter)
}

func readCounter(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
