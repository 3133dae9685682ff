// Package metrics provides Prometheus collectors for request runs.
package metrics

import (
	"time"

	"http-wrapper/application/http/semantic/status"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Metrics holds the collectors fed by the client.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Challenges      *prometheus.CounterVec
	Resends         prometheus.Counter
	BodyBytes       *prometheus.CounterVec
	Statuses        *prometheus.CounterVec
}

// New creates a Metrics with its own registry and every collector registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "httpwrapper_requests_total",
			Help: "Total request runs by verb and outcome.",
		}, []string{"verb", "outcome"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "httpwrapper_request_duration_seconds",
			Help:    "Duration of a whole request run, auth retries included.",
			Buckets: defaultBuckets,
		}, []string{"verb"}),

		Challenges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "httpwrapper_auth_challenges_total",
			Help: "Authentication challenges received by target.",
		}, []string{"target"}),

		Resends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "httpwrapper_resends_total",
			Help: "Exchanges the transport asked to resend.",
		}),

		BodyBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "httpwrapper_body_bytes_total",
			Help: "Response body bytes read by body kind.",
		}, []string{"kind"}),

		Statuses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "httpwrapper_responses_total",
			Help: "Responses received by status class.",
		}, []string{"class"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.Challenges,
		m.Resends,
		m.BodyBytes,
		m.Statuses,
	)

	return m
}

// The methods below are safe on a nil *Metrics.

func (m *Metrics) ObserveRun(verb string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeFailed
	}
	m.RequestsTotal.WithLabelValues(verb, outcome).Inc()
	m.RequestDuration.WithLabelValues(verb).Observe(d.Seconds())
}

func (m *Metrics) ObserveChallenge(target string) {
	if m == nil {
		return
	}
	m.Challenges.WithLabelValues(target).Inc()
}

func (m *Metrics) ObserveResend() {
	if m == nil {
		return
	}
	m.Resends.Inc()
}

func (m *Metrics) ObserveBody(binary bool, n int) {
	if m == nil || n == 0 {
		return
	}
	kind := "text"
	if binary {
		kind = "binary"
	}
	m.BodyBytes.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) ObserveStatus(code int) {
	if m == nil {
		return
	}
	m.Statuses.WithLabelValues(StatusClass(code)).Inc()
}

// StatusClass returns a bounded label such as "2xx" for code.
func StatusClass(code int) string {
	if code < 0 {
		return "other"
	}
	return status.Class(uint(code))
}
