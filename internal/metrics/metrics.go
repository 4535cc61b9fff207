// Package metrics exposes Prometheus instruments for the voice pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paul-bouzian/saycal/internal/model"
)

const namespace = "saycal"

// Metrics satisfies the Recorder interfaces of quota, calendar, transcribe and voice.
type Metrics struct {
	reg *prometheus.Registry

	voiceRequests     *prometheus.CounterVec
	quotaDecisions    *prometheus.CounterVec
	toolExecutions    *prometheus.CounterVec
	transcribeLatency *prometheus.HistogramVec
}

// New registers the instruments on a fresh registry together with the
// process and Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		voiceRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "voice",
				Name:      "requests_total",
				Help:      "Voice round-trips by outcome (ok or failure reason).",
			},
			[]string{"outcome"},
		),
		quotaDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "quota",
				Name:      "decisions_total",
				Help:      "Quota gate decisions by plan.",
			},
			[]string{"plan", "allowed"},
		),
		toolExecutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "calendar",
				Name:      "tool_executions_total",
				Help:      "Calendar tool executions by tool and result.",
			},
			[]string{"tool", "success"},
		),
		transcribeLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "transcribe",
				Name:      "duration_seconds",
				Help:      "Speech-to-text latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider", "success"},
		),
	}
}

func (m *Metrics) VoiceOutcome(reason string) {
	m.voiceRequests.WithLabelValues(reason).Inc()
}

func (m *Metrics) QuotaDecision(plan model.Plan, allowed bool) {
	m.quotaDecisions.WithLabelValues(string(plan), strconv.FormatBool(allowed)).Inc()
}

func (m *Metrics) ToolExecuted(name string, success bool) {
	m.toolExecutions.WithLabelValues(name, strconv.FormatBool(success)).Inc()
}

func (m *Metrics) TranscriptionObserved(provider string, d time.Duration, err error) {
	m.transcribeLatency.WithLabelValues(provider, strconv.FormatBool(err == nil)).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
