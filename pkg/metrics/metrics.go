// Package metrics provides Prometheus-based metrics for notebook
// orchestration runs, with a text-format snapshot written at shutdown.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder collects run metrics onto a private registry so repeated
// runs in one process (and tests) never collide on registration.
type Recorder struct {
	registry *prometheus.Registry

	turnsTotal      *prometheus.CounterVec
	toolCallsTotal  *prometheus.CounterVec
	cellRunsTotal   *prometheus.CounterVec
	llmDuration     *prometheus.HistogramVec
	blindEditsTotal prometheus.Counter
	roundsGauge     prometheus.Gauge
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nbupdater_turns_total",
				Help: "Total chat turns taken, by agent and status",
			},
			[]string{"agent", "status"},
		),
		toolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nbupdater_tool_calls_total",
				Help: "Total tool invocations, by tool and status",
			},
			[]string{"tool", "status"},
		),
		cellRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nbupdater_cell_runs_total",
				Help: "Total cell executions, by scope (cell or notebook)",
			},
			[]string{"scope"},
		),
		llmDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nbupdater_llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		blindEditsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nbupdater_blind_edits_total",
				Help: "Edits applied without a full notebook run",
			},
		),
		roundsGauge: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "nbupdater_chat_rounds",
				Help: "Rounds completed in the current chat",
			},
		),
	}
}

// ObserveTurn records a completed chat turn.
func (r *Recorder) ObserveTurn(agent string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.turnsTotal.WithLabelValues(agent, status).Inc()
}

// ObserveToolCall records a tool invocation.
func (r *Recorder) ObserveToolCall(tool string, isError bool) {
	status := "success"
	if isError {
		status = "error"
	}
	r.toolCallsTotal.WithLabelValues(tool, status).Inc()
}

// ObserveCellRun records a cell-scope or notebook-scope execution.
func (r *Recorder) ObserveCellRun(scope string) {
	r.cellRunsTotal.WithLabelValues(scope).Inc()
}

// ObserveLLMDuration records the wall time of one completion request.
func (r *Recorder) ObserveLLMDuration(model string, duration time.Duration) {
	r.llmDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// IncBlindEdit counts an edit that skipped the full notebook run.
func (r *Recorder) IncBlindEdit() {
	r.blindEditsTotal.Inc()
}

// SetRounds updates the round gauge.
func (r *Recorder) SetRounds(rounds int) {
	r.roundsGauge.Set(float64(rounds))
}
