// Package metrics exposes pipeline counters and stage timings as Prometheus collectors.
// Each Recorder owns its registry so batch runs and tests never collide on the default one.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/wonny/aegis-rebalance/internal/contracts"
)

const namespace = "rebalance"

// Recorder holds all pipeline metrics
type Recorder struct {
	registry *prometheus.Registry

	Runs          *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Diagnostics   *prometheus.CounterVec
	Intents       *prometheus.CounterVec
	Invariants    prometheus.Counter
}

// NewRecorder creates and registers every collector on a private registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Completed pipeline runs by gate status",
			},
			[]string{"status"},
		),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each pipeline stage in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"stage"},
		),

		Diagnostics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "diagnostics_total",
				Help:      "Diagnostics emitted by stage, code and severity",
			},
			[]string{"stage", "code", "severity"},
		),

		Intents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intents_total",
				Help:      "Generated intents by kind",
			},
			[]string{"kind"},
		),

		Invariants: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invariant_failures_total",
				Help:      "Runs that ended with an internal invariant failure",
			},
		),
	}

	r.registry.MustRegister(r.Runs, r.StageDuration, r.Diagnostics, r.Intents, r.Invariants)
	return r
}

// ObserveStage records how long a stage took
func (r *Recorder) ObserveStage(stage contracts.Stage, d time.Duration) {
	if r == nil {
		return
	}
	r.StageDuration.WithLabelValues(stage.ShortName()).Observe(d.Seconds())
}

// RecordOutcome counts the run, its diagnostics and intents
func (r *Recorder) RecordOutcome(o *contracts.Outcome, runErr error) {
	if r == nil || o == nil {
		return
	}
	r.Runs.WithLabelValues(string(o.Status)).Inc()
	for _, d := range o.Diagnostics {
		r.Diagnostics.WithLabelValues(d.Stage.ShortName(), d.Code, string(d.Severity)).Inc()
	}
	for _, in := range o.Intents {
		r.Intents.WithLabelValues(string(in.Kind)).Inc()
	}
	if _, ok := contracts.AsInvariant(runErr); ok {
		r.Invariants.Inc()
	}
}

// Registry exposes the private registry (e.g. for promhttp or testutil)
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteText writes every metric in the Prometheus text exposition format
func (r *Recorder) WriteText(w io.Writer) error {
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
