// Package metrics exposes Prometheus instrumentation for pipeline stages and
// provider calls. A nil *Recorder is valid and records nothing, so stages
// built without metrics need no guards.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-simjudge/internal/domain"
	"github.com/ahrav/go-simjudge/internal/llm"
)

// Recorder holds the pipeline's collectors.
type Recorder struct {
	StageRuns        *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	CaseOutcomes     *prometheus.CounterVec
	ProviderCalls    *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	SimilarityScores *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		StageRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simjudge_stage_runs_total",
				Help: "Stage invocations by stage and outcome class",
			},
			[]string{"stage", "outcome"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "simjudge_stage_duration_seconds",
				Help:    "Wall-clock duration of stage invocations",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"stage"},
		),
		CaseOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simjudge_case_outcomes_total",
				Help: "Per-case outcomes of execution and judging",
			},
			[]string{"stage", "outcome"},
		),
		ProviderCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simjudge_provider_calls_total",
				Help: "Model provider calls by model and status",
			},
			[]string{"model", "status"},
		),
		ProviderLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "simjudge_provider_call_duration_seconds",
				Help:    "Duration of model provider calls",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"model"},
		),
		SimilarityScores: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "simjudge_similarity_score",
				Help:    "Distribution of judged similarity scores",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
			[]string{"judge_model"},
		),
	}
}

// StageFinished records a stage invocation. outcome is "ok" on success or
// the error class otherwise.
func (r *Recorder) StageFinished(stage domain.Stage, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.StageRuns.WithLabelValues(string(stage), outcome).Inc()
	r.StageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

// CaseOutcome counts one per-case result.
func (r *Recorder) CaseOutcome(stage domain.Stage, outcome string) {
	if r == nil {
		return
	}
	r.CaseOutcomes.WithLabelValues(string(stage), outcome).Inc()
}

// ProviderCall records one provider round trip.
func (r *Recorder) ProviderCall(model string, err error, d time.Duration) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.ProviderCalls.WithLabelValues(model, status).Inc()
	r.ProviderLatency.WithLabelValues(model).Observe(d.Seconds())
}

// SimilarityScore observes a judged score.
func (r *Recorder) SimilarityScore(judgeModel string, score int) {
	if r == nil {
		return
	}
	r.SimilarityScores.WithLabelValues(judgeModel).Observe(float64(score))
}

// ProviderMiddleware records every call passing through it. It returns nil
// for a nil Recorder so llm.Chain skips it.
func (r *Recorder) ProviderMiddleware() llm.Middleware {
	if r == nil {
		return nil
	}
	return func(next llm.Provider) llm.Provider {
		return llm.ProviderFunc(func(ctx context.Context, prompt string, mc domain.ModelConfig) (string, error) {
			start := time.Now()
			text, err := next.Generate(ctx, prompt, mc)
			r.ProviderCall(mc.ModelName, err, time.Since(start))
			return text, err
		})
	}
}
