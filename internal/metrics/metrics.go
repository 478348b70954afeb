// Package metrics exposes the oracle's operational counters over Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder wraps the Prometheus instruments the pipelines and queue report
// into. A nil *Recorder is safe to call, so wiring metrics stays optional.
type Recorder struct {
	pipelineRuns  *prometheus.CounterVec
	pipelineFails *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	backendCalls  *prometheus.CounterVec
	queueDepth    prometheus.Gauge
	inFlight      prometheus.Gauge
	tracked       prometheus.Gauge
	deadLetters   prometheus.Counter
	escalations   prometheus.Counter
	duration      *prometheus.HistogramVec
}

// New registers the oracle's instruments on the default registry.
func New() *Recorder {
	return &Recorder{
		pipelineRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verdictd_pipeline_runs_total",
				Help: "Completed pipeline runs by kind",
			},
			[]string{"kind"},
		),
		pipelineFails: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verdictd_pipeline_failures_total",
				Help: "Failed pipeline runs by kind",
			},
			[]string{"kind"},
		),
		decisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verdictd_decisions_total",
				Help: "Decision outcomes by kind and result",
			},
			[]string{"kind", "result"},
		),
		backendCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verdictd_backend_verdicts_total",
				Help: "Model backend verdicts by provider and status",
			},
			[]string{"provider", "status"},
		),
		queueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "verdictd_queue_depth",
			Help: "Markets waiting in the work queue",
		}),
		inFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "verdictd_queue_in_flight",
			Help: "Markets currently being processed",
		}),
		tracked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "verdictd_heartbeat_tracked",
			Help: "Proposed outcomes inside their waiting window",
		}),
		deadLetters: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verdictd_queue_dead_letters_total",
			Help: "Queue entries that exhausted their retries",
		}),
		escalations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verdictd_escalations_total",
			Help: "Markets escalated to human review",
		}),
		duration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "verdictd_pipeline_duration_seconds",
				Help:    "Pipeline run duration by kind",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
	}
}

func (r *Recorder) PipelineRun(kind string, seconds float64) {
	if r == nil {
		return
	}
	r.pipelineRuns.WithLabelValues(kind).Inc()
	r.duration.WithLabelValues(kind).Observe(seconds)
}

func (r *Recorder) PipelineFailure(kind string) {
	if r == nil {
		return
	}
	r.pipelineFails.WithLabelValues(kind).Inc()
}

func (r *Recorder) Decision(kind, result string) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(kind, result).Inc()
}

func (r *Recorder) BackendVerdict(provider, status string) {
	if r == nil {
		return
	}
	r.backendCalls.WithLabelValues(provider, status).Inc()
}

func (r *Recorder) QueueGauges(depth, inFlight int) {
	if r == nil {
		return
	}
	r.queueDepth.Set(float64(depth))
	r.inFlight.Set(float64(inFlight))
}

func (r *Recorder) TrackedProposals(n int) {
	if r == nil {
		return
	}
	r.tracked.Set(float64(n))
}

func (r *Recorder) DeadLetter() {
	if r == nil {
		return
	}
	r.deadLetters.Inc()
}

func (r *Recorder) Escalation() {
	if r == nil {
		return
	}
	r.escalations.Inc()
}
