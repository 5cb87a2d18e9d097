package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	FallbackConstraints = "constraints"
	FallbackRewrite     = "rewrite"
	FallbackSynthesis   = "synthesis"
	FallbackSchema      = "schema"
	FallbackRetrieval   = "retrieval"
	FallbackRanking     = "ranking"
)

var (
	pipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlrag_pipeline_runs_total",
			Help: "Total number of question runs by outcome.",
		},
		[]string{"outcome"},
	)
	pipelineStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlrag_pipeline_stage_duration_seconds",
			Help:    "Time spent in each workflow stage.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)
	pipelineFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlrag_pipeline_fallbacks_total",
			Help: "Total number of recovered failures by kind.",
		},
		[]string{"kind"},
	)
	llmTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlrag_llm_tokens_total",
			Help: "Total language model tokens consumed by purpose.",
		},
		[]string{"purpose"},
	)
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlrag_executions_total",
			Help: "Total number of SQL executions by result.",
		},
		[]string{"result"},
	)
	retrievalIndexChunks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlrag_retrieval_index_chunks",
			Help: "Number of schema chunks held across all retrieval indexes.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineRunsTotal,
		pipelineStageDurationSeconds,
		pipelineFallbacksTotal,
		llmTokensTotal,
		executionsTotal,
		retrievalIndexChunks,
	)
}

func ObserveStage(stage string, elapsed time.Duration) {
	pipelineStageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func IncrementFallback(kind string) {
	pipelineFallbacksTotal.WithLabelValues(kind).Inc()
}

func IncrementRun(outcome string) {
	pipelineRunsTotal.WithLabelValues(outcome).Inc()
}

func AddTokens(purpose string, tokens int64) {
	if tokens <= 0 {
		return
	}
	llmTokensTotal.WithLabelValues(purpose).Add(float64(tokens))
}

// ObserveExecution records one executor call; result is "ok", "empty" or "error".
func ObserveExecution(result string) {
	executionsTotal.WithLabelValues(result).Inc()
}

func AddIndexedChunks(n int) {
	if n <= 0 {
		return
	}
	retrievalIndexChunks.Add(float64(n))
}
