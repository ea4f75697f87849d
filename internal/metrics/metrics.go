// Package metrics holds the process-wide prometheus collectors of the
// runtime.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rwkv"

// Load sources and results.
const (
	SourceRaw    = "raw"
	SourcePrefab = "prefab"
	ResultOK     = "ok"
	ResultError  = "error"
)

var (
	LoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loads_total",
		Help:      "Model loads by source and result",
	}, []string{"source", "result"})

	LoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "load_duration_seconds",
		Help:      "Wall time of successful model loads",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
	})

	InferSteps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "infer_steps_total",
		Help:      "Forward steps submitted to the engine",
	})

	InferTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "infer_tokens_total",
		Help:      "Input tokens consumed, by output mode",
	}, []string{"mode"})

	InferErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "infer_errors_total",
		Help:      "Inference calls that ended in an error",
	})

	SamplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "samples_total",
		Help:      "Sampler invocations by path (greedy or nucleus)",
	}, []string{"path"})

	StateOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "state_ops_total",
		Help:      "State accessor operations by kind",
	}, []string{"op"})

	SessionGeneration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "session_generation",
		Help:      "Number of sessions installed since start",
	})
)

func ObserveLoad(source string, start time.Time, err error) {
	if err != nil {
		LoadsTotal.WithLabelValues(source, ResultError).Inc()
		return
	}
	LoadsTotal.WithLabelValues(source, ResultOK).Inc()
	LoadDuration.Observe(time.Since(start).Seconds())
}

func ObserveStep(mode string, tokens int) {
	InferSteps.Inc()
	InferTokens.WithLabelValues(mode).Add(float64(tokens))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
