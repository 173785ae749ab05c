// Package metrics exposes Prometheus counters for refinement runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "scanbook"
)

var (
	// LLM calls
	LLMCallTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_total",
			Help:      "Total number of correction calls",
		},
		[]string{"provider", "model", "status"},
	)

	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Correction call duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 180},
		},
		[]string{"provider", "model"},
	)

	LLMTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_used_total",
			Help:      "Total tokens used for correction calls",
		},
		[]string{"provider", "model", "type"}, // type: input/output
	)

	LLMCostTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "cost_total",
			Help:      "Accumulated cost of correction calls",
		},
		[]string{"model"},
	)

	LLMRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "retries_total",
			Help:      "Total number of retried correction attempts",
		},
		[]string{"model", "reason"},
	)

	// Chunks
	ChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chunk",
			Name:      "finalized_total",
			Help:      "Total number of finalized chunks",
		},
		[]string{"status", "reason"},
	)

	ChunksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chunk",
			Name:      "in_flight",
			Help:      "Chunks currently being corrected",
		},
	)
)

// RecordCall accounts for one correction attempt.
func RecordCall(provider, model, status string, d time.Duration, inputTokens, outputTokens int, cost float64) {
	LLMCallTotal.WithLabelValues(provider, model, status).Inc()
	LLMCallDuration.WithLabelValues(provider, model).Observe(d.Seconds())
	if inputTokens > 0 {
		LLMTokensUsed.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		LLMTokensUsed.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
	if cost > 0 {
		LLMCostTotal.WithLabelValues(model).Add(cost)
	}
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
