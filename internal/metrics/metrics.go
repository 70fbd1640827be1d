package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rankwatch_search_requests_total",
			Help: "Total number of local search API requests, by HTTP status or \"error\"",
		},
		[]string{"status"},
	)

	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rankwatch_search_duration_seconds",
			Help:    "Duration of local search API requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rankwatch_tasks_total",
			Help: "Total number of keyword tasks resolved, by outcome",
		},
		[]string{"outcome"},
	)

	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rankwatch_last_run_timestamp_seconds",
			Help: "Unix time at which the last run finished",
		},
	)
)

// RecordSearch counts one API request. A zero duration is not observed.
func RecordSearch(status string, d time.Duration) {
	SearchRequestsTotal.WithLabelValues(status).Inc()
	if d > 0 {
		SearchDuration.Observe(d.Seconds())
	}
}

// RecordTask counts one resolved task under the given outcome label.
func RecordTask(outcome string) {
	TasksTotal.WithLabelValues(outcome).Inc()
}

// RecordRunFinished marks the completion time of a run.
func RecordRunFinished(t time.Time) {
	LastRunTimestamp.Set(float64(t.Unix()))
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "port", port, "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
