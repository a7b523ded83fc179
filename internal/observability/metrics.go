package observability

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus collectors. All methods are safe
// on a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	FetchTotal    *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	Rows          *prometheus.GaugeVec
	PagesTotal    *prometheus.CounterVec
	RunsTotal     *prometheus.CounterVec
	RunDuration   prometheus.Histogram

	logger *slog.Logger
}

// NewMetrics creates the collectors on a dedicated registry.
func NewMetrics(logger *slog.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "homestalk_fetch_total",
				Help: "Bulk export fetch attempts by source and outcome.",
			},
			[]string{"source", "outcome"},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "homestalk_fetch_duration_seconds",
				Help:    "Duration of bulk export fetches.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"source"},
		),
		Rows: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "homestalk_rows",
				Help: "Row count at each pipeline stage for the last run of a query.",
			},
			[]string{"query", "stage"},
		),
		PagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "homestalk_pages_total",
				Help: "Listing page fetches by outcome.",
			},
			[]string{"outcome"},
		),
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "homestalk_runs_total",
				Help: "Pipeline runs by final state.",
			},
			[]string{"state"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "homestalk_run_duration_seconds",
				Help:    "Duration of complete pipeline runs.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		logger: logger.With("component", "metrics"),
	}
}

// ObserveFetch records one bulk fetch attempt.
func (m *Metrics) ObserveFetch(source, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(source, outcome).Inc()
	m.FetchDuration.WithLabelValues(source).Observe(d.Seconds())
}

// SetRows records the row count of a stage.
func (m *Metrics) SetRows(query, stage string, n int) {
	if m == nil {
		return
	}
	m.Rows.WithLabelValues(query, stage).Set(float64(n))
}

// ObservePage records one listing page fetch.
func (m *Metrics) ObservePage(outcome string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRun records a finished pipeline run.
func (m *Metrics) ObserveRun(state string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(state).Inc()
	m.RunDuration.Observe(d.Seconds())
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server in the background.
func (m *Metrics) StartServer(port int, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return srv
}
