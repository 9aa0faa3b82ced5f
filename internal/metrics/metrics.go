// Package metrics exposes Prometheus collectors for an enrichment sweep.
//
// A sweep over a few hundred repositories takes hours because of pacing, so
// the collectors can be scraped while it runs (see Serve). Every method is
// safe on a nil *Metrics, which is how runs without metrics are wired.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Item outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

type Metrics struct {
	registry *prometheus.Registry

	items      *prometheus.CounterVec
	requests   *prometheus.CounterVec
	pacingWait prometheus.Histogram
	checkpoint prometheus.Gauge
	remaining  prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openrank_items_total",
			Help: "Work items processed, labeled by outcome.",
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openrank_api_requests_total",
			Help: "GitHub API requests, labeled by fetch step and HTTP status code.",
		}, []string{"step", "code"}),
		pacingWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "openrank_pacing_wait_seconds",
			Help:    "Time spent waiting for the pacer before an API call.",
			Buckets: []float64{0.01, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		checkpoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "openrank_checkpoint_id",
			Help: "Id of the last attempted work item.",
		}),
		remaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "openrank_items_remaining",
			Help: "Work items left in the current sweep.",
		}),
	}
	m.registry.MustRegister(m.items, m.requests, m.pacingWait, m.checkpoint, m.remaining)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ItemProcessed(outcome string) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(outcome).Inc()
}

// Request records one API call. code is 0 when no response was received.
func (m *Metrics) Request(step string, code int) {
	if m == nil {
		return
	}
	label := "none"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.requests.WithLabelValues(step, label).Inc()
}

func (m *Metrics) PacingWait(d time.Duration) {
	if m == nil {
		return
	}
	m.pacingWait.Observe(d.Seconds())
}

func (m *Metrics) Checkpoint(id int64) {
	if m == nil {
		return
	}
	m.checkpoint.Set(float64(id))
}

func (m *Metrics) Remaining(n int) {
	if m == nil {
		return
	}
	m.remaining.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
