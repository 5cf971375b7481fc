// Package metrics exposes capture counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for one capture process.
// All recording methods are safe on a nil receiver, which disables
// collection entirely.
type Metrics struct {
	registry *prometheus.Registry

	watts         prometheus.Gauge
	up            prometheus.Gauge
	samples       prometheus.Counter
	readFailures  prometheus.Counter
	storeFailures prometheus.Counter
}

// New returns a Metrics set registered on its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		watts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "powerlive_watts",
			Help: "Most recent power reading in watts.",
		}),
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "powerlive_up",
			Help: "1 while the sampling loop is running.",
		}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "powerlive_samples_total",
			Help: "Samples read successfully from the device.",
		}),
		readFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "powerlive_read_failures_total",
			Help: "Device reads that failed and were skipped.",
		}),
		storeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "powerlive_store_failures_total",
			Help: "Sample persistence attempts that failed.",
		}),
	}
	m.registry.MustRegister(m.watts, m.up, m.samples, m.readFailures, m.storeFailures)
	return m
}

// RecordSample notes one successful device read.
func (m *Metrics) RecordSample(watts float64) {
	if m == nil {
		return
	}
	m.watts.Set(watts)
	m.samples.Inc()
}

// RecordReadFailure notes a skipped tick.
func (m *Metrics) RecordReadFailure() {
	if m == nil {
		return
	}
	m.readFailures.Inc()
}

// RecordStoreFailure notes a failed persistence append.
func (m *Metrics) RecordStoreFailure() {
	if m == nil {
		return
	}
	m.storeFailures.Inc()
}

// SetUp flags whether the sampling loop is running.
func (m *Metrics) SetUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.up.Set(1)
	} else {
		m.up.Set(0)
	}
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is canceled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
