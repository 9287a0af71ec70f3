// Package metrics exposes Prometheus collectors for image operations and
// free space.
package metrics

import (
	"net/http"
	"strings"

	"github.com/jmgilman/go/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	extsimple "github.com/pilat/go-extsimple"
)

const namespace = "extsimple"

// ResultOK is the result label of a successful operation.
const ResultOK = "ok"

// Metrics holds all Prometheus metrics of one image session. It implements
// extsimple.Recorder.
type Metrics struct {
	// Operation metrics
	Operations *prometheus.CounterVec

	// Space metrics
	FreeBlocks prometheus.Gauge
	FreeInodes prometheus.Gauge

	// Storage metrics
	Saves      *prometheus.CounterVec
	ImageBytes prometheus.Gauge

	registry *prometheus.Registry
}

var _ extsimple.Recorder = (*Metrics)(nil)

// New creates a collector set on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of image operations by outcome",
			},
			[]string{"op", "result"},
		),
		FreeBlocks: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "free_blocks",
				Help:      "Free data blocks after the last operation",
			},
		),
		FreeInodes: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "free_inodes",
				Help:      "Free inodes after the last operation",
			},
		),
		Saves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "saves_total",
				Help:      "Total number of image saves by outcome",
			},
			[]string{"result"},
		),
		ImageBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stored_image_bytes",
				Help:      "Size of the image as last written to storage",
			},
		),
		registry: reg,
	}
}

// Observe records one operation outcome and the counters left behind.
func (m *Metrics) Observe(op string, err error, info extsimple.Info) {
	m.Operations.WithLabelValues(op, Result(err)).Inc()
	m.SetSpace(info)
}

// SetSpace updates the free space gauges.
func (m *Metrics) SetSpace(info extsimple.Info) {
	m.FreeBlocks.Set(float64(info.FreeBlocksCount))
	m.FreeInodes.Set(float64(info.FreeInodesCount))
}

// RecordSave records a write of the image to storage.
func (m *Metrics) RecordSave(size int, err error) {
	m.Saves.WithLabelValues(Result(err)).Inc()
	if err == nil {
		m.ImageBytes.Set(float64(size))
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Result maps an operation error to its label value: "ok" or the lower
// case error code.
func Result(err error) string {
	if err == nil {
		return ResultOK
	}
	return strings.ToLower(string(errors.GetCode(err)))
}
