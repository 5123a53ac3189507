// Package metrics counts chunk store activity with prometheus collectors and
// writes them to a node-exporter textfile.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"chunkvault/internal/cv"
)

const metricsNamespace = "chunkvault"

// Collector is a prometheus.Collector that also implements cv.Metrics.
type Collector struct {
	chunksUploaded   prometheus.Counter
	bytesUploaded    prometheus.Counter
	chunksChecked    *prometheus.CounterVec
	bytesChecked     prometheus.Counter
	snapshotsWritten prometheus.Counter
	retries          prometheus.Counter
	lastSuccess      *prometheus.GaugeVec
}

var _ cv.Metrics = (*Collector)(nil)

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		chunksUploaded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "chunks_uploaded_total",
				Help:      "The number of chunks written to the backend.",
			},
		),
		bytesUploaded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "uploaded_bytes_total",
				Help:      "The number of ciphertext bytes written to the backend.",
			},
		),
		chunksChecked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "chunks_checked_total",
				Help:      "The number of chunks downloaded and verified.",
			}, []string{"result"},
		),
		bytesChecked: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "checked_bytes_total",
				Help:      "The number of bytes downloaded for verification.",
			},
		),
		snapshotsWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "snapshots_written_total",
				Help:      "The number of snapshots saved.",
			},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "backend_retries_total",
				Help:      "The number of backend calls repeated after a transient error.",
			},
		),
		lastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful operation.",
			}, []string{"operation"},
		),
	}
}

func (c *Collector) ChunkUploaded(bytes int64) {
	c.chunksUploaded.Inc()
	c.bytesUploaded.Add(float64(bytes))
}

func (c *Collector) ChunkChecked(bytes int64, ok bool) {
	result := "ok"
	if !ok {
		result = "bad"
	}
	c.chunksChecked.WithLabelValues(result).Inc()
	c.bytesChecked.Add(float64(bytes))
}

func (c *Collector) SnapshotWritten() { c.snapshotsWritten.Inc() }
func (c *Collector) Retried()         { c.retries.Inc() }

// Succeeded records when an operation (backup, check, ...) last completed without errors.
func (c *Collector) Succeeded(operation string, unixSeconds int64) {
	c.lastSuccess.WithLabelValues(operation).Set(float64(unixSeconds))
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.chunksUploaded.Describe(ch)
	c.bytesUploaded.Describe(ch)
	c.chunksChecked.Describe(ch)
	c.bytesChecked.Describe(ch)
	c.snapshotsWritten.Describe(ch)
	c.retries.Describe(ch)
	c.lastSuccess.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.chunksUploaded.Collect(ch)
	c.bytesUploaded.Collect(ch)
	c.chunksChecked.Collect(ch)
	c.bytesChecked.Collect(ch)
	c.snapshotsWritten.Collect(ch)
	c.retries.Collect(ch)
	c.lastSuccess.Collect(ch)
}

// WriteToTextfile writes the collector's current values to path in the text
// exposition format. The write is atomic, so a scraping node exporter never sees half a file.
func (c *Collector) WriteToTextfile(path string) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
