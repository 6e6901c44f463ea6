// Package metrics provides Prometheus-backed observability for the scan layer.
//
// One Collector is created per component (usually per connector kind) and
// records rows, bytes, latency and open-source gauges. Metrics are registered
// once through promauto; creating two collectors with the same name reuses
// the underlying series via labels.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scanRowsRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "petrel_scan_rows_read_total",
		Help: "Rows returned by data sources after filtering",
	}, []string{"connector"})

	scanRawRowsRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "petrel_scan_raw_rows_read_total",
		Help: "Rows read from backends before filtering",
	}, []string{"connector"})

	scanBytesRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "petrel_scan_bytes_read_total",
		Help: "Bytes read from backends",
	}, []string{"connector"})

	openDataSources = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "petrel_scan_open_data_sources",
		Help: "Data sources currently open",
	}, []string{"connector"})

	getNextLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "petrel_scan_get_next_seconds",
		Help:    "Latency of DataSource GetNext calls",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"connector"})

	morselQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "petrel_scan_morsel_queue_depth",
		Help: "Morsels remaining in a scan's morsel queue",
	}, []string{"connector"})
)

// Collector records scan metrics for one connector kind.
type Collector struct {
	name      string
	startTime time.Time
	mu        sync.RWMutex
	counts    map[string]int64
}

// NewCollector creates a metrics collector labeled with the component name.
func NewCollector(name string) *Collector {
	return &Collector{
		name:      name,
		startTime: time.Now(),
		counts:    make(map[string]int64),
	}
}

// Name returns the component name the collector was created with.
func (c *Collector) Name() string { return c.name }

// RecordRowsRead records filtered and raw row counts for one data source.
func (c *Collector) RecordRowsRead(numRows, rawRows int64) {
	scanRowsRead.WithLabelValues(c.name).Add(float64(numRows))
	scanRawRowsRead.WithLabelValues(c.name).Add(float64(rawRows))
	c.bump("rows_read", numRows)
}

// RecordBytesRead records bytes pulled from the backend.
func (c *Collector) RecordBytesRead(n int64) {
	scanBytesRead.WithLabelValues(c.name).Add(float64(n))
	c.bump("bytes_read", n)
}

// DataSourceOpened marks one more open data source.
func (c *Collector) DataSourceOpened() {
	openDataSources.WithLabelValues(c.name).Inc()
	c.bump("sources_opened", 1)
}

// DataSourceClosed marks one fewer open data source.
func (c *Collector) DataSourceClosed() {
	openDataSources.WithLabelValues(c.name).Dec()
}

// ObserveGetNext records the latency of one GetNext call.
func (c *Collector) ObserveGetNext(d time.Duration) {
	getNextLatency.WithLabelValues(c.name).Observe(d.Seconds())
}

// SetQueueDepth records the remaining morsel count for this scan.
func (c *Collector) SetQueueDepth(depth int) {
	morselQueueDepth.WithLabelValues(c.name).Set(float64(depth))
}

func (c *Collector) bump(key string, delta int64) {
	c.mu.Lock()
	c.counts[key] += delta
	c.mu.Unlock()
}

// Snapshot returns the collector's local counters, for logging and tests.
func (c *Collector) Snapshot() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}
