// Package metrics defines the Prometheus collectors for table storage.
// A nil *Metrics records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors, labeled by table name.
type Metrics struct {
	BlockReadsTotal  *prometheus.CounterVec
	BlockWritesTotal *prometheus.CounterVec
	BlockBytesTotal  *prometheus.CounterVec
	CorruptionsTotal *prometheus.CounterVec
	CommitsTotal     *prometheus.CounterVec
	CommitDuration   *prometheus.HistogramVec
	OpenCursors      *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg when reg is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BlockReadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glass_block_reads_total",
				Help: "Total number of blocks read by table.",
			},
			[]string{"table"},
		),
		BlockWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glass_block_writes_total",
				Help: "Total number of blocks written by table.",
			},
			[]string{"table"},
		),
		BlockBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glass_block_bytes_total",
				Help: "Stored block bytes moved by table and direction (read, write).",
			},
			[]string{"table", "direction"},
		),
		CorruptionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glass_corruptions_total",
				Help: "Total number of corrupt blocks detected by table.",
			},
			[]string{"table"},
		),
		CommitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glass_commits_total",
				Help: "Total commits by table and status (ok, error).",
			},
			[]string{"table", "status"},
		),
		CommitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "glass_commit_duration_seconds",
				Help:    "Commit latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"table"},
		),
		OpenCursors: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "glass_open_cursors",
				Help: "Number of cursors currently pinning a revision.",
			},
			[]string{"table"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.BlockReadsTotal,
			m.BlockWritesTotal,
			m.BlockBytesTotal,
			m.CorruptionsTotal,
			m.CommitsTotal,
			m.CommitDuration,
			m.OpenCursors,
		)
	}
	return m
}

func (m *Metrics) BlockRead(table string, stored int) {
	if m == nil {
		return
	}
	m.BlockReadsTotal.WithLabelValues(table).Inc()
	m.BlockBytesTotal.WithLabelValues(table, "read").Add(float64(stored))
}

func (m *Metrics) BlockWrite(table string, stored int) {
	if m == nil {
		return
	}
	m.BlockWritesTotal.WithLabelValues(table).Inc()
	m.BlockBytesTotal.WithLabelValues(table, "write").Add(float64(stored))
}

func (m *Metrics) Corruption(table string) {
	if m == nil {
		return
	}
	m.CorruptionsTotal.WithLabelValues(table).Inc()
}

// Commit records one commit attempt that started at start.
func (m *Metrics) Commit(table string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.CommitsTotal.WithLabelValues(table, status).Inc()
	m.CommitDuration.WithLabelValues(table).Observe(time.Since(start).Seconds())
}

func (m *Metrics) CursorOpened(table string) {
	if m == nil {
		return
	}
	m.OpenCursors.WithLabelValues(table).Inc()
}

func (m *Metrics) CursorClosed(table string) {
	if m == nil {
		return
	}
	m.OpenCursors.WithLabelValues(table).Dec()
}
