// Package metrics exposes Prometheus instrumentation for the billing engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StoreReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_store_reads_total",
			Help: "Record set reads per backend and set name",
		},
		[]string{"backend", "set"},
	)

	StoreWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_store_writes_total",
			Help: "Record set writes per backend and set name",
		},
		[]string{"backend", "set"},
	)

	StoreConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_store_conflicts_total",
			Help: "Writes rejected for a stale revision token, per backend",
		},
		[]string{"backend"},
	)

	BillComputeSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "billing_bill_compute_seconds",
			Help:    "Duration of per-apartment bill computation",
			Buckets: prometheus.DefBuckets,
		},
	)

	QuarantinedRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "billing_quarantined_rows",
			Help: "Rows dropped at the last session load per record set",
		},
		[]string{"set"},
	)
)
