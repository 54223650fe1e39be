package dsp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricBlocksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dsp",
		Subsystem: "engine",
		Name:      "blocks_processed_total",
		Help:      "Total number of blocks processed",
	})
	metricRowsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dsp",
		Subsystem: "engine",
		Name:      "rows_processed_total",
		Help:      "Total number of event rows processed",
	})
	metricKernelFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dsp",
		Subsystem: "engine",
		Name:      "kernel_failures_total",
		Help:      "Total number of kernel failures recorded in the ledger",
	})
	metricInvalidRows = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dsp",
		Subsystem: "engine",
		Name:      "invalid_rows_total",
		Help:      "Total number of rows marked with the invalid sentinel",
	})
)
