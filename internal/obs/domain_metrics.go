package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// InvoicesFinalizedTotal counts invoices committed by the finalize workflow.
	InvoicesFinalizedTotal prometheus.Counter
	// FinalizeFailuresTotal counts rejected finalize attempts by error code.
	FinalizeFailuresTotal *prometheus.CounterVec
	// InvoiceNetTotal records the net amount of finalized invoices.
	InvoiceNetTotal prometheus.Histogram
	// FinalizeDuration records finalize latency in milliseconds.
	FinalizeDuration prometheus.Histogram
	// DraftOperationsTotal counts draft mutations by operation.
	DraftOperationsTotal *prometheus.CounterVec
	// StockRestocksTotal counts restock operations.
	StockRestocksTotal prometheus.Counter
	// LedgerExportsTotal counts ledger rows written by the worker, by result.
	LedgerExportsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		InvoicesFinalizedTotal = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_finalized_total",
			Help:      "Number of invoices finalized.",
		}))
		FinalizeFailuresTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalize_failures_total",
			Help:      "Finalize attempts rejected, by error code.",
		}, []string{"code"}))
		InvoiceNetTotal = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invoice_net_total",
			Help:      "Net total of finalized invoices.",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}))
		FinalizeDuration = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "finalize_duration_ms",
			Help:      "Finalize latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}))
		DraftOperationsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draft_operations_total",
			Help:      "Draft invoice mutations, by operation.",
		}, []string{"op"}))
		StockRestocksTotal = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_restocks_total",
			Help:      "Restock operations applied to the catalog.",
		}))
		LedgerExportsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_exports_total",
			Help:      "Ledger export task outcomes.",
		}, []string{"result"}))
	})
}

// The helpers below are safe to call before MustRegisterDomainMetrics; they do nothing then.

// ObserveFinalized records a committed invoice.
func ObserveFinalized(net float64, durationMillis float64) {
	if InvoicesFinalizedTotal != nil {
		InvoicesFinalizedTotal.Inc()
	}
	if InvoiceNetTotal != nil {
		InvoiceNetTotal.Observe(net)
	}
	if FinalizeDuration != nil {
		FinalizeDuration.Observe(durationMillis)
	}
}

// ObserveFinalizeFailure records a rejected finalize attempt.
func ObserveFinalizeFailure(code string) {
	if FinalizeFailuresTotal != nil {
		FinalizeFailuresTotal.WithLabelValues(code).Inc()
	}
}

// ObserveDraftOp records a draft mutation.
func ObserveDraftOp(op string) {
	if DraftOperationsTotal != nil {
		DraftOperationsTotal.WithLabelValues(op).Inc()
	}
}

// ObserveRestock records a restock.
func ObserveRestock() {
	if StockRestocksTotal != nil {
		StockRestocksTotal.Inc()
	}
}

// ObserveLedgerExport records a ledger export outcome ("ok" or "error").
func ObserveLedgerExport(result string) {
	if LedgerExportsTotal != nil {
		LedgerExportsTotal.WithLabelValues(result).Inc()
	}
}
