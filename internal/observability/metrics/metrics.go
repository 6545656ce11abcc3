package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	metricPrefix = "backoffice_"

	// ResultSuccess labels a successful operation.
	ResultSuccess = "success"
	// ResultError labels a failed operation.
	ResultError = "error"
)

var (
	registerOnce sync.Once

	saleOpsTotal   *prometheus.CounterVec
	saleOpsLatency *prometheus.HistogramVec

	settlementTotal   *prometheus.CounterVec
	settlementLatency *prometheus.HistogramVec

	expenseOpsTotal   *prometheus.CounterVec
	expenseOpsLatency *prometheus.HistogramVec

	stockOpsTotal   *prometheus.CounterVec
	stockOpsLatency *prometheus.HistogramVec

	insufficientStockTotal prometheus.Counter
)

// Init registers engine metrics and DB-backed gauges.
func Init(db *sql.DB, logger zerolog.Logger) {
	registerOnce.Do(func() {
		saleOpsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sale_operations_total",
				Help: "Total sale operations by op and result",
			},
			[]string{"op", "result"},
		)
		saleOpsLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "sale_operation_latency_seconds",
				Help:    "Sale operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op", "result"},
		)

		settlementTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_total",
				Help: "Total settlement operations by obligation kind and result",
			},
			[]string{"kind", "result"},
		)
		settlementLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_latency_seconds",
				Help:    "Settlement latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind", "result"},
		)

		expenseOpsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "expense_operations_total",
				Help: "Total expense operations by op and result",
			},
			[]string{"op", "result"},
		)
		expenseOpsLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "expense_operation_latency_seconds",
				Help:    "Expense operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op", "result"},
		)

		stockOpsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "stock_operations_total",
				Help: "Total stock operations by op and result",
			},
			[]string{"op", "result"},
		)
		stockOpsLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "stock_operation_latency_seconds",
				Help:    "Stock operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op", "result"},
		)

		insufficientStockTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "insufficient_stock_total",
				Help: "Total reservations rejected for insufficient stock",
			},
		)

		prometheus.MustRegister(
			saleOpsTotal,
			saleOpsLatency,
			settlementTotal,
			settlementLatency,
			expenseOpsTotal,
			expenseOpsLatency,
			stockOpsTotal,
			stockOpsLatency,
			insufficientStockTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveSaleOp records a sale operation duration and result.
func ObserveSaleOp(op, result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if saleOpsTotal != nil {
		saleOpsTotal.WithLabelValues(op, result).Inc()
	}
	if saleOpsLatency != nil {
		saleOpsLatency.WithLabelValues(op, result).Observe(duration.Seconds())
	}
}

// ObserveSettlement records a settlement duration by obligation kind.
func ObserveSettlement(kind, result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if settlementTotal != nil {
		settlementTotal.WithLabelValues(kind, result).Inc()
	}
	if settlementLatency != nil {
		settlementLatency.WithLabelValues(kind, result).Observe(duration.Seconds())
	}
}

// ObserveExpenseOp records an expense operation duration and result.
func ObserveExpenseOp(op, result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if expenseOpsTotal != nil {
		expenseOpsTotal.WithLabelValues(op, result).Inc()
	}
	if expenseOpsLatency != nil {
		expenseOpsLatency.WithLabelValues(op, result).Observe(duration.Seconds())
	}
}

// ObserveStockOp records a stock operation duration and result.
func ObserveStockOp(op, result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if stockOpsTotal != nil {
		stockOpsTotal.WithLabelValues(op, result).Inc()
	}
	if stockOpsLatency != nil {
		stockOpsLatency.WithLabelValues(op, result).Observe(duration.Seconds())
	}
}

// IncInsufficientStock increments the rejected-reservation counter.
func IncInsufficientStock() {
	if insufficientStockTotal != nil {
		insufficientStockTotal.Inc()
	}
}
