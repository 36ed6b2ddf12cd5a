package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SwapsTotal counts swap lifecycle transitions by resulting status
	SwapsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolver_swaps_total",
			Help: "Total number of swap status transitions",
		},
		[]string{"status"},
	)

	// FulfillmentDuration tracks time from swap creation to pool fulfillment
	FulfillmentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resolver_fulfillment_duration_seconds",
			Help:    "Time from swap creation to destination HTLC funding",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"destination_chain"},
	)

	// RelayClaimsTotal counts gasless claims submitted by the relay
	RelayClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolver_relay_claims_total",
			Help: "Total number of gasless claims relayed",
		},
		[]string{"status"},
	)

	// PoolLiquidity tracks the pool's available balance by chain and token
	PoolLiquidity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "resolver_pool_liquidity",
			Help: "Pool liquidity by chain, token and bucket (available, reserved, total)",
		},
		[]string{"chain", "token", "bucket"},
	)

	// TransactionsSent counts transactions sent to each chain
	TransactionsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolver_transactions_sent_total",
			Help: "Total number of transactions sent",
		},
		[]string{"chain", "operation", "status"},
	)

	// ErrorsTotal counts errors by component and category
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolver_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "category"},
	)

	// GasUsed tracks gas consumed by mined transactions per chain
	GasUsed = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resolver_gas_used",
			Help:    "Gas used by mined transactions",
			Buckets: prometheus.ExponentialBuckets(21000, 2, 8),
		},
		[]string{"chain"},
	)

	// ExpiredSwaps counts swaps that hit their timelock without settlement
	ExpiredSwaps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resolver_expired_swaps_total",
			Help: "Total number of swaps expired by the sweep",
		},
	)
)
