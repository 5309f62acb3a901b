// Package metrics provides Prometheus metrics for the ledger node.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Transaction intake.
	TxTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "tx",
		Name:      "total",
		Help:      "Transactions executed, by instruction and result code.",
	}, []string{"instruction", "result"}) // result is "ok" or a ledger error kind
	TxRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "tx",
		Name:      "rejected_total",
		Help:      "Transactions refused before execution.",
	}, []string{"reason"}) // "malformed", "signature", "replay", "stale"
	TxDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bazaar",
		Subsystem: "tx",
		Name:      "duration_seconds",
		Help:      "Time spent applying a transaction to the ledger.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{"instruction"})

	// Ledger flows.
	BandwidthMBTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "ledger",
		Name:      "bandwidth_mb_total",
		Help:      "Bandwidth reported through contribute since process start.",
	})
	TokensMintedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "ledger",
		Name:      "tokens_minted_total",
		Help:      "Tokens minted since process start.",
	})
	TokensClaimedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "ledger",
		Name:      "tokens_claimed_total",
		Help:      "Tokens claimed since process start.",
	})
	SettlementTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "ledger",
		Name:      "settlement_usdc_base_units_total",
		Help:      "Settlement owed by claims since process start, in USDC base units.",
	})
	Users = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bazaar",
		Subsystem: "ledger",
		Name:      "users",
		Help:      "Registered users according to the global aggregate.",
	})

	// QUIC ingress.
	IngressConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bazaar",
		Subsystem: "ingress",
		Name:      "connections",
		Help:      "Open QUIC ingress connections.",
	})
	IngressStreamsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bazaar",
		Subsystem: "ingress",
		Name:      "streams_total",
		Help:      "Transactions answered over QUIC, by outcome.",
	}, []string{"result"}) // "ok", "rejected", "too_large"
)

func init() {
	prometheus.MustRegister(
		TxTotal,
		TxRejected,
		TxDuration,

		BandwidthMBTotal,
		TokensMintedTotal,
		TokensClaimedTotal,
		SettlementTotal,
		Users,

		IngressConnections,
		IngressStreamsTotal,
	)
}
