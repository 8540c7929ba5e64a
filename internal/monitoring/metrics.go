package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlements_total",
			Help: "Settlement callbacks applied, by outcome",
		},
		[]string{"outcome"},
	)

	DuplicateCallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duplicate_callbacks_total",
			Help: "Callbacks acked without side effects because the record was already terminal",
		},
	)

	OversellFlaggedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oversell_flagged_total",
			Help: "Paid settlements that lost the inventory race and were flagged for manual reconciliation",
		},
	)

	RedemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redemptions_total",
			Help: "Redemption attempts, by result",
		},
		[]string{"result"},
	)

	WithdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "withdrawals_total",
			Help: "Withdrawal requests and decisions, by status",
		},
		[]string{"status"},
	)
)
