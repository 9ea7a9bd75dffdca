package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeConfirmed   = "confirmed"
	outcomeRejected    = "rejected"
	outcomeFailed      = "failed"
	outcomeUnconfirmed = "unconfirmed"
)

var (
	transactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Ledger write transactions by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	confirmationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_confirmation_seconds",
			Help:    "Time from broadcast to mined receipt",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
)

// RegisterMetrics adds the ledger collectors to reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(transactionsTotal, confirmationSeconds)
}
