// Package metrics exposes Prometheus instruments for inventory and
// settlement.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Shivanand-hulikatti/venue-ticketing/internal/ledger"
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultPending = "pending"
)

var (
	ticketsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_created_total",
			Help: "Total ticket creation attempts by result",
		},
		[]string{"result"},
	)

	purchases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchases_total",
			Help: "Total purchase attempts by result",
		},
		[]string{"result"},
	)

	ledgerTransferDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_transfer_duration_seconds",
			Help:    "Duration of ledger transfers",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
	)

	// Unlabelled: one series per owner would grow with every venue opened.
	unsoldTickets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "unsold_tickets",
			Help: "Current number of unsold tickets across all venues",
		},
	)
)

// Outcome maps an error to a result label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ledger.ErrOutcomeUnknown):
		return ResultPending
	default:
		return ResultFailure
	}
}

// TrackTicketCreated records a ticket creation attempt.
func TrackTicketCreated(err error) {
	ticketsCreated.WithLabelValues(Outcome(err)).Inc()
}

// TrackPurchase records a purchase attempt.
func TrackPurchase(err error) {
	purchases.WithLabelValues(Outcome(err)).Inc()
}

// TrackLedgerTransfer records how long a ledger transfer took.
func TrackLedgerTransfer(d time.Duration) {
	ledgerTransferDuration.Observe(d.Seconds())
}

// SetUnsold records the total unsold ticket count.
func SetUnsold(count int) {
	unsoldTickets.Set(float64(count))
}

// AddUnsold adjusts the total unsold ticket count by delta.
func AddUnsold(delta int) {
	unsoldTickets.Add(float64(delta))
}
