package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	reservationCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "reservation_created_total",
			Help:      "Count of reservations created by commitment mode.",
		},
		[]string{"mode"},
	)

	reservationConflict = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "reservation_conflict_total",
			Help:      "Count of reservation writes rejected by the overlap check.",
		},
	)

	reservationCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "reservation_cancelled_total",
			Help:      "Count of reservations cancelled by users or operators.",
		},
	)

	paymentCaptured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "payment_captured_total",
			Help:      "Count of successful payment captures by commitment mode.",
		},
		[]string{"mode"},
	)

	paymentFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "payment_failed_total",
			Help:      "Count of failed payments by reason.",
		},
		[]string{"reason"},
	)

	processingExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "processing_expired_total",
			Help:      "Count of stuck processing reservations expired by the sweep.",
		},
	)

	payoutOutstanding = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "courtbook",
			Name:      "payout_outstanding",
			Help:      "Outstanding venue payable not covered by paid-out batches.",
		},
		[]string{"venue_id"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtbook",
			Name:      "http_requests_total",
			Help:      "Count of API requests by handler.",
		},
		[]string{"handler"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			reservationCreated, reservationConflict, reservationCancelled,
			paymentCaptured, paymentFailed, processingExpired,
			payoutOutstanding, httpRequests,
		)
	})
}

func IncReservationCreated(mode string) {
	reservationCreated.WithLabelValues(mode).Inc()
}

func IncReservationConflict() {
	reservationConflict.Inc()
}

func IncReservationCancelled() {
	reservationCancelled.Inc()
}

func IncPaymentCaptured(mode string) {
	paymentCaptured.WithLabelValues(mode).Inc()
}

func IncPaymentFailed(reason string) {
	paymentFailed.WithLabelValues(reason).Inc()
}

func IncProcessingExpired() {
	processingExpired.Inc()
}

func SetPayoutOutstanding(venueID int64, amount int64) {
	payoutOutstanding.WithLabelValues(strconv.FormatInt(venueID, 10)).Set(float64(amount))
}

func IncHTTP(handler string) {
	httpRequests.WithLabelValues(handler).Inc()
}
