// README: Prometheus counters for booking decisions, cascades and lifecycle jobs.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carpool",
			Name:      "booking_transitions_total",
			Help:      "Count of booking state changes by resulting status.",
		},
		[]string{"status"},
	)

	capacityRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "carpool",
			Name:      "capacity_rejections_total",
			Help:      "Count of accepts rejected because the trip was full.",
		},
	)

	tripCascades = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "carpool",
			Name:      "trip_cascade_cancellations_total",
			Help:      "Count of trips canceled with their bookings.",
		},
	)

	jobRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carpool",
			Name:      "lifecycle_job_rows_total",
			Help:      "Rows mutated by lifecycle jobs.",
		},
		[]string{"job"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingTransitions, capacityRejections, tripCascades, jobRows)
	})
}

func IncBookingTransition(status string) {
	bookingTransitions.WithLabelValues(status).Inc()
}

func AddBookingTransitions(status string, n int64) {
	if n > 0 {
		bookingTransitions.WithLabelValues(status).Add(float64(n))
	}
}

func IncCapacityRejection() {
	capacityRejections.Inc()
}

func IncTripCascade() {
	tripCascades.Inc()
}

func AddJobRows(job string, n int64) {
	if n > 0 {
		jobRows.WithLabelValues(job).Add(float64(n))
	}
}
