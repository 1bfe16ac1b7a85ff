package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cabinres"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)

	bookingOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_operations_total",
			Help:      "Booking lifecycle operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	bookingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "booking_operation_duration_seconds",
			Help:      "Latency of booking lifecycle operations, lock wait included.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	availabilityConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_conflicts_total",
			Help:      "Requests rejected because the cabin was not available.",
		},
		[]string{"rule"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookingOperations, bookingDuration, availabilityConflicts)
	})
}

// IncHTTP counts a served request.
func IncHTTP(endpoint string, code int) {
	httpRequests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
}

// ObserveBookingOperation records the outcome and latency of a lifecycle operation.
func ObserveBookingOperation(operation, outcome string, started time.Time) {
	bookingOperations.WithLabelValues(operation, outcome).Inc()
	bookingDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// IncConflict counts an availability rejection under the given rule.
func IncConflict(rule string) {
	availabilityConflicts.WithLabelValues(rule).Inc()
}
