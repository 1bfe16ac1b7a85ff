package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint", 200)
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequests.WithLabelValues("test_endpoint", "200")))
}

func TestBookingMetrics(t *testing.T) {
	before := testutil.ToFloat64(bookingOperations.WithLabelValues("create", "conflict"))
	ObserveBookingOperation("create", "conflict", time.Now())
	assert.Equal(t, before+1, testutil.ToFloat64(bookingOperations.WithLabelValues("create", "conflict")))

	IncConflict("narrow")
	IncConflict("narrow")
	assert.Equal(t, 2.0, testutil.ToFloat64(availabilityConflicts.WithLabelValues("narrow")))
}
