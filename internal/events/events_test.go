package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cabinres/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	callCount := 0
	bus.Subscribe("test_event", func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	require.NoError(t, bus.PublishJSON("test_event", map[string]string{"foo": "bar"}))
	assert.Equal(t, 1, callCount)
	require.NotNil(t, received)
	assert.Equal(t, "test_event", received.Type)
	assert.False(t, received.CreatedAt.IsZero())

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(received.Payload, &decoded))
	assert.Equal(t, "bar", decoded["foo"])
}

func TestEventBus_HandlerErrorsJoined(t *testing.T) {
	bus := NewEventBus()
	first, second := errors.New("first"), errors.New("second")
	calls := 0

	bus.Subscribe("event", func(*Event) error { calls++; return first })
	bus.Subscribe("event", func(*Event) error { calls++; return second })

	err := bus.Publish(&Event{Type: "event"})
	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
}

func TestEventBus_NoSubscribersAndNilBus(t *testing.T) {
	bus := NewEventBus()
	assert.NoError(t, bus.Publish(&Event{Type: "nothing"}))

	var nilBus *EventBus
	assert.NoError(t, nilBus.PublishJSON("event", struct{}{}))
}

func TestNewBookingPayload(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := &models.Booking{
		ID:       7,
		CabinID:  10,
		PersonID: 2,
		Start:    start,
		End:      start.AddDate(0, 0, 3),
		Version:  2,
		Activities: []models.AttachedActivity{
			{ActivityID: 100}, {ActivityID: 101},
		},
		Invoice: &models.Invoice{Total: 35000, Paid: true},
	}
	actor := models.Actor{PersonID: 1, Roles: []string{models.RoleAdministrator}}

	p := NewBookingPayload(b, actor)
	assert.Equal(t, "2024-01-01", p.Start)
	assert.Equal(t, "2024-01-04", p.End)
	assert.Equal(t, []int64{100, 101}, p.ActivityIDs)
	assert.Equal(t, models.Money(35000), p.Total)
	assert.True(t, p.Paid)
	assert.Equal(t, int64(1), p.ChangedByID)
}

func TestLogHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	bus := NewEventBus()
	bus.SubscribeAll(LogHandler(&logger))

	require.NoError(t, bus.PublishJSON(EventBookingCancelled, BookingEventPayload{BookingID: 5}))
	assert.Contains(t, buf.String(), `"event":"booking_cancelled"`)
	assert.Contains(t, buf.String(), `"booking_id":5`)

	require.NoError(t, bus.PublishJSON(EventInvoiceSettled, BookingEventPayload{BookingID: 6, Paid: true}))
	assert.Contains(t, buf.String(), `"event":"invoice_settled"`)
}
