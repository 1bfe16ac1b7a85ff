package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cabinres/internal/models"

	"github.com/rs/zerolog"
)

const (
	EventBookingCreated   = "booking_created"
	EventBookingModified  = "booking_modified"
	EventBookingCancelled = "booking_cancelled"
	EventInvoiceSettled   = "invoice_settled"
)

// BookingEventPayload describes the booking snapshot handed to event consumers.
type BookingEventPayload struct {
	BookingID   int64        `json:"booking_id"`
	CabinID     int64        `json:"cabin_id"`
	PersonID    int64        `json:"person_id"`
	Start       string       `json:"start"`
	End         string       `json:"end"`
	ActivityIDs []int64      `json:"activity_ids,omitempty"`
	Total       models.Money `json:"total"`
	Paid        bool         `json:"paid"`
	Version     int64        `json:"version"`
	ChangedByID int64        `json:"changed_by_id,omitempty"`
	ChangedBy   []string     `json:"changed_by,omitempty"`
}

// NewBookingPayload snapshots b as seen after the change made by actor.
func NewBookingPayload(b *models.Booking, actor models.Actor) BookingEventPayload {
	p := BookingEventPayload{
		BookingID:   b.ID,
		CabinID:     b.CabinID,
		PersonID:    b.PersonID,
		Start:       models.FormatDay(b.Start),
		End:         models.FormatDay(b.End),
		ActivityIDs: b.ActivityIDs(),
		Version:     b.Version,
		ChangedByID: actor.PersonID,
		ChangedBy:   actor.Roles,
	}
	if b.Invoice != nil {
		p.Total = b.Invoice.Total
		p.Paid = b.Invoice.Paid
	}
	return p
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Every handler runs even if an earlier
// one fails; the failures are joined.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, fmt.Errorf("%s handler: %w", event.Type, err))
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
}

// LogHandler writes every event it receives to the audit log.
func LogHandler(logger *zerolog.Logger) EventHandler {
	return func(event *Event) error {
		logger.Info().
			Str("event", event.Type).
			RawJSON("payload", event.Payload).
			Time("at", event.CreatedAt).
			Msg("booking event")
		return nil
	}
}

// SubscribeAll registers handler for every booking event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	for _, t := range []string{EventBookingCreated, EventBookingModified, EventBookingCancelled, EventInvoiceSettled} {
		b.Subscribe(t, handler)
	}
}
