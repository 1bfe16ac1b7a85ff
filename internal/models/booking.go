package models

import "time"

// Booking is a reservation of a cabin for the half-open date range [Start, End).
type Booking struct {
	ID         int64              `json:"id"`
	CabinID    int64              `json:"cabin_id"`
	PersonID   int64              `json:"person_id"`
	Start      time.Time          `json:"start"`
	End        time.Time          `json:"end"`
	BookedAt   time.Time          `json:"booked_at"`
	Activities []AttachedActivity `json:"activities"`
	Invoice    *Invoice           `json:"invoice,omitempty"`
	Version    int64              `json:"version"`
}

// ActivityIDs returns the referenced activity ids in attachment order.
func (b *Booking) ActivityIDs() []int64 {
	ids := make([]int64, 0, len(b.Activities))
	for _, a := range b.Activities {
		ids = append(ids, a.ActivityID)
	}
	return ids
}

// AttachedActivity is an optional add-on scheduled within a booking.
type AttachedActivity struct {
	ID          int64     `json:"id"`
	BookingID   int64     `json:"booking_id"`
	ActivityID  int64     `json:"activity_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// Invoice is recreated on every booking edit; it is never patched in place.
type Invoice struct {
	ID        int64     `json:"id"`
	BookingID int64     `json:"booking_id"`
	Total     Money     `json:"total"`
	ExpiresAt time.Time `json:"expires_at"`
	Paid      bool      `json:"paid"`
	CreatedAt time.Time `json:"created_at"`
}
