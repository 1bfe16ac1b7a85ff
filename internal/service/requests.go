package service

import (
	"time"

	"cabinres/internal/models"
)

// ActivityRequest attaches one catalog activity at the given moment.
type ActivityRequest struct {
	ActivityID  int64     `json:"activity_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

type CreateRequest struct {
	CabinID    int64             `json:"cabin_id"`
	PersonID   int64             `json:"person_id"`
	Start      time.Time         `json:"start"`
	End        time.Time         `json:"end"`
	Activities []ActivityRequest `json:"activities"`
}

// ModifyRequest replaces dates and the whole activity set of a booking. A non-zero Version
// must match the stored booking.
type ModifyRequest struct {
	BookingID  int64             `json:"booking_id"`
	Start      time.Time         `json:"start"`
	End        time.Time         `json:"end"`
	Activities []ActivityRequest `json:"activities"`
	Version    int64             `json:"version,omitempty"`
}

type QuoteRequest struct {
	CabinID    int64             `json:"cabin_id"`
	Start      time.Time         `json:"start"`
	End        time.Time         `json:"end"`
	Activities []ActivityRequest `json:"activities"`
}

type ReportRequest struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	ResortIDs []int64   `json:"resort_ids"`
}

// AvailabilityResult is the outcome of a read-only availability check.
type AvailabilityResult struct {
	CabinID   int64     `json:"cabin_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
	Rule      string    `json:"rule"`
	Conflicts []int64   `json:"conflicts,omitempty"`
}

func attach(reqs []ActivityRequest) []models.AttachedActivity {
	out := make([]models.AttachedActivity, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, models.AttachedActivity{ActivityID: r.ActivityID, ScheduledAt: r.ScheduledAt.UTC()})
	}
	return out
}
