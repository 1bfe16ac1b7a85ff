package domain

import (
	"context"
	"time"

	"cabinres/internal/models"
)

// Repository is the booking store and catalog lookup the core runs against.
// WithinTx hands fn a repository bound to a single transaction; reads made through
// it observe the writes made through it.
type Repository interface {
	FindBookingsByCabin(ctx context.Context, cabinID int64) ([]*models.Booking, error)
	FindBookingByID(ctx context.Context, id int64) (*models.Booking, error)
	FindBookingsInRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
	FindBookingsByPerson(ctx context.Context, personID int64) ([]*models.Booking, error)
	SearchBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	SaveBooking(ctx context.Context, booking *models.Booking) error
	DeleteBooking(ctx context.Context, booking *models.Booking) error

	SetInvoicePaid(ctx context.Context, bookingID int64, paid bool) error
	SearchInvoices(ctx context.Context, filter models.InvoiceFilter) ([]*models.InvoiceEntry, error)

	GetCabin(ctx context.Context, id int64) (*models.Cabin, error)
	GetActivity(ctx context.Context, id int64) (*models.Activity, error)
	GetPerson(ctx context.Context, id int64) (*models.Person, error)
	GetResorts(ctx context.Context) ([]*models.Resort, error)
	GetCabinsByResorts(ctx context.Context, resortIDs []int64) ([]*models.Cabin, error)
	GetCabinsByOwner(ctx context.Context, ownerID int64) ([]*models.Cabin, error)
	GetActivitiesByResorts(ctx context.Context, resortIDs []int64) ([]*models.Activity, error)

	WithinTx(ctx context.Context, fn func(tx Repository) error) error
}

// ActivityLookup resolves activity prices for invoice computation.
type ActivityLookup interface {
	GetActivity(ctx context.Context, id int64) (*models.Activity, error)
}

// Authorizer abstracts role and identity checks.
type Authorizer interface {
	HasCapability(actor models.Actor, name string) bool
	OwnsPerson(actor models.Actor, personID int64) bool
	OwnsCabin(actor models.Actor, cabin *models.Cabin) bool
}

type Clock interface {
	Now() time.Time
}

// CabinLocker serializes write sequences on one cabin.
type CabinLocker interface {
	WithCabinLock(ctx context.Context, cabinID int64, fn func(ctx context.Context) error) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// CancelGuard runs right before a booking is deleted and may veto the cancel.
type CancelGuard interface {
	BeforeCancel(ctx context.Context, actor models.Actor, booking *models.Booking) error
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
