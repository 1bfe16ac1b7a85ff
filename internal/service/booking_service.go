package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cabinres/internal/availability"
	"cabinres/internal/domain"
	"cabinres/internal/events"
	"cabinres/internal/metrics"
	"cabinres/internal/models"
	"cabinres/internal/policy"
	"cabinres/internal/pricing"

	"github.com/rs/zerolog"
)

// Options carries the optional collaborators and tunables of BookingService.
// Zero values fall back to the defaults of the platform.
type Options struct {
	Rule              availability.Rule
	Locker            domain.CabinLocker
	Events            domain.EventPublisher
	Clock             domain.Clock
	Guard             domain.CancelGuard
	Location          *time.Location
	EditLockDays      int
	InvoiceExpiryDays int
}

type BookingService struct {
	repo         domain.Repository
	policy       *policy.Policy
	rule         availability.Rule
	pricing      *pricing.Engine
	locker       domain.CabinLocker
	events       domain.EventPublisher
	clock        domain.Clock
	guard        domain.CancelGuard
	loc          *time.Location
	editLockDays int
	logger       *zerolog.Logger
}

func NewBookingService(repo domain.Repository, pol *policy.Policy, opts Options, logger *zerolog.Logger) *BookingService {
	if pol == nil {
		pol = policy.New(nil, nil)
	}
	if opts.Rule == nil {
		opts.Rule = availability.NarrowRule{}
	}
	if opts.Clock == nil {
		opts.Clock = domain.SystemClock{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.EditLockDays <= 0 {
		opts.EditLockDays = models.DefaultEditLockDays
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		repo:         repo,
		policy:       pol,
		rule:         opts.Rule,
		pricing:      pricing.NewEngine(repo, opts.InvoiceExpiryDays),
		locker:       opts.Locker,
		events:       opts.Events,
		clock:        opts.Clock,
		guard:        opts.Guard,
		loc:          opts.Location,
		editLockDays: opts.EditLockDays,
		logger:       logger,
	}
}

// Normalize drops the time of day, keeping the calendar date as seen in the service location.
func (s *BookingService) Normalize(t time.Time) time.Time {
	return models.DateOnly(t.In(s.loc))
}

// wallNow is the current local wall time expressed on the same UTC axis as normalized dates.
func (s *BookingService) wallNow() time.Time {
	now := s.clock.Now().In(s.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second(), now.Nanosecond(), time.UTC)
}

func (s *BookingService) interval(start, end time.Time) (time.Time, time.Time, error) {
	start, end = s.Normalize(start), s.Normalize(end)
	if !start.Before(end) {
		return start, end, fmt.Errorf("start %s must be before end %s: %w",
			models.FormatDay(start), models.FormatDay(end), domain.ErrValidation)
	}
	return start, end, nil
}

// CreateBooking books a cabin. Non-elevated actors always book for themselves.
func (s *BookingService) CreateBooking(ctx context.Context, actor models.Actor, req CreateRequest) (booking *models.Booking, err error) {
	started := time.Now()
	defer func() { s.observe("create", started, err) }()

	start, end, err := s.interval(req.Start, req.End)
	if err != nil {
		return nil, err
	}

	err = s.withCabinLock(ctx, req.CabinID, func(ctx context.Context) error {
		return s.repo.WithinTx(ctx, func(tx domain.Repository) error {
			cabin, err := s.referencedCabin(ctx, tx, req.CabinID)
			if err != nil {
				return err
			}

			if err := s.ensureAvailable(ctx, tx, cabin.ID, start, end, 0); err != nil {
				return err
			}

			decision, err := s.policy.Authorize(actor, policy.ActionCreate, policy.Subject{Cabin: cabin})
			if err != nil {
				return err
			}
			personID := actor.PersonID
			if decision.Elevated {
				personID = req.PersonID
			}
			if _, err := tx.GetPerson(ctx, personID); err != nil {
				return asValidation(err, "person %d", personID)
			}

			b := &models.Booking{
				CabinID:    cabin.ID,
				PersonID:   personID,
				Start:      start,
				End:        end,
				BookedAt:   s.clock.Now().UTC(),
				Activities: attach(req.Activities),
			}
			if err := s.price(ctx, tx, cabin, b); err != nil {
				return err
			}
			if err := tx.SaveBooking(ctx, b); err != nil {
				return fmt.Errorf("save booking: %w", err)
			}
			booking = b
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("cabin_id", booking.CabinID).
		Int64("person_id", booking.PersonID).
		Str("start", models.FormatDay(booking.Start)).
		Str("end", models.FormatDay(booking.End)).
		Str("total", booking.Invoice.Total.String()).
		Msg("booking created")
	s.publish(events.EventBookingCreated, booking, actor)
	return booking, nil
}

// ModifyBooking moves a booking to new dates and replaces its activities and invoice.
// Bookings starting within the edit lock window are frozen.
func (s *BookingService) ModifyBooking(ctx context.Context, actor models.Actor, req ModifyRequest) (booking *models.Booking, err error) {
	started := time.Now()
	defer func() { s.observe("modify", started, err) }()

	start, end, err := s.interval(req.Start, req.End)
	if err != nil {
		return nil, err
	}

	current, err := s.repo.FindBookingByID(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}

	err = s.withCabinLock(ctx, current.CabinID, func(ctx context.Context) error {
		return s.repo.WithinTx(ctx, func(tx domain.Repository) error {
			existing, err := tx.FindBookingByID(ctx, req.BookingID)
			if err != nil {
				return err
			}
			if req.Version != 0 && req.Version != existing.Version {
				return fmt.Errorf("booking %d is at version %d, not %d: %w",
					existing.ID, existing.Version, req.Version, domain.ErrConcurrency)
			}

			if err := s.ensureAvailable(ctx, tx, existing.CabinID, start, end, existing.ID); err != nil {
				return err
			}

			if existing.Start.Before(s.editDeadline()) {
				return fmt.Errorf("booking %d starts %s and can no longer be edited: %w",
					existing.ID, models.FormatDay(existing.Start), domain.ErrValidation)
			}

			cabin, err := s.referencedCabin(ctx, tx, existing.CabinID)
			if err != nil {
				return err
			}
			subject := policy.Subject{BookingPersonID: existing.PersonID, Cabin: cabin}
			if _, err := s.policy.Authorize(actor, policy.ActionModify, subject); err != nil {
				return err
			}

			existing.Start = start
			existing.End = end
			existing.BookedAt = s.clock.Now().UTC()
			existing.Activities = attach(req.Activities)
			if err := s.price(ctx, tx, cabin, existing); err != nil {
				return err
			}
			if err := tx.SaveBooking(ctx, existing); err != nil {
				return fmt.Errorf("save booking: %w", err)
			}
			booking = existing
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("version", booking.Version).
		Str("start", models.FormatDay(booking.Start)).
		Str("end", models.FormatDay(booking.End)).
		Str("total", booking.Invoice.Total.String()).
		Msg("booking modified")
	s.publish(events.EventBookingModified, booking, actor)
	return booking, nil
}

// CancelBooking deletes a booking together with its activities and invoice.
func (s *BookingService) CancelBooking(ctx context.Context, actor models.Actor, bookingID int64) (err error) {
	started := time.Now()
	defer func() { s.observe("cancel", started, err) }()

	current, err := s.repo.FindBookingByID(ctx, bookingID)
	if err != nil {
		return err
	}

	var cancelled *models.Booking
	err = s.withCabinLock(ctx, current.CabinID, func(ctx context.Context) error {
		return s.repo.WithinTx(ctx, func(tx domain.Repository) error {
			b, err := tx.FindBookingByID(ctx, bookingID)
			if err != nil {
				return err
			}

			cabin, err := tx.GetCabin(ctx, b.CabinID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			subject := policy.Subject{BookingPersonID: b.PersonID, Cabin: cabin}
			decision, err := s.policy.Authorize(actor, policy.ActionCancel, subject)
			if err != nil {
				return err
			}
			if !decision.Elevated && b.Start.Before(s.editDeadline()) {
				return fmt.Errorf("booking %d starts %s and can no longer be cancelled: %w",
					b.ID, models.FormatDay(b.Start), domain.ErrValidation)
			}

			if s.guard != nil {
				if err := s.guard.BeforeCancel(ctx, actor, b); err != nil {
					return err
				}
			}

			if err := tx.DeleteBooking(ctx, b); err != nil {
				return fmt.Errorf("delete booking: %w", err)
			}
			cancelled = b
			return nil
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Int64("booking_id", cancelled.ID).
		Int64("cabin_id", cancelled.CabinID).
		Int64("actor_id", actor.PersonID).
		Msg("booking cancelled")
	s.publish(events.EventBookingCancelled, cancelled, actor)
	return nil
}

func (s *BookingService) editDeadline() time.Time {
	return models.AddDays(s.wallNow(), s.editLockDays)
}

func (s *BookingService) ensureAvailable(ctx context.Context, repo domain.Repository, cabinID int64, start, end time.Time, excludeID int64) error {
	existing, err := repo.FindBookingsByCabin(ctx, cabinID)
	if err != nil {
		return fmt.Errorf("load bookings of cabin %d: %w", cabinID, err)
	}
	if conflicts := s.rule.Conflicts(cabinID, start, end, existing, excludeID); len(conflicts) > 0 {
		metrics.IncConflict(s.rule.Name())
		return fmt.Errorf("cabin %d from %s to %s collides with bookings %v: %w",
			cabinID, models.FormatDay(start), models.FormatDay(end), conflicts, domain.ErrConflict)
	}
	return nil
}

func (s *BookingService) referencedCabin(ctx context.Context, repo domain.Repository, cabinID int64) (*models.Cabin, error) {
	cabin, err := repo.GetCabin(ctx, cabinID)
	if err != nil {
		return nil, asValidation(err, "cabin %d", cabinID)
	}
	return cabin, nil
}

func (s *BookingService) price(ctx context.Context, repo domain.Repository, cabin *models.Cabin, b *models.Booking) error {
	invoice, err := s.pricing.WithLookup(repo).ComputeInvoice(ctx, cabin.PricePerDay, b.Start, b.End, b.Activities)
	if err != nil {
		return err
	}
	invoice.CreatedAt = b.BookedAt
	b.Invoice = &invoice
	return nil
}

func (s *BookingService) withCabinLock(ctx context.Context, cabinID int64, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithCabinLock(ctx, cabinID, func(lockCtx context.Context) error {
		err := fn(lockCtx)
		// аренда потеряна: вместо context.Canceled отдаем причину
		if err != nil && ctx.Err() == nil {
			if cause := context.Cause(lockCtx); cause != nil {
				return cause
			}
		}
		return err
	})
}

func (s *BookingService) publish(eventType string, b *models.Booking, actor models.Actor) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishJSON(eventType, events.NewBookingPayload(b, actor)); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Int64("booking_id", b.ID).Msg("failed to publish event")
	}
}

func (s *BookingService) observe(operation string, started time.Time, err error) {
	metrics.ObserveBookingOperation(operation, domain.Kind(err), started)
	if err == nil {
		return
	}
	ev := s.logger.Warn()
	if domain.Kind(err) == "internal" {
		ev = s.logger.Error()
	}
	ev.Err(err).Str("operation", operation).Str("kind", domain.Kind(err)).Msg("booking operation rejected")
}

// asValidation turns a missing reference into a validation error; other failures pass through.
func asValidation(err error, format string, args ...any) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf(format+" does not exist: %w", append(args, domain.ErrValidation)...)
	}
	return err
}
