package service

import (
	"context"
	"fmt"
	"time"

	"cabinres/internal/domain"
	"cabinres/internal/events"
	"cabinres/internal/models"
	"cabinres/internal/policy"
)

// GetInvoice returns the invoice of a booking visible to actor.
func (s *BookingService) GetInvoice(ctx context.Context, actor models.Actor, bookingID int64) (*models.Invoice, error) {
	b, err := s.GetBooking(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Invoice == nil {
		return nil, fmt.Errorf("booking %d has no invoice: %w", bookingID, domain.ErrNotFound)
	}
	return b.Invoice, nil
}

// SetInvoicePaid records a payment, or its reversal, on the invoice of a booking.
// Only administrators and the owner of the booked cabin may do it.
func (s *BookingService) SetInvoicePaid(ctx context.Context, actor models.Actor, bookingID int64, paid bool) (invoice *models.Invoice, err error) {
	started := time.Now()
	defer func() { s.observe("settle", started, err) }()

	current, err := s.repo.FindBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var settled *models.Booking
	err = s.withCabinLock(ctx, current.CabinID, func(ctx context.Context) error {
		return s.repo.WithinTx(ctx, func(tx domain.Repository) error {
			b, err := tx.FindBookingByID(ctx, bookingID)
			if err != nil {
				return err
			}
			cabin, err := tx.GetCabin(ctx, b.CabinID)
			if err != nil {
				return err
			}
			if _, err := s.policy.Authorize(actor, policy.ActionSettle, policy.Subject{Cabin: cabin}); err != nil {
				return err
			}
			if b.Invoice == nil {
				return fmt.Errorf("booking %d has no invoice: %w", bookingID, domain.ErrNotFound)
			}

			if err := tx.SetInvoicePaid(ctx, b.ID, paid); err != nil {
				return err
			}
			b.Invoice.Paid = paid
			settled = b
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("booking_id", settled.ID).
		Bool("paid", paid).
		Int64("actor_id", actor.PersonID).
		Msg("invoice settlement recorded")
	s.publish(events.EventInvoiceSettled, settled, actor)
	return settled.Invoice, nil
}

// ListInvoices searches invoices by names, expiry day and paid status.
// Administrators see every invoice; cabin owners only those of their cabins.
func (s *BookingService) ListInvoices(ctx context.Context, actor models.Actor, filter models.InvoiceFilter) ([]*models.InvoiceEntry, error) {
	owner, err := s.searchScope(actor)
	if err != nil {
		return nil, err
	}
	filter.OwnerID = owner
	if filter.ExpiresFrom, filter.ExpiresTo, err = s.window(filter.ExpiresFrom, filter.ExpiresTo); err != nil {
		return nil, err
	}
	return s.repo.SearchInvoices(ctx, filter)
}
