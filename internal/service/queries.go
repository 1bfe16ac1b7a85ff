package service

import (
	"context"
	"fmt"
	"time"

	"cabinres/internal/domain"
	"cabinres/internal/models"
	"cabinres/internal/policy"
	"cabinres/internal/pricing"
	"cabinres/internal/report"
)

// CheckAvailability reports whether the cabin can take [start, end) under the active rule.
func (s *BookingService) CheckAvailability(ctx context.Context, cabinID int64, start, end time.Time, excludeID int64) (*AvailabilityResult, error) {
	start, end, err := s.interval(start, end)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetCabin(ctx, cabinID); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindBookingsByCabin(ctx, cabinID)
	if err != nil {
		return nil, fmt.Errorf("load bookings of cabin %d: %w", cabinID, err)
	}
	conflicts := s.rule.Conflicts(cabinID, start, end, existing, excludeID)
	return &AvailabilityResult{
		CabinID:   cabinID,
		Start:     start,
		End:       end,
		Available: len(conflicts) == 0,
		Rule:      s.rule.Name(),
		Conflicts: conflicts,
	}, nil
}

// GetBooking returns a booking visible to actor.
func (s *BookingService) GetBooking(ctx context.Context, actor models.Actor, id int64) (*models.Booking, error) {
	b, err := s.repo.FindBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cabin, err := s.repo.GetCabin(ctx, b.CabinID)
	if err != nil {
		return nil, err
	}
	if _, err := s.policy.Authorize(actor, policy.ActionView, policy.Subject{BookingPersonID: b.PersonID, Cabin: cabin}); err != nil {
		return nil, err
	}
	return b, nil
}

// ListBookingsByCabin returns the bookings of a cabin to its owner or an administrator.
func (s *BookingService) ListBookingsByCabin(ctx context.Context, actor models.Actor, cabinID int64) ([]*models.Booking, error) {
	cabin, err := s.repo.GetCabin(ctx, cabinID)
	if err != nil {
		return nil, err
	}
	if _, err := s.policy.Authorize(actor, policy.ActionView, policy.Subject{Cabin: cabin}); err != nil {
		return nil, err
	}
	return s.repo.FindBookingsByCabin(ctx, cabinID)
}

// ListMyBookings returns the bookings made for the actor, earliest stay first.
func (s *BookingService) ListMyBookings(ctx context.Context, actor models.Actor) ([]*models.Booking, error) {
	if actor.PersonID <= 0 {
		return nil, fmt.Errorf("bookings of an anonymous actor: %w", domain.ErrUnauthorized)
	}
	return s.repo.FindBookingsByPerson(ctx, actor.PersonID)
}

// SearchBookings filters bookings by resort, cabin, guest last name and dates.
// Administrators search every cabin; cabin owners only their own.
func (s *BookingService) SearchBookings(ctx context.Context, actor models.Actor, filter models.BookingFilter) ([]*models.Booking, error) {
	owner, err := s.searchScope(actor)
	if err != nil {
		return nil, err
	}
	filter.OwnerID = owner
	if filter.Start, filter.End, err = s.window(filter.Start, filter.End); err != nil {
		return nil, err
	}
	return s.repo.SearchBookings(ctx, filter)
}

// searchScope returns the owner the search is restricted to, or zero for everything.
func (s *BookingService) searchScope(actor models.Actor) (int64, error) {
	decision, err := s.policy.Authorize(actor, policy.ActionSearch, policy.Subject{})
	if err != nil {
		return 0, err
	}
	if decision.Elevated {
		return 0, nil
	}
	if actor.PersonID <= 0 {
		return 0, fmt.Errorf("search by an anonymous owner: %w", domain.ErrUnauthorized)
	}
	return actor.PersonID, nil
}

// window normalizes optional search bounds.
func (s *BookingService) window(start, end time.Time) (time.Time, time.Time, error) {
	if !start.IsZero() {
		start = s.Normalize(start)
	}
	if !end.IsZero() {
		end = s.Normalize(end)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return start, end, fmt.Errorf("search end %s is before start %s: %w",
			models.FormatDay(end), models.FormatDay(start), domain.ErrValidation)
	}
	return start, end, nil
}

// QuoteBooking prices a prospective stay without booking it.
func (s *BookingService) QuoteBooking(ctx context.Context, req QuoteRequest) (*pricing.Breakdown, error) {
	start, end, err := s.interval(req.Start, req.End)
	if err != nil {
		return nil, err
	}
	cabin, err := s.referencedCabin(ctx, s.repo, req.CabinID)
	if err != nil {
		return nil, err
	}
	return s.pricing.Quote(ctx, cabin.PricePerDay, start, end, attach(req.Activities))
}

// GenerateOccupancyReport aggregates occupancy over [start, end]. Administrators pick the
// resorts; cabin owners always get their own cabins.
func (s *BookingService) GenerateOccupancyReport(ctx context.Context, actor models.Actor, req ReportRequest) (*report.Report, error) {
	start, end := s.Normalize(req.Start), s.Normalize(req.End)
	if end.Before(start) {
		return nil, fmt.Errorf("report end %s is before start %s: %w",
			models.FormatDay(end), models.FormatDay(start), domain.ErrValidation)
	}

	decision, err := s.policy.Authorize(actor, policy.ActionReport, policy.Subject{})
	if err != nil {
		return nil, err
	}

	in, err := s.reportInput(ctx, actor, decision.Elevated, req.ResortIDs)
	if err != nil {
		return nil, err
	}
	in.Bookings, err = s.repo.FindBookingsInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	r := report.Aggregate(in, start, end)
	s.logger.Debug().
		Int64("actor_id", actor.PersonID).
		Int("cabins", len(r.Cabins)).
		Int("activities", len(r.Activities)).
		Int("window_days", r.WindowDays).
		Msg("occupancy report generated")
	return r, nil
}

func (s *BookingService) reportInput(ctx context.Context, actor models.Actor, elevated bool, resortIDs []int64) (report.Input, error) {
	var in report.Input

	if !elevated {
		cabins, err := s.repo.GetCabinsByOwner(ctx, actor.PersonID)
		if err != nil {
			return in, err
		}
		in.Cabins = filterCabins(cabins, resortIDs)
		return in, nil
	}

	if len(resortIDs) == 0 {
		return in, fmt.Errorf("select at least one resort: %w", domain.ErrValidation)
	}

	resorts, err := s.repo.GetResorts(ctx)
	if err != nil {
		return in, err
	}
	wanted := idSet(resortIDs)
	for _, r := range resorts {
		if wanted[r.ID] {
			in.Resorts = append(in.Resorts, r)
		}
	}

	if in.Cabins, err = s.repo.GetCabinsByResorts(ctx, resortIDs); err != nil {
		return in, err
	}
	if in.Activities, err = s.repo.GetActivitiesByResorts(ctx, resortIDs); err != nil {
		return in, err
	}
	return in, nil
}

func filterCabins(cabins []*models.Cabin, resortIDs []int64) []*models.Cabin {
	if len(resortIDs) == 0 {
		return cabins
	}
	wanted := idSet(resortIDs)
	out := cabins[:0]
	for _, c := range cabins {
		if wanted[c.ResortID] {
			out = append(out, c)
		}
	}
	return out
}

func idSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
