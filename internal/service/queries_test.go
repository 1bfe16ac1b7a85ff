package service

import (
	"context"
	"testing"
	"time"

	"cabinres/internal/domain"
	"cabinres/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAvailability(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	b := f.create(t, guest, 10, "2024-01-01", "2024-01-05")

	res, err := f.svc.CheckAvailability(ctx, 10, day("2024-01-02"), day("2024-01-04"), 0)
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, []int64{b.ID}, res.Conflicts)
	assert.Equal(t, "narrow", res.Rule)

	res, err = f.svc.CheckAvailability(ctx, 10, day("2024-01-02"), day("2024-01-04"), b.ID)
	require.NoError(t, err)
	assert.True(t, res.Available)

	res, err = f.svc.CheckAvailability(ctx, 10, day("2024-02-01"), day("2024-02-04"), 0)
	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.Empty(t, res.Conflicts)

	_, err = f.svc.CheckAvailability(ctx, 99, day("2024-02-01"), day("2024-02-04"), 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.CheckAvailability(ctx, 10, day("2024-02-04"), day("2024-02-01"), 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestQuoteBooking(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	q, err := f.svc.QuoteBooking(ctx, QuoteRequest{
		CabinID:    10,
		Start:      day("2024-01-01"),
		End:        day("2024-01-04"),
		Activities: []ActivityRequest{{ActivityID: 100}, {ActivityID: 101}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, q.Days)
	assert.Equal(t, models.Money(30000), q.CabinSubtotal)
	assert.Equal(t, models.Money(5000), q.ActivityTotal)
	assert.Equal(t, models.Money(35000), q.Total)
	require.Len(t, q.Activities, 2)
	assert.Equal(t, "Kayak", q.Activities[0].Name)

	bookings, err := f.db.FindBookingsByCabin(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, bookings, "quoting must not book")

	_, err = f.svc.QuoteBooking(ctx, QuoteRequest{CabinID: 99, Start: day("2024-01-01"), End: day("2024-01-04")})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetBookingAndList(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	b := f.create(t, guest, 10, "2024-01-01", "2024-01-05", 100)

	got, err := f.svc.GetBooking(ctx, guest, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Len(t, got.Activities, 1)

	_, err = f.svc.GetBooking(ctx, owner, b.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetBooking(ctx, admin, b.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetBooking(ctx, stranger, b.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.svc.GetBooking(ctx, guest, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := f.svc.ListBookingsByCabin(ctx, owner, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.ListBookingsByCabin(ctx, guest, 10)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestGenerateOccupancyReport(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.clock.Set(time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC))

	f.create(t, guest, 10, "2023-12-20", "2024-01-10", 100)
	f.create(t, stranger, 11, "2024-01-20", "2024-01-23", 101)
	f.create(t, guest, 20, "2024-01-01", "2024-01-16", 200)
	f.create(t, guest, 11, "2024-03-01", "2024-03-05", 101)

	req := ReportRequest{Start: day("2024-01-01"), End: day("2024-01-31"), ResortIDs: []int64{1}}

	t.Run("administrator picks resorts", func(t *testing.T) {
		r, err := f.svc.GenerateOccupancyReport(ctx, admin, req)
		require.NoError(t, err)
		assert.Equal(t, 30, r.WindowDays)

		require.Len(t, r.Cabins, 2)
		assert.Equal(t, int64(10), r.Cabins[0].CabinID)
		assert.Equal(t, 9, r.Cabins[0].OccupiedDays)
		assert.InDelta(t, 30.0, r.Cabins[0].Percent, 0.001)
		assert.Equal(t, 3, r.Cabins[1].OccupiedDays)
		assert.InDelta(t, 10.0, r.Cabins[1].Percent, 0.001)

		require.Len(t, r.Activities, 2)
		assert.Equal(t, 0, r.Activities[0].Reservations, "scheduled before the window")
		assert.Equal(t, 1, r.Activities[1].Reservations)

		require.Len(t, r.Resorts, 1)
		assert.Equal(t, "Pine Ridge", r.Resorts[0].ResortName)
		assert.InDelta(t, 20.0, r.Resorts[0].AverageOccupancy, 0.001)
		assert.Equal(t, 1, r.Resorts[0].ActivityReservations)
	})

	t.Run("administrator must pick a resort", func(t *testing.T) {
		_, err := f.svc.GenerateOccupancyReport(ctx, admin, ReportRequest{Start: req.Start, End: req.End})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("cabin owner sees own cabins", func(t *testing.T) {
		r, err := f.svc.GenerateOccupancyReport(ctx, owner, ReportRequest{Start: req.Start, End: req.End})
		require.NoError(t, err)
		require.Len(t, r.Cabins, 2)
		assert.Equal(t, int64(10), r.Cabins[0].CabinID)
		assert.Equal(t, int64(20), r.Cabins[1].CabinID)
		assert.Equal(t, 15, r.Cabins[1].OccupiedDays)
		assert.Empty(t, r.Activities)

		filtered, err := f.svc.GenerateOccupancyReport(ctx, owner, ReportRequest{Start: req.Start, End: req.End, ResortIDs: []int64{2}})
		require.NoError(t, err)
		require.Len(t, filtered.Cabins, 1)
		assert.Equal(t, int64(20), filtered.Cabins[0].CabinID)
	})

	t.Run("customers get no report", func(t *testing.T) {
		_, err := f.svc.GenerateOccupancyReport(ctx, guest, req)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("zero window", func(t *testing.T) {
		r, err := f.svc.GenerateOccupancyReport(ctx, admin, ReportRequest{Start: req.Start, End: req.Start, ResortIDs: []int64{1}})
		require.NoError(t, err)
		for _, c := range r.Cabins {
			assert.Zero(t, c.Percent)
		}
	})

	t.Run("inverted window", func(t *testing.T) {
		_, err := f.svc.GenerateOccupancyReport(ctx, admin, ReportRequest{Start: req.End, End: req.Start, ResortIDs: []int64{1}})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}
