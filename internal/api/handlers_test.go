package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cabinres/internal/config"
	"cabinres/internal/domain"
	"cabinres/internal/models"
	"cabinres/internal/pricing"
	"cabinres/internal/report"
	"cabinres/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBookingAPI struct {
	mock.Mock
}

func (m *mockBookingAPI) CreateBooking(ctx context.Context, actor models.Actor, req service.CreateRequest) (*models.Booking, error) {
	args := m.Called(ctx, actor, req)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookingAPI) ModifyBooking(ctx context.Context, actor models.Actor, req service.ModifyRequest) (*models.Booking, error) {
	args := m.Called(ctx, actor, req)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookingAPI) CancelBooking(ctx context.Context, actor models.Actor, bookingID int64) error {
	return m.Called(ctx, actor, bookingID).Error(0)
}

func (m *mockBookingAPI) GetBooking(ctx context.Context, actor models.Actor, id int64) (*models.Booking, error) {
	args := m.Called(ctx, actor, id)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookingAPI) ListBookingsByCabin(ctx context.Context, actor models.Actor, cabinID int64) ([]*models.Booking, error) {
	args := m.Called(ctx, actor, cabinID)
	b, _ := args.Get(0).([]*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookingAPI) CheckAvailability(ctx context.Context, cabinID int64, start, end time.Time, excludeID int64) (*service.AvailabilityResult, error) {
	args := m.Called(ctx, cabinID, start, end, excludeID)
	r, _ := args.Get(0).(*service.AvailabilityResult)
	return r, args.Error(1)
}

func (m *mockBookingAPI) QuoteBooking(ctx context.Context, req service.QuoteRequest) (*pricing.Breakdown, error) {
	args := m.Called(ctx, req)
	q, _ := args.Get(0).(*pricing.Breakdown)
	return q, args.Error(1)
}

func (m *mockBookingAPI) GenerateOccupancyReport(ctx context.Context, actor models.Actor, req service.ReportRequest) (*report.Report, error) {
	args := m.Called(ctx, actor, req)
	r, _ := args.Get(0).(*report.Report)
	return r, args.Error(1)
}

func (m *mockBookingAPI) ListMyBookings(ctx context.Context, actor models.Actor) ([]*models.Booking, error) {
	args := m.Called(ctx, actor)
	b, _ := args.Get(0).([]*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookingAPI) SearchBookings(ctx context.Context, actor models.Actor, filter models.BookingFilter) ([]*models.Booking, error) {
	args := m.Called(ctx, actor, filter)
	b, _ := args.Get(0).([]*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookingAPI) GetInvoice(ctx context.Context, actor models.Actor, bookingID int64) (*models.Invoice, error) {
	args := m.Called(ctx, actor, bookingID)
	inv, _ := args.Get(0).(*models.Invoice)
	return inv, args.Error(1)
}

func (m *mockBookingAPI) SetInvoicePaid(ctx context.Context, actor models.Actor, bookingID int64, paid bool) (*models.Invoice, error) {
	args := m.Called(ctx, actor, bookingID, paid)
	inv, _ := args.Get(0).(*models.Invoice)
	return inv, args.Error(1)
}

func (m *mockBookingAPI) ListInvoices(ctx context.Context, actor models.Actor, filter models.InvoiceFilter) ([]*models.InvoiceEntry, error) {
	args := m.Called(ctx, actor, filter)
	e, _ := args.Get(0).([]*models.InvoiceEntry)
	return e, args.Error(1)
}

var testGuest = models.Actor{PersonID: 2, Roles: []string{models.RoleCustomer}}

func newMockServer(t *testing.T, svc BookingAPI, loc *time.Location) http.Handler {
	t.Helper()
	logger := zerolog.New(io.Discard)
	cfg := config.APIConfig{Enabled: true, HTTP: config.APIHTTPConfig{Enabled: true}}
	return NewHTTPServer(cfg, svc, nil, loc, &logger).server.Handler
}

func do(t *testing.T, h http.Handler, method, target, body string, actor *models.Actor) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if actor != nil {
		req.Header.Set(actorIDHeader, fmt.Sprint(actor.PersonID))
		req.Header.Set(actorRolesHeader, strings.Join(actor.Roles, ","))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"validation", fmt.Errorf("start after end: %w", domain.ErrValidation), http.StatusBadRequest, "validation"},
		{"conflict", fmt.Errorf("cabin 10: %w", domain.ErrConflict), http.StatusConflict, "conflict"},
		{"unauthorized", domain.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
		{"not found", fmt.Errorf("booking 7: %w", domain.ErrNotFound), http.StatusNotFound, "not_found"},
		{"concurrency", fmt.Errorf("version 3: %w", domain.ErrConcurrency), http.StatusConflict, "concurrency"},
		{"internal", errors.New("disk I/O error"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockBookingAPI)
			svc.On("GetBooking", mock.Anything, testGuest, int64(7)).Return(nil, tt.err)

			rec := do(t, newMockServer(t, svc, nil), http.MethodGet, "/api/v1/bookings/7", "", &testGuest)
			assert.Equal(t, tt.code, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.kind, body["kind"])
			if tt.kind == "internal" {
				assert.Equal(t, "internal error", body["error"])
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestActorHeaders(t *testing.T) {
	svc := new(mockBookingAPI)
	h := newMockServer(t, svc, nil)

	rec := do(t, h, http.MethodGet, "/api/v1/bookings/7", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/7", nil)
	req.Header.Set(actorIDHeader, "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	svc.AssertNotCalled(t, "GetBooking", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateBookingRequest(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	svc := new(mockBookingAPI)
	want := service.CreateRequest{
		CabinID:  10,
		PersonID: 2,
		Start:    time.Date(2024, 1, 1, 0, 0, 0, 0, loc),
		End:      time.Date(2024, 1, 5, 0, 0, 0, 0, loc),
		Activities: []service.ActivityRequest{
			{ActivityID: 100, ScheduledAt: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)},
		},
	}
	svc.On("CreateBooking", mock.Anything, testGuest, mock.MatchedBy(func(req service.CreateRequest) bool {
		return req.CabinID == want.CabinID &&
			req.Start.Equal(want.Start) && req.End.Equal(want.End) &&
			len(req.Activities) == 1 && req.Activities[0].ScheduledAt.Equal(want.Activities[0].ScheduledAt)
	})).Return(&models.Booking{ID: 1, CabinID: 10, PersonID: 2}, nil)

	body := `{"cabin_id":10,"person_id":2,"start":"2024-01-01","end":"2024-01-05",
		"activities":[{"activity_id":100,"scheduled_at":"2024-01-02T10:00:00Z"}]}`
	rec := do(t, newMockServer(t, svc, loc), http.MethodPost, "/api/v1/bookings", body, &testGuest)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got models.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(1), got.ID)
	svc.AssertExpectations(t)
}

func TestBadRequests(t *testing.T) {
	svc := new(mockBookingAPI)
	h := newMockServer(t, svc, nil)

	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{"malformed json", http.MethodPost, "/api/v1/bookings", `{"cabin_id":`},
		{"unknown field", http.MethodPost, "/api/v1/bookings", `{"cabin":10,"start":"2024-01-01","end":"2024-01-02"}`},
		{"bad start", http.MethodPost, "/api/v1/bookings", `{"cabin_id":10,"start":"01/01/2024","end":"2024-01-02"}`},
		{"bad activity time", http.MethodPost, "/api/v1/bookings", `{"cabin_id":10,"start":"2024-01-01","end":"2024-01-02","activities":[{"activity_id":1}]}`},
		{"missing cabin", http.MethodPost, "/api/v1/bookings", `{"start":"2024-01-01","end":"2024-01-02"}`},
		{"missing end", http.MethodPost, "/api/v1/bookings/quote", `{"cabin_id":10,"start":"2024-01-01"}`},
		{"zero activity id", http.MethodPut, "/api/v1/bookings/3", `{"start":"2024-01-01","end":"2024-01-02","activities":[{"activity_id":0,"scheduled_at":"2024-01-01T10:00:00Z"}]}`},
		{"bad id", http.MethodGet, "/api/v1/bookings/abc", ""},
		{"bad exclude", http.MethodGet, "/api/v1/cabins/10/availability?start=2024-01-01&end=2024-01-02&exclude=x", ""},
		{"bad resorts", http.MethodGet, "/api/v1/reports/occupancy?start=2024-01-01&end=2024-01-31&resorts=1,x", ""},
		{"cabin on modify", http.MethodPut, "/api/v1/bookings/3", `{"cabin_id":10,"start":"2024-01-01","end":"2024-01-02"}`},
		{"bad search start", http.MethodGet, "/api/v1/bookings?start=yesterday", ""},
		{"bad invoice status", http.MethodGet, "/api/v1/invoices?status=overdue", ""},
		{"bad invoice expiry", http.MethodGet, "/api/v1/invoices?end=02.02.2024", ""},
		{"missing paid flag", http.MethodPut, "/api/v1/bookings/3/invoice/paid", `{}`},
		{"non boolean paid flag", http.MethodPut, "/api/v1/bookings/3/invoice/paid", `{"paid":"yes"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.target, tt.body, &testGuest)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	svc.AssertExpectations(t)
}

func TestValidationMessageNamesJSONField(t *testing.T) {
	h := newMockServer(t, new(mockBookingAPI), nil)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   string
	}{
		{"activity time", http.MethodPost, "/api/v1/bookings",
			`{"cabin_id":10,"start":"2024-01-01","end":"2024-01-02","activities":[{"activity_id":5}]}`,
			"activities[0].scheduled_at: failed required"},
		{"create without cabin", http.MethodPost, "/api/v1/bookings",
			`{"start":"2024-01-01","end":"2024-01-02"}`, "cabin_id: failed required"},
		{"quote without cabin", http.MethodPost, "/api/v1/bookings/quote",
			`{"cabin_id":0,"start":"2024-01-01","end":"2024-01-02"}`, "cabin_id: failed required"},
		{"negative cabin", http.MethodPost, "/api/v1/bookings",
			`{"cabin_id":-4,"start":"2024-01-01","end":"2024-01-02"}`, "cabin_id: failed gt"},
		{"modify without end", http.MethodPut, "/api/v1/bookings/3",
			`{"start":"2024-01-01"}`, "end: failed required"},
		{"paid flag", http.MethodPut, "/api/v1/bookings/3/invoice/paid", `{}`, "paid: failed required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.target, tt.body, &testGuest)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body["error"])
		})
	}
}

func TestListBookingsRouting(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	owner := models.Actor{PersonID: 1, Roles: []string{models.RoleCabinOwner}}

	svc := new(mockBookingAPI)
	svc.On("ListMyBookings", mock.Anything, testGuest).Return([]*models.Booking{{ID: 4}}, nil).Once()
	svc.On("ListMyBookings", mock.Anything, owner).Return(nil, nil).Once()
	svc.On("SearchBookings", mock.Anything, owner, models.BookingFilter{
		ResortName: "Pine",
		LastName:   "guest",
		Start:      time.Date(2024, 1, 1, 0, 0, 0, 0, loc),
	}).Return([]*models.Booking{{ID: 5}, {ID: 6}}, nil).Once()
	h := newMockServer(t, svc, loc)

	decode := func(rec *httptest.ResponseRecorder) []int64 {
		var body struct {
			Bookings []models.Booking `json:"bookings"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		out := make([]int64, 0, len(body.Bookings))
		for _, b := range body.Bookings {
			out = append(out, b.ID)
		}
		return out
	}

	rec := do(t, h, http.MethodGet, "/api/v1/bookings", "", &testGuest)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{4}, decode(rec))

	rec = do(t, h, http.MethodGet, "/api/v1/bookings", "", &owner)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"bookings":[]}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/v1/bookings?resort=Pine&last_name=guest&start=2024-01-01", "", &owner)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{5, 6}, decode(rec))

	svc.AssertExpectations(t)
}

func TestInvoiceRoutes(t *testing.T) {
	owner := models.Actor{PersonID: 1, Roles: []string{models.RoleCabinOwner}}
	inv := &models.Invoice{ID: 3, BookingID: 7, Total: 42000, Paid: true}

	svc := new(mockBookingAPI)
	svc.On("GetInvoice", mock.Anything, testGuest, int64(7)).Return(inv, nil).Once()
	svc.On("SetInvoicePaid", mock.Anything, owner, int64(7), true).Return(inv, nil).Once()
	svc.On("SetInvoicePaid", mock.Anything, testGuest, int64(7), false).
		Return(nil, fmt.Errorf("settle: %w", domain.ErrUnauthorized)).Once()
	svc.On("ListInvoices", mock.Anything, owner, models.InvoiceFilter{
		CabinName: "north",
		FirstName: "Gleb",
		ExpiresTo: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Status:    models.InvoiceUnpaid,
	}).Return(nil, nil).Once()
	h := newMockServer(t, svc, nil)

	rec := do(t, h, http.MethodGet, "/api/v1/bookings/7/invoice", "", &testGuest)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Invoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.Money(42000), got.Total)

	rec = do(t, h, http.MethodPut, "/api/v1/bookings/7/invoice/paid", `{"paid":true}`, &owner)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/v1/bookings/7/invoice/paid", `{"paid":false}`, &testGuest)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/invoices?status=UNPAID&cabin=north&first_name=Gleb&end=2024-03-01", "", &owner)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"invoices":[]}`, rec.Body.String())

	svc.AssertExpectations(t)
}

func TestCancelBookingNoContent(t *testing.T) {
	svc := new(mockBookingAPI)
	svc.On("CancelBooking", mock.Anything, testGuest, int64(5)).Return(nil)

	rec := do(t, newMockServer(t, svc, nil), http.MethodDelete, "/api/v1/bookings/5", "", &testGuest)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	svc.AssertExpectations(t)
}

func TestOccupancyReportFormats(t *testing.T) {
	admin := models.Actor{PersonID: 9, Roles: []string{models.RoleAdministrator}}
	rep := &report.Report{
		Start:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		WindowDays: 30,
		Cabins:     []report.CabinOccupancy{{CabinID: 10, CabinName: "North", ResortID: 1, OccupiedDays: 9, Percent: 30}},
	}

	svc := new(mockBookingAPI)
	svc.On("GenerateOccupancyReport", mock.Anything, admin, mock.MatchedBy(func(req service.ReportRequest) bool {
		return len(req.ResortIDs) == 2 && req.ResortIDs[0] == 1 && req.ResortIDs[1] == 2
	})).Return(rep, nil)
	h := newMockServer(t, svc, nil)

	rec := do(t, h, http.MethodGet, "/api/v1/reports/occupancy?start=2024-01-01&end=2024-01-31&resorts=1,2", "", &admin)
	require.Equal(t, http.StatusOK, rec.Code)
	var got report.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 30, got.WindowDays)

	rec = do(t, h, http.MethodGet, "/api/v1/reports/occupancy?start=2024-01-01&end=2024-01-31&resorts=1,2&format=xlsx", "", &admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "occupancy_2024-01-01_to_2024-01-31.xlsx")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "PK"), "xlsx is a zip archive")

	rec = do(t, h, http.MethodGet, "/api/v1/reports/occupancy?start=2024-01-01&end=2024-01-31&resorts=1,2&format=pdf", "", &admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOccupancyReportArchive(t *testing.T) {
	admin := models.Actor{PersonID: 9, Roles: []string{models.RoleAdministrator}}
	rep := &report.Report{
		Start:      time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		WindowDays: 28,
	}
	svc := new(mockBookingAPI)
	svc.On("GenerateOccupancyReport", mock.Anything, admin, mock.Anything).Return(rep, nil)

	logger := zerolog.New(io.Discard)
	cfg := config.APIConfig{Enabled: true, HTTP: config.APIHTTPConfig{Enabled: true}}
	srv := NewHTTPServer(cfg, svc, nil, nil, &logger)
	dir := t.TempDir()
	srv.ArchiveExportsTo(dir)

	rec := do(t, srv.server.Handler, http.MethodGet, "/api/v1/reports/occupancy?start=2024-02-01&end=2024-02-29&resorts=1&format=xlsx", "", &admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.FileExists(t, filepath.Join(dir, "occupancy_2024-02-01_to_2024-02-29.xlsx"))
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

func TestHealthEndpoints(t *testing.T) {
	logger := zerolog.New(io.Discard)
	cfg := config.APIConfig{Enabled: true, HTTP: config.APIHTTPConfig{Enabled: true}}

	h := NewHTTPServer(cfg, new(mockBookingAPI), stubPinger{}, nil, &logger).server.Handler
	rec := do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDKey))

	rec = do(t, h, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	h = NewHTTPServer(cfg, new(mockBookingAPI), stubPinger{err: errors.New("closed")}, nil, &logger).server.Handler
	rec = do(t, h, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
