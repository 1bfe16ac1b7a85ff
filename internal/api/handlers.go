package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"cabinres/internal/domain"
	"cabinres/internal/export"
	"cabinres/internal/models"
	"cabinres/internal/pricing"
	"cabinres/internal/report"
	"cabinres/internal/service"

	"github.com/go-playground/validator/v10"
)

// BookingAPI is the part of the booking service the HTTP layer drives.
type BookingAPI interface {
	CreateBooking(ctx context.Context, actor models.Actor, req service.CreateRequest) (*models.Booking, error)
	ModifyBooking(ctx context.Context, actor models.Actor, req service.ModifyRequest) (*models.Booking, error)
	CancelBooking(ctx context.Context, actor models.Actor, bookingID int64) error
	GetBooking(ctx context.Context, actor models.Actor, id int64) (*models.Booking, error)
	ListBookingsByCabin(ctx context.Context, actor models.Actor, cabinID int64) ([]*models.Booking, error)
	CheckAvailability(ctx context.Context, cabinID int64, start, end time.Time, excludeID int64) (*service.AvailabilityResult, error)
	QuoteBooking(ctx context.Context, req service.QuoteRequest) (*pricing.Breakdown, error)
	GenerateOccupancyReport(ctx context.Context, actor models.Actor, req service.ReportRequest) (*report.Report, error)
	ListMyBookings(ctx context.Context, actor models.Actor) ([]*models.Booking, error)
	SearchBookings(ctx context.Context, actor models.Actor, filter models.BookingFilter) ([]*models.Booking, error)
	GetInvoice(ctx context.Context, actor models.Actor, bookingID int64) (*models.Invoice, error)
	SetInvoicePaid(ctx context.Context, actor models.Actor, bookingID int64, paid bool) (*models.Invoice, error)
	ListInvoices(ctx context.Context, actor models.Actor, filter models.InvoiceFilter) ([]*models.InvoiceEntry, error)
}

// Заголовки, которыми фронт передает пользователя
const (
	actorIDHeader    = "x-actor-id"
	actorRolesHeader = "x-actor-roles"
)

const (
	dayLayout = "2006-01-02"
	xlsxType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type activityBody struct {
	ActivityID  int64  `json:"activity_id" validate:"gt=0"`
	ScheduledAt string `json:"scheduled_at" validate:"required"`
}

// newBookingBody is the payload of create and quote requests.
type newBookingBody struct {
	CabinID    int64          `json:"cabin_id" validate:"required,gt=0"`
	PersonID   int64          `json:"person_id" validate:"gte=0"`
	Start      string         `json:"start" validate:"required"`
	End        string         `json:"end" validate:"required"`
	Activities []activityBody `json:"activities" validate:"omitempty,dive"`
}

type changeBookingBody struct {
	Start      string         `json:"start" validate:"required"`
	End        string         `json:"end" validate:"required"`
	Activities []activityBody `json:"activities" validate:"omitempty,dive"`
	Version    int64          `json:"version" validate:"gte=0"`
}

type invoicePaidBody struct {
	Paid *bool `json:"paid" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage names the first failing field by its JSON path.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		return fmt.Sprintf("%s: failed %s", field, fe.Tag())
	}
	return err.Error()
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	body, ok := decodeBody[newBookingBody](w, r)
	if !ok {
		return
	}
	start, end, activities, err := s.parseBooking(body.Start, body.End, body.Activities)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := s.svc.CreateBooking(r.Context(), actor, service.CreateRequest{
		CabinID:    body.CabinID,
		PersonID:   body.PersonID,
		Start:      start,
		End:        end,
		Activities: activities,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *HTTPServer) handleModifyBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	body, ok := decodeBody[changeBookingBody](w, r)
	if !ok {
		return
	}
	start, end, activities, err := s.parseBooking(body.Start, body.End, body.Activities)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := s.svc.ModifyBooking(r.Context(), actor, service.ModifyRequest{
		BookingID:  id,
		Start:      start,
		End:        end,
		Activities: activities,
		Version:    body.Version,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.svc.CancelBooking(r.Context(), actor, id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b, err := s.svc.GetBooking(r.Context(), actor, id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleCabinBookings(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	bookings, err := s.svc.ListBookingsByCabin(r.Context(), actor, id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	cabinID, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	start, end, err := s.parseRange(q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var exclude int64
	if raw := strings.TrimSpace(q.Get("exclude")); raw != "" {
		if exclude, err = strconv.ParseInt(raw, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "exclude must be a booking id")
			return
		}
	}

	res, err := s.svc.CheckAvailability(r.Context(), cabinID, start, end, exclude)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody[newBookingBody](w, r)
	if !ok {
		return
	}
	start, end, activities, err := s.parseBooking(body.Start, body.End, body.Activities)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := s.svc.QuoteBooking(r.Context(), service.QuoteRequest{
		CabinID:    body.CabinID,
		Start:      start,
		End:        end,
		Activities: activities,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *HTTPServer) handleOccupancyReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	start, end, err := s.parseRange(q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resortIDs, err := parseIDs(q.Get("resorts"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep, err := s.svc.GenerateOccupancyReport(r.Context(), actor, service.ReportRequest{
		Start:     start,
		End:       end,
		ResortIDs: resortIDs,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	switch format := strings.ToLower(strings.TrimSpace(q.Get("format"))); format {
	case "", "json":
		writeJSON(w, http.StatusOK, rep)
	case "xlsx":
		var buf bytes.Buffer
		if err := export.WriteOccupancy(&buf, rep); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.archive(rep)
		w.Header().Set("Content-Type", xlsxType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(rep)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
	}
}

// handleListBookings returns the caller's own bookings, or searches when any filter is given.
func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	start, end, err := s.optionalRange(q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := models.BookingFilter{
		ResortName: strings.TrimSpace(q.Get("resort")),
		CabinName:  strings.TrimSpace(q.Get("cabin")),
		LastName:   strings.TrimSpace(q.Get("last_name")),
		Start:      start,
		End:        end,
	}

	var bookings []*models.Booking
	if filter == (models.BookingFilter{}) {
		bookings, err = s.svc.ListMyBookings(r.Context(), actor)
	} else {
		bookings, err = s.svc.SearchBookings(r.Context(), actor, filter)
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, err := s.svc.GetInvoice(r.Context(), actor, id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *HTTPServer) handleSetInvoicePaid(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	body, ok := decodeBody[invoicePaidBody](w, r)
	if !ok {
		return
	}
	inv, err := s.svc.SetInvoicePaid(r.Context(), actor, id, *body.Paid)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *HTTPServer) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	status, err := parseInvoiceStatus(q.Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, to, err := s.optionalRange(q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	invoices, err := s.svc.ListInvoices(r.Context(), actor, models.InvoiceFilter{
		ResortName:  strings.TrimSpace(q.Get("resort")),
		CabinName:   strings.TrimSpace(q.Get("cabin")),
		FirstName:   strings.TrimSpace(q.Get("first_name")),
		LastName:    strings.TrimSpace(q.Get("last_name")),
		ExpiresFrom: from,
		ExpiresTo:   to,
		Status:      status,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if invoices == nil {
		invoices = []*models.InvoiceEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func parseInvoiceStatus(raw string) (models.InvoiceStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "all":
		return models.InvoiceAny, nil
	case "unpaid":
		return models.InvoiceUnpaid, nil
	case "paid":
		return models.InvoicePaid, nil
	}
	return models.InvoiceAny, fmt.Errorf("unsupported status %q; expected paid, unpaid or all", raw)
}

func (s *HTTPServer) archive(rep *report.Report) {
	if s.exportDir == "" {
		return
	}
	path, err := export.SaveOccupancy(s.exportDir, rep)
	if err != nil {
		s.log.Warn().Err(err).Str("dir", s.exportDir).Msg("archive occupancy report")
		return
	}
	s.log.Debug().Str("path", path).Msg("occupancy report archived")
}

// actor reads the caller identity forwarded by the trusted front end.
func (s *HTTPServer) actor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	raw := strings.TrimSpace(r.Header.Get(actorIDHeader))
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "missing actor")
		return models.Actor{}, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusUnauthorized, "invalid actor id")
		return models.Actor{}, false
	}
	return models.Actor{PersonID: id, Roles: splitCSV(r.Header.Get(actorRolesHeader))}, true
}

func (s *HTTPServer) parseBooking(rawStart, rawEnd string, body []activityBody) (time.Time, time.Time, []service.ActivityRequest, error) {
	start, end, err := s.parseRange(rawStart, rawEnd)
	if err != nil {
		return start, end, nil, err
	}
	activities := make([]service.ActivityRequest, 0, len(body))
	for _, a := range body {
		at, err := s.parseTime(a.ScheduledAt)
		if err != nil {
			return start, end, nil, fmt.Errorf("activity %d: invalid scheduled_at", a.ActivityID)
		}
		activities = append(activities, service.ActivityRequest{ActivityID: a.ActivityID, ScheduledAt: at})
	}
	return start, end, activities, nil
}

func (s *HTTPServer) parseRange(rawStart, rawEnd string) (time.Time, time.Time, error) {
	start, err := s.parseTime(rawStart)
	if err != nil {
		return start, start, fmt.Errorf("invalid start; expected YYYY-MM-DD")
	}
	end, err := s.parseTime(rawEnd)
	if err != nil {
		return start, end, fmt.Errorf("invalid end; expected YYYY-MM-DD")
	}
	return start, end, nil
}

// optionalRange parses search bounds; an empty bound stays zero.
func (s *HTTPServer) optionalRange(rawStart, rawEnd string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if strings.TrimSpace(rawStart) != "" {
		if start, err = s.parseTime(rawStart); err != nil {
			return start, end, fmt.Errorf("invalid start; expected YYYY-MM-DD")
		}
	}
	if strings.TrimSpace(rawEnd) != "" {
		if end, err = s.parseTime(rawEnd); err != nil {
			return start, end, fmt.Errorf("invalid end; expected YYYY-MM-DD")
		}
	}
	return start, end, nil
}

func (s *HTTPServer) parseTime(raw string) (time.Time, error) {
	return parseDate(raw, s.loc)
}

// parseDate accepts a calendar day in loc or an RFC 3339 timestamp.
func parseDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.ParseInLocation(dayLayout, raw, loc); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	kind := domain.Kind(err)
	code := statusFor(kind)
	if code == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
		writeJSON(w, code, map[string]string{"error": "internal error", "kind": kind})
		return
	}
	writeJSON(w, code, map[string]string{"error": err.Error(), "kind": kind})
}

func statusFor(kind string) int {
	switch kind {
	case "validation":
		return http.StatusBadRequest
	case "conflict", "concurrency":
		return http.StatusConflict
	case "unauthorized":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var body T
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return body, false
	}
	if err := validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return body, false
	}
	return body, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func parseIDs(raw string) ([]int64, error) {
	parts := splitCSV(raw)
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid resort id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
