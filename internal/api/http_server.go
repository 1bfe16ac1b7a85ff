package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cabinres/internal/config"
	"cabinres/internal/metrics"

	"github.com/rs/zerolog"
)

// HTTPServer exposes the booking core as a JSON API.
type HTTPServer struct {
	cfg    config.APIConfig
	svc    BookingAPI
	ready  Pinger
	loc    *time.Location
	server *http.Server
	auth   *HTTPAuth
	log    zerolog.Logger

	// exportDir, when set, keeps a copy of every generated xlsx report.
	exportDir string
}

// NewHTTPServer wires the routes. Calendar dates in requests are read in loc.
func NewHTTPServer(cfg config.APIConfig, svc BookingAPI, ready Pinger, loc *time.Location, logger *zerolog.Logger) *HTTPServer {
	if loc == nil {
		loc = time.UTC
	}
	srv := &HTTPServer{
		cfg:   cfg,
		svc:   svc,
		ready: ready,
		loc:   loc,
		auth:  NewHTTPAuth(cfg),
		log:   zerolog.Nop(),
	}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)
	mux.HandleFunc("GET /readyz", srv.handleReady)

	srv.route(mux, "GET /api/v1/bookings", PermReadBookings, srv.handleListBookings)
	srv.route(mux, "POST /api/v1/bookings", PermWriteBookings, srv.handleCreateBooking)
	srv.route(mux, "POST /api/v1/bookings/quote", PermReadBookings, srv.handleQuote)
	srv.route(mux, "GET /api/v1/bookings/{id}", PermReadBookings, srv.handleGetBooking)
	srv.route(mux, "PUT /api/v1/bookings/{id}", PermWriteBookings, srv.handleModifyBooking)
	srv.route(mux, "DELETE /api/v1/bookings/{id}", PermWriteBookings, srv.handleCancelBooking)
	srv.route(mux, "GET /api/v1/bookings/{id}/invoice", PermReadBookings, srv.handleGetInvoice)
	srv.route(mux, "PUT /api/v1/bookings/{id}/invoice/paid", PermWriteBookings, srv.handleSetInvoicePaid)
	srv.route(mux, "GET /api/v1/invoices", PermReadBookings, srv.handleListInvoices)
	srv.route(mux, "GET /api/v1/cabins/{id}/availability", PermReadBookings, srv.handleAvailability)
	srv.route(mux, "GET /api/v1/cabins/{id}/bookings", PermReadBookings, srv.handleCabinBookings)
	srv.route(mux, "GET /api/v1/reports/occupancy", PermReadReports, srv.handleOccupancyReport)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) route(mux *http.ServeMux, pattern, permission string, h http.HandlerFunc) {
	endpoint := pattern
	guarded := s.auth.Require(permission, h)
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		guarded.ServeHTTP(recorder, r)
		metrics.IncHTTP(endpoint, recorder.status)
	}))
}

// ArchiveExportsTo makes xlsx reports also land in dir.
func (s *HTTPServer) ArchiveExportsTo(dir string) {
	s.exportDir = dir
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.PingContext(ctx); err != nil {
			s.log.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := requestID(r.Header.Get(requestIDKey))
		w.Header().Set(requestIDKey, id)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.log.Info().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
