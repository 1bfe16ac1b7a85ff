package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cabinres/internal/models"
)

const bookingColumns = `id, cabin_id, person_id, start_date, end_date, booked_at, version`

func (db *DB) FindBookingsByCabin(ctx context.Context, cabinID int64) ([]*models.Booking, error) {
	rows, err := db.q.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE cabin_id = ? ORDER BY start_date, id`, cabinID)
	if err != nil {
		return nil, fmt.Errorf("query bookings by cabin %d: %w", cabinID, err)
	}
	return db.collectBookings(ctx, rows)
}

// FindBookingsInRange returns every booking that shares at least one day with [start, end].
func (db *DB) FindBookingsInRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	rows, err := db.q.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings
         WHERE start_date <= ? AND end_date >= ?
         ORDER BY cabin_id, start_date, id`,
		models.FormatDay(end), models.FormatDay(start))
	if err != nil {
		return nil, fmt.Errorf("query bookings in range: %w", err)
	}
	return db.collectBookings(ctx, rows)
}

// FindBookingsByPerson returns the bookings made for a person, earliest stay first.
func (db *DB) FindBookingsByPerson(ctx context.Context, personID int64) ([]*models.Booking, error) {
	rows, err := db.q.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE person_id = ? ORDER BY start_date, id`, personID)
	if err != nil {
		return nil, fmt.Errorf("query bookings by person %d: %w", personID, err)
	}
	return db.collectBookings(ctx, rows)
}

func (db *DB) FindBookingByID(ctx context.Context, id int64) (*models.Booking, error) {
	row := db.q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrBookingNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query booking %d: %w", id, err)
	}

	if err := db.loadDetails(ctx, []*models.Booking{b}); err != nil {
		return nil, err
	}
	return b, nil
}

// SaveBooking inserts a new booking (ID == 0) or replaces an existing one together with its
// attached activities and invoice. Updates are guarded by the booking version.
func (db *DB) SaveBooking(ctx context.Context, booking *models.Booking) error {
	return db.atomically(ctx, func(tx *DB) error {
		if booking.ID == 0 {
			return tx.insertBooking(ctx, booking)
		}
		return tx.updateBooking(ctx, booking)
	})
}

func (db *DB) insertBooking(ctx context.Context, b *models.Booking) error {
	res, err := db.q.ExecContext(ctx,
		`INSERT INTO bookings (cabin_id, person_id, start_date, end_date, booked_at, version)
         VALUES (?, ?, ?, ?, ?, 1)`,
		b.CabinID, b.PersonID, models.FormatDay(b.Start), models.FormatDay(b.End), b.BookedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	b.ID = id
	b.Version = 1

	return db.writeDetails(ctx, b)
}

func (db *DB) updateBooking(ctx context.Context, b *models.Booking) error {
	res, err := db.q.ExecContext(ctx,
		`UPDATE bookings
         SET person_id = ?, start_date = ?, end_date = ?, booked_at = ?,
             version = version + 1, updated_at = CURRENT_TIMESTAMP
         WHERE id = ? AND version = ?`,
		b.PersonID, models.FormatDay(b.Start), models.FormatDay(b.End), b.BookedAt.UTC(), b.ID, b.Version)
	if err != nil {
		return fmt.Errorf("update booking %d: %w", b.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update booking %d: %w", b.ID, err)
	}
	if affected == 0 {
		var exists int
		err := db.q.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = ?`, b.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: id %d", ErrBookingNotFound, b.ID)
		}
		return fmt.Errorf("%w: booking %d at version %d", ErrConcurrentModification, b.ID, b.Version)
	}
	b.Version++

	if _, err := db.q.ExecContext(ctx, `DELETE FROM attached_activities WHERE booking_id = ?`, b.ID); err != nil {
		return fmt.Errorf("clear activities of booking %d: %w", b.ID, err)
	}
	if _, err := db.q.ExecContext(ctx, `DELETE FROM invoices WHERE booking_id = ?`, b.ID); err != nil {
		return fmt.Errorf("clear invoice of booking %d: %w", b.ID, err)
	}

	return db.writeDetails(ctx, b)
}

func (db *DB) writeDetails(ctx context.Context, b *models.Booking) error {
	for i := range b.Activities {
		a := &b.Activities[i]
		res, err := db.q.ExecContext(ctx,
			`INSERT INTO attached_activities (booking_id, activity_id, scheduled_at) VALUES (?, ?, ?)`,
			b.ID, a.ActivityID, a.ScheduledAt.UTC())
		if err != nil {
			return fmt.Errorf("attach activity %d to booking %d: %w", a.ActivityID, b.ID, err)
		}
		if id, err := res.LastInsertId(); err == nil {
			a.ID = id
		}
		a.BookingID = b.ID
	}

	if b.Invoice == nil {
		return nil
	}

	created := b.Invoice.CreatedAt
	if created.IsZero() {
		created = b.BookedAt
	}
	res, err := db.q.ExecContext(ctx,
		`INSERT INTO invoices (booking_id, total, expires_on, paid, created_at) VALUES (?, ?, ?, ?, ?)`,
		b.ID, int64(b.Invoice.Total), models.FormatDay(b.Invoice.ExpiresAt), b.Invoice.Paid, created.UTC())
	if err != nil {
		return fmt.Errorf("insert invoice for booking %d: %w", b.ID, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		b.Invoice.ID = id
	}
	b.Invoice.BookingID = b.ID
	b.Invoice.CreatedAt = created
	return nil
}

// DeleteBooking removes the booking; attached activities and the invoice cascade.
func (db *DB) DeleteBooking(ctx context.Context, booking *models.Booking) error {
	return db.atomically(ctx, func(tx *DB) error {
		res, err := tx.q.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, booking.ID)
		if err != nil {
			return fmt.Errorf("delete booking %d: %w", booking.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete booking %d: %w", booking.ID, err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: id %d", ErrBookingNotFound, booking.ID)
		}
		return nil
	})
}

// SetInvoicePaid records whether the invoice of a booking has been settled.
func (db *DB) SetInvoicePaid(ctx context.Context, bookingID int64, paid bool) error {
	res, err := db.q.ExecContext(ctx, `UPDATE invoices SET paid = ? WHERE booking_id = ?`, paid, bookingID)
	if err != nil {
		return fmt.Errorf("set invoice paid: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: invoice of booking %d", ErrBookingNotFound, bookingID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b          models.Booking
		start, end string
	)
	if err := row.Scan(&b.ID, &b.CabinID, &b.PersonID, &start, &end, &b.BookedAt, &b.Version); err != nil {
		return nil, err
	}

	var err error
	if b.Start, err = models.ParseDay(start); err != nil {
		return nil, fmt.Errorf("booking %d start: %w", b.ID, err)
	}
	if b.End, err = models.ParseDay(end); err != nil {
		return nil, fmt.Errorf("booking %d end: %w", b.ID, err)
	}
	b.BookedAt = b.BookedAt.UTC()
	return &b, nil
}

func (db *DB) collectBookings(ctx context.Context, rows *sql.Rows) ([]*models.Booking, error) {
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// rows must be released before the detail queries when only one connection is open
	rows.Close()

	if err := db.loadDetails(ctx, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// loadDetails fills activities and invoices for a batch of bookings with two queries.
func (db *DB) loadDetails(ctx context.Context, bookings []*models.Booking) error {
	if len(bookings) == 0 {
		return nil
	}

	byID := make(map[int64]*models.Booking, len(bookings))
	ids := make([]any, 0, len(bookings))
	for _, b := range bookings {
		byID[b.ID] = b
		ids = append(ids, b.ID)
	}
	in := placeholders(len(ids))

	rows, err := db.q.QueryContext(ctx,
		`SELECT id, booking_id, activity_id, scheduled_at FROM attached_activities
         WHERE booking_id IN (`+in+`) ORDER BY id`, ids...)
	if err != nil {
		return fmt.Errorf("query attached activities: %w", err)
	}
	for rows.Next() {
		var a models.AttachedActivity
		if err := rows.Scan(&a.ID, &a.BookingID, &a.ActivityID, &a.ScheduledAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan attached activity: %w", err)
		}
		a.ScheduledAt = a.ScheduledAt.UTC()
		if b := byID[a.BookingID]; b != nil {
			b.Activities = append(b.Activities, a)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	rows, err = db.q.QueryContext(ctx,
		`SELECT id, booking_id, total, expires_on, paid, created_at FROM invoices
         WHERE booking_id IN (`+in+`)`, ids...)
	if err != nil {
		return fmt.Errorf("query invoices: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			inv     models.Invoice
			total   int64
			expires string
		)
		if err := rows.Scan(&inv.ID, &inv.BookingID, &total, &expires, &inv.Paid, &inv.CreatedAt); err != nil {
			return fmt.Errorf("scan invoice: %w", err)
		}
		inv.Total = models.Money(total)
		inv.CreatedAt = inv.CreatedAt.UTC()
		if inv.ExpiresAt, err = models.ParseDay(expires); err != nil {
			return fmt.Errorf("invoice %d expiry: %w", inv.ID, err)
		}
		if b := byID[inv.BookingID]; b != nil {
			b.Invoice = &inv
		}
	}
	return rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
