package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"cabinres/internal/models"
)

const searchedBookingColumns = `b.id, b.cabin_id, b.person_id, b.start_date, b.end_date, b.booked_at, b.version`

// conditions accumulates a WHERE clause and its arguments.
type conditions struct {
	clauses []string
	args    []any
}

func (c *conditions) add(clause string, args ...any) {
	c.clauses = append(c.clauses, clause)
	c.args = append(c.args, args...)
}

// contains matches a case-insensitive substring; an empty needle adds nothing.
func (c *conditions) contains(column, needle string) {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return
	}
	c.add(`LOWER(COALESCE(`+column+`, '')) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(needle))+"%")
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// SearchBookings returns the bookings matching f ordered by start date.
func (db *DB) SearchBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error) {
	var c conditions
	c.contains("r.name", f.ResortName)
	c.contains("c.name", f.CabinName)
	c.contains("p.last_name", f.LastName)
	if !f.Start.IsZero() {
		c.add("b.end_date >= ?", models.FormatDay(f.Start))
	}
	if !f.End.IsZero() {
		c.add("b.start_date <= ?", models.FormatDay(f.End))
	}
	if f.OwnerID != 0 {
		c.add("c.owner_id = ?", f.OwnerID)
	}

	rows, err := db.q.QueryContext(ctx,
		`SELECT `+searchedBookingColumns+` FROM bookings b
         JOIN cabins c ON c.id = b.cabin_id
         JOIN resorts r ON r.id = c.resort_id
         JOIN persons p ON p.id = b.person_id`+c.where()+`
         ORDER BY b.start_date, b.id`, c.args...)
	if err != nil {
		return nil, fmt.Errorf("search bookings: %w", err)
	}
	return db.collectBookings(ctx, rows)
}

// SearchInvoices returns the invoices matching f ordered by expiry day.
func (db *DB) SearchInvoices(ctx context.Context, f models.InvoiceFilter) ([]*models.InvoiceEntry, error) {
	var c conditions
	c.contains("r.name", f.ResortName)
	c.contains("c.name", f.CabinName)
	c.contains("p.first_name", f.FirstName)
	c.contains("p.last_name", f.LastName)
	if !f.ExpiresFrom.IsZero() {
		c.add("i.expires_on >= ?", models.FormatDay(f.ExpiresFrom))
	}
	if !f.ExpiresTo.IsZero() {
		c.add("i.expires_on <= ?", models.FormatDay(f.ExpiresTo))
	}
	switch f.Status {
	case models.InvoiceUnpaid:
		c.add("i.paid = 0")
	case models.InvoicePaid:
		c.add("i.paid = 1")
	}
	if f.OwnerID != 0 {
		c.add("c.owner_id = ?", f.OwnerID)
	}

	rows, err := db.q.QueryContext(ctx,
		`SELECT i.id, i.booking_id, i.total, i.expires_on, i.paid, i.created_at,
                c.id, c.name, r.name, p.id, p.first_name, p.last_name
         FROM invoices i
         JOIN bookings b ON b.id = i.booking_id
         JOIN cabins c ON c.id = b.cabin_id
         JOIN resorts r ON r.id = c.resort_id
         JOIN persons p ON p.id = b.person_id`+c.where()+`
         ORDER BY i.expires_on, i.id`, c.args...)
	if err != nil {
		return nil, fmt.Errorf("search invoices: %w", err)
	}
	defer rows.Close()

	var entries []*models.InvoiceEntry
	for rows.Next() {
		var (
			e           models.InvoiceEntry
			total       int64
			expires     string
			first, last sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.BookingID, &total, &expires, &e.Paid, &e.CreatedAt,
			&e.CabinID, &e.CabinName, &e.ResortName, &e.PersonID, &first, &last); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		e.Total = models.Money(total)
		e.CreatedAt = e.CreatedAt.UTC()
		if e.ExpiresAt, err = models.ParseDay(expires); err != nil {
			return nil, fmt.Errorf("invoice %d expiry: %w", e.ID, err)
		}
		e.FirstName, e.LastName = first.String, last.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
