package models

import "time"

// BookingFilter narrows a booking search. Name fields match case-insensitive substrings;
// zero values match everything. Start and End select bookings sharing a day with [Start, End].
type BookingFilter struct {
	ResortName string
	CabinName  string
	LastName   string
	Start      time.Time
	End        time.Time
	OwnerID    int64
}

type InvoiceStatus int

const (
	InvoiceAny InvoiceStatus = iota
	InvoiceUnpaid
	InvoicePaid
)

// InvoiceFilter narrows an invoice search; the date bounds apply to the expiry day.
type InvoiceFilter struct {
	ResortName  string
	CabinName   string
	FirstName   string
	LastName    string
	ExpiresFrom time.Time
	ExpiresTo   time.Time
	Status      InvoiceStatus
	OwnerID     int64
}

// InvoiceEntry is an invoice together with the names it is searched by.
type InvoiceEntry struct {
	Invoice
	CabinID    int64  `json:"cabin_id"`
	CabinName  string `json:"cabin_name"`
	ResortName string `json:"resort_name"`
	PersonID   int64  `json:"person_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
}
