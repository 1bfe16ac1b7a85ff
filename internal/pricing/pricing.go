// Package pricing computes booking invoices from cabin day rates and attached activities.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cabinres/internal/domain"
	"cabinres/internal/models"
)

// Line is one priced attached activity.
type Line struct {
	ActivityID int64        `json:"activity_id"`
	Name       string       `json:"name"`
	Price      models.Money `json:"price"`
}

// Breakdown is an itemized invoice total.
type Breakdown struct {
	Days          int          `json:"days"`
	PricePerDay   models.Money `json:"price_per_day"`
	CabinSubtotal models.Money `json:"cabin_subtotal"`
	Activities    []Line       `json:"activities"`
	ActivityTotal models.Money `json:"activity_total"`
	Total         models.Money `json:"total"`
	ExpiresAt     time.Time    `json:"expires_at"`
}

type Engine struct {
	lookup     domain.ActivityLookup
	expiryDays int
}

func NewEngine(lookup domain.ActivityLookup, expiryDays int) *Engine {
	if expiryDays <= 0 {
		expiryDays = models.DefaultInvoiceExpiryDays
	}
	return &Engine{lookup: lookup, expiryDays: expiryDays}
}

// WithLookup returns a copy of the engine resolving activities through lookup,
// used to price inside a transaction.
func (e *Engine) WithLookup(lookup domain.ActivityLookup) *Engine {
	return &Engine{lookup: lookup, expiryDays: e.expiryDays}
}

// Quote prices a stay. A reference to an unknown activity is a validation error.
func (e *Engine) Quote(ctx context.Context, pricePerDay models.Money, start, end time.Time,
	attached []models.AttachedActivity) (*Breakdown, error) {
	if pricePerDay < 0 {
		return nil, fmt.Errorf("negative cabin price %s: %w", pricePerDay, domain.ErrValidation)
	}

	days := models.DaysBetween(start, end)
	b := &Breakdown{
		Days:          days,
		PricePerDay:   pricePerDay,
		CabinSubtotal: pricePerDay * models.Money(days),
		Activities:    make([]Line, 0, len(attached)),
		ExpiresAt:     models.AddDays(end, e.expiryDays),
	}

	for _, a := range attached {
		activity, err := e.resolve(ctx, a.ActivityID)
		if err != nil {
			return nil, err
		}
		b.Activities = append(b.Activities, Line{ActivityID: activity.ID, Name: activity.Name, Price: activity.Price})
		b.ActivityTotal += activity.Price
	}

	b.Total = b.CabinSubtotal + b.ActivityTotal
	return b, nil
}

// ComputeInvoice returns a fresh unpaid invoice for the stay.
func (e *Engine) ComputeInvoice(ctx context.Context, pricePerDay models.Money, start, end time.Time,
	attached []models.AttachedActivity) (models.Invoice, error) {
	b, err := e.Quote(ctx, pricePerDay, start, end, attached)
	if err != nil {
		return models.Invoice{}, err
	}
	return models.Invoice{
		Total:     b.Total,
		ExpiresAt: b.ExpiresAt,
		Paid:      false,
	}, nil
}

func (e *Engine) resolve(ctx context.Context, id int64) (*models.Activity, error) {
	if e.lookup == nil {
		return nil, fmt.Errorf("activity %d: no activity lookup configured: %w", id, domain.ErrValidation)
	}
	activity, err := e.lookup.GetActivity(ctx, id)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && activity == nil) {
		return nil, fmt.Errorf("activity %d does not exist: %w", id, domain.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup activity %d: %w", id, err)
	}
	if activity.Price < 0 {
		return nil, fmt.Errorf("activity %d has negative price: %w", id, domain.ErrValidation)
	}
	return activity, nil
}
