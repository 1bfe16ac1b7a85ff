package service

import (
	"context"
	"fmt"

	"cabinres/internal/domain"
	"cabinres/internal/models"
	"cabinres/internal/policy"
)

// PaidInvoiceGuard refuses to cancel bookings whose invoice is already paid, unless the actor
// holds a bypass capability for cancellation.
type PaidInvoiceGuard struct {
	policy *policy.Policy
}

func NewPaidInvoiceGuard(p *policy.Policy) *PaidInvoiceGuard {
	return &PaidInvoiceGuard{policy: p}
}

func (g *PaidInvoiceGuard) BeforeCancel(_ context.Context, actor models.Actor, b *models.Booking) error {
	if b.Invoice == nil || !b.Invoice.Paid {
		return nil
	}
	if g.policy != nil && g.policy.IsElevated(actor, policy.ActionCancel) {
		return nil
	}
	return fmt.Errorf("booking %d has a paid invoice: %w", b.ID, domain.ErrValidation)
}
