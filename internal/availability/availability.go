// Package availability decides whether a cabin is free for a requested date range.
package availability

import (
	"fmt"
	"strings"
	"time"

	"cabinres/internal/models"
)

const (
	RuleNarrow  = "narrow"
	RuleOverlap = "overlap"
)

// Rule reports which existing bookings conflict with [start, end] on cabinID.
// A booking with id excludeID is skipped; zero excludes nothing.
type Rule interface {
	Name() string
	Conflicts(cabinID int64, start, end time.Time, existing []*models.Booking, excludeID int64) []int64
}

// IsAvailable applies the default rule.
func IsAvailable(cabinID int64, start, end time.Time, existing []*models.Booking, excludeID int64) bool {
	return len(NarrowRule{}.Conflicts(cabinID, start, end, existing, excludeID)) == 0
}

// NewRule returns the rule registered under name. Empty name means the narrow rule.
func NewRule(name string) (Rule, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", RuleNarrow:
		return NarrowRule{}, nil
	case RuleOverlap:
		return OverlapRule{}, nil
	default:
		return nil, fmt.Errorf("unknown availability rule %q", name)
	}
}

// NarrowRule walks every day of the closed range [start, end] and rejects a day that equals
// another booking's start+1 or end-1. It is not a general overlap test: a request that only
// shares the first or last day of another stay, or that swallows a one-night stay whole, passes.
type NarrowRule struct{}

func (NarrowRule) Name() string { return RuleNarrow }

func (NarrowRule) Conflicts(cabinID int64, start, end time.Time, existing []*models.Booking, excludeID int64) []int64 {
	var conflicts []int64
	days := models.DaysBetween(start, end)
	for _, b := range existing {
		if !candidate(b, cabinID, excludeID) {
			continue
		}
		afterStart := models.AddDays(b.Start, 1)
		beforeEnd := models.AddDays(b.End, -1)
		for offset := 0; offset <= days; offset++ {
			day := models.AddDays(start, offset)
			if day.Equal(afterStart) || day.Equal(beforeEnd) {
				conflicts = append(conflicts, b.ID)
				break
			}
		}
	}
	return conflicts
}

// OverlapRule is half-open interval overlap: [start, end) against [b.Start, b.End).
// Touching boundaries, where one stay ends the day the next begins, do not conflict.
type OverlapRule struct{}

func (OverlapRule) Name() string { return RuleOverlap }

func (OverlapRule) Conflicts(cabinID int64, start, end time.Time, existing []*models.Booking, excludeID int64) []int64 {
	var conflicts []int64
	for _, b := range existing {
		if !candidate(b, cabinID, excludeID) {
			continue
		}
		if start.Before(b.End) && b.Start.Before(end) {
			conflicts = append(conflicts, b.ID)
		}
	}
	return conflicts
}

func candidate(b *models.Booking, cabinID, excludeID int64) bool {
	if b == nil || b.CabinID != cabinID {
		return false
	}
	return excludeID == 0 || b.ID != excludeID
}
