package database

import (
	"fmt"

	"cabinres/internal/domain"
)

var (
	ErrConcurrentModification = fmt.Errorf("booking version mismatch: %w", domain.ErrConcurrency)
	ErrBookingNotFound        = fmt.Errorf("booking: %w", domain.ErrNotFound)
	ErrCabinNotFound          = fmt.Errorf("cabin: %w", domain.ErrNotFound)
	ErrActivityNotFound       = fmt.Errorf("activity: %w", domain.ErrNotFound)
	ErrPersonNotFound         = fmt.Errorf("person: %w", domain.ErrNotFound)
)
