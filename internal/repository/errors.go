package repository

import (
	"errors"
	"fmt"

	"cabinres/internal/domain"
)

// ErrLockBusy is returned when another writer kept the cabin lease for the whole retry budget.
var ErrLockBusy = fmt.Errorf("cabin lock is busy: %w", domain.ErrConcurrency)

// ErrLockUnavailable marks failures of the lock backend itself, as opposed to contention.
var ErrLockUnavailable = errors.New("cabin lock backend unavailable")

// ErrLockLost is the cancellation cause seen by a callback whose lease was taken over mid-flight.
var ErrLockLost = fmt.Errorf("cabin lock lost: %w", domain.ErrConcurrency)
