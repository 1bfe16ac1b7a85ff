package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"cabinres/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverCabinLocker uses the primary locker and switches to the fallback while the primary
// backend is unreachable. The primary is probed again after recheckAfter.
type FailoverCabinLocker struct {
	primary      domain.CabinLocker
	fallback     domain.CabinLocker
	logger       *zerolog.Logger
	recheckAfter time.Duration

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverCabinLocker(primary, fallback domain.CabinLocker, logger *zerolog.Logger) *FailoverCabinLocker {
	return &FailoverCabinLocker{
		primary:      primary,
		fallback:     fallback,
		logger:       logger,
		recheckAfter: time.Minute,
	}
}

func (l *FailoverCabinLocker) WithCabinLock(ctx context.Context, cabinID int64, fn func(ctx context.Context) error) error {
	if l.isDown.Load() && !l.shouldRecheck() {
		return l.fallback.WithCabinLock(ctx, cabinID, fn)
	}

	ran := false
	err := l.primary.WithCabinLock(ctx, cabinID, func(ctx context.Context) error {
		ran = true
		return fn(ctx)
	})
	if ran || !errors.Is(err, ErrLockUnavailable) {
		if ran && l.isDown.CompareAndSwap(true, false) {
			l.logger.Info().Msg("primary cabin locker recovered")
		}
		return err
	}

	if l.isDown.CompareAndSwap(false, true) {
		l.logger.Error().Err(err).Msg("primary cabin locker failed, falling back to memory")
	}
	l.markChecked()
	return l.fallback.WithCabinLock(ctx, cabinID, fn)
}

func (l *FailoverCabinLocker) shouldRecheck() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.lastCheck) <= l.recheckAfter {
		return false
	}
	l.lastCheck = time.Now()
	return true
}

func (l *FailoverCabinLocker) markChecked() {
	l.mu.Lock()
	l.lastCheck = time.Now()
	l.mu.Unlock()
}
