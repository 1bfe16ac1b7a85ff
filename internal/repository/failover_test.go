package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) WithCabinLock(ctx context.Context, cabinID int64, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, cabinID)
	if args.Bool(0) {
		return fn(ctx)
	}
	return args.Error(1)
}

func TestFailoverCabinLocker(t *testing.T) {
	primary := new(mockLocker)
	fallback := new(mockLocker)
	logger := zerolog.New(io.Discard)
	l := NewFailoverCabinLocker(primary, fallback, &logger)
	ctx := context.Background()
	noop := func(context.Context) error { return nil }

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("WithCabinLock", ctx, int64(1)).Return(true, nil).Once()

		assert.NoError(t, l.WithCabinLock(ctx, 1, noop))
		primary.AssertExpectations(t)
	})

	t.Run("CallbackErrorIsNotFailover", func(t *testing.T) {
		boom := fmt.Errorf("wrapped: %w", ErrLockUnavailable)
		primary.On("WithCabinLock", ctx, int64(2)).Return(true, nil).Once()

		err := l.WithCabinLock(ctx, 2, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.False(t, l.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("BusyIsNotFailover", func(t *testing.T) {
		primary.On("WithCabinLock", ctx, int64(3)).Return(false, ErrLockBusy).Once()

		err := l.WithCabinLock(ctx, 3, noop)
		assert.ErrorIs(t, err, ErrLockBusy)
		assert.False(t, l.isDown.Load())
	})

	t.Run("PrimaryDownFallbackUsed", func(t *testing.T) {
		primary.On("WithCabinLock", ctx, int64(4)).
			Return(false, fmt.Errorf("%w: dial tcp", ErrLockUnavailable)).Once()
		fallback.On("WithCabinLock", ctx, int64(4)).Return(true, nil).Once()

		assert.NoError(t, l.WithCabinLock(ctx, 4, noop))
		assert.True(t, l.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("StaysOnFallbackUntilRecheck", func(t *testing.T) {
		fallback.On("WithCabinLock", ctx, int64(5)).Return(true, nil).Once()

		assert.NoError(t, l.WithCabinLock(ctx, 5, noop))
		fallback.AssertExpectations(t)
		primary.AssertNotCalled(t, "WithCabinLock", ctx, int64(5))
	})

	t.Run("Recovery", func(t *testing.T) {
		l.mu.Lock()
		l.lastCheck = time.Now().Add(-2 * time.Minute)
		l.mu.Unlock()
		primary.On("WithCabinLock", ctx, int64(6)).Return(true, nil).Once()

		assert.NoError(t, l.WithCabinLock(ctx, 6, noop))
		assert.False(t, l.isDown.Load())
	})

	t.Run("PlainErrorsPassThrough", func(t *testing.T) {
		primary.On("WithCabinLock", ctx, int64(7)).Return(false, errors.New("weird")).Once()

		assert.EqualError(t, l.WithCabinLock(ctx, 7, noop), "weird")
		assert.False(t, l.isDown.Load())
	})
}
