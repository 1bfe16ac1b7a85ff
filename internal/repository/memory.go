package repository

import (
	"context"
	"fmt"
	"sync"
)

// MemoryCabinLocker serializes writers per cabin inside one process.
type MemoryCabinLocker struct {
	mu    sync.Mutex
	slots map[int64]*cabinSlot
}

type cabinSlot struct {
	sem  chan struct{}
	refs int
}

func NewMemoryCabinLocker() *MemoryCabinLocker {
	return &MemoryCabinLocker{slots: make(map[int64]*cabinSlot)}
}

func (l *MemoryCabinLocker) WithCabinLock(ctx context.Context, cabinID int64, fn func(ctx context.Context) error) error {
	slot := l.acquireSlot(cabinID)
	defer l.releaseSlot(cabinID, slot)

	select {
	case slot.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("wait for cabin %d: %w", cabinID, ctx.Err())
	}
	defer func() { <-slot.sem }()

	return fn(ctx)
}

func (l *MemoryCabinLocker) acquireSlot(cabinID int64) *cabinSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[cabinID]
	if !ok {
		slot = &cabinSlot{sem: make(chan struct{}, 1)}
		l.slots[cabinID] = slot
	}
	slot.refs++
	return slot
}

func (l *MemoryCabinLocker) releaseSlot(cabinID int64, slot *cabinSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, cabinID)
	}
}

// held reports how many cabins currently have waiters or holders.
func (l *MemoryCabinLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
