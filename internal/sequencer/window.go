package sequencer

import (
	"context"
	"fmt"
)

// Window is a credit semaphore shared by workers and the Sequencer. A worker
// takes a credit before pulling a chunk and the Sequencer returns it when that
// chunk is delivered, so at most Size chunks are pulled but undelivered.
type Window struct {
	slots chan struct{}
}

// NewWindow returns a Window with size credits; size must be positive.
func NewWindow(size int) (*Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("window size must be > 0, got %d", size)
	}
	return &Window{slots: make(chan struct{}, size)}, nil
}

// Acquire blocks until a credit is free or ctx ends.
func (w *Window) Acquire(ctx context.Context) error {
	select {
	case w.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("acquire window credit: %w", ctx.Err())
	}
}

// Release returns one credit. Releasing more than was acquired is a no-op.
func (w *Window) Release() {
	select {
	case <-w.slots:
	default:
	}
}

// Size is the total number of credits.
func (w *Window) Size() int {
	return cap(w.slots)
}

// InFlight is the number of credits currently held.
func (w *Window) InFlight() int {
	return len(w.slots)
}
