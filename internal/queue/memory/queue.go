// Package memory provides the bounded in-process queue between workers and the
// sequencer.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/workflow-translator/internal/translate"
)

// DefaultCapacity is the queue depth used when none is configured.
const DefaultCapacity = 1024

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded FIFO of result messages with context-aware operations.
// Enqueue blocks while the queue is full.
type Queue struct {
	ch      chan translate.Message
	closeMu sync.Mutex
	closed  bool
}

var _ translate.Queue = (*Queue)(nil)

// NewQueue constructs a queue with the provided capacity. Non-positive values
// fall back to DefaultCapacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		ch: make(chan translate.Message, capacity),
	}
}

// Enqueue pushes msg or returns if the context ends first.
func (q *Queue) Enqueue(ctx context.Context, msg translate.Message) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- msg:
		return nil
	}
}

// Dequeue pops the next message, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (translate.Message, error) {
	select {
	case <-ctx.Done():
		return translate.Message{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case msg, ok := <-q.ch:
		if !ok {
			return translate.Message{}, ErrClosed
		}
		return msg, nil
	}
}

// Len reports how many messages are buffered.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap reports the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Close closes the underlying channel. Callers must stop enqueueing first.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
