package progress

import (
	"context"
	"time"
)

// Sink consumes batches of progress events. Consume may be called many times
// and must honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. Hub satisfies it; pipeline stages only
// depend on this interface.
type Emitter interface {
	Emit(evt Event)
}

// RunEmitter stamps events with a run ID and timestamp before forwarding them.
// A nil RunEmitter or one without a target discards events.
type RunEmitter struct {
	target Emitter
	runID  [16]byte
	now    func() time.Time
}

// NewRunEmitter binds target to runID. now defaults to time.Now.
func NewRunEmitter(target Emitter, runID [16]byte, now func() time.Time) *RunEmitter {
	if now == nil {
		now = time.Now
	}
	return &RunEmitter{target: target, runID: runID, now: now}
}

// Emit fills RunID and TS and forwards evt.
func (r *RunEmitter) Emit(evt Event) {
	if r == nil || r.target == nil {
		return
	}
	evt.RunID = r.runID
	if evt.TS.IsZero() {
		evt.TS = r.now().UTC()
	}
	r.target.Emit(evt)
}
