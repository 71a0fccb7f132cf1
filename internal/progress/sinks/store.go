package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/workflow-translator/internal/progress"
	"github.com/JakeFAU/workflow-translator/internal/store"
)

// StoreSink persists run progress via a store.RunRepository. Chunk events in
// one batch are collapsed into a single delta per run.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume applies the batch. Pending deltas for a run are written before its
// completion so the final row carries every counter.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	deltas := make(map[uuid.UUID]*store.ProgressDelta)
	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageChunkWritten, progress.StageChunkSkipped:
			accumulate(deltas, runID, evt)
		case progress.StageRunDone, progress.StageRunError:
			if err := s.flushRun(ctx, deltas, runID); err != nil {
				return err
			}
			if err := s.completeRun(ctx, runID, evt); err != nil {
				return err
			}
		}
	}
	for runID := range deltas {
		if err := s.flushRun(ctx, deltas, runID); err != nil {
			return err
		}
	}
	return nil
}

func accumulate(deltas map[uuid.UUID]*store.ProgressDelta, runID uuid.UUID, evt progress.Event) {
	delta := deltas[runID]
	if delta == nil {
		delta = &store.ProgressDelta{}
		deltas[runID] = delta
	}
	if evt.Stage == progress.StageChunkWritten {
		delta.ChunksWritten++
		delta.BytesWritten += evt.Bytes
		if lines := int64(evt.HistoryLines); lines > delta.HistoryLines {
			delta.HistoryLines = lines
		}
	} else {
		delta.ChunksSkipped++
	}
	if evt.TS.After(delta.At) {
		delta.At = evt.TS
	}
}

func (s *StoreSink) flushRun(ctx context.Context, deltas map[uuid.UUID]*store.ProgressDelta, runID uuid.UUID) error {
	delta, ok := deltas[runID]
	if !ok {
		return nil
	}
	delete(deltas, runID)
	if delta.Empty() {
		return nil
	}
	if err := s.repo.RecordProgress(ctx, runID, *delta); err != nil {
		return fmt.Errorf("record run progress: %w", err)
	}
	return nil
}

func (s *StoreSink) completeRun(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	status := store.RunSuccess
	var note *string
	if evt.Stage == progress.StageRunError {
		status = store.RunError
		if evt.Note != "" {
			note = &evt.Note
		}
	}
	if err := s.repo.CompleteRun(ctx, runID, evt.TS, status, note); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	s.logger.Debug("run completion stored", zap.Stringer("run_id", runID), zap.String("status", string(status)))
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
