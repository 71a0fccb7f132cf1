// Package worker implements the pull, submit, enqueue loop run by each member
// of the pool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/workflow-translator/internal/metrics"
	"github.com/JakeFAU/workflow-translator/internal/progress"
	"github.com/JakeFAU/workflow-translator/internal/translate"
)

// Config carries the per-run values every request needs.
type Config struct {
	Langs translate.Langs
	Term  string
}

// Worker pulls chunks, submits them to the workflow and forwards outcomes.
type Worker struct {
	index     int
	source    translate.ChunkPuller
	submitter translate.Submitter
	queue     translate.Queue
	window    translate.Window
	emitter   progress.Emitter
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. window and emitter may be nil.
func New(
	index int,
	source translate.ChunkPuller,
	submitter translate.Submitter,
	queue translate.Queue,
	window translate.Window,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		index:     index,
		source:    source,
		submitter: submitter,
		queue:     queue,
		window:    window,
		emitter:   emitter,
		cfg:       cfg,
		logger:    logger.With(zap.Int("worker", index)),
	}
}

// Run processes chunks until the source reports end of file or a read error,
// then sends exactly one end-of-stream sentinel. It returns early only when ctx
// ends or the queue rejects a message.
func (w *Worker) Run(ctx context.Context) error {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	w.logger.Debug("creating worker")

	for {
		if w.window != nil {
			if err := w.window.Acquire(ctx); err != nil {
				return err
			}
		}
		w.logger.Debug("reading next chunk")
		chunk, err := w.source.Next(ctx)
		if err != nil {
			if w.window != nil {
				w.window.Release()
			}
			if ctx.Err() != nil {
				return fmt.Errorf("worker %d: %w", w.index, ctx.Err())
			}
			return w.finish(ctx, err)
		}
		if err := w.process(ctx, chunk); err != nil {
			return err
		}
	}
}

func (w *Worker) process(ctx context.Context, chunk translate.Chunk) error {
	start := time.Now()
	payload, err := w.submitter.Submit(ctx, translate.Request{
		SourceText: chunk.Text,
		SourceLang: w.cfg.Langs.Source,
		TargetLang: w.cfg.Langs.Target,
		Term:       w.cfg.Term,
	})
	dur := time.Since(start)

	log := w.logger.With(zap.Uint64("sequence", chunk.Sequence), zap.Uint64("resume_offset", chunk.ResumeOffset))
	outcome := translate.Success(payload)
	evt := progress.Event{
		Stage:    progress.StageRequestDone,
		Worker:   w.index,
		Sequence: chunk.Sequence,
		Result:   progress.ResultSuccess,
		Dur:      dur,
	}
	if err != nil {
		outcome = translate.Failure(err.Error())
		evt.Result = progress.ResultFailure
		evt.Note = err.Error()
		log.Warn("chunk request failed", zap.Error(err), zap.Duration("dur", dur))
	} else {
		log.Info("chunk request finished", zap.Duration("dur", dur))
	}
	w.emit(evt)

	msg := translate.Message{Sequence: chunk.Sequence, ResumeOffset: chunk.ResumeOffset, Outcome: outcome}
	if err := w.queue.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("worker %d enqueue chunk %d: %w", w.index, chunk.Sequence, err)
	}
	return nil
}

// finish reports the source's terminal condition and sends the sentinel.
func (w *Worker) finish(ctx context.Context, cause error) error {
	if errors.Is(cause, translate.ErrEndOfFile) {
		w.logger.Info("worker finished")
	} else {
		w.logger.Error("chunk source failed, stopping worker", zap.Error(cause))
	}
	if err := w.queue.Enqueue(ctx, translate.EndOfStreamMessage()); err != nil {
		return fmt.Errorf("worker %d enqueue end of stream: %w", w.index, err)
	}
	w.emit(progress.Event{Stage: progress.StageWorkerStopped, Worker: w.index, Note: cause.Error()})
	return nil
}

func (w *Worker) emit(evt progress.Event) {
	if w.emitter != nil {
		w.emitter.Emit(evt)
	}
}
