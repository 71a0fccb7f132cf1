// Package sequencer restores chunk order from worker completions and persists
// each in-order result together with the resume cursor.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/workflow-translator/internal/progress"
	"github.com/JakeFAU/workflow-translator/internal/translate"
)

// DefaultOutputKey names the payload field holding the translated text.
const DefaultOutputKey = "output"

var (
	// ErrReorderOverflow is returned when more out-of-order results are held
	// than the configured limit allows.
	ErrReorderOverflow = errors.New("reorder buffer overflow")
	// ErrSequenceGap is returned when every worker has finished but some
	// sequence numbers never arrived.
	ErrSequenceGap = errors.New("sequence gap after all workers finished")
)

// Config describes the run a Sequencer persists.
type Config struct {
	// Base is the input file name without extension.
	Base  string
	Langs translate.Langs
	// Term is republished unchanged after every written chunk.
	Term      string
	OutputKey string
	ChunkSize int
	// PriorLines is the cursor value the run resumed from.
	PriorLines uint64
	Workers    int
	// MaxPending bounds the reorder buffer.
	MaxPending int
}

// Snapshot is a point-in-time view of sequencer counters.
type Snapshot struct {
	Expected     uint64 `json:"expected"`
	Pending      int    `json:"pending"`
	Ends         int    `json:"ends"`
	Workers      int    `json:"workers"`
	Written      uint64 `json:"written"`
	Skipped      uint64 `json:"skipped"`
	Dropped      uint64 `json:"dropped"`
	HistoryLines uint64 `json:"history_lines"`
	Done         bool   `json:"done"`
}

// Sequencer is the single consumer of worker messages. It delivers results
// to the store in strictly ascending sequence order.
type Sequencer struct {
	cfg     Config
	queue   translate.Queue
	store   translate.Store
	window  translate.Window
	emitter progress.Emitter
	logger  *zap.Logger

	// pending is only touched by the Run goroutine.
	pending map[uint64]translate.Message

	mu    sync.Mutex
	stats Snapshot
}

// New validates cfg and builds a Sequencer. window and emitter may be nil.
func New(
	cfg Config,
	queue translate.Queue,
	store translate.Store,
	window translate.Window,
	emitter progress.Emitter,
	logger *zap.Logger,
) (*Sequencer, error) {
	switch {
	case queue == nil:
		return nil, errors.New("sequencer requires a queue")
	case store == nil:
		return nil, errors.New("sequencer requires a store")
	case cfg.Base == "":
		return nil, errors.New("sequencer requires a base name")
	case cfg.ChunkSize <= 0:
		return nil, fmt.Errorf("chunk size must be > 0, got %d", cfg.ChunkSize)
	case cfg.Workers <= 0:
		return nil, fmt.Errorf("worker count must be > 0, got %d", cfg.Workers)
	case cfg.MaxPending <= 0:
		return nil, fmt.Errorf("max pending must be > 0, got %d", cfg.MaxPending)
	}
	if cfg.OutputKey == "" {
		cfg.OutputKey = DefaultOutputKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequencer{
		cfg:     cfg,
		queue:   queue,
		store:   store,
		window:  window,
		emitter: emitter,
		logger:  logger,
		pending: make(map[uint64]translate.Message),
		stats: Snapshot{
			Expected:     1,
			Workers:      cfg.Workers,
			HistoryLines: cfg.PriorLines,
		},
	}, nil
}

// Run consumes messages until every worker has sent its end-of-stream
// sentinel and nothing is pending. Persistence failures abort the run.
func (s *Sequencer) Run(ctx context.Context) error {
	for {
		if done, err := s.finished(); done || err != nil {
			return err
		}
		msg, err := s.queue.Dequeue(ctx)
		if err != nil {
			return fmt.Errorf("dequeue result: %w", err)
		}
		if err := s.handle(ctx, msg); err != nil {
			return err
		}
	}
}

// Snapshot returns the current counters. Safe for concurrent use.
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Sequencer) finished() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stats.Ends < s.cfg.Workers {
		return false, nil
	}
	if len(s.pending) > 0 {
		return true, fmt.Errorf("%w: expected %d, %d pending", ErrSequenceGap, s.stats.Expected, len(s.pending))
	}
	s.stats.Done = true
	s.logger.Info("all workers finished",
		zap.Uint64("written", s.stats.Written),
		zap.Uint64("skipped", s.stats.Skipped),
		zap.Uint64("history_lines", s.stats.HistoryLines),
	)
	return true, nil
}

func (s *Sequencer) handle(ctx context.Context, msg translate.Message) error {
	if msg.IsEndOfStream() {
		s.mu.Lock()
		s.stats.Ends++
		ends := s.stats.Ends
		s.mu.Unlock()
		s.logger.Debug("worker end of stream received", zap.Int("ends", ends), zap.Int("workers", s.cfg.Workers))
		return nil
	}

	expected := s.Snapshot().Expected
	_, dup := s.pending[msg.Sequence]
	switch {
	case msg.Sequence < expected || dup:
		s.logger.Warn("dropping stale or duplicate result",
			zap.Uint64("sequence", msg.Sequence),
			zap.Uint64("expected", expected),
		)
		s.mu.Lock()
		s.stats.Dropped++
		s.mu.Unlock()
		return nil
	case msg.Sequence > expected:
		if len(s.pending) >= s.cfg.MaxPending {
			return fmt.Errorf("%w: %d results held waiting for %d", ErrReorderOverflow, len(s.pending), expected)
		}
		s.pending[msg.Sequence] = msg
		s.setPending()
		s.logger.Debug("holding out-of-order result",
			zap.Uint64("sequence", msg.Sequence),
			zap.Uint64("expected", expected),
		)
		return nil
	}

	if err := s.deliver(ctx, msg); err != nil {
		return err
	}
	for next := msg.Sequence + 1; ; next++ {
		held, ok := s.pending[next]
		if !ok {
			break
		}
		delete(s.pending, next)
		s.setPending()
		if err := s.deliver(ctx, held); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) setPending() {
	s.mu.Lock()
	s.stats.Pending = len(s.pending)
	s.mu.Unlock()
}

// deliver consumes msg's sequence slot and returns its window credit.
func (s *Sequencer) deliver(ctx context.Context, msg translate.Message) error {
	if s.window != nil {
		defer s.window.Release()
	}
	s.mu.Lock()
	s.stats.Expected = msg.Sequence + 1
	s.mu.Unlock()

	log := s.logger.With(zap.Uint64("sequence", msg.Sequence), zap.Uint64("resume_offset", msg.ResumeOffset))
	if msg.Outcome.Kind != translate.OutcomeSuccess {
		s.skip(log, msg, msg.Outcome.Reason)
		return nil
	}
	text, ok := msg.Outcome.Payload[s.cfg.OutputKey].(string)
	if !ok {
		s.skip(log, msg, fmt.Sprintf("payload has no string field %q", s.cfg.OutputKey))
		return nil
	}

	if err := s.store.AppendTranslation(ctx, s.cfg.Base, s.cfg.Langs, text); err != nil {
		return fmt.Errorf("persist chunk %d: %w", msg.Sequence, err)
	}
	if err := s.store.RewriteTerminology(ctx, s.cfg.Base, s.cfg.Term); err != nil {
		return fmt.Errorf("persist terminology after chunk %d: %w", msg.Sequence, err)
	}
	lines := s.cfg.PriorLines + msg.ResumeOffset*uint64(s.cfg.ChunkSize)
	cursor := translate.Cursor{
		SourceLang:   s.cfg.Langs.Source,
		TargetLang:   s.cfg.Langs.Target,
		HistoryLines: lines,
	}
	if err := s.store.RewriteCursor(ctx, s.cfg.Base, cursor); err != nil {
		return fmt.Errorf("persist cursor after chunk %d: %w", msg.Sequence, err)
	}

	s.mu.Lock()
	s.stats.Written++
	s.stats.HistoryLines = lines
	s.mu.Unlock()
	log.Info("chunk written", zap.Uint64("history_lines", lines), zap.Int("bytes", len(text)))
	s.emit(progress.Event{
		Stage:        progress.StageChunkWritten,
		Worker:       -1,
		Sequence:     msg.Sequence,
		Bytes:        int64(len(text)),
		HistoryLines: lines,
	})
	return nil
}

func (s *Sequencer) skip(log *zap.Logger, msg translate.Message, reason string) {
	s.mu.Lock()
	s.stats.Skipped++
	s.mu.Unlock()
	log.Warn("chunk skipped", zap.String("reason", reason))
	s.emit(progress.Event{
		Stage:    progress.StageChunkSkipped,
		Worker:   -1,
		Sequence: msg.Sequence,
		Note:     reason,
	})
}

func (s *Sequencer) emit(evt progress.Event) {
	if s.emitter != nil {
		s.emitter.Emit(evt)
	}
}
