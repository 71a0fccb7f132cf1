package source

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/workflow-translator/internal/translate"
)

// Feeder owns a ChunkSource on a single goroutine and serves chunks to
// workers over a request/response channel. Only one pull is in progress at a
// time, so the source itself needs no lock.
type Feeder struct {
	src    translate.ChunkSource
	reqs   chan chan result
	logger *zap.Logger
}

type result struct {
	chunk translate.Chunk
	err   error
}

// NewFeeder wraps src. Run must be started before Next is called.
func NewFeeder(src translate.ChunkSource, logger *zap.Logger) *Feeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feeder{
		src:    src,
		reqs:   make(chan chan result),
		logger: logger,
	}
}

// Run serves pull requests until ctx finishes. After the first end-of-file or
// read error every later request receives that same error.
func (f *Feeder) Run(ctx context.Context) {
	var terminal error
	for {
		select {
		case <-ctx.Done():
			return
		case reply := <-f.reqs:
			if terminal != nil {
				reply <- result{err: terminal}
				continue
			}
			chunk, err := f.src.Next()
			if err != nil {
				terminal = err
				f.logger.Info("chunk source exhausted", zap.Error(err))
			}
			reply <- result{chunk: chunk, err: err}
		}
	}
}

// Next requests the next chunk, blocking until the feeder answers or ctx ends.
func (f *Feeder) Next(ctx context.Context) (translate.Chunk, error) {
	reply := make(chan result, 1)
	select {
	case <-ctx.Done():
		return translate.Chunk{}, fmt.Errorf("request chunk: %w", ctx.Err())
	case f.reqs <- reply:
	}
	select {
	case <-ctx.Done():
		return translate.Chunk{}, fmt.Errorf("await chunk: %w", ctx.Err())
	case res := <-reply:
		return res.chunk, res.err
	}
}
