package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/workflow-translator/internal/api"
	"github.com/JakeFAU/workflow-translator/internal/dispatcher"
	"github.com/JakeFAU/workflow-translator/internal/hash/sha256"
	"github.com/JakeFAU/workflow-translator/internal/progress"
	"github.com/JakeFAU/workflow-translator/internal/progress/sinks"
	"github.com/JakeFAU/workflow-translator/internal/queue/memory"
	"github.com/JakeFAU/workflow-translator/internal/sequencer"
	"github.com/JakeFAU/workflow-translator/internal/source"
	"github.com/JakeFAU/workflow-translator/internal/store"
	"github.com/JakeFAU/workflow-translator/internal/worker"
)

// Run translates the input from the resume point to the end of the file and
// releases every service before returning.
func (a *App) Run(ctx context.Context) (Result, error) {
	defer a.closeAll()

	res := Result{RunID: a.runID, Base: a.base, Langs: a.langs, PriorLines: a.prior, OutputPath: a.output}
	p := a.cfg.Pipeline
	a.start = a.clock.Now()
	log := a.logger.With(zap.Stringer("run_id", a.runID), zap.String("input", a.base))

	src, err := source.Open(a.input, p.ChunkSize, a.prior)
	if err != nil {
		return res, fmt.Errorf("open input: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Warn("close input failed", zap.Error(err))
		}
	}()

	hub, err := a.newHub(log)
	if err != nil {
		return res, err
	}
	emitter := progress.NewRunEmitter(hub, progress.UUIDToBytes(a.runID), a.clock.Now)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), finishTimeout)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			log.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	if a.repo != nil {
		run := store.Run{
			ID:         a.runID,
			Input:      a.input,
			SourceLang: a.langs.Source,
			TargetLang: a.langs.Target,
			StartedAt:  a.start,
			StartLines: int64(a.prior),
		}
		if err := a.repo.StartRun(ctx, run); err != nil {
			return res, fmt.Errorf("start run: %w", err)
		}
	}

	window, err := sequencer.NewWindow(p.WindowSize())
	if err != nil {
		return res, fmt.Errorf("init reorder window: %w", err)
	}
	queue := memory.NewQueue(p.QueueDepth)
	defer queue.Close()
	feeder := source.NewFeeder(src, log.Named("source"))

	runners := make([]dispatcher.Runner, 0, p.Workers)
	for i := range p.Workers {
		runners = append(runners, worker.New(
			i, feeder, a.submitter, queue, window, emitter,
			worker.Config{Langs: a.langs, Term: a.term},
			log.Named("worker"),
		))
	}
	pool := dispatcher.New(runners...)

	seq, err := sequencer.New(sequencer.Config{
		Base:       a.base,
		Langs:      a.langs,
		Term:       a.term,
		OutputKey:  p.OutputKey,
		ChunkSize:  p.ChunkSize,
		PriorLines: a.prior,
		Workers:    p.Workers,
		MaxPending: window.Size(),
	}, queue, a.store, window, emitter, log.Named("sequencer"))
	if err != nil {
		return res, fmt.Errorf("init sequencer: %w", err)
	}
	a.mu.Lock()
	a.seq, a.hub = seq, hub
	a.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopServer := a.startStatusServer(runCtx, log)
	defer stopServer()

	log.Info("run started",
		zap.String("source_lang", a.langs.Source),
		zap.String("target_lang", a.langs.Target),
		zap.Uint64("history_lines", a.prior),
		zap.Int("chunk_size", p.ChunkSize),
		zap.Int("workers", p.Workers),
	)
	emitter.Emit(progress.Event{Stage: progress.StageRunStart, Worker: -1})

	go feeder.Run(runCtx)
	poolErr := make(chan error, 1)
	go func() { poolErr <- pool.Run(runCtx) }()

	runErr := seq.Run(runCtx)
	if runErr != nil {
		cancel()
	}
	if err := <-poolErr; err != nil && runErr == nil {
		runErr = fmt.Errorf("worker pool: %w", err)
	}
	cancel()

	res.Stats = seq.Snapshot()
	dur := a.clock.Now().Sub(a.start)
	if runErr != nil {
		emitter.Emit(progress.Event{Stage: progress.StageRunError, Worker: -1, Dur: dur, Note: runErr.Error()})
		log.Error("run failed", zap.Error(runErr), zap.Uint64("history_lines", res.Stats.HistoryLines))
	} else {
		emitter.Emit(progress.Event{Stage: progress.StageRunDone, Worker: -1, Dur: dur, HistoryLines: res.Stats.HistoryLines})
		log.Info("run finished",
			zap.Uint64("written", res.Stats.Written),
			zap.Uint64("skipped", res.Stats.Skipped),
			zap.Uint64("history_lines", res.Stats.HistoryLines),
			zap.Duration("dur", dur),
		)
	}

	// The parent context may already be gone; finishing steps get their own.
	finishCtx, finishCancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer finishCancel()
	if runErr == nil {
		res.Checksum = a.checksum(log)
		res.ExportURI = a.export(finishCtx, log)
	}
	res.NotificationID = a.notify(finishCtx, log, res, runErr)
	return res, runErr
}

func (a *App) newHub(log *zap.Logger) (*progress.Hub, error) {
	promSink, err := sinks.NewPrometheusSink(a.reg)
	if err != nil {
		return nil, fmt.Errorf("init progress metrics: %w", err)
	}
	hubSinks := []progress.Sink{sinks.NewLogSink(log.Named("progress")), promSink}
	if a.repo != nil {
		hubSinks = append(hubSinks, sinks.NewStoreSink(a.repo, log.Named("progress")))
	}
	return progress.NewHub(progress.Config{
		BufferSize: a.cfg.Pipeline.QueueDepth * 4,
		Logger:     log.Named("progress"),
	}, hubSinks...), nil
}

func (a *App) startStatusServer(ctx context.Context, log *zap.Logger) func() {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		return func() {}
	}
	srv := api.NewServer(a, a.repo, log.Named("api"))
	srvCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(srvCtx, addr); err != nil {
			log.Error("status server stopped", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (a *App) checksum(log *zap.Logger) string {
	sum, err := sha256.New().HashFile(a.output)
	if errors.Is(err, os.ErrNotExist) {
		return ""
	}
	if err != nil {
		log.Warn("checksum translation failed", zap.Error(err))
		return ""
	}
	return sum
}

// export uploads the full translation file. Failures are logged; the local
// output is already complete.
func (a *App) export(ctx context.Context, log *zap.Logger) string {
	if a.exporter == nil {
		return ""
	}
	// #nosec G304 -- the output path is built by the local store.
	f, err := os.Open(a.output)
	if errors.Is(err, os.ErrNotExist) {
		log.Info("nothing to export")
		return ""
	}
	if err != nil {
		log.Error("open translation for export", zap.Error(err))
		return ""
	}
	defer f.Close()

	uri, err := a.exporter.PutObject(ctx, filepath.Base(a.output), "text/plain; charset=utf-8", f)
	if err != nil {
		log.Error("export translation failed", zap.Error(err))
		return ""
	}
	log.Info("translation exported", zap.String("uri", uri))
	return uri
}

func (a *App) notify(ctx context.Context, log *zap.Logger, res Result, runErr error) string {
	if a.publisher == nil {
		return ""
	}
	n := Notification{
		RunID:         a.runID.String(),
		Input:         a.input,
		SourceLang:    a.langs.Source,
		TargetLang:    a.langs.Target,
		Status:        string(store.RunSuccess),
		ChunksWritten: res.Stats.Written,
		ChunksSkipped: res.Stats.Skipped,
		HistoryLines:  res.Stats.HistoryLines,
		Output:        a.output,
		SHA256:        res.Checksum,
		ExportURI:     res.ExportURI,
		FinishedAt:    a.clock.Now().Truncate(time.Millisecond),
	}
	if runErr != nil {
		n.Status = string(store.RunError)
		n.Error = runErr.Error()
	}
	id, err := a.publisher.Publish(ctx, n.RunID, n)
	if err != nil {
		log.Error("publish run notification failed", zap.Error(err))
		return ""
	}
	log.Debug("run notification published", zap.String("message_id", id))
	return id
}
