// Package app assembles one translation run from configuration: it resolves
// the resume cursor and terminology, starts the pipeline, and wires the
// optional run repository, status server, export target and notifier.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/workflow-translator/internal/api"
	"github.com/JakeFAU/workflow-translator/internal/clock/system"
	"github.com/JakeFAU/workflow-translator/internal/config"
	idgen "github.com/JakeFAU/workflow-translator/internal/id/uuid"
	"github.com/JakeFAU/workflow-translator/internal/progress"
	pubmemory "github.com/JakeFAU/workflow-translator/internal/publisher/memory"
	"github.com/JakeFAU/workflow-translator/internal/publisher/pubsub"
	"github.com/JakeFAU/workflow-translator/internal/sequencer"
	"github.com/JakeFAU/workflow-translator/internal/storage/gcs"
	"github.com/JakeFAU/workflow-translator/internal/storage/local"
	storemem "github.com/JakeFAU/workflow-translator/internal/storage/memory"
	"github.com/JakeFAU/workflow-translator/internal/storage/postgres"
	"github.com/JakeFAU/workflow-translator/internal/store"
	"github.com/JakeFAU/workflow-translator/internal/terminology"
	"github.com/JakeFAU/workflow-translator/internal/translate"
	"github.com/JakeFAU/workflow-translator/internal/workflow"
)

// ErrNoLanguages is returned when no cursor exists and languages were neither
// given nor promptable.
var ErrNoLanguages = errors.New("source and target languages are required for a new input")

const finishTimeout = 15 * time.Second

// LangPrompter asks the operator for the language pair of a new input.
type LangPrompter interface {
	PromptLangs(ctx context.Context) (translate.Langs, error)
}

// IDGenerator creates run identifiers.
type IDGenerator interface {
	NewRunID() (uuid.UUID, error)
}

// Options select the input and let callers replace external dependencies.
// Zero-valued dependencies are built from Config.
type Options struct {
	Config config.Config
	// Input is the path of the text file to translate.
	Input string
	// TermPath overrides the default {term_dir}/{base}_term.txt.
	TermPath string
	// Langs is used when the input has no cursor yet.
	Langs    translate.Langs
	Prompter LangPrompter

	Logger     *zap.Logger
	Registerer prometheus.Registerer
	Clock      translate.Clock
	IDs        IDGenerator
	Submitter  translate.Submitter
	Repo       store.RunRepository
	Exporter   translate.BlobStore
	Publisher  translate.Publisher
}

// Result summarizes a finished run.
type Result struct {
	RunID          uuid.UUID
	Base           string
	Langs          translate.Langs
	PriorLines     uint64
	Stats          sequencer.Snapshot
	OutputPath     string
	Checksum       string
	ExportURI      string
	NotificationID string
}

// Notification is the payload published when a run ends.
type Notification struct {
	RunID         string    `json:"run_id"`
	Input         string    `json:"input"`
	SourceLang    string    `json:"source_lang"`
	TargetLang    string    `json:"target_lang"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	ChunksWritten uint64    `json:"chunks_written"`
	ChunksSkipped uint64    `json:"chunks_skipped"`
	HistoryLines  uint64    `json:"history_lines"`
	Output        string    `json:"output"`
	SHA256        string    `json:"sha256,omitempty"`
	ExportURI     string    `json:"export_uri,omitempty"`
	FinishedAt    time.Time `json:"finished_at"`
}

// App holds the resolved run and the long-lived services it uses.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  translate.Clock

	input  string
	base   string
	langs  translate.Langs
	prior  uint64
	term   string
	runID  uuid.UUID
	start  time.Time
	output string

	store     *local.Store
	submitter translate.Submitter
	repo      store.RunRepository
	exporter  translate.BlobStore
	publisher translate.Publisher
	reg       prometheus.Registerer

	closers []func() error

	mu  sync.Mutex
	seq *sequencer.Sequencer
	hub *progress.Hub
}

// New resolves everything a run needs before any chunk is read. Errors here
// are fatal startup errors.
func New(ctx context.Context, opts Options) (*App, error) {
	a := &App{
		cfg:       opts.Config,
		logger:    opts.Logger,
		clock:     opts.Clock,
		submitter: opts.Submitter,
		repo:      opts.Repo,
		exporter:  opts.Exporter,
		publisher: opts.Publisher,
		reg:       opts.Registerer,
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.clock == nil {
		a.clock = system.New()
	}
	if a.reg == nil {
		a.reg = prometheus.DefaultRegisterer
	}
	ids := opts.IDs
	if ids == nil {
		ids = idgen.New()
	}

	ok := false
	defer func() {
		if !ok {
			a.closeAll()
		}
	}()

	if err := a.resolveInput(opts.Input); err != nil {
		return nil, err
	}
	var err error
	a.store, err = local.NewStore(local.StoreConfig{
		BaseDir:        a.cfg.Storage.BaseDir,
		TranslationDir: a.cfg.Storage.TranslationDir,
		CursorDir:      a.cfg.Storage.CursorDir,
		TermDir:        a.cfg.Storage.TermDir,
	})
	if err != nil {
		return nil, fmt.Errorf("init output store: %w", err)
	}
	if a.output, err = a.resolveLangs(ctx, opts); err != nil {
		return nil, err
	}
	if err := a.loadTerminology(opts.TermPath); err != nil {
		return nil, err
	}
	if a.runID, err = ids.NewRunID(); err != nil {
		return nil, fmt.Errorf("new run id: %w", err)
	}
	if err := a.initServices(ctx); err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

// BaseName strips the directory and the last extension from path.
func BaseName(path string) string {
	name := filepath.Base(path)
	if stem := strings.TrimSuffix(name, filepath.Ext(name)); stem != "" {
		return stem
	}
	return name
}

// CleanInputPath trims surrounding whitespace and double quotes.
func CleanInputPath(raw string) string {
	return strings.Trim(strings.TrimSpace(raw), `"`)
}

func (a *App) resolveInput(raw string) error {
	a.input = CleanInputPath(raw)
	if a.input == "" {
		return errors.New("input path is required")
	}
	info, err := os.Stat(a.input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("input %s is a directory", a.input)
	}
	a.base = BaseName(a.input)
	return nil
}

func (a *App) resolveLangs(ctx context.Context, opts Options) (string, error) {
	cursor, found, err := a.store.LoadCursor(ctx, a.base)
	if err != nil {
		return "", fmt.Errorf("load cursor: %w", err)
	}
	switch {
	case found:
		a.langs = cursor.Langs()
		a.prior = cursor.HistoryLines
		if opts.Langs != (translate.Langs{}) && opts.Langs != a.langs {
			a.logger.Warn("ignoring requested languages, resuming with the stored pair",
				zap.String("source_lang", a.langs.Source),
				zap.String("target_lang", a.langs.Target),
			)
		}
		a.logger.Info("resuming from cursor", zap.Uint64("history_lines", a.prior))
	case opts.Langs.Source != "" && opts.Langs.Target != "":
		a.langs = opts.Langs
	case opts.Prompter != nil:
		if a.langs, err = opts.Prompter.PromptLangs(ctx); err != nil {
			return "", fmt.Errorf("prompt languages: %w", err)
		}
	}
	if a.langs.Source == "" || a.langs.Target == "" {
		return "", ErrNoLanguages
	}
	return a.store.TranslationPath(a.base, a.langs)
}

func (a *App) loadTerminology(override string) error {
	path := override
	if path == "" {
		var err error
		if path, err = a.store.TermPath(a.base); err != nil {
			return fmt.Errorf("terminology path: %w", err)
		}
	}
	term, err := terminology.Load(path)
	if err != nil {
		return fmt.Errorf("load terminology: %w", err)
	}
	if term == "" {
		a.logger.Info("no terminology loaded", zap.String("path", path))
	}
	a.term = term
	return nil
}

func (a *App) initServices(ctx context.Context) error {
	if a.submitter == nil {
		client, err := workflow.New(workflow.Config{
			BaseURL:       a.cfg.BaseURL,
			APIKey:        a.cfg.APIKey,
			User:          a.cfg.User,
			Timeout:       a.cfg.HTTP.Timeout(),
			MaxFrameBytes: a.cfg.HTTP.MaxFrameBytes,
		}, a.logger.Named("workflow"))
		if err != nil {
			return fmt.Errorf("init workflow client: %w", err)
		}
		a.submitter = client
	}

	if a.repo == nil {
		if a.cfg.DB.DSN != "" {
			runStore, err := postgres.NewRunStore(ctx, postgres.RunStoreConfig{DSN: a.cfg.DB.DSN})
			if err != nil {
				return fmt.Errorf("init run repository: %w", err)
			}
			a.closers = append(a.closers, func() error { runStore.Close(); return nil })
			a.repo = runStore
		} else {
			a.repo = storemem.NewRunStore()
		}
	}

	if a.exporter == nil {
		switch {
		case a.cfg.Export.GCSBucket != "":
			client, err := gcstorage.NewClient(ctx)
			if err != nil {
				return fmt.Errorf("init storage client: %w", err)
			}
			a.closers = append(a.closers, client.Close)
			exporter, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Export.GCSBucket, Prefix: a.cfg.Export.Prefix})
			if err != nil {
				return fmt.Errorf("init gcs export: %w", err)
			}
			a.exporter = exporter
		case a.cfg.Export.LocalDir != "":
			exporter, err := local.New(local.Config{BaseDir: a.cfg.Export.LocalDir})
			if err != nil {
				return fmt.Errorf("init local export: %w", err)
			}
			a.exporter = exporter
		}
	}

	if a.publisher == nil {
		if a.cfg.PubSub.TopicName != "" {
			client, err := gpubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
			if err != nil {
				return fmt.Errorf("init pubsub client: %w", err)
			}
			a.closers = append(a.closers, client.Close)
			a.publisher = pubsub.New(client.Topic(a.cfg.PubSub.TopicName))
		} else {
			a.publisher = pubmemory.New()
		}
	}
	a.closers = append(a.closers, a.publisher.Close)
	return nil
}

// RunID returns the identifier of this run.
func (a *App) RunID() uuid.UUID { return a.runID }

// Langs returns the language pair resolved for the input.
func (a *App) Langs() translate.Langs { return a.langs }

// Publisher returns the notifier in use.
func (a *App) Publisher() translate.Publisher { return a.publisher }

// Status reports the live run for the status server.
func (a *App) Status() api.RunInfo {
	a.mu.Lock()
	seq, hub := a.seq, a.hub
	a.mu.Unlock()
	info := api.RunInfo{
		RunID:      a.runID.String(),
		Input:      a.input,
		SourceLang: a.langs.Source,
		TargetLang: a.langs.Target,
		StartedAt:  a.start,
	}
	if seq != nil {
		info.Sequencer = seq.Snapshot()
	}
	if hub != nil {
		info.DroppedEvents = hub.Dropped()
	}
	return info
}

// Close releases clients opened by New. Run calls it before returning.
func (a *App) Close() {
	a.closeAll()
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
