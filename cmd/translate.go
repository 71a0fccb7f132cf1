package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/workflow-translator/internal/app"
	"github.com/JakeFAU/workflow-translator/internal/config"
	"github.com/JakeFAU/workflow-translator/internal/translate"
)

// Seams for tests.
var (
	interactive    = stdinIsTerminal
	runTranslation = func(ctx context.Context, opts app.Options) (app.Result, error) {
		a, err := app.New(ctx, opts)
		if err != nil {
			return app.Result{}, err
		}
		return a.Run(ctx)
	}
)

var (
	promptIn  io.Reader = os.Stdin
	promptOut io.Writer = os.Stdout
)

type translateFlags struct {
	input      string
	outputKey  string
	chunkSize  int
	workers    int
	term       string
	sourceLang string
	targetLang string
	listen     string
}

func newTranslateCmd() *cobra.Command {
	var f translateFlags
	cmd := &cobra.Command{
		Use:   "translate [input]",
		Short: "Translate a text file, resuming from its saved cursor",
		Long: `Translate reads the input in groups of lines, sends every group to the
workflow with a pool of workers, and appends the translated text in order to
translation/{name}_{source}2{target}.txt. Values missing from the flags are
asked for interactively when stdin is a terminal.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && f.input == "" {
				f.input = args[0]
			}
			return runTranslateCommand(cmd, f)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&f.input, "input", "i", "", "text file to translate")
	flags.StringVar(&f.outputKey, "output-key", "", "workflow output field holding the translation")
	flags.IntVar(&f.chunkSize, "chunk-size", 0, "lines per request")
	flags.IntVarP(&f.workers, "workers", "w", 0, "concurrent requests")
	flags.StringVar(&f.term, "term", "", "terminology file (.txt, .json, .yaml, .yml, .toml)")
	flags.StringVar(&f.sourceLang, "source-lang", "", "source language for a new input")
	flags.StringVar(&f.targetLang, "target-lang", "", "target language for a new input")
	flags.StringVar(&f.listen, "listen", "", "status server address, for example :8080")
	return cmd
}

func runTranslateCommand(cmd *cobra.Command, f translateFlags) error {
	cfg, logger, err := resolve(cmd.Context())
	if err != nil {
		return err
	}

	opts := app.Options{Logger: logger}
	if interactive() {
		p := newPrompter(promptIn, promptOut)
		if err := promptMissing(cmd, p, &f, cfg); err != nil {
			return err
		}
		opts.Prompter = p
	}
	if f.input == "" {
		return errors.New("an input file is required (pass --input or run interactively)")
	}
	applyFlags(&cfg, f)
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts.Config = cfg
	opts.Input = f.input
	opts.TermPath = f.term
	opts.Langs = translate.Langs{Source: f.sourceLang, Target: f.targetLang}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := runTranslation(ctx, opts)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("translation interrupted, rerun to resume",
				zap.Uint64("history_lines", res.Stats.HistoryLines))
			return nil
		}
		return fmt.Errorf("translate %s: %w", f.input, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks written, %d skipped, cursor at line %d\n",
		res.OutputPath, res.Stats.Written, res.Stats.Skipped, res.Stats.HistoryLines)
	return nil
}

// promptMissing asks for every run setting a flag did not supply.
func promptMissing(cmd *cobra.Command, p *prompter, f *translateFlags, cfg config.Config) error {
	var err error
	if f.input == "" {
		if f.input, err = p.ask("Input file", ""); err != nil {
			return err
		}
		f.input = app.CleanInputPath(f.input)
	}
	if !cmd.Flags().Changed("output-key") {
		if f.outputKey, err = p.ask("Output field", cfg.Pipeline.OutputKey); err != nil {
			return err
		}
	}
	if !cmd.Flags().Changed("chunk-size") {
		if f.chunkSize, err = p.askInt("Lines per request", cfg.Pipeline.ChunkSize); err != nil {
			return err
		}
	}
	if !cmd.Flags().Changed("workers") {
		if f.workers, err = p.askInt("Concurrent requests", cfg.Pipeline.Workers); err != nil {
			return err
		}
	}
	if !cmd.Flags().Changed("term") {
		if f.term, err = p.ask("Terminology file (empty for default)", ""); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return err
		}
	}
	return nil
}

func applyFlags(cfg *config.Config, f translateFlags) {
	if f.outputKey != "" {
		cfg.Pipeline.OutputKey = f.outputKey
	}
	if f.chunkSize != 0 {
		cfg.Pipeline.ChunkSize = f.chunkSize
	}
	if f.workers != 0 {
		cfg.Pipeline.Workers = f.workers
	}
	if f.listen != "" {
		cfg.Server.ListenAddr = f.listen
	}
}
