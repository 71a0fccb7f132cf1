// Package cmd defines the CLI for the translator executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/workflow-translator/internal/config"
	"github.com/JakeFAU/workflow-translator/internal/logging"
)

var cfgFile string

type ctxKey string

const (
	configKey ctxKey = "config"
	loggerKey ctxKey = "logger"
)

// loadConfig is a variable so tests can supply configuration without a file.
var loadConfig = config.Load

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translator",
		Short: "Translate large text files through a streaming workflow.",
		Long: `translator splits a text file into line chunks, sends them concurrently to a
remote translation workflow and appends the results in source order. Progress
is saved after every chunk so an interrupted run resumes where it stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Config and logger are built once and handed to subcommands via the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			ctx := context.WithValue(cmd.Context(), configKey, cfg)
			ctx = context.WithValue(ctx, loggerKey, logger)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if logger, ok := cmd.Context().Value(loggerKey).(*zap.Logger); ok {
				_ = logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "credentials and settings file")
	cmd.AddCommand(newTranslateCmd())
	return cmd
}

func resolve(ctx context.Context) (config.Config, *zap.Logger, error) {
	cfg, ok := ctx.Value(configKey).(config.Config)
	if !ok {
		return config.Config{}, nil, errors.New("configuration not loaded")
	}
	logger, ok := ctx.Value(loggerKey).(*zap.Logger)
	if !ok || logger == nil {
		logger = zap.NewNop()
	}
	return cfg, logger, nil
}

// Execute is the main entry point.
func Execute() {
	bootstrap, err := logging.New(true, "")
	if err != nil {
		bootstrap = zap.NewExample()
	}
	zap.ReplaceGlobals(bootstrap)

	if err := newRootCmd().Execute(); err != nil {
		zap.L().Fatal("command execution failed", zap.Error(err))
	}
}
