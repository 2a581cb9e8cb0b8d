package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"immich-takeout/internal/config"
	"immich-takeout/internal/immich"
	"immich-takeout/internal/importer"
	"immich-takeout/internal/logging"
	"immich-takeout/internal/progress"
	"immich-takeout/internal/state"
	"immich-takeout/internal/takeout"
)

func runImport(cmd *cobra.Command, ctx *commandContext, args []string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	dryRun := ctx.flags.dryRun
	if !dryRun {
		if err := cfg.RequireRemote(); err != nil {
			return err
		}
	}
	archives, err := takeout.OpenArchives(args)
	if err != nil {
		return err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logging.WithRunID(runCtx, uuid.NewString())
	runLogger := logging.WithContext(runCtx, logger)

	var uploader importer.Uploader
	if !dryRun {
		client, err := immich.NewClient(immichConfig(cfg), immich.WithLogger(runLogger))
		if err != nil {
			return err
		}
		if err := client.Ping(runCtx); err != nil {
			return fmt.Errorf("reach immich at %s: %w", cfg.Immich.URL, err)
		}
		uploader = client
	}

	tracker := progress.New(cmd.ErrOrStderr(), cfg.Logging.Progress && progress.IsTerminal(os.Stderr))
	options := []importer.Option{
		importer.WithLogger(logger),
		importer.WithProgress(tracker),
	}
	if cfg.State.Enabled {
		store, err := state.Open(runCtx, cfg.State.Path)
		if err != nil {
			if errors.Is(err, state.ErrLocked) {
				return fmt.Errorf("resume state %s is in use by another run: %w", cfg.State.Path, err)
			}
			return err
		}
		defer store.Close()
		options = append(options, importer.WithState(store))
		runLogger.Info("resume state enabled", zap.String("path", store.Path()))
	}

	opts := importer.OptionsFromConfig(cfg)
	opts.DryRun = dryRun
	im := importer.New(opts, uploader, options...)

	runLogger.Info("import starting",
		zap.Int("archives", len(archives)),
		zap.Bool("dry_run", dryRun),
		zap.String("server", cfg.Immich.URL),
	)
	stats, runErr := im.Run(runCtx, archives)

	if cfg.Report.Path != "" {
		if err := im.Report().WriteFile(cfg.Report.Path, cfg.Report.Format); err != nil {
			runLogger.Error("write report", zap.Error(err))
			if runErr == nil {
				runErr = err
			}
		} else {
			runLogger.Info("report written", zap.String("path", cfg.Report.Path), zap.String("format", cfg.Report.Format))
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderSummary(stats, dryRun))
	return runErr
}

func immichConfig(cfg *config.Config) immich.Config {
	return immich.Config{
		BaseURL:        cfg.Immich.URL,
		APIKey:         cfg.Immich.APIKey,
		DeviceID:       cfg.Immich.DeviceID,
		Timeout:        time.Duration(cfg.Immich.TimeoutSeconds) * time.Second,
		RetryAttempts:  cfg.Immich.RetryAttempts,
		RetryBaseDelay: time.Duration(cfg.Immich.RetryBaseDelaySeconds) * time.Second,
		RetryMaxDelay:  time.Duration(cfg.Immich.RetryMaxDelaySeconds) * time.Second,
	}
}
