package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	aosc "github.com/nnnLik/a-osc"
	"github.com/nnnLik/a-osc/internal/config"
	"github.com/nnnLik/a-osc/internal/formatter"
)

var rootCmd = &cobra.Command{
	Use:   "aosc",
	Short: "Change the schema of a live MySQL or PostgreSQL table",
	Long: `aosc applies ALTER TABLE statements to a copy of a live table while triggers
capture concurrent writes, replays those writes onto the copy and optionally
swaps it into place. Clients keep reading and writing the table throughout.`,
	SilenceUsage: true,
	RunE:         runMigrate,
}

var planCmd = &cobra.Command{
	Use:          "plan",
	Short:        "Print the SQL a migration would run without executing it",
	SilenceUsage: true,
	RunE:         runPlan,
}

var cleanupCmd = &cobra.Command{
	Use:          "cleanup",
	Short:        "Drop the triggers, shadow table and audit table left by a failed run",
	SilenceUsage: true,
	RunE:         runCleanup,
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(planCmd, cleanupCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	return withSetup(cmd, func(ctx context.Context, cfg config.Config, opts *aosc.Options) error {
		log := opts.Logger
		log.Info("starting migration",
			zap.String("driver", cfg.Driver),
			zap.String("database", cfg.Database),
			zap.String("table", cfg.Table),
			zap.Strings("alter", cfg.Alter),
			zap.Int64("chunk_size", cfg.ChunkSize),
			zap.Bool("swap_tables", cfg.SwapTables))

		result, err := aosc.Migrate(ctx, cfg.DatabaseURL(), planFrom(cfg), opts)
		if err != nil {
			log.Error("migration failed", zap.String("table", cfg.Table), zap.Error(err))
			return err
		}

		return writeReport(cfg, func(f formatter.Formatter) error {
			return f.FormatResult(result)
		})
	})
}

func runPlan(cmd *cobra.Command, args []string) error {
	return withSetup(cmd, func(ctx context.Context, cfg config.Config, opts *aosc.Options) error {
		steps, err := aosc.Script(ctx, cfg.DatabaseURL(), planFrom(cfg), opts)
		if err != nil {
			opts.Logger.Error("failed to build migration plan", zap.String("table", cfg.Table), zap.Error(err))
			return err
		}

		return writeReport(cfg, func(f formatter.Formatter) error {
			return f.FormatScript(cfg.Table, steps)
		})
	})
}

func runCleanup(cmd *cobra.Command, args []string) error {
	return withSetup(cmd, func(ctx context.Context, cfg config.Config, opts *aosc.Options) error {
		if err := aosc.Cleanup(ctx, cfg.DatabaseURL(), cfg.Table, opts); err != nil {
			opts.Logger.Error("cleanup failed", zap.String("table", cfg.Table), zap.Error(err))
			return err
		}
		return nil
	})
}

// withSetup loads and validates the configuration, builds the logger and
// flushes it once fn returns.
func withSetup(cmd *cobra.Command, fn func(ctx context.Context, cfg config.Config, opts *aosc.Options) error) (err error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	opts := &aosc.Options{
		SchemaName:      cfg.SchemaName(),
		CheckpointFile:  cfg.CheckpointFile,
		ReplayBatchSize: cfg.ReplayBatchSize,
		Logger:          log,
	}
	return fn(cmd.Context(), cfg, opts)
}

func planFrom(cfg config.Config) aosc.Plan {
	return aosc.Plan{
		Table:          cfg.Table,
		Alterations:    cfg.Alter,
		ChunkSize:      cfg.ChunkSize,
		SwapTables:     cfg.SwapTables,
		DropOldTable:   cfg.DropOldTable,
		DropTriggers:   cfg.DropTriggers,
		DropAuditTable: cfg.DropAuditTable,
		Resume:         cfg.Resume,
	}
}

// writeReport runs write against stdout or the --output file.
func writeReport(cfg config.Config, write func(formatter.Formatter) error) (err error) {
	var writer io.Writer = os.Stdout
	if cfg.Output != "" {
		file, err := os.Create(cfg.Output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() {
			if cerr := file.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to close output file: %w", cerr)
			}
		}()
		writer = file
	}

	f, err := formatter.New(cfg.Format, writer)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
