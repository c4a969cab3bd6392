package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MereWhiplash/phrase-embedder/internal/worker"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Embed pending phrases until none remain (default)",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := globalConfig
	out := cmd.OutOrStdout()

	svc, err := openService(ctx, cfg, worker.WithOnBatch(func(r worker.BatchReport) {
		fmt.Fprintf(out, "Embedded %d rows.\n", r.Phrases)
	}))
	if err != nil {
		return err
	}
	defer svc.Close()

	globalLogger.Info("starting embedding run",
		"model", cfg.Model,
		"provider", cfg.Provider,
		"storage", cfg.Storage.Driver,
		"batch_size", cfg.BatchSize,
		"max_batches", cfg.MaxBatches,
		"lang_hint", cfg.LangHint,
	)

	run, err := svc.Run(ctx, cfg.MaxBatches)
	if err != nil {
		if run != nil {
			return fmt.Errorf("run %s aborted after %d batches: %w", run.ID, run.Batches, err)
		}
		return err
	}

	if run.Exhausted {
		fmt.Fprintln(out, "No more phrases needing embedding.")
	} else {
		fmt.Fprintf(out, "Stopped after %d batches; phrases may remain.\n", run.Batches)
	}
	fmt.Fprintf(out, "Committed %d batches, %d phrases.\n", run.Batches, run.Phrases)
	return nil
}
