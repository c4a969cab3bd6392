package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MereWhiplash/phrase-embedder/internal/config"
	"github.com/MereWhiplash/phrase-embedder/internal/embedder"
	"github.com/MereWhiplash/phrase-embedder/internal/pacer"
	"github.com/MereWhiplash/phrase-embedder/internal/service"
	"github.com/MereWhiplash/phrase-embedder/internal/storage"
	"github.com/MereWhiplash/phrase-embedder/internal/worker"
)

var (
	configPath   string
	globalConfig *config.Config
	globalLogger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "phrase-embedder",
	Short: "Embed phrases that have no vector for the configured model",
	Long: `phrase-embedder pulls active phrases lacking an embedding for the
configured model in bounded batches, embeds them, and commits each batch
atomically until nothing is left.

Settings come from defaults, an optional YAML file (--config or EMBED_CONFIG),
the environment, and flags, in increasing precedence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
			return fmt.Errorf("invalid flags: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		globalConfig = cfg
		globalLogger = cfg.NewLogger(os.Stderr)
		slog.SetDefault(globalLogger)
		return nil
	},
	// Bare invocation behaves like the original batch job
	RunE: runRun,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (env EMBED_CONFIG)")
	config.RegisterFlags(rootCmd.PersistentFlags())
}

// openService connects storage, builds the embedder and pacer, and wraps them
// in a Service. The caller closes the service, which closes storage.
func openService(ctx context.Context, cfg *config.Config, opts ...worker.Option) (*service.Service, error) {
	store, err := storage.New(ctx, cfg.StorageConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.New(cfg.EmbedderConfig())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	p, err := pacer.New(cfg.PacerConfig())
	if err != nil {
		store.Close()
		return nil, err
	}

	opts = append([]worker.Option{worker.WithBatchSize(cfg.BatchSize)}, opts...)
	return service.New(store, emb, p, globalLogger, opts...), nil
}
