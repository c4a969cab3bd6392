package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MereWhiplash/phrase-embedder/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create phrase and embedding tables if they do not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := globalConfig.StorageConfig()
		cfg.Migrate = true

		store, err := storage.New(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		defer store.Close()

		globalLogger.Info("migrations complete", "storage", cfg.Driver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
