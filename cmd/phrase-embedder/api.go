package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MereWhiplash/phrase-embedder/internal/api"
)

var apiAddr string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the HTTP API for status and background runs",
	RunE:  runAPI,
}

func init() {
	apiCmd.Flags().StringVar(&apiAddr, "addr", "", "Listen address (env EMBED_API_ADDR)")
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := globalConfig
	addr := cfg.API.Addr
	if apiAddr != "" {
		addr = apiAddr
	}

	svc, err := openService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := &http.Server{
		Addr: addr,
		Handler: api.NewRouter(svc, api.RouterConfig{
			Logger:    globalLogger,
			RateLimit: cfg.API.RateLimit,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		globalLogger.Info("starting API server", "addr", addr, "model", cfg.Model)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	globalLogger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
