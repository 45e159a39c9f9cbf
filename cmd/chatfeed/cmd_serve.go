package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/chatfeed/internal/debugapi"
	"github.com/user/chatfeed/internal/ingest"
	"github.com/user/chatfeed/internal/stats"
	"github.com/user/chatfeed/internal/store"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingest pipeline with the debug API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	st := store.NewStore()
	defer st.Dispose()

	pipeline := ingest.NewPipeline(st, int64(cfg.MaxConnections))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pipeline.Start(ctx)
	defer pipeline.Stop()

	counter, err := stats.New(cfg.TokenModel)
	if err != nil {
		slog.Warn("token counting disabled", "model", cfg.TokenModel, "error", err)
		counter = nil
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: debugapi.NewServer(st, pipeline, counter),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("chatfeed started",
		"listen_addr", cfg.ListenAddr,
		"log_level", cfg.LogLevel,
		"max_connections", cfg.MaxConnections,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigChan:
	}

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
