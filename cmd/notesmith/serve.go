package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/notesmith/internal/api"
	"github.com/dgallion1/notesmith/internal/llm"
	"github.com/dgallion1/notesmith/internal/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and stage job queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger(cmd)
		cfg := loadConfig(cmd)
		if err := cfg.ValidateServer(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		stats := llm.NewStats(time.Hour)
		a, err := newApp(ctx, cfg, stats, true, log)
		if err != nil {
			return err
		}
		defer a.Close()

		orch := pipeline.NewOrchestrator(pipeline.Config{
			WorkerCount:  cfg.WorkerCount,
			MaxQueueSize: cfg.MaxQueueSize,
			JobTTL:       cfg.JobTTL,
		}, a.runner, log)
		orch.Start(context.Background())

		srv := api.NewServer(orch, a.runner, a.store, log, api.Options{
			APIKey: cfg.APIKey,
			Model:  a.gen.model,
			Stats:  stats,
		})
		httpServer := &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      srv,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info("starting notesmith", "port", cfg.Port, "model", a.gen.model)
			errCh <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			orch.Stop()
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		log.Info("shutting down...")
		orch.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
