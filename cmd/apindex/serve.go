package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/apindex/internal/api"
	"github.com/dgallion1/apindex/internal/config"
	"github.com/dgallion1/apindex/internal/pipeline"
	"github.com/dgallion1/apindex/internal/source"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the indexing API server",
	Long: `Start the HTTP API server.

Volumes submitted to POST /api/volumes are queued and indexed by a pool of
workers. Every /api route needs "Authorization: Bearer <api_key>".

Examples:
  apindex serve                  # port from config (default 8090)
  apindex serve --port 3000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig(func(c *config.Config) {
			if servePort != "" {
				c.Port = servePort
			}
		})
		if err != nil {
			return err
		}
		if cfg.APIKey == "" {
			return errors.New("api_key is required to serve")
		}
		log := newLogger(os.Stdout, cfg, true)

		dest, err := pipeline.OpenDestination(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer dest.Close()

		w := pipeline.NewWorker(source.New(source.S3Config(cfg.S3)), dest, log)
		orch := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
			Workers:      cfg.Workers,
			MaxQueueSize: cfg.MaxQueueSize,
			JobTTL:       cfg.JobTTL,
		}, w, log)
		orch.Start(ctx)

		srv := api.NewServer(orch, dest, log, api.Config{
			APIKey:      cfg.APIKey,
			CORSOrigins: cfg.CORSOrigins,
		})
		httpServer := &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      srv,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info("starting apindex", "port", cfg.Port, "sink", cfg.Sink, "workers", cfg.Workers)
			errCh <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			orch.Stop()
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		log.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", "error", err)
		}
		orch.Stop()
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "port to listen on (default from config)")
}
