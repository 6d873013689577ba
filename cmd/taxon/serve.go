package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixml/taxon"
	"github.com/helixml/taxon/infrastructure/api"
	"github.com/helixml/taxon/internal/config"
)

// shutdownTimeout bounds how long in-flight requests get on shutdown.
const shutdownTimeout = 30 * time.Second

func serveCmd(flags *globalFlags) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. Command line flags

Environment variables:
  HOST                         Server host to bind to (default: 0.0.0.0)
  PORT                         Server port to listen on (default: 8080)
  DATA_DIR                     Data directory (default: ~/.taxon)
  DB_URL                       Database URL (default: sqlite:///{data_dir}/taxon.db)
  LOG_LEVEL                    Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT                   Log format: pretty, json (default: pretty)
  API_KEYS                     Comma-separated keys required for write requests

  EMBEDDING_ENDPOINT_*         Embedding service configuration
    BASE_URL                   Base URL (e.g., https://api.openai.com/v1)
    MODEL                      Model identifier (e.g., text-embedding-3-small)
    API_KEY                    API key for authentication
    TIMEOUT                    Request timeout (default: 60s)
    REQUESTS_PER_SECOND        Sustained request rate (default: 5)

  ENRICHMENT_ENDPOINT_*        Text generation service configuration
    (same fields as EMBEDDING_ENDPOINT)

  DOCUMENTS_ROOT               Directory holding the documents
  DOCUMENTS_INCLUDE            Comma-separated include globs
  DOCUMENTS_EXCLUDE            Comma-separated exclude globs

  TAXONOMY_*                   Clustering and assignment defaults

  REINDEX_ENABLED              Reprocess the documents root periodically
  REINDEX_INTERVAL             Time between reprocess runs (default: 30m)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags, host, port)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on (default: 8080)")

	return cmd
}

func runServe(cmd *cobra.Command, flags *globalFlags, host string, port int) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	cfg = applyServeOverrides(cfg, host, port)

	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// Progress bars would interleave with request logs.
	serveFlags := *flags
	serveFlags.progress = false

	s, err := openSession(cmd, &serveFlags, taxon.WithConfig(cfg), taxon.WithPeriodicReprocess())
	if err != nil {
		return err
	}
	defer s.close()

	attrs := append([]slog.Attr{slog.String("version", version)}, cfg.LogAttrs()...)
	s.logger.LogAttrs(s.ctx, slog.LevelInfo, "starting taxon", attrs...)

	apiServer := api.NewAPIServer(s.client.Pipeline(), s.client.Config().Taxonomy(), cfg.APIKeys(), s.logger)
	router := apiServer.Router()
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"name":"taxon","version":"%s"}`, version)
	})

	ctx, stop := signal.NotifyContext(s.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		errs <- apiServer.ListenAndServe(cfg.Addr())
	}()

	select {
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", slog.Any("error", err))
	}
	return <-errs
}

// applyServeOverrides applies command line flag overrides to the config.
func applyServeOverrides(cfg config.AppConfig, host string, port int) config.AppConfig {
	var opts []config.AppConfigOption

	if host != "" {
		opts = append(opts, config.WithHost(host))
	}
	if port != 0 {
		opts = append(opts, config.WithPort(port))
	}

	return cfg.Apply(opts...)
}
