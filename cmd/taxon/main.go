// Package main is the entry point for the taxon CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/helixml/taxon"
	"github.com/helixml/taxon/infrastructure/tracking"
	"github.com/helixml/taxon/internal/config"
	"github.com/helixml/taxon/internal/log"
)

// Version information set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	envFile  string
	root     string
	progress bool
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "taxon",
		Short:         "Build and apply a document taxonomy",
		Long:          `Taxon indexes a directory of text documents, clusters them, derives a tag taxonomy with an LLM and assigns tags back to every document.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.PersistentFlags().StringVar(&flags.root, "root", "", "Documents root (overrides DOCUMENTS_ROOT)")
	cmd.PersistentFlags().BoolVar(&flags.progress, "progress", true, "Draw progress bars when stderr is a terminal")

	cmd.AddCommand(reprocessCmd(flags))
	cmd.AddCommand(rebuildIndexCmd(flags))
	cmd.AddCommand(clustersCmd(flags))
	cmd.AddCommand(taxonomyCmd(flags))
	cmd.AddCommand(tagsCmd(flags))
	cmd.AddCommand(rebuildCmd(flags))
	cmd.AddCommand(tagCmd(flags))
	cmd.AddCommand(searchCmd(flags))
	cmd.AddCommand(serveCmd(flags))
	cmd.AddCommand(versionCmd())

	return cmd
}

// loadConfig loads configuration from .env file and environment variables.
func loadConfig(flags *globalFlags) (config.AppConfig, error) {
	cfg, err := config.LoadConfig(flags.envFile)
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	if flags.root != "" {
		cfg = cfg.Apply(config.WithDocuments(cfg.Documents().WithRoot(flags.root)))
	}
	return cfg, nil
}

// session is an open client plus the logger and run context of one command.
type session struct {
	client *taxon.Client
	logger *slog.Logger
	ctx    context.Context
}

func (s session) close() {
	if err := s.client.Close(); err != nil {
		s.logger.Error("failed to close taxon client", slog.Any("error", err))
	}
}

// openSession loads configuration and opens a client for one command.
func openSession(cmd *cobra.Command, flags *globalFlags, opts ...taxon.Option) (session, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return session{}, err
	}

	logger := log.NewLogger(cfg).Slog()
	ctx := log.NewRun(cmd.Context())

	base := []taxon.Option{
		taxon.WithConfig(cfg),
		taxon.WithLogger(logger),
	}
	if flags.progress && tracking.IsTerminal() {
		base = append(base, taxon.WithReporter(tracking.NewProgressReporter(os.Stderr)))
	}

	client, err := taxon.New(append(base, opts...)...)
	if err != nil {
		return session{}, fmt.Errorf("create taxon client: %w", err)
	}
	return session{client: client, logger: logger, ctx: ctx}, nil
}
