package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/plc-visualizer/logparse/internal/api"
	"github.com/plc-visualizer/logparse/internal/logging"
	"github.com/plc-visualizer/logparse/internal/session"
	"github.com/plc-visualizer/logparse/internal/storage"
	"github.com/plc-visualizer/logparse/internal/store"
)

// ServeOptions holds command-line options for the serve command.
type ServeOptions struct {
	Port    int
	Bind    string
	Persist bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(app *App) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the parse API over HTTP",
		Long: `Start the HTTP API. POST /api/parse starts a background parse of files
on the server; results are read back per session.

With storage.enable_persistence (or --persist) finished sessions are
written to the DuckDB file at storage.duckdb_path and entry pages are
served from it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, app, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "Listen port (default from config)")
	cmd.Flags().StringVar(&opts.Bind, "bind", "", "Bind address (default from config)")
	cmd.Flags().BoolVar(&opts.Persist, "persist", false, "Persist sessions to DuckDB")

	return cmd
}

func runServe(cmd *cobra.Command, app *App, opts *ServeOptions) error {
	cfg, logger, err := app.load()
	if err != nil {
		return err
	}
	if opts.Port != 0 {
		cfg.Server.Port = opts.Port
	}
	if opts.Bind != "" {
		cfg.Server.BindAddress = opts.Bind
	}
	if opts.Persist {
		cfg.Storage.EnablePersistence = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	registry := newRegistry(cfg, logger)
	sessOpts := []session.Option{
		session.WithLogger(logger),
		session.WithMaxSessions(cfg.Sessions.MaxSessions),
	}
	if cfg.Storage.EnablePersistence {
		ds, err := store.Open(cfg.Storage.DuckDBPath, store.WithLogger(logger))
		if err != nil {
			return err
		}
		defer ds.Close()
		sessOpts = append(sessOpts, session.WithStore(ds))
	}
	mgr := session.NewManager(registry, sessOpts...)

	uploads, err := storage.NewLocalStore(cfg.UploadDir(), 0)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go mgr.RunCleanup(ctx, cfg.CleanupInterval(), cfg.SessionTimeout())

	handlers := api.NewHandlers(&api.Dependencies{
		Store:          uploads,
		SessionMgr:     mgr,
		Dialects:       registry,
		DefaultWorkers: cfg.Parsing.Workers,
		Version:        app.Version,
		Logger:         logger,
	})
	e := api.NewEcho(cfg.Server, handlers, logger)

	log := logging.WithComponent(logger, "serve")
	log.Info("listening",
		"addr", cfg.GetServerAddr(),
		"persistence", cfg.Storage.EnablePersistence,
		"dialects", registry.Dialects(),
	)
	if err := api.Serve(ctx, e, cfg.GetServerAddr(), cfg.Server); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	log.Info("shut down")
	return nil
}
