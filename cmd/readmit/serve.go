package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gyeh/readmitstats/internal/claims"
	"github.com/gyeh/readmitstats/internal/db"
	"github.com/gyeh/readmitstats/internal/exitcode"
	"github.com/gyeh/readmitstats/internal/logging"
	"github.com/gyeh/readmitstats/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard data API",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&cfg.Server.Addr, "addr", cfg.Server.Addr, "Listen address (or set READMIT_ADDR)")
	f.IntVar(&cfg.Server.SessionLimit, "session-limit", cfg.Server.SessionLimit, "Maximum sessions kept in memory")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.Setup(cfg.LogFormat, cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.ValidateWithDSN(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	pool, err := db.NewPool(ctx, cfg.DSN)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		os.Exit(exitcode.DBConnError)
	}
	defer pool.Close()

	repo, err := claims.NewRepository(pool, log)
	if err != nil {
		log.Error().Err(err).Msg("repository setup failed")
		os.Exit(exitcode.ServeError)
	}
	orch, err := newOrchestrator(repo, log)
	if err != nil {
		log.Error().Err(err).Msg("analysis setup failed")
		os.Exit(exitcode.UsageError)
	}
	sessions, err := server.NewSessionStore(cfg.Server.SessionLimit)
	if err != nil {
		log.Error().Err(err).Msg("session store setup failed")
		os.Exit(exitcode.ServeError)
	}

	srv := server.New(orch, repo, sessions, log)
	if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
		log.Error().Err(err).Msg("server failed")
		os.Exit(exitcode.ServeError)
	}
	return nil
}
