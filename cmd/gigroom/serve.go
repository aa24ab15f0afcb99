package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gigroom/gigroom/internal/api"
	"github.com/gigroom/gigroom/internal/auth"
	"github.com/gigroom/gigroom/internal/chat"
	"github.com/gigroom/gigroom/internal/db"
	"github.com/gigroom/gigroom/internal/gateway"
	"github.com/gigroom/gigroom/internal/retention"
	"github.com/gigroom/gigroom/internal/storage"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and websocket gateway",
		Long:  "Migrates the database, then serves the JSON API, websocket push connections and uploaded media until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port, verbose)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to gigroom config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default: http.port)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int, verbose bool) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), verbose)
	slog.SetDefault(logger)

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	if err := db.SeedUsers(gormDB, cfg.Users); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bc, closeBC := newBroadcaster(cfg.Broadcast, logger)
	defer closeBC()

	rl, err := startRelay(ctx, cfg.Relay, logger)
	if err != nil {
		logger.Warn("serve: relay unavailable, continuing without it", "error", err)
	}
	if rl != nil {
		defer rl.Close()
	}

	notifier, err := newNotifier(gormDB, bc, rl, logger)
	if err != nil {
		return err
	}
	store, err := storage.NewLocalStore(cfg.Storage.Dir, cfg.Storage.BaseURL, cfg.Storage.MaxUploadBytes)
	if err != nil {
		return err
	}
	svc, err := chat.New(chat.Opts{
		DB:          gormDB,
		Broadcaster: bc,
		Notifier:    notifier,
		Store:       store,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	authn := auth.New(gormDB, cfg.Auth.JWTSecret)
	gw, err := gateway.New(gateway.Opts{
		Auth:           authn,
		Chat:           svc,
		Broadcaster:    bc,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	if cfg.Retention.Schedule != "" {
		pruner := &retention.Pruner{
			DB:     gormDB,
			MaxAge: time.Duration(cfg.Retention.ReadMaxAgeDays) * 24 * time.Hour,
			Logger: logger,
		}
		sched, err := retention.Schedule(cfg.Retention.Schedule, pruner)
		if err != nil {
			return err
		}
		defer sched.Stop()
		logger.Info("serve: retention scheduled", "schedule", cfg.Retention.Schedule,
			"next_in", retention.NextRun(cfg.Retention.Schedule, time.Now()))
	}

	if port > 0 {
		cfg.HTTP.Port = port
	}
	opts := api.StartOpts{
		RouterOpts: api.RouterOpts{
			Auth:           authn,
			Chat:           svc,
			Notify:         notifier,
			Gateway:        gw,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			Logger:         logger,
		},
		Port: cfg.HTTP.Port,
		Out:  cmd.OutOrStdout(),
	}
	if strings.HasPrefix(cfg.Storage.BaseURL, "/") {
		opts.MediaDir = cfg.Storage.Dir
		opts.MediaURL = cfg.Storage.BaseURL
	}

	err = api.Start(ctx, opts)
	fmt.Fprintln(cmd.OutOrStdout(), "Shut down.")
	return err
}
