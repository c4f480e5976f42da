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

	"github.com/urfave/cli/v2"

	"github.com/calbers/lastwords/internal/broadcast"
	"github.com/calbers/lastwords/internal/config"
	"github.com/calbers/lastwords/internal/httpserver"
	"github.com/calbers/lastwords/internal/ingest"
	"github.com/calbers/lastwords/internal/langs"
	"github.com/calbers/lastwords/internal/likes"
	"github.com/calbers/lastwords/internal/sqlite"
	"github.com/calbers/lastwords/internal/store"
)

func main() {
	app := &cli.App{
		Name:  "lastwords",
		Usage: "watch deleted bluesky posts flow by",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "hostname",
				Usage:   "canonical hostname, other hosts are redirected (empty disables)",
				EnvVars: []string{"LASTWORDS_HOSTNAME"},
			},
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				Usage:   "HTTP listen port",
				EnvVars: []string{"LASTWORDS_PORT"},
			},
			&cli.StringFlag{
				Name:    "jetstream-url",
				Value:   "wss://jetstream1.us-east.bsky.network/subscribe",
				Usage:   "jetstream subscription endpoint",
				EnvVars: []string{"LASTWORDS_JETSTREAM_URL"},
			},
			&cli.StringFlag{
				Name:    "db-path",
				Usage:   "sqlite database file for the post cache (empty keeps the cache in memory)",
				EnvVars: []string{"LASTWORDS_DB_PATH"},
			},
			&cli.Int64Flag{
				Name:    "max-items",
				Value:   1_000_000,
				Usage:   "maximum number of cached posts",
				EnvVars: []string{"LASTWORDS_MAX_ITEMS"},
			},
			&cli.DurationFlag{
				Name:    "max-age",
				Value:   48 * time.Hour,
				Usage:   "maximum age of cached posts",
				EnvVars: []string{"LASTWORDS_MAX_AGE"},
			},
			&cli.DurationFlag{
				Name:    "replay-window",
				Value:   15 * time.Minute,
				Usage:   "how far back to resume the stream on startup",
				EnvVars: []string{"LASTWORDS_REPLAY_WINDOW"},
			},
			&cli.DurationFlag{
				Name:    "replay-tolerance",
				Value:   30 * time.Second,
				Usage:   "event lag below which the stream counts as live",
				EnvVars: []string{"LASTWORDS_REPLAY_TOLERANCE"},
			},
			&cli.Int64Flag{
				Name:    "activity-divisor",
				Value:   langs.DefaultActivityDivisor,
				Usage:   "a language is listed once seen more than top/divisor times",
				EnvVars: []string{"LASTWORDS_ACTIVITY_DIVISOR"},
			},
			&cli.StringFlag{
				Name:    "likes-url",
				Usage:   "appview base URL for like counts (empty disables lookups)",
				EnvVars: []string{"LASTWORDS_LIKES_URL"},
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "enable debug logging",
				EnvVars: []string{"LASTWORDS_DEBUG"},
			},
		},
		Action: func(c *cli.Context) error {
			cfg := &config.Config{
				Hostname:        c.String("hostname"),
				Port:            c.Int("port"),
				JetstreamURL:    c.String("jetstream-url"),
				DBPath:          c.String("db-path"),
				MaxItems:        c.Int64("max-items"),
				MaxAge:          c.Duration("max-age"),
				ReplayWindow:    c.Duration("replay-window"),
				ReplayTolerance: c.Duration("replay-tolerance"),
				ActivityDivisor: c.Int64("activity-divisor"),
				LikesURL:        c.String("likes-url"),
				Debug:           c.Bool("debug"),
			}
			return run(cfg)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var posts store.PostStore
	if cfg.DBPath == "" {
		posts = store.NewMemory(int(cfg.MaxItems), cfg.MaxAge.Milliseconds())
		logger.Info("using in-memory post cache", "max_items", cfg.MaxItems)
	} else {
		db, err := sqlite.NewStore(cfg.DBPath, cfg.MaxItems, cfg.MaxAge.Milliseconds(), logger.With("component", "sqlite"))
		if err != nil {
			return fmt.Errorf("open post cache: %w", err)
		}
		posts = db
		logger.Info("using sqlite post cache", "path", cfg.DBPath, "max_items", cfg.MaxItems)
	}
	defer posts.Close()

	tracker := langs.NewTracker(cfg.ActivityDivisor)
	hub := broadcast.NewHub(logger.With("component", "broadcast"))

	var likesClient *likes.Client
	if cfg.LikesURL != "" {
		likesClient = likes.NewClient(cfg.LikesURL, logger.With("component", "likes"))
	}

	ingester := ingest.New(
		cfg.JetstreamURL,
		posts,
		tracker,
		hub,
		likesClient,
		cfg.ReplayWindow,
		cfg.ReplayTolerance,
		logger.With("component", "ingest"),
	)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("broadcast hub exited with error", "error", err)
		}
	}()

	go func() {
		if err := ingester.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("ingester exited with error", "error", err)
		}
	}()

	server := httpserver.NewServer(cfg, tracker, hub, posts, ingester, logger.With("component", "http"))
	go server.RunStats(ctx)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started", "port", cfg.Port, "hostname", cfg.Hostname)

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}
