package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ageniuscoder/duochat/backend/internal/chat"
	"github.com/ageniuscoder/duochat/backend/internal/config"
	"github.com/ageniuscoder/duochat/backend/internal/logging"
	"github.com/ageniuscoder/duochat/backend/internal/metrics"
	"github.com/ageniuscoder/duochat/backend/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

var (
	// Populated at build-time via -ldflags.
	version = "dev"
	commit  = "HEAD"
)

func main() {
	// A missing .env is fine; the process environment still applies.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	cfg := config.MustLoad()

	var log *slog.Logger

	app := &cli.Command{
		Name:    "duochat",
		Usage:   "One-to-one realtime chat server",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "HTTP listen address",
				Value:       cfg.Addr,
				Destination: &cfg.Addr,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Value:       cfg.LogLevel,
				Destination: &cfg.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "log format (text, json)",
				Value:       cfg.LogFormat,
				Destination: &cfg.LogFormat,
			},
			&cli.StringFlag{
				Name:        "store",
				Usage:       "storage driver (sqlite, postgres, memory)",
				Value:       cfg.StoreDriver,
				Destination: &cfg.StoreDriver,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			log = logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
			slog.SetDefault(log)
			return ctx, cfg.Validate()
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the HTTP and websocket server",
				Action: func(ctx context.Context, c *cli.Command) error {
					return serve(ctx, cfg, log)
				},
			},
			{
				Name:  "migrate",
				Usage: "Apply the storage schema and exit",
				Action: func(ctx context.Context, c *cli.Command) error {
					_, closeStore, err := server.OpenStore(cfg, log)
					if err != nil {
						return err
					}
					log.Info("migration.completed", "store", cfg.StoreDriver)
					return closeStore()
				},
			},
		},
	}

	// No subcommand means serve.
	app.Action = func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() > 0 {
			return fmt.Errorf("unknown command %q. Run 'duochat --help' for usage", c.Args().First())
		}
		return serve(ctx, cfg, log)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "duochat: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	store, closeStore, err := server.OpenStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error("store.close.fail", "err", err)
		}
	}()

	m := metrics.New()
	svc := chat.NewService(store, log, m, chat.Options{
		HistoryLimit:    cfg.HistoryLimit,
		MaxMessageChars: cfg.MaxMessageChars,
	})

	engine, err := server.NewEngine(server.Deps{
		Config:  cfg,
		Log:     log,
		Store:   store,
		Chat:    svc,
		Metrics: m,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}
	return server.Run(ctx, cfg, log, engine)
}
