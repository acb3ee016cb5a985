// Package server assembles the HTTP surface (REST, websocket, probes,
// metrics) and owns the listener lifecycle.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/ageniuscoder/duochat/backend/internal/auth"
	"github.com/ageniuscoder/duochat/backend/internal/chat"
	"github.com/ageniuscoder/duochat/backend/internal/config"
	"github.com/ageniuscoder/duochat/backend/internal/httpx"
	"github.com/ageniuscoder/duochat/backend/internal/logging"
	"github.com/ageniuscoder/duochat/backend/internal/messages"
	"github.com/ageniuscoder/duochat/backend/internal/metrics"
	"github.com/ageniuscoder/duochat/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type Deps struct {
	Config  config.Config
	Log     *slog.Logger
	Store   chat.Store
	Chat    *chat.Service
	Metrics *metrics.Metrics
}

// NewEngine wires every route onto a fresh gin engine.
func NewEngine(d Deps) (*gin.Engine, error) {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := chat.RegisterValidators(v); err != nil {
			return nil, err
		}
	}

	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(d.Log), cors.New(corsConfig(d.Config.CORSOrigins)))

	r.GET("/healthz", func(c *gin.Context) {
		httpx.Text(c, http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := d.Store.Ping(ctx); err != nil {
			d.Log.Info("readyz.store.not_ready", "err", err)
			httpx.Text(c, http.StatusServiceUnavailable, "store not ready")
			return
		}
		httpx.Text(c, http.StatusOK, "ready")
	})
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	ws := chat.NewWSHandler(d.Chat, d.Log, d.Metrics, chat.WSOptions{
		JWTSecret:      d.Config.JWTSecret,
		RequireToken:   d.Config.WSRequireToken,
		SendQueue:      d.Config.WSSendQueue,
		AllowedOrigins: d.Config.CORSOrigins,
	})
	ws.RegisterWS(r)

	us := users.NewService(d.Store, d.Chat, d.Log, d.Config)
	ms := messages.Service{Store: d.Store, Log: d.Log, HistoryLimit: d.Config.HistoryLimit}

	api := r.Group("/api")
	users.RegisterPublic(api, us)

	private := api.Group("", auth.JWTMiddleware(d.Config.JWTSecret))
	users.RegisterPrivate(private, us)
	messages.Register(private, ms)

	return r, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// Run serves handler on cfg.Addr until ctx is cancelled, then shuts down
// gracefully within cfg.ShutdownTimeout.
func Run(ctx context.Context, cfg config.Config, log *slog.Logger, handler http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	log.Info("server.start", "addr", cfg.Addr, "store", cfg.StoreDriver)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server.shutdown.fail", "err", err)
		return err
	}
	log.Info("server.stopped")
	return nil
}
