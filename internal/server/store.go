package server

import (
	"fmt"
	"log/slog"

	"github.com/ageniuscoder/duochat/backend/internal/chat"
	"github.com/ageniuscoder/duochat/backend/internal/config"
	"github.com/ageniuscoder/duochat/backend/internal/storage/memory"
	"github.com/ageniuscoder/duochat/backend/internal/storage/postgres"
	"github.com/ageniuscoder/duochat/backend/internal/storage/sqlite"
)

// OpenStore connects the configured backend and applies its schema. The
// returned close func releases the connection pool.
func OpenStore(cfg config.Config, log *slog.Logger) (chat.Store, func() error, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Info("store.memory", "note", "messages are lost on restart")
		return memory.New(), func() error { return nil }, nil

	case config.DriverSQLite:
		conn, err := sqlite.New(cfg.SQLITEDsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := conn.Migrate(); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		log.Info("store.sqlite", "dsn", cfg.SQLITEDsn)
		return conn.Store(), conn.Close, nil

	case config.DriverPostgres:
		conn, err := postgres.New(cfg.PostgresDsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := conn.Migrate(); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		log.Info("store.postgres")
		return conn.Store(), conn.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
