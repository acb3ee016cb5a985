package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Addr      string
	LogLevel  string
	LogFormat string

	StoreDriver string
	SQLITEDsn   string
	PostgresDsn string

	JWTSecret      string
	JWTTTLMin      int
	WSRequireToken bool
	WSSendQueue    int

	HistoryLimit    int
	MaxMessageChars int

	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

func getenv(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val != "" {
		return val
	}
	return def
}

func getint(key string, def int) int {
	n, err := strconv.Atoi(getenv(key, ""))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func getbool(key string, def bool) bool {
	b, err := strconv.ParseBool(getenv(key, ""))
	if err != nil {
		return def
	}
	return b
}

func getduration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(getenv(key, ""))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getlist(key, def string) []string {
	var out []string
	for _, p := range strings.Split(getenv(key, def), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func MustLoad() Config {
	cfg := Config{
		Addr:      getenv("HTTP_ADDR", ":8080"),
		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "text"),

		StoreDriver: getenv("STORE_DRIVER", DriverSQLite),
		SQLITEDsn:   getenv("SQLITE_DSN", "file:chat.db?_pragma=foreign_keys(ON)"),
		PostgresDsn: getenv("POSTGRES_DSN", ""),

		JWTSecret:      getenv("JWT_SECRET", ""),
		JWTTTLMin:      getint("JWT_TTL_MIN", 1440),
		WSRequireToken: getbool("WS_REQUIRE_TOKEN", false),
		WSSendQueue:    getint("WS_SEND_QUEUE", 256),

		HistoryLimit:    getint("HISTORY_LIMIT", 50),
		MaxMessageChars: getint("MAX_MESSAGE_CHARS", 4000),

		CORSOrigins:     getlist("CORS_ORIGINS", "*"),
		ShutdownTimeout: getduration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
	return cfg
}

// Validate reports configuration that cannot start a server.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite:
		if c.SQLITEDsn == "" {
			return fmt.Errorf("config: SQLITE_DSN is required for driver %q", c.StoreDriver)
		}
	case DriverPostgres:
		if c.PostgresDsn == "" {
			return fmt.Errorf("config: POSTGRES_DSN is required for driver %q", c.StoreDriver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.WSRequireToken && c.JWTSecret == "" {
		return fmt.Errorf("config: WS_REQUIRE_TOKEN needs JWT_SECRET")
	}
	return nil
}
