package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ageniuscoder/duochat/backend/internal/storage/sqlstore"
	"github.com/lib/pq"
)

type Postgres struct {
	Db *sql.DB
}

func New(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &Postgres{
		Db: db,
	}, nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.Db.PingContext(ctx)
}

func (s *Postgres) Close() error {
	return s.Db.Close()
}

// Store returns the persistence gateway backed by this database.
func (s *Postgres) Store(opts ...sqlstore.Option) *sqlstore.Store {
	return sqlstore.New(s.Db, Dialect, opts...)
}

var Dialect = sqlstore.Dialect{
	Name:              "postgres",
	Rebind:            sqlstore.RebindDollar,
	IsUniqueViolation: isUniqueViolation,
}

const uniqueViolation = pq.ErrorCode("23505")

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
