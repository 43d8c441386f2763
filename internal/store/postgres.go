// Package store persists subscription state and payment audit rows in
// Postgres.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"atsboost/internal/config"

	_ "github.com/lib/pq"
)

// Postgres wraps the SQL connection used by the webhook
type Postgres struct {
	DB  *sql.DB
	now func() time.Time
}

// Open connects to the datastore described by cfg. The service key is
// applied as the connection password.
func Open(cfg config.DatastoreConfig) (*Postgres, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.ConnMaxLifetime)
	}

	return New(db), nil
}

// New wraps an existing handle
func New(db *sql.DB) *Postgres {
	return &Postgres{DB: db, now: time.Now}
}

// Ping tests the database connection
func (p *Postgres) Ping(ctx context.Context) error {
	return p.DB.PingContext(ctx)
}

// Close closes the database connection
func (p *Postgres) Close() error {
	if p.DB != nil {
		return p.DB.Close()
	}
	return nil
}
