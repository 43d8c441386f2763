package store

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS subscriptions (
		user_id          TEXT PRIMARY KEY,
		type             TEXT NOT NULL DEFAULT 'free'
		                 CHECK (type IN ('free', 'premium', 'deep_analysis')),
		checkout_id      TEXT,
		end_date         TIMESTAMPTZ,
		next_payment_due TIMESTAMPTZ,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_checkout_id ON subscriptions (checkout_id)`,
	`CREATE TABLE IF NOT EXISTS payment_logs (
		id             UUID PRIMARY KEY,
		user_id        TEXT,
		amount         NUMERIC(12, 2) NOT NULL,
		status         TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_logs_user_id ON payment_logs (user_id, created_at DESC)`,
}

// Migrate creates the tables the webhook reads and writes. Every statement
// is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range migrations {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
