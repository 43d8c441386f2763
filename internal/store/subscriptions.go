package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"atsboost/internal/types"

	"github.com/google/uuid"
)

// FindByCheckoutID returns the subscription whose checkout_id matches, or
// nil when there is none.
func (p *Postgres) FindByCheckoutID(ctx context.Context, checkoutID string) (*types.SubscriptionRecord, error) {
	query := `
		SELECT user_id, type, checkout_id, end_date, next_payment_due
		FROM subscriptions WHERE checkout_id = $1
		LIMIT 1
	`

	var (
		rec            types.SubscriptionRecord
		tier           string
		checkout       sql.NullString
		endDate        sql.NullTime
		nextPaymentDue sql.NullTime
	)
	err := p.DB.QueryRowContext(ctx, query, checkoutID).Scan(
		&rec.UserID, &tier, &checkout, &endDate, &nextPaymentDue,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find subscription by checkout id: %w", err)
	}

	rec.Type = types.SubscriptionType(tier)
	if checkout.Valid {
		rec.CheckoutID = &checkout.String
	}
	if endDate.Valid {
		rec.EndDate = &endDate.Time
	}
	if nextPaymentDue.Valid {
		rec.NextPaymentDue = &nextPaymentDue.Time
	}
	return &rec, nil
}

// UpdateByCheckoutID applies upd to the row matching checkoutID and returns
// the number of rows changed.
func (p *Postgres) UpdateByCheckoutID(ctx context.Context, checkoutID string, upd types.SubscriptionUpdate) (int64, error) {
	if upd.Empty() {
		return 0, nil
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Type != nil {
		add("type", string(*upd.Type))
	}
	if upd.EndDate != nil {
		add("end_date", *upd.EndDate)
	}
	if upd.NextPaymentDue != nil {
		add("next_payment_due", *upd.NextPaymentDue)
	}
	if upd.ClearCheckoutID {
		sets = append(sets, "checkout_id = NULL")
	}
	add("updated_at", p.now().UTC())

	args = append(args, checkoutID)
	query := fmt.Sprintf("UPDATE subscriptions SET %s WHERE checkout_id = $%d",
		strings.Join(sets, ", "), len(args))

	res, err := p.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update subscription by checkout id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update subscription rows affected: %w", err)
	}
	return n, nil
}

// InsertPaymentLog appends one audit row. ID and CreatedAt are filled in
// when empty.
func (p *Postgres) InsertPaymentLog(ctx context.Context, entry types.PaymentLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = p.now().UTC()
	}

	var userID sql.NullString
	if entry.UserID != nil {
		userID = sql.NullString{String: *entry.UserID, Valid: true}
	}

	query := `
		INSERT INTO payment_logs (id, user_id, amount, status, payment_method, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := p.DB.ExecContext(ctx, query,
		entry.ID, userID, entry.Amount, entry.Status, entry.PaymentMethod, entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert payment log: %w", err)
	}
	return nil
}

// RecentPaymentLogs returns the newest audit rows for a user
func (p *Postgres) RecentPaymentLogs(ctx context.Context, userID string, limit int) ([]types.PaymentLog, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, user_id, amount, status, payment_method, created_at
		FROM payment_logs WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := p.DB.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query payment logs: %w", err)
	}
	defer rows.Close()

	var logs []types.PaymentLog
	for rows.Next() {
		var (
			entry types.PaymentLog
			uid   sql.NullString
			at    time.Time
		)
		if err := rows.Scan(&entry.ID, &uid, &entry.Amount, &entry.Status, &entry.PaymentMethod, &at); err != nil {
			return nil, fmt.Errorf("scan payment log: %w", err)
		}
		if uid.Valid {
			entry.UserID = &uid.String
		}
		entry.CreatedAt = at
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
