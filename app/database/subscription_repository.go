package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var _ SubscriptionRepository = (*SQLSubscriptionRepository)(nil)

// SQLSubscriptionRepository handles database operations for channel subscriptions
type SQLSubscriptionRepository struct {
	db *DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *DB) *SQLSubscriptionRepository {
	return &SQLSubscriptionRepository{db: db}
}

const subscriptionColumns = `id, source_url, source_name, channel_id, priority, check_interval_hours,
	paused, last_checked_at, last_error, created_at, updated_at`

func (r *SQLSubscriptionRepository) Insert(ctx context.Context, sub *Subscription) error {
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, source_url, source_name, channel_id, priority,
			check_interval_hours, paused, last_checked_at, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sub.ID, sub.SourceURL, sub.SourceName, sub.ChannelID, sub.Priority,
		sub.CheckIntervalHours, boolToInt(sub.Paused), nullableTime(sub.LastCheckedAt),
		nullableString(sub.LastError), formatTime(now), formatTime(now))

	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}

	return nil
}

// Upsert inserts a subscription or updates name/priority/interval of an
// existing one with the same source URL. Used by the channel seed loader.
func (r *SQLSubscriptionRepository) Upsert(ctx context.Context, sub *Subscription) (*Subscription, error) {
	existing, err := r.getBySourceURL(ctx, sub.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing subscription: %w", err)
	}

	if existing == nil {
		if err := r.Insert(ctx, sub); err != nil {
			return nil, err
		}
		return r.GetByID(ctx, sub.ID)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET source_name = ?, channel_id = ?, priority = ?, check_interval_hours = ?, updated_at = ?
		WHERE id = ?
	`, sub.SourceName, sub.ChannelID, sub.Priority, sub.CheckIntervalHours,
		formatTime(time.Now()), existing.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}

	return r.GetByID(ctx, existing.ID)
}

func (r *SQLSubscriptionRepository) GetByID(ctx context.Context, id string) (*Subscription, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

func (r *SQLSubscriptionRepository) getBySourceURL(ctx context.Context, sourceURL string) (*Subscription, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE source_url = ?`, sourceURL)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

func (r *SQLSubscriptionRepository) List(ctx context.Context) ([]Subscription, error) {
	return r.list(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY priority DESC, created_at`)
}

// ListActive returns unpaused subscriptions in polling order.
func (r *SQLSubscriptionRepository) ListActive(ctx context.Context) ([]Subscription, error) {
	return r.list(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE paused = 0 ORDER BY priority DESC, created_at`)
}

func (r *SQLSubscriptionRepository) list(ctx context.Context, query string) ([]Subscription, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		subs = append(subs, *sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription rows: %w", err)
	}

	return subs, nil
}

func (r *SQLSubscriptionRepository) SetPaused(ctx context.Context, id string, paused bool) (*Subscription, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions SET paused = ?, updated_at = ? WHERE id = ?
	`, boolToInt(paused), formatTime(time.Now()), id)
	if err != nil {
		return nil, fmt.Errorf("failed to set paused: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	return r.GetByID(ctx, id)
}

// MarkChecked records a poll attempt. A non-empty lastError marks the poll
// as failed without advancing last_checked_at, so the subscription stays due.
func (r *SQLSubscriptionRepository) MarkChecked(ctx context.Context, id string, checkedAt time.Time, lastError string) error {
	var err error
	if lastError != "" {
		_, err = r.db.ExecContext(ctx, `
			UPDATE subscriptions SET last_error = ?, updated_at = ? WHERE id = ?
		`, lastError, formatTime(time.Now()), id)
	} else {
		_, err = r.db.ExecContext(ctx, `
			UPDATE subscriptions SET last_checked_at = ?, last_error = NULL, updated_at = ? WHERE id = ?
		`, formatTime(checkedAt), formatTime(time.Now()), id)
	}

	if err != nil {
		return fmt.Errorf("failed to mark subscription checked: %w", err)
	}

	return nil
}

func (r *SQLSubscriptionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func scanSubscription(scanner interface{ Scan(dest ...any) error }) (*Subscription, error) {
	var (
		sub         Subscription
		paused      int
		lastChecked sql.NullString
		lastError   sql.NullString
		createdRaw  string
		updatedRaw  string
	)

	if err := scanner.Scan(
		&sub.ID, &sub.SourceURL, &sub.SourceName, &sub.ChannelID, &sub.Priority,
		&sub.CheckIntervalHours, &paused, &lastChecked, &lastError,
		&createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}

	sub.Paused = paused != 0
	sub.LastError = lastError.String

	if lastChecked.Valid {
		if t, err := parseTimeString(lastChecked.String); err == nil {
			sub.LastCheckedAt = &t
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		sub.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		sub.UpdatedAt = updated
	}

	return &sub, nil
}
