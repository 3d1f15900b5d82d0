package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var _ QueueRepository = (*SQLQueueRepository)(nil)

// SQLQueueRepository owns the queue_items lifecycle. Every status change is
// a single conditional update so concurrent workers can never double-claim
// or resurrect a terminal item.
type SQLQueueRepository struct {
	db *DB
}

// NewQueueRepository creates a new queue repository
func NewQueueRepository(db *DB) *SQLQueueRepository {
	return &SQLQueueRepository{db: db}
}

const queueItemColumns = `id, video_id, video_url, channel_name, video_title, subscription_id,
	priority, scheduled_for, discovered_at, status, attempt_count, max_attempts,
	processing_started_at, processing_completed_at, error_message, restaurants_found,
	created_at, updated_at`

func (r *SQLQueueRepository) Insert(ctx context.Context, item *QueueItem) error {
	now := time.Now().UTC()
	if item.Status == "" {
		item.Status = StatusQueued
	}
	if item.ScheduledFor.IsZero() {
		item.ScheduledFor = now
	}
	if item.DiscoveredAt.IsZero() {
		item.DiscoveredAt = now
	}
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO queue_items (id, video_id, video_url, channel_name, video_title,
			subscription_id, priority, scheduled_for, discovered_at, status,
			attempt_count, max_attempts, error_message, restaurants_found, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.VideoID, item.VideoURL, item.ChannelName, item.VideoTitle,
		nullableString(item.SubscriptionID), item.Priority, formatTime(item.ScheduledFor),
		formatTime(item.DiscoveredAt), item.Status, item.AttemptCount, item.MaxAttempts,
		nullableString(item.ErrorMessage), item.RestaurantsFound,
		formatTime(now), formatTime(now))

	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateVideo
		}
		return fmt.Errorf("failed to insert queue item: %w", err)
	}

	return nil
}

func (r *SQLQueueRepository) GetByID(ctx context.Context, id string) (*QueueItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+queueItemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return item, nil
}

// VideoSeen reports whether a video already has any queue item, in any
// status. Discovery treats skipped and completed videos as seen too.
func (r *SQLQueueRepository) VideoSeen(ctx context.Context, videoID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM queue_items WHERE video_id = ? LIMIT 1`, videoID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check video: %w", err)
	}
	return true, nil
}

// ClaimNext performs the atomic claim: the best eligible queued item moves
// to processing in one conditional update, so two workers can never both
// observe it as claimable. Ordering is priority descending, then discovery
// order.
func (r *SQLQueueRepository) ClaimNext(ctx context.Context, now time.Time) (*QueueItem, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE queue_items
		SET status = ?, processing_started_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM queue_items
			WHERE status = ? AND scheduled_for <= ?
			ORDER BY priority DESC, discovered_at ASC, id ASC
			LIMIT 1
		) AND status = ?
		RETURNING `+queueItemColumns,
		StatusProcessing, formatTime(now), formatTime(now),
		StatusQueued, formatTime(now),
		StatusQueued)

	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim next item: %w", err)
	}
	return item, nil
}

// Complete marks a processing item as completed and records how many
// restaurants the extraction produced.
func (r *SQLQueueRepository) Complete(ctx context.Context, id string, restaurantsFound int) (*QueueItem, error) {
	now := formatTime(time.Now())
	row := r.db.QueryRowContext(ctx, `
		UPDATE queue_items
		SET status = ?, restaurants_found = ?, processing_completed_at = ?,
			error_message = NULL, updated_at = ?
		WHERE id = ? AND status = ?
		RETURNING `+queueItemColumns,
		StatusCompleted, restaurantsFound, now, now, id, StatusProcessing)

	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.classifyMiss(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to complete item: %w", err)
	}
	return item, nil
}

// RecordFailure increments the attempt counter and either requeues the item
// with a backoff delay or, once attempts are exhausted, marks it terminally
// failed. One conditional update keeps attempt_count <= max_attempts under
// all interleavings.
func (r *SQLQueueRepository) RecordFailure(ctx context.Context, id string, message string, retryAt time.Time) (*QueueItem, error) {
	now := formatTime(time.Now())
	row := r.db.QueryRowContext(ctx, `
		UPDATE queue_items
		SET attempt_count = attempt_count + 1,
			status = CASE WHEN attempt_count + 1 >= max_attempts THEN ? ELSE ? END,
			scheduled_for = CASE WHEN attempt_count + 1 >= max_attempts THEN scheduled_for ELSE ? END,
			processing_completed_at = CASE WHEN attempt_count + 1 >= max_attempts THEN ? ELSE NULL END,
			processing_started_at = CASE WHEN attempt_count + 1 >= max_attempts THEN processing_started_at ELSE NULL END,
			error_message = ?, updated_at = ?
		WHERE id = ? AND status = ?
		RETURNING `+queueItemColumns,
		StatusFailed, StatusQueued,
		formatTime(retryAt),
		now,
		message, now, id, StatusProcessing)

	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.classifyMiss(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record failure: %w", err)
	}
	return item, nil
}

// ResetStuckProcessing returns items left in processing by a crashed worker
// back to queued. Called once at startup, before workers start.
func (r *SQLQueueRepository) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE queue_items
		SET status = ?, processing_started_at = NULL, updated_at = ?
		WHERE status = ?
	`, StatusQueued, formatTime(time.Now()), StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck items: %w", err)
	}
	return res.RowsAffected()
}

// Retry moves a failed item back to queued and resets its attempt
// bookkeeping, giving the item a fresh max_attempts budget.
func (r *SQLQueueRepository) Retry(ctx context.Context, id string) (*QueueItem, error) {
	now := formatTime(time.Now())
	row := r.db.QueryRowContext(ctx, `
		UPDATE queue_items
		SET status = ?, attempt_count = 0, error_message = NULL, scheduled_for = ?,
			processing_started_at = NULL, processing_completed_at = NULL, updated_at = ?
		WHERE id = ? AND status = ?
		RETURNING `+queueItemColumns,
		StatusQueued, now, now, id, StatusFailed)

	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.classifyMiss(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retry item: %w", err)
	}
	return item, nil
}

// Skip marks a queued item as skipped. Only valid while queued.
func (r *SQLQueueRepository) Skip(ctx context.Context, id string) (*QueueItem, error) {
	now := formatTime(time.Now())
	row := r.db.QueryRowContext(ctx, `
		UPDATE queue_items
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
		RETURNING `+queueItemColumns,
		StatusSkipped, now, id, StatusQueued)

	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.classifyMiss(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to skip item: %w", err)
	}
	return item, nil
}

// Prioritize bumps a queued item above every other queued item. The new
// priority is computed inside the update so concurrent prioritize calls
// still each end up strictly greatest at their commit point.
func (r *SQLQueueRepository) Prioritize(ctx context.Context, id string) (*QueueItem, error) {
	now := formatTime(time.Now())
	row := r.db.QueryRowContext(ctx, `
		UPDATE queue_items
		SET priority = (SELECT COALESCE(MAX(priority), 0) + 1 FROM queue_items WHERE status = ?),
			updated_at = ?
		WHERE id = ? AND status = ?
		RETURNING `+queueItemColumns,
		StatusQueued, now, id, StatusQueued)

	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.classifyMiss(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to prioritize item: %w", err)
	}
	return item, nil
}

// Remove hard-deletes an item. Processing items cannot be removed.
func (r *SQLQueueRepository) Remove(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM queue_items WHERE id = ? AND status != ?`, id, StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return r.classifyMiss(ctx, id)
	}

	return nil
}

// ListQueued returns queued items in scheduling order plus the total count.
func (r *SQLQueueRepository) ListQueued(ctx context.Context, limit, offset int) ([]QueueItem, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_items WHERE status = ?`, StatusQueued).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count queued items: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+queueItemColumns+` FROM queue_items
		WHERE status = ?
		ORDER BY priority DESC, discovered_at ASC, id ASC
		LIMIT ? OFFSET ?
	`, StatusQueued, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list queued items: %w", err)
	}
	defer rows.Close()

	items, err := collectQueueItems(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListHistory returns terminal items (completed, failed, skipped), newest
// first, plus the total count.
func (r *SQLQueueRepository) ListHistory(ctx context.Context, limit, offset int) ([]QueueItem, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_items WHERE status IN (?, ?, ?)`,
		StatusCompleted, StatusFailed, StatusSkipped).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count history items: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+queueItemColumns+` FROM queue_items
		WHERE status IN (?, ?, ?)
		ORDER BY updated_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, StatusCompleted, StatusFailed, StatusSkipped, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list history items: %w", err)
	}
	defer rows.Close()

	items, err := collectQueueItems(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Stats aggregates status counts, average processing duration, recent
// completion counts and the failure rate.
func (r *SQLQueueRepository) Stats(ctx context.Context, now time.Time) (*QueueStats, error) {
	stats := &QueueStats{StatusCounts: make(map[Status]int)}

	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(1) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats.StatusCounts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}
	stats.ProcessingInFlight = stats.StatusCounts[StatusProcessing]

	var avgSecs sql.NullFloat64
	err = r.db.QueryRowContext(ctx, `
		SELECT AVG((julianday(processing_completed_at) - julianday(processing_started_at)) * 86400.0)
		FROM queue_items
		WHERE status = ? AND processing_started_at IS NOT NULL AND processing_completed_at IS NOT NULL
	`, StatusCompleted).Scan(&avgSecs)
	if err != nil {
		return nil, fmt.Errorf("failed to compute average duration: %w", err)
	}
	stats.AvgProcessingSecs = avgSecs.Float64

	dayAgo := formatTime(now.Add(-24 * time.Hour))
	weekAgo := formatTime(now.Add(-7 * 24 * time.Hour))
	err = r.db.QueryRowContext(ctx, `
		SELECT
			SUM(CASE WHEN processing_completed_at >= ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN processing_completed_at >= ? THEN 1 ELSE 0 END)
		FROM queue_items WHERE status = ?
	`, dayAgo, weekAgo, StatusCompleted).Scan(
		&nullInt{&stats.CompletedLast24h}, &nullInt{&stats.CompletedLast7d})
	if err != nil {
		return nil, fmt.Errorf("failed to count recent completions: %w", err)
	}

	completed := stats.StatusCounts[StatusCompleted]
	failed := stats.StatusCounts[StatusFailed]
	if completed+failed > 0 {
		stats.FailureRate = float64(failed) / float64(completed+failed)
	}

	var oldest sql.NullString
	err = r.db.QueryRowContext(ctx,
		`SELECT MIN(discovered_at) FROM queue_items WHERE status = ?`, StatusQueued).Scan(&oldest)
	if err != nil {
		return nil, fmt.Errorf("failed to find oldest queued item: %w", err)
	}
	if oldest.Valid {
		if t, err := parseTimeString(oldest.String); err == nil {
			stats.OldestQueuedAt = &t
		}
	}

	return stats, nil
}

// classifyMiss turns a zero-row conditional update into the typed error the
// operator surface promises: unknown id vs. action invalid for the current
// status.
func (r *SQLQueueRepository) classifyMiss(ctx context.Context, id string) error {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM queue_items WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to classify failed update: %w", err)
	}
	return ErrInvalidTransition
}

func collectQueueItems(rows *sql.Rows) ([]QueueItem, error) {
	var items []QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue item row: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue item rows: %w", err)
	}
	return items, nil
}

func scanQueueItem(scanner interface{ Scan(dest ...any) error }) (*QueueItem, error) {
	var (
		item           QueueItem
		subscriptionID sql.NullString
		scheduledRaw   string
		discoveredRaw  string
		statusStr      string
		startedRaw     sql.NullString
		completedRaw   sql.NullString
		errorMessage   sql.NullString
		createdRaw     string
		updatedRaw     string
	)

	if err := scanner.Scan(
		&item.ID, &item.VideoID, &item.VideoURL, &item.ChannelName, &item.VideoTitle,
		&subscriptionID, &item.Priority, &scheduledRaw, &discoveredRaw, &statusStr,
		&item.AttemptCount, &item.MaxAttempts, &startedRaw, &completedRaw,
		&errorMessage, &item.RestaurantsFound, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}

	item.SubscriptionID = subscriptionID.String
	item.Status = Status(statusStr)
	item.ErrorMessage = errorMessage.String

	if t, err := parseTimeString(scheduledRaw); err == nil {
		item.ScheduledFor = t
	}
	if t, err := parseTimeString(discoveredRaw); err == nil {
		item.DiscoveredAt = t
	}
	if startedRaw.Valid {
		if t, err := parseTimeString(startedRaw.String); err == nil {
			item.ProcessingStartedAt = &t
		}
	}
	if completedRaw.Valid {
		if t, err := parseTimeString(completedRaw.String); err == nil {
			item.ProcessingCompletedAt = &t
		}
	}
	if t, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = t
	}

	return &item, nil
}

// nullInt scans a nullable SUM() into an int, treating NULL as zero.
type nullInt struct {
	dst *int
}

func (n *nullInt) Scan(value any) error {
	if value == nil {
		*n.dst = 0
		return nil
	}
	switch v := value.(type) {
	case int64:
		*n.dst = int(v)
	case float64:
		*n.dst = int(v)
	default:
		return fmt.Errorf("unsupported count type %T", value)
	}
	return nil
}
