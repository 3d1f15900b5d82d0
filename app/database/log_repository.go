package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

var _ LogRepository = (*SQLLogRepository)(nil)

// SQLLogRepository appends pipeline events. Entries are never updated or
// deleted by the pipeline itself.
type SQLLogRepository struct {
	db *DB
}

// NewLogRepository creates a new pipeline log repository
func NewLogRepository(db *DB) *SQLLogRepository {
	return &SQLLogRepository{db: db}
}

func (r *SQLLogRepository) Append(ctx context.Context, level, eventType, message, queueItemID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pipeline_log (timestamp, level, event_type, message, queue_item_id)
		VALUES (?, ?, ?, ?, ?)
	`, formatTime(time.Now()), level, eventType, message, nullableString(queueItemID))

	if err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}

	return nil
}

func (r *SQLLogRepository) Recent(ctx context.Context, limit int) ([]PipelineLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, timestamp, level, event_type, message, queue_item_id
		FROM pipeline_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent log entries: %w", err)
	}
	defer rows.Close()

	return collectLogEntries(rows)
}

func (r *SQLLogRepository) ForItem(ctx context.Context, queueItemID string, limit int) ([]PipelineLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, timestamp, level, event_type, message, queue_item_id
		FROM pipeline_log
		WHERE queue_item_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, queueItemID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get item log entries: %w", err)
	}
	defer rows.Close()

	return collectLogEntries(rows)
}

func collectLogEntries(rows *sql.Rows) ([]PipelineLogEntry, error) {
	var entries []PipelineLogEntry
	for rows.Next() {
		var (
			entry        PipelineLogEntry
			timestampRaw string
			itemID       sql.NullString
		)
		if err := rows.Scan(&entry.ID, &timestampRaw, &entry.Level, &entry.EventType,
			&entry.Message, &itemID); err != nil {
			return nil, fmt.Errorf("failed to scan log entry row: %w", err)
		}
		if t, err := parseTimeString(timestampRaw); err == nil {
			entry.Timestamp = t
		}
		entry.QueueItemID = itemID.String
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating log entry rows: %w", err)
	}

	return entries, nil
}
