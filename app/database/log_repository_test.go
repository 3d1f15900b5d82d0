package database

import (
	"context"
	"testing"
)

func TestAppendAndReadLog(t *testing.T) {
	repo := NewLogRepository(openTestDB(t))
	ctx := context.Background()

	if err := repo.Append(ctx, "info", "item_enqueued", "queued video abc", "item-1"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := repo.Append(ctx, "error", "extraction_failed", "worker timeout", "item-1"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := repo.Append(ctx, "info", "poll_completed", "checked 3 subscriptions", ""); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	recent, err := repo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(recent))
	}
	// Newest first.
	if recent[0].EventType != "poll_completed" {
		t.Errorf("Expected newest entry first, got %s", recent[0].EventType)
	}
	if recent[0].QueueItemID != "" {
		t.Errorf("Expected empty queue item id, got '%s'", recent[0].QueueItemID)
	}

	forItem, err := repo.ForItem(ctx, "item-1", 10)
	if err != nil {
		t.Fatalf("ForItem failed: %v", err)
	}
	if len(forItem) != 2 {
		t.Errorf("Expected 2 entries for item-1, got %d", len(forItem))
	}
	for _, entry := range forItem {
		if entry.QueueItemID != "item-1" {
			t.Errorf("Expected entry scoped to item-1, got '%s'", entry.QueueItemID)
		}
		if entry.Timestamp.IsZero() {
			t.Error("Expected entry timestamp to be set")
		}
	}
}
