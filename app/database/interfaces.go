package database

import (
	"context"
	"time"
)

type SubscriptionRepository interface {
	Insert(ctx context.Context, sub *Subscription) error
	Upsert(ctx context.Context, sub *Subscription) (*Subscription, error)
	GetByID(ctx context.Context, id string) (*Subscription, error)
	List(ctx context.Context) ([]Subscription, error)
	ListActive(ctx context.Context) ([]Subscription, error)
	SetPaused(ctx context.Context, id string, paused bool) (*Subscription, error)
	MarkChecked(ctx context.Context, id string, checkedAt time.Time, lastError string) error
	Delete(ctx context.Context, id string) error
}

type QueueRepository interface {
	Insert(ctx context.Context, item *QueueItem) error
	GetByID(ctx context.Context, id string) (*QueueItem, error)
	VideoSeen(ctx context.Context, videoID string) (bool, error)

	// ClaimNext atomically moves the highest-priority eligible queued item
	// to processing and returns it, or nil when nothing is claimable.
	ClaimNext(ctx context.Context, now time.Time) (*QueueItem, error)
	Complete(ctx context.Context, id string, restaurantsFound int) (*QueueItem, error)
	RecordFailure(ctx context.Context, id string, message string, retryAt time.Time) (*QueueItem, error)
	ResetStuckProcessing(ctx context.Context) (int64, error)

	Retry(ctx context.Context, id string) (*QueueItem, error)
	Skip(ctx context.Context, id string) (*QueueItem, error)
	Prioritize(ctx context.Context, id string) (*QueueItem, error)
	Remove(ctx context.Context, id string) error

	ListQueued(ctx context.Context, limit, offset int) ([]QueueItem, int, error)
	ListHistory(ctx context.Context, limit, offset int) ([]QueueItem, int, error)
	Stats(ctx context.Context, now time.Time) (*QueueStats, error)
}

type LogRepository interface {
	Append(ctx context.Context, level, eventType, message, queueItemID string) error
	Recent(ctx context.Context, limit int) ([]PipelineLogEntry, error)
	ForItem(ctx context.Context, queueItemID string, limit int) ([]PipelineLogEntry, error)
}

type RestaurantRepository interface {
	Insert(ctx context.Context, r *Restaurant) error
	ExistsForVideo(ctx context.Context, videoID string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]Restaurant, int, error)
	CountAll(ctx context.Context) (int, error)
}
