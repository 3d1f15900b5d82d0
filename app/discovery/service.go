package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tastemap/tastemap/app/cfg"
	"github.com/tastemap/tastemap/app/database"
)

// RefreshResult reports the outcome of one subscription refresh.
type RefreshResult struct {
	Queued  int `json:"queued_count"`
	Skipped int `json:"skipped_count"`
}

// Service owns subscription polling: it discovers recent uploads per
// subscription and enqueues the ones the pipeline has not seen yet.
type Service struct {
	subRepo        database.SubscriptionRepository
	queueRepo      database.QueueRepository
	restaurantRepo database.RestaurantRepository
	logRepo        database.LogRepository
	fetcher        Fetcher

	pollInterval   time.Duration
	discoveryLimit int
	maxAttempts    int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(subRepo database.SubscriptionRepository, queueRepo database.QueueRepository,
	restaurantRepo database.RestaurantRepository, logRepo database.LogRepository, fetcher Fetcher) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Service{
		subRepo:        subRepo,
		queueRepo:      queueRepo,
		restaurantRepo: restaurantRepo,
		logRepo:        logRepo,
		fetcher:        fetcher,
		pollInterval:   time.Duration(cfg.PollInterval) * time.Second,
		discoveryLimit: cfg.DiscoveryLimit,
		maxAttempts:    cfg.MaxAttempts,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// AddSubscription registers a channel source. Repeated calls with the same
// source URL update the existing subscription instead of duplicating it.
func (s *Service) AddSubscription(ctx context.Context, sourceURL, sourceName string, priority, intervalHours int) (*database.Subscription, error) {
	feedURL, err := ResolveFeedURL(sourceURL)
	if err != nil {
		return nil, err
	}

	if intervalHours <= 0 {
		intervalHours = 24
	}
	if sourceName == "" {
		sourceName = sourceURL
	}

	sub := &database.Subscription{
		ID:                 uuid.NewString(),
		SourceURL:          sourceURL,
		SourceName:         sourceName,
		ChannelID:          channelIDFromFeedURL(feedURL),
		Priority:           priority,
		CheckIntervalHours: intervalHours,
	}

	return s.subRepo.Upsert(ctx, sub)
}

// CheckNow previews a subscription's recent uploads without enqueueing
// anything.
func (s *Service) CheckNow(ctx context.Context, id string) ([]CandidateVideo, error) {
	sub, err := s.subRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.fetcher.FetchRecent(ctx, sub.SourceURL, s.discoveryLimit)
}

// Refresh fetches a subscription's recent uploads and enqueues the unseen
// ones. Videos already queued, processing, or with a persisted restaurant
// record are skipped, so the call is idempotent.
func (s *Service) Refresh(ctx context.Context, id string) (*RefreshResult, error) {
	sub, err := s.subRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	videos, err := s.fetcher.FetchRecent(ctx, sub.SourceURL, s.discoveryLimit)
	if err != nil {
		s.recordFailure(ctx, sub, err)
		return nil, fmt.Errorf("failed to fetch subscription '%s': %w", sub.SourceName, err)
	}

	result := &RefreshResult{}
	now := time.Now().UTC()

	for i, video := range videos {
		seen, err := s.videoSeen(ctx, video.VideoID)
		if err != nil {
			return nil, fmt.Errorf("failed to check video '%s': %w", video.VideoID, err)
		}
		if seen {
			result.Skipped++
			continue
		}

		item := &database.QueueItem{
			ID:             uuid.NewString(),
			VideoID:        video.VideoID,
			VideoURL:       video.VideoURL,
			ChannelName:    video.ChannelName,
			VideoTitle:     video.Title,
			SubscriptionID: sub.ID,
			Priority:       sub.Priority,
			ScheduledFor:   now,
			// Strictly increasing within the batch so equal-priority claims
			// keep the feed order instead of falling through to the id.
			DiscoveredAt: now.Add(time.Duration(i) * time.Microsecond),
			MaxAttempts:  s.maxAttempts,
		}

		if err := s.queueRepo.Insert(ctx, item); err != nil {
			if errors.Is(err, database.ErrDuplicateVideo) {
				result.Skipped++
				continue
			}
			return nil, fmt.Errorf("failed to enqueue video '%s': %w", video.VideoID, err)
		}

		result.Queued++
		s.log(ctx, "info", "item_enqueued",
			fmt.Sprintf("discovered '%s' on %s", video.Title, sub.SourceName), item.ID)
	}

	if err := s.subRepo.MarkChecked(ctx, sub.ID, now, ""); err != nil {
		slog.Warn("Failed to mark subscription checked", "subscription", sub.SourceName, "error", err)
	}

	s.log(ctx, "info", "subscription_refreshed",
		fmt.Sprintf("%s: %d queued, %d skipped", sub.SourceName, result.Queued, result.Skipped), "")

	return result, nil
}

// Start launches the background polling loop.
func (s *Service) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		s.pollDue()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.pollDue()
			}
		}
	}()
}

func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()
}

// pollDue refreshes every active subscription whose check interval has
// elapsed. One subscription's failure never blocks the others.
func (s *Service) pollDue() {
	subs, err := s.subRepo.ListActive(s.ctx)
	if err != nil {
		slog.Error("Failed to list subscriptions for polling", "error", err)
		return
	}

	now := time.Now().UTC()
	for _, sub := range subs {
		if sub.DueAt().After(now) {
			continue
		}

		result, err := s.Refresh(s.ctx, sub.ID)
		if err != nil {
			slog.Warn("Subscription poll failed", "subscription", sub.SourceName, "error", err)
			continue
		}

		slog.Debug("Subscription polled", "subscription", sub.SourceName,
			"queued", result.Queued, "skipped", result.Skipped)
	}
}

// videoSeen reports whether a video already has an active or completed
// queue item, or a persisted restaurant record.
func (s *Service) videoSeen(ctx context.Context, videoID string) (bool, error) {
	seen, err := s.queueRepo.VideoSeen(ctx, videoID)
	if err != nil || seen {
		return seen, err
	}
	return s.restaurantRepo.ExistsForVideo(ctx, videoID)
}

func (s *Service) recordFailure(ctx context.Context, sub *database.Subscription, fetchErr error) {
	if err := s.subRepo.MarkChecked(ctx, sub.ID, time.Now().UTC(), fetchErr.Error()); err != nil {
		slog.Warn("Failed to record subscription error", "subscription", sub.SourceName, "error", err)
	}
	s.log(ctx, "error", "discovery_failed",
		fmt.Sprintf("%s: %s", sub.SourceName, fetchErr.Error()), "")
}

func (s *Service) log(ctx context.Context, level, eventType, message, queueItemID string) {
	if err := s.logRepo.Append(ctx, level, eventType, message, queueItemID); err != nil {
		slog.Warn("Failed to append pipeline log entry", "event", eventType, "error", err)
	}
}

func channelIDFromFeedURL(feedURL string) string {
	if _, after, ok := strings.Cut(feedURL, "channel_id="); ok {
		return after
	}
	return ""
}
