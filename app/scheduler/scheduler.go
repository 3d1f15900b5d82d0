package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tastemap/tastemap/app/cfg"
	"github.com/tastemap/tastemap/app/database"
	"github.com/tastemap/tastemap/app/extraction"
	"github.com/tastemap/tastemap/app/filter"
)

// retryBackoffStep is multiplied by the attempt count to delay requeued
// failures, so a persistently broken video is never hot-looped.
const retryBackoffStep = 5 * time.Minute

// Scheduler runs the worker pool that drains the queue: each worker claims
// the next eligible item, invokes the extraction worker and records the
// outcome. Claims are atomic at the database layer, so workers never
// coordinate with each other.
type Scheduler struct {
	queueRepo      database.QueueRepository
	restaurantRepo database.RestaurantRepository
	logRepo        database.LogRepository
	worker         extraction.Worker

	interval    time.Duration
	workerCount int
	strict      bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	wake   chan struct{}
}

func NewScheduler(queueRepo database.QueueRepository, restaurantRepo database.RestaurantRepository,
	logRepo database.LogRepository, worker extraction.Worker) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		queueRepo:      queueRepo,
		restaurantRepo: restaurantRepo,
		logRepo:        logRepo,
		worker:         worker,
		interval:       time.Duration(cfg.SchedulerInterval) * time.Second,
		workerCount:    cfg.WorkerCount,
		strict:         cfg.StrictFiltering,
		ctx:            ctx,
		cancel:         cancel,
		wake:           make(chan struct{}, 1),
	}
}

// Start recovers items stranded in processing by a previous crash, then
// launches the workers.
func (s *Scheduler) Start() {
	reset, err := s.queueRepo.ResetStuckProcessing(s.ctx)
	if err != nil {
		slog.Error("Failed to reset stuck processing items", "error", err)
	} else if reset > 0 {
		slog.Warn("Requeued items stranded in processing", "count", reset)
		s.log("warn", "items_requeued", fmt.Sprintf("requeued %d items stranded in processing", reset), "")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.runWorker(i)
	}
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Wake nudges the workers without waiting for the next tick. Used after
// operator actions that make an item immediately claimable.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) runWorker(id int) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		// Drain everything claimable before sleeping again.
		for s.processNext(id) {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
		}

		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		case <-s.wake:
		}
	}
}

// processNext claims and processes one item. It reports whether an item
// was claimed, so the caller can keep draining.
func (s *Scheduler) processNext(workerID int) bool {
	item, err := s.queueRepo.ClaimNext(s.ctx, time.Now().UTC())
	if err != nil {
		slog.Error("Failed to claim queue item", "worker_id", workerID, "error", err)
		return false
	}
	if item == nil {
		return false
	}

	slog.Info("Processing video", "worker_id", workerID, "item", item.ID,
		"video", item.VideoID, "attempt", item.AttemptCount+1, "max_attempts", item.MaxAttempts)
	s.log("info", "processing_started",
		fmt.Sprintf("processing '%s' (attempt %d/%d)", item.VideoTitle, item.AttemptCount+1, item.MaxAttempts), item.ID)

	result, err := s.worker.Extract(s.ctx, item.VideoURL)
	if err != nil {
		s.handleFailure(item, err)
		return true
	}

	s.handleSuccess(item, result)
	return true
}

// handleSuccess filters the extracted records, persists the survivors and
// marks the item completed.
func (s *Scheduler) handleSuccess(item *database.QueueItem, result *extraction.Result) {
	stored := 0
	rejected := 0
	for _, record := range result.Restaurants {
		verdict := filter.Score(record)
		if filter.Rejected(verdict, s.strict) {
			rejected++
			slog.Debug("Extraction record rejected", "item", item.ID,
				"name", record.NameHe, "confidence", verdict.Confidence,
				"reasons", verdict.Reasons)
			continue
		}

		err := s.restaurantRepo.Insert(s.ctx, &database.Restaurant{
			ID:              uuid.NewString(),
			QueueItemID:     item.ID,
			VideoID:         item.VideoID,
			NameHe:          record.NameHe,
			NameEn:          record.NameEn,
			Cuisine:         record.Cuisine,
			City:            record.City,
			Neighborhood:    record.Neighborhood,
			PriceRange:      record.PriceRange,
			HostOpinion:     record.HostOpinion,
			HostComments:    record.HostComments,
			MenuItems:       record.MenuItems,
			SpecialFeatures: record.SpecialFeatures,
			GoogleName:      record.GoogleName,
			Confidence:      verdict.Confidence,
			Recommendation:  verdict.Recommendation,
		})
		if err != nil {
			slog.Error("Failed to store restaurant", "item", item.ID, "name", record.NameHe, "error", err)
			continue
		}
		stored++
	}

	updated, err := s.queueRepo.Complete(s.ctx, item.ID, stored)
	if err != nil {
		slog.Error("Failed to mark item completed", "item", item.ID, "error", err)
		return
	}

	slog.Info("Video processed", "item", updated.ID, "video", updated.VideoID,
		"extracted", len(result.Restaurants), "rejected", rejected, "stored", stored)
	s.log("info", "processing_completed",
		fmt.Sprintf("'%s': %d extracted, %d rejected by filter, %d stored",
			item.VideoTitle, len(result.Restaurants), rejected, stored), item.ID)
}

// handleFailure requeues the item with a linear backoff, or lets the
// attempt bound make it terminal.
func (s *Scheduler) handleFailure(item *database.QueueItem, extractErr error) {
	attempt := item.AttemptCount + 1
	retryAt := time.Now().UTC().Add(time.Duration(attempt) * retryBackoffStep)

	updated, err := s.queueRepo.RecordFailure(s.ctx, item.ID, extractErr.Error(), retryAt)
	if err != nil {
		slog.Error("Failed to record extraction failure", "item", item.ID, "error", err)
		return
	}

	if updated.Status == database.StatusFailed {
		slog.Error("Video failed permanently", "item", updated.ID, "video", updated.VideoID,
			"attempts", updated.AttemptCount, "error", extractErr)
		s.log("error", "processing_failed",
			fmt.Sprintf("'%s' failed permanently after %d attempts: %s",
				item.VideoTitle, updated.AttemptCount, extractErr.Error()), item.ID)
		return
	}

	slog.Warn("Video processing failed, retry scheduled", "item", updated.ID,
		"video", updated.VideoID, "attempt", updated.AttemptCount,
		"max_attempts", updated.MaxAttempts, "retry_at", retryAt)
	s.log("warn", "processing_retried",
		fmt.Sprintf("'%s' attempt %d/%d failed: %s",
			item.VideoTitle, updated.AttemptCount, updated.MaxAttempts, extractErr.Error()), item.ID)
}

func (s *Scheduler) log(level, eventType, message, queueItemID string) {
	if err := s.logRepo.Append(s.ctx, level, eventType, message, queueItemID); err != nil {
		slog.Warn("Failed to append pipeline log entry", "event", eventType, "error", err)
	}
}
