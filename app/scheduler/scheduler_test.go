package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tastemap/tastemap/app/cfg"
	"github.com/tastemap/tastemap/app/database"
	"github.com/tastemap/tastemap/app/extraction"
)

// fakeWorker returns canned results keyed by video URL.
type fakeWorker struct {
	results map[string]*extraction.Result
	errs    map[string]error
	calls   int
}

func (w *fakeWorker) Extract(ctx context.Context, videoURL string) (*extraction.Result, error) {
	w.calls++
	if err := w.errs[videoURL]; err != nil {
		return nil, err
	}
	result := w.results[videoURL]
	if result == nil {
		result = &extraction.Result{}
	}
	return result, nil
}

type testEnv struct {
	scheduler      *Scheduler
	queueRepo      database.QueueRepository
	restaurantRepo database.RestaurantRepository
	logRepo        database.LogRepository
}

func setupScheduler(t *testing.T, worker extraction.Worker, strict bool) *testEnv {
	t.Helper()

	cfg.SetForTest(&cfg.Cfg{
		WorkerCount:       0, // tests drive processNext directly
		SchedulerInterval: 1,
		StrictFiltering:   strict,
	})

	db, err := database.NewConnection(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	env := &testEnv{
		queueRepo:      database.NewQueueRepository(db),
		restaurantRepo: database.NewRestaurantRepository(db),
		logRepo:        database.NewLogRepository(db),
	}
	env.scheduler = NewScheduler(env.queueRepo, env.restaurantRepo, env.logRepo, worker)
	t.Cleanup(env.scheduler.Stop)

	return env
}

func (env *testEnv) enqueue(t *testing.T, videoID string, maxAttempts int) *database.QueueItem {
	t.Helper()

	item := &database.QueueItem{
		ID:          uuid.NewString(),
		VideoID:     videoID,
		VideoURL:    "https://www.youtube.com/watch?v=" + videoID,
		VideoTitle:  "Test video " + videoID,
		MaxAttempts: maxAttempts,
	}
	if err := env.queueRepo.Insert(context.Background(), item); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	return item
}

func TestProcessNextStoresFilteredRestaurants(t *testing.T) {
	videoURL := "https://www.youtube.com/watch?v=vid-1"
	worker := &fakeWorker{results: map[string]*extraction.Result{
		videoURL: {
			Restaurants: []extraction.Restaurant{
				{
					NameHe:       "מסעדת גורמה",
					Cuisine:      "french",
					City:         "תל אביב",
					Neighborhood: "נווה צדק",
					PriceRange:   "$$$",
					HostOpinion:  "positive",
					HostComments: "מעולה",
					MenuItems:    []string{"סטייק"},
				},
				{NameHe: "של"}, // hallucination, confidence 0.7
			},
			Count: 2,
		},
	}}
	env := setupScheduler(t, worker, false)
	ctx := context.Background()

	item := env.enqueue(t, "vid-1", 3)

	if !env.scheduler.processNext(0) {
		t.Fatal("Expected an item to be claimed")
	}

	updated, err := env.queueRepo.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != database.StatusCompleted {
		t.Errorf("Expected status completed, got %s", updated.Status)
	}
	if updated.RestaurantsFound != 1 {
		t.Errorf("Expected 1 restaurant stored, got %d", updated.RestaurantsFound)
	}

	restaurants, total, err := env.restaurantRepo.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 1 {
		t.Fatalf("Expected 1 persisted restaurant, got %d", total)
	}
	if restaurants[0].NameHe != "מסעדת גורמה" {
		t.Errorf("Expected the legitimate record persisted, got '%s'", restaurants[0].NameHe)
	}
	if restaurants[0].QueueItemID != item.ID || restaurants[0].VideoID != "vid-1" {
		t.Errorf("Expected restaurant linked to item and video, got item='%s' video='%s'",
			restaurants[0].QueueItemID, restaurants[0].VideoID)
	}
	if restaurants[0].Recommendation != "accept" {
		t.Errorf("Expected accept recommendation stored, got '%s'", restaurants[0].Recommendation)
	}
}

func TestProcessNextStrictModeRejectsBorderline(t *testing.T) {
	videoURL := "https://www.youtube.com/watch?v=vid-strict"
	worker := &fakeWorker{results: map[string]*extraction.Result{
		videoURL: {
			// Truncated fragment with sparse fields scores 0.55: kept in
			// lenient mode, rejected in strict mode.
			Restaurants: []extraction.Restaurant{{NameHe: "רים"}},
			Count:       1,
		},
	}}
	env := setupScheduler(t, worker, true)
	ctx := context.Background()

	env.enqueue(t, "vid-strict", 3)

	if !env.scheduler.processNext(0) {
		t.Fatal("Expected an item to be claimed")
	}

	count, err := env.restaurantRepo.CountAll(ctx)
	if err != nil {
		t.Fatalf("CountAll failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected strict mode to reject the record, got %d stored", count)
	}
}

func TestProcessNextRequeuesFailureWithBackoff(t *testing.T) {
	videoURL := "https://www.youtube.com/watch?v=vid-fail"
	worker := &fakeWorker{errs: map[string]error{
		videoURL: errors.New("transcript temporarily unavailable"),
	}}
	env := setupScheduler(t, worker, false)
	ctx := context.Background()

	item := env.enqueue(t, "vid-fail", 3)

	if !env.scheduler.processNext(0) {
		t.Fatal("Expected an item to be claimed")
	}

	updated, err := env.queueRepo.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != database.StatusQueued {
		t.Errorf("Expected item requeued, got %s", updated.Status)
	}
	if updated.AttemptCount != 1 {
		t.Errorf("Expected attempt count 1, got %d", updated.AttemptCount)
	}
	if updated.ErrorMessage != "transcript temporarily unavailable" {
		t.Errorf("Expected error message recorded, got '%s'", updated.ErrorMessage)
	}
	if !updated.ScheduledFor.After(time.Now().UTC().Add(4 * time.Minute)) {
		t.Errorf("Expected backoff of at least 5 minutes, got %v", updated.ScheduledFor)
	}

	// Not claimable again in the same instant.
	if env.scheduler.processNext(0) {
		t.Error("Expected no claimable item before the backoff elapses")
	}
}

func TestProcessNextExhaustsAttempts(t *testing.T) {
	videoURL := "https://www.youtube.com/watch?v=vid-dead"
	worker := &fakeWorker{errs: map[string]error{
		videoURL: errors.New("no transcript exists"),
	}}
	env := setupScheduler(t, worker, false)
	ctx := context.Background()

	item := env.enqueue(t, "vid-dead", 1)

	if !env.scheduler.processNext(0) {
		t.Fatal("Expected an item to be claimed")
	}

	updated, err := env.queueRepo.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != database.StatusFailed {
		t.Errorf("Expected terminal failed status, got %s", updated.Status)
	}
	if updated.AttemptCount != updated.MaxAttempts {
		t.Errorf("Expected attempt count %d, got %d", updated.MaxAttempts, updated.AttemptCount)
	}

	entries, err := env.logRepo.ForItem(ctx, item.ID, 10)
	if err != nil {
		t.Fatalf("ForItem failed: %v", err)
	}
	foundFailure := false
	for _, entry := range entries {
		if entry.EventType == "processing_failed" {
			foundFailure = true
		}
	}
	if !foundFailure {
		t.Error("Expected a processing_failed log entry")
	}
}

func TestProcessNextReturnsFalseOnEmptyQueue(t *testing.T) {
	env := setupScheduler(t, &fakeWorker{}, false)

	if env.scheduler.processNext(0) {
		t.Error("Expected no claim on an empty queue")
	}
}

func TestStartResetsStuckProcessing(t *testing.T) {
	env := setupScheduler(t, &fakeWorker{}, false)
	ctx := context.Background()

	env.enqueue(t, "vid-stuck", 3)
	claimed, err := env.queueRepo.ClaimNext(ctx, time.Now().UTC())
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext failed: item=%v err=%v", claimed, err)
	}

	// WorkerCount is 0, so Start only runs the recovery pass.
	env.scheduler.Start()

	updated, err := env.queueRepo.GetByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != database.StatusQueued {
		t.Errorf("Expected stranded item requeued, got %s", updated.Status)
	}
}
