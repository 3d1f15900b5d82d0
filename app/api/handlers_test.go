package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tastemap/tastemap/app/cfg"
	"github.com/tastemap/tastemap/app/database"
	"github.com/tastemap/tastemap/app/discovery"
)

const testAPIKey = "test-key"

type fakeFetcher struct {
	videos map[string][]discovery.CandidateVideo
}

func (f *fakeFetcher) FetchRecent(ctx context.Context, sourceURL string, limit int) ([]discovery.CandidateVideo, error) {
	return f.videos[sourceURL], nil
}

type fakeScheduler struct {
	wakes int
}

func (s *fakeScheduler) Wake() { s.wakes++ }

type testEnv struct {
	router         *gin.Engine
	subRepo        database.SubscriptionRepository
	queueRepo      database.QueueRepository
	restaurantRepo database.RestaurantRepository
	logRepo        database.LogRepository
	scheduler      *fakeScheduler
	fetcher        *fakeFetcher
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()

	cfg.SetForTest(&cfg.Cfg{
		PollInterval:   300,
		DiscoveryLimit: 25,
		MaxAttempts:    3,
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
		subRepo:        database.NewSubscriptionRepository(db),
		queueRepo:      database.NewQueueRepository(db),
		restaurantRepo: database.NewRestaurantRepository(db),
		logRepo:        database.NewLogRepository(db),
		scheduler:      &fakeScheduler{},
		fetcher:        &fakeFetcher{videos: map[string][]discovery.CandidateVideo{}},
	}

	discoveryService := discovery.NewService(env.subRepo, env.queueRepo, env.restaurantRepo, env.logRepo, env.fetcher)
	t.Cleanup(discoveryService.Stop)

	handler := NewHandler(env.subRepo, env.queueRepo, env.restaurantRepo, env.logRepo, discoveryService, env.scheduler)
	env.router = NewServer(handler, testAPIKey)

	return env
}

func (env *testEnv) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response '%s': %v", w.Body.String(), err)
	}
	return body
}

func TestAuthMiddleware(t *testing.T) {
	env := setupServer(t)

	req := httptest.NewRequest("GET", "/api/pipeline/queue", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/pipeline/queue", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with wrong key, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/pipeline/queue", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with bearer token, got %d", w.Code)
	}
}

func TestAddAndListSubscriptions(t *testing.T) {
	env := setupServer(t)

	w := env.request(t, "POST", "/api/subscriptions", map[string]interface{}{
		"source_url":           "https://www.youtube.com/channel/UCfood1",
		"source_name":          "Food Tours",
		"priority":             5,
		"check_interval_hours": 12,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	created := decode(t, w)
	if created["source_name"] != "Food Tours" {
		t.Errorf("Expected source name echoed, got %v", created["source_name"])
	}
	if created["priority"].(float64) != 5 {
		t.Errorf("Expected priority 5, got %v", created["priority"])
	}

	w = env.request(t, "GET", "/api/subscriptions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	listed := decode(t, w)
	if listed["total"].(float64) != 1 {
		t.Errorf("Expected 1 subscription, got %v", listed["total"])
	}
}

func TestAddSubscriptionRejectsBadRequest(t *testing.T) {
	env := setupServer(t)

	w := env.request(t, "POST", "/api/subscriptions", map[string]interface{}{
		"source_name": "missing URL",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing source_url, got %d", w.Code)
	}

	w = env.request(t, "POST", "/api/subscriptions", map[string]interface{}{
		"source_url": "https://example.com/not-youtube",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unsupported URL, got %d", w.Code)
	}
}

func TestPauseAndResumeSubscription(t *testing.T) {
	env := setupServer(t)

	w := env.request(t, "POST", "/api/subscriptions", map[string]interface{}{
		"source_url": "https://www.youtube.com/channel/UCfood1",
	})
	id := decode(t, w)["id"].(string)

	w = env.request(t, "POST", "/api/subscriptions/"+id+"/pause", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if paused := decode(t, w)["paused"].(bool); !paused {
		t.Error("Expected subscription paused")
	}

	w = env.request(t, "POST", "/api/subscriptions/"+id+"/resume", nil)
	if paused := decode(t, w)["paused"].(bool); paused {
		t.Error("Expected subscription resumed")
	}

	w = env.request(t, "POST", "/api/subscriptions/"+uuid.NewString()+"/pause", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown subscription, got %d", w.Code)
	}
}

func TestRefreshSubscriptionWakesScheduler(t *testing.T) {
	env := setupServer(t)

	source := "https://www.youtube.com/channel/UCfood1"
	env.fetcher.videos[source] = []discovery.CandidateVideo{
		{
			VideoID:     "vid-001",
			VideoURL:    "https://www.youtube.com/watch?v=vid-001",
			Title:       "Best hummus in Jaffa",
			ChannelName: "Food Tours Israel",
		},
	}

	w := env.request(t, "POST", "/api/subscriptions", map[string]interface{}{"source_url": source})
	id := decode(t, w)["id"].(string)

	w = env.request(t, "POST", "/api/subscriptions/"+id+"/refresh", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	result := decode(t, w)
	if result["queued_count"].(float64) != 1 {
		t.Errorf("Expected 1 queued, got %v", result["queued_count"])
	}
	if env.scheduler.wakes != 1 {
		t.Errorf("Expected scheduler woken once, got %d", env.scheduler.wakes)
	}
}

func TestCheckSubscriptionPreview(t *testing.T) {
	env := setupServer(t)

	source := "https://www.youtube.com/channel/UCfood1"
	env.fetcher.videos[source] = []discovery.CandidateVideo{
		{VideoID: "vid-001", Title: "Best hummus in Jaffa"},
	}

	w := env.request(t, "POST", "/api/subscriptions", map[string]interface{}{"source_url": source})
	id := decode(t, w)["id"].(string)

	w = env.request(t, "POST", "/api/subscriptions/"+id+"/check", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if total := decode(t, w)["total"].(float64); total != 1 {
		t.Errorf("Expected 1 preview video, got %v", total)
	}

	w = env.request(t, "GET", "/api/pipeline/queue", nil)
	if total := decode(t, w)["total"].(float64); total != 0 {
		t.Errorf("Expected preview to enqueue nothing, got %v", total)
	}
}

func (env *testEnv) insertItem(t *testing.T, videoID string, status database.Status) *database.QueueItem {
	t.Helper()
	ctx := context.Background()

	item := &database.QueueItem{
		ID:          uuid.NewString(),
		VideoID:     videoID,
		VideoURL:    "https://www.youtube.com/watch?v=" + videoID,
		MaxAttempts: 3,
	}
	// Setup items that must be claimed outrank any queued fixtures, so
	// ClaimNext deterministically picks this one.
	if status != database.StatusQueued {
		item.Priority = 1000
	}
	if err := env.queueRepo.Insert(ctx, item); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	claim := func() {
		claimed, err := env.queueRepo.ClaimNext(ctx, time.Now().UTC().Add(time.Minute))
		if err != nil || claimed == nil || claimed.ID != item.ID {
			t.Fatalf("ClaimNext failed: item=%v err=%v", claimed, err)
		}
	}

	switch status {
	case database.StatusQueued:
	case database.StatusProcessing:
		claim()
	case database.StatusFailed:
		for i := 0; i < item.MaxAttempts; i++ {
			claim()
			if _, err := env.queueRepo.RecordFailure(ctx, item.ID, "boom", time.Now().UTC()); err != nil {
				t.Fatalf("RecordFailure failed: %v", err)
			}
		}
	default:
		t.Fatalf("unsupported setup status %s", status)
	}

	return item
}

func TestOperatorActionsErrorMapping(t *testing.T) {
	env := setupServer(t)

	// Unknown item id.
	w := env.request(t, "POST", "/api/pipeline/"+uuid.NewString()+"/retry", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown item, got %d", w.Code)
	}

	// Retry is only valid for failed items.
	queued := env.insertItem(t, "vid-queued", database.StatusQueued)
	w = env.request(t, "POST", "/api/pipeline/"+queued.ID+"/retry", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for retry on queued item, got %d", w.Code)
	}

	// Skip and remove are invalid while processing.
	processing := env.insertItem(t, "vid-processing", database.StatusProcessing)
	w = env.request(t, "POST", "/api/pipeline/"+processing.ID+"/skip", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for skip on processing item, got %d", w.Code)
	}
	w = env.request(t, "DELETE", "/api/pipeline/"+processing.ID, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for remove on processing item, got %d", w.Code)
	}
}

func TestRetryFailedItemViaAPI(t *testing.T) {
	env := setupServer(t)

	failed := env.insertItem(t, "vid-failed", database.StatusFailed)

	w := env.request(t, "POST", "/api/pipeline/"+failed.ID+"/retry", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decode(t, w)
	if body["status"] != "queued" {
		t.Errorf("Expected item requeued, got %v", body["status"])
	}
	if env.scheduler.wakes == 0 {
		t.Error("Expected scheduler woken after retry")
	}
}

func TestPrioritizeItemViaAPI(t *testing.T) {
	env := setupServer(t)

	env.insertItem(t, "vid-a", database.StatusQueued)
	target := env.insertItem(t, "vid-b", database.StatusQueued)

	w := env.request(t, "POST", "/api/pipeline/"+target.ID+"/prioritize", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if priority := decode(t, w)["priority"].(float64); priority < 1 {
		t.Errorf("Expected boosted priority, got %v", priority)
	}
}

func TestQueueAndHistoryEndpoints(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()

	env.insertItem(t, "vid-1", database.StatusQueued)
	env.insertItem(t, "vid-2", database.StatusQueued)
	processing := env.insertItem(t, "vid-3", database.StatusProcessing)
	if _, err := env.queueRepo.Complete(ctx, processing.ID, 2); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	w := env.request(t, "GET", "/api/pipeline/queue", nil)
	if total := decode(t, w)["total"].(float64); total != 2 {
		t.Errorf("Expected 2 queued items, got %v", total)
	}

	w = env.request(t, "GET", "/api/pipeline/history", nil)
	if total := decode(t, w)["total"].(float64); total != 1 {
		t.Errorf("Expected 1 history item, got %v", total)
	}

	w = env.request(t, "GET", "/api/pipeline/queue?page=1&limit=1", nil)
	body := decode(t, w)
	if len(body["items"].([]interface{})) != 1 {
		t.Errorf("Expected 1 item on page, got %d", len(body["items"].([]interface{})))
	}
	if body["total"].(float64) != 2 {
		t.Errorf("Expected total 2 with pagination, got %v", body["total"])
	}
}

func TestStatsEndpoint(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()

	env.insertItem(t, "vid-1", database.StatusQueued)
	processing := env.insertItem(t, "vid-2", database.StatusProcessing)
	if _, err := env.queueRepo.Complete(ctx, processing.ID, 1); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	err := env.restaurantRepo.Insert(ctx, &database.Restaurant{
		ID:      uuid.NewString(),
		VideoID: "vid-2",
		NameHe:  "חומוס אליהו",
	})
	if err != nil {
		t.Fatalf("Insert restaurant failed: %v", err)
	}

	w := env.request(t, "GET", "/api/pipeline/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	body := decode(t, w)
	counts := body["status_counts"].(map[string]interface{})
	if counts["queued"].(float64) != 1 {
		t.Errorf("Expected 1 queued in stats, got %v", counts["queued"])
	}
	if counts["completed"].(float64) != 1 {
		t.Errorf("Expected 1 completed in stats, got %v", counts["completed"])
	}
	if body["completed_last_24h"].(float64) != 1 {
		t.Errorf("Expected 1 completion in last 24h, got %v", body["completed_last_24h"])
	}
	if body["total_restaurants"].(float64) != 1 {
		t.Errorf("Expected 1 restaurant in stats, got %v", body["total_restaurants"])
	}
}

func TestListRestaurantsStrictGate(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()

	err := env.restaurantRepo.Insert(ctx, &database.Restaurant{
		ID:             uuid.NewString(),
		VideoID:        "vid-good",
		NameHe:         "מסעדת גורמה",
		Cuisine:        "french",
		City:           "תל אביב",
		Neighborhood:   "נווה צדק",
		PriceRange:     "$$$",
		HostOpinion:    "positive",
		HostComments:   "מעולה",
		MenuItems:      []string{"סטייק"},
		Confidence:     0.0,
		Recommendation: "accept",
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Stored under the lenient gate, rejected by the strict read-time gate.
	err = env.restaurantRepo.Insert(ctx, &database.Restaurant{
		ID:             uuid.NewString(),
		VideoID:        "vid-borderline",
		NameHe:         "רים",
		Confidence:     0.55,
		Recommendation: "review",
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/restaurants", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	body := decode(t, w)
	restaurants := body["restaurants"].([]interface{})
	if len(restaurants) != 1 {
		t.Fatalf("Expected 1 restaurant after strict gate, got %d", len(restaurants))
	}
	first := restaurants[0].(map[string]interface{})
	if first["name_he"] != "מסעדת גורמה" {
		t.Errorf("Expected the trustworthy record served, got %v", first["name_he"])
	}
}
