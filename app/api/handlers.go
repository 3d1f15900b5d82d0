package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tastemap/tastemap/app/database"
	"github.com/tastemap/tastemap/app/discovery"
	"github.com/tastemap/tastemap/app/extraction"
	"github.com/tastemap/tastemap/app/filter"
)

func NewHandler(subRepo database.SubscriptionRepository, queueRepo database.QueueRepository,
	restaurantRepo database.RestaurantRepository, logRepo database.LogRepository,
	discoveryService *discovery.Service, sched SchedulerInterface) *Handler {
	return &Handler{
		subRepo:        subRepo,
		queueRepo:      queueRepo,
		restaurantRepo: restaurantRepo,
		logRepo:        logRepo,
		discovery:      discoveryService,
		scheduler:      sched,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if stats, err := h.queueRepo.Stats(c.Request.Context(), time.Now().UTC()); err == nil {
		health["queued"] = stats.StatusCounts[database.StatusQueued]
		health["processing"] = stats.StatusCounts[database.StatusProcessing]
	}
	if count, err := h.restaurantRepo.CountAll(c.Request.Context()); err == nil {
		health["restaurants"] = count
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) ListSubscriptions(c *gin.Context) {
	subs, err := h.subRepo.List(c.Request.Context())
	if err != nil {
		h.respondError(c, "list_subscriptions", err)
		return
	}

	responses := make([]subscriptionResponse, 0, len(subs))
	for i := range subs {
		responses = append(responses, toSubscriptionResponse(&subs[i]))
	}

	c.JSON(http.StatusOK, gin.H{"subscriptions": responses, "total": len(responses)})
}

func (h *Handler) AddSubscription(c *gin.Context) {
	var req addSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	sub, err := h.discovery.AddSubscription(c.Request.Context(),
		req.SourceURL, req.SourceName, req.Priority, req.CheckIntervalHours)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to add subscription", "details": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, toSubscriptionResponse(sub))
}

func (h *Handler) PauseSubscription(c *gin.Context) {
	h.setSubscriptionPaused(c, true)
}

func (h *Handler) ResumeSubscription(c *gin.Context) {
	h.setSubscriptionPaused(c, false)
}

func (h *Handler) setSubscriptionPaused(c *gin.Context, paused bool) {
	sub, err := h.subRepo.SetPaused(c.Request.Context(), c.Param("id"), paused)
	if err != nil {
		h.respondError(c, "set_subscription_paused", err)
		return
	}

	c.JSON(http.StatusOK, toSubscriptionResponse(sub))
}

// CheckSubscription previews a subscription's recent uploads without
// enqueueing anything.
func (h *Handler) CheckSubscription(c *gin.Context) {
	videos, err := h.discovery.CheckNow(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "check_subscription", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"videos": videos, "total": len(videos)})
}

func (h *Handler) RefreshSubscription(c *gin.Context) {
	result, err := h.discovery.Refresh(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "refresh_subscription", err)
		return
	}

	if result.Queued > 0 {
		h.scheduler.Wake()
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) DeleteSubscription(c *gin.Context) {
	if err := h.subRepo.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, "delete_subscription", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) GetQueue(c *gin.Context) {
	limit, offset := pagination(c)

	items, total, err := h.queueRepo.ListQueued(c.Request.Context(), limit, offset)
	if err != nil {
		h.respondError(c, "list_queue", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": itemResponses(items), "total": total})
}

func (h *Handler) GetHistory(c *gin.Context) {
	limit, offset := pagination(c)

	items, total, err := h.queueRepo.ListHistory(c.Request.Context(), limit, offset)
	if err != nil {
		h.respondError(c, "list_history", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": itemResponses(items), "total": total})
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.queueRepo.Stats(c.Request.Context(), time.Now().UTC())
	if err != nil {
		h.respondError(c, "get_stats", err)
		return
	}

	total, err := h.restaurantRepo.CountAll(c.Request.Context())
	if err != nil {
		h.respondError(c, "get_stats", err)
		return
	}
	stats.TotalRestaurants = total

	counts := make(map[string]int, len(stats.StatusCounts))
	for _, status := range database.AllStatuses() {
		counts[string(status)] = stats.StatusCounts[status]
	}

	c.JSON(http.StatusOK, gin.H{
		"status_counts":          counts,
		"avg_processing_seconds": stats.AvgProcessingSecs,
		"completed_last_24h":     stats.CompletedLast24h,
		"completed_last_7d":      stats.CompletedLast7d,
		"failure_rate":           stats.FailureRate,
		"total_restaurants":      stats.TotalRestaurants,
		"oldest_queued_at":       stats.OldestQueuedAt,
		"processing_in_flight":   stats.ProcessingInFlight,
	})
}

func (h *Handler) GetLog(c *gin.Context) {
	limit, _ := pagination(c)

	var entries []database.PipelineLogEntry
	var err error
	if itemID := c.Query("item_id"); itemID != "" {
		entries, err = h.logRepo.ForItem(c.Request.Context(), itemID, limit)
	} else {
		entries, err = h.logRepo.Recent(c.Request.Context(), limit)
	}
	if err != nil {
		h.respondError(c, "get_log", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "total": len(entries)})
}

func (h *Handler) RetryItem(c *gin.Context) {
	item, err := h.queueRepo.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "retry_item", err)
		return
	}

	h.appendLog(c, "info", "item_retried", "operator retried item", item.ID)
	h.scheduler.Wake()

	c.JSON(http.StatusOK, toQueueItemResponse(item))
}

func (h *Handler) SkipItem(c *gin.Context) {
	item, err := h.queueRepo.Skip(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "skip_item", err)
		return
	}

	h.appendLog(c, "info", "item_skipped", "operator skipped item", item.ID)

	c.JSON(http.StatusOK, toQueueItemResponse(item))
}

func (h *Handler) PrioritizeItem(c *gin.Context) {
	item, err := h.queueRepo.Prioritize(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "prioritize_item", err)
		return
	}

	h.appendLog(c, "info", "item_prioritized", "operator prioritized item", item.ID)
	h.scheduler.Wake()

	c.JSON(http.StatusOK, toQueueItemResponse(item))
}

func (h *Handler) RemoveItem(c *gin.Context) {
	id := c.Param("id")
	if err := h.queueRepo.Remove(c.Request.Context(), id); err != nil {
		h.respondError(c, "remove_item", err)
		return
	}

	h.appendLog(c, "info", "item_removed", "operator removed item", id)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListRestaurants serves persisted records, re-scoring each one in strict
// mode as a second gate before it reaches a reader.
func (h *Handler) ListRestaurants(c *gin.Context) {
	limit, offset := pagination(c)

	restaurants, total, err := h.restaurantRepo.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.respondError(c, "list_restaurants", err)
		return
	}

	responses := make([]restaurantResponse, 0, len(restaurants))
	for i := range restaurants {
		verdict := filter.Score(asExtractionRecord(&restaurants[i]))
		if filter.Rejected(verdict, true) {
			continue
		}
		responses = append(responses, toRestaurantResponse(&restaurants[i]))
	}

	c.JSON(http.StatusOK, gin.H{"restaurants": responses, "total": total})
}

func (h *Handler) respondError(c *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, database.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "Invalid transition", "details": err.Error()})
	default:
		slog.Error("Request failed", "operation", operation, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

func (h *Handler) appendLog(c *gin.Context, level, eventType, message, itemID string) {
	if err := h.logRepo.Append(c.Request.Context(), level, eventType, message, itemID); err != nil {
		slog.Warn("Failed to append pipeline log entry", "event", eventType, "error", err)
	}
}

func pagination(c *gin.Context) (limit, offset int) {
	limit = 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	page := 1
	if raw := c.Query("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			page = parsed
		}
	}

	return limit, (page - 1) * limit
}

func itemResponses(items []database.QueueItem) []queueItemResponse {
	responses := make([]queueItemResponse, 0, len(items))
	for i := range items {
		responses = append(responses, toQueueItemResponse(&items[i]))
	}
	return responses
}

func asExtractionRecord(r *database.Restaurant) extraction.Restaurant {
	return extraction.Restaurant{
		NameHe:          r.NameHe,
		NameEn:          r.NameEn,
		Cuisine:         r.Cuisine,
		City:            r.City,
		Neighborhood:    r.Neighborhood,
		PriceRange:      r.PriceRange,
		HostOpinion:     r.HostOpinion,
		HostComments:    r.HostComments,
		MenuItems:       r.MenuItems,
		SpecialFeatures: r.SpecialFeatures,
		GoogleName:      r.GoogleName,
	}
}
