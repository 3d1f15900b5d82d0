package api

import (
	"time"

	"github.com/tastemap/tastemap/app/database"
	"github.com/tastemap/tastemap/app/discovery"
	"github.com/tastemap/tastemap/app/scheduler"
)

// SchedulerInterface is the slice of the scheduler the API needs: nudging
// the workers after an operator action makes an item claimable.
type SchedulerInterface interface {
	Wake()
}

var _ SchedulerInterface = (*scheduler.Scheduler)(nil)

type Handler struct {
	subRepo        database.SubscriptionRepository
	queueRepo      database.QueueRepository
	restaurantRepo database.RestaurantRepository
	logRepo        database.LogRepository
	discovery      *discovery.Service
	scheduler      SchedulerInterface
}

type addSubscriptionRequest struct {
	SourceURL          string `json:"source_url" binding:"required"`
	SourceName         string `json:"source_name"`
	Priority           int    `json:"priority"`
	CheckIntervalHours int    `json:"check_interval_hours"`
}

type subscriptionResponse struct {
	ID                 string     `json:"id"`
	SourceURL          string     `json:"source_url"`
	SourceName         string     `json:"source_name"`
	ChannelID          string     `json:"channel_id,omitempty"`
	Priority           int        `json:"priority"`
	CheckIntervalHours int        `json:"check_interval_hours"`
	Paused             bool       `json:"paused"`
	LastCheckedAt      *time.Time `json:"last_checked_at,omitempty"`
	LastError          string     `json:"last_error,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func toSubscriptionResponse(sub *database.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:                 sub.ID,
		SourceURL:          sub.SourceURL,
		SourceName:         sub.SourceName,
		ChannelID:          sub.ChannelID,
		Priority:           sub.Priority,
		CheckIntervalHours: sub.CheckIntervalHours,
		Paused:             sub.Paused,
		LastCheckedAt:      sub.LastCheckedAt,
		LastError:          sub.LastError,
		CreatedAt:          sub.CreatedAt,
	}
}

type queueItemResponse struct {
	ID                    string     `json:"id"`
	VideoID               string     `json:"video_id"`
	VideoURL              string     `json:"video_url"`
	ChannelName           string     `json:"channel_name,omitempty"`
	VideoTitle            string     `json:"video_title,omitempty"`
	SubscriptionID        string     `json:"subscription_id,omitempty"`
	Priority              int        `json:"priority"`
	Status                string     `json:"status"`
	AttemptCount          int        `json:"attempt_count"`
	MaxAttempts           int        `json:"max_attempts"`
	ScheduledFor          time.Time  `json:"scheduled_for"`
	DiscoveredAt          time.Time  `json:"discovered_at"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`
	ErrorMessage          string     `json:"error_message,omitempty"`
	RestaurantsFound      int        `json:"restaurants_found"`
}

func toQueueItemResponse(item *database.QueueItem) queueItemResponse {
	return queueItemResponse{
		ID:                    item.ID,
		VideoID:               item.VideoID,
		VideoURL:              item.VideoURL,
		ChannelName:           item.ChannelName,
		VideoTitle:            item.VideoTitle,
		SubscriptionID:        item.SubscriptionID,
		Priority:              item.Priority,
		Status:                string(item.Status),
		AttemptCount:          item.AttemptCount,
		MaxAttempts:           item.MaxAttempts,
		ScheduledFor:          item.ScheduledFor,
		DiscoveredAt:          item.DiscoveredAt,
		ProcessingStartedAt:   item.ProcessingStartedAt,
		ProcessingCompletedAt: item.ProcessingCompletedAt,
		ErrorMessage:          item.ErrorMessage,
		RestaurantsFound:      item.RestaurantsFound,
	}
}

type restaurantResponse struct {
	ID              string    `json:"id"`
	VideoID         string    `json:"video_id"`
	NameHe          string    `json:"name_he"`
	NameEn          string    `json:"name_en,omitempty"`
	Cuisine         string    `json:"cuisine,omitempty"`
	City            string    `json:"city,omitempty"`
	Neighborhood    string    `json:"neighborhood,omitempty"`
	PriceRange      string    `json:"price_range,omitempty"`
	HostOpinion     string    `json:"host_opinion,omitempty"`
	HostComments    string    `json:"host_comments,omitempty"`
	MenuItems       []string  `json:"menu_items,omitempty"`
	SpecialFeatures []string  `json:"special_features,omitempty"`
	GoogleName      string    `json:"google_name,omitempty"`
	Confidence      float64   `json:"confidence"`
	Recommendation  string    `json:"recommendation"`
	CreatedAt       time.Time `json:"created_at"`
}

func toRestaurantResponse(r *database.Restaurant) restaurantResponse {
	return restaurantResponse{
		ID:              r.ID,
		VideoID:         r.VideoID,
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
		Confidence:      r.Confidence,
		Recommendation:  r.Recommendation,
		CreatedAt:       r.CreatedAt,
	}
}
