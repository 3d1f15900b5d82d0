package database

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

var allStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusSkipped,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status has no outgoing transitions besides
// the explicit operator retry on failed items.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// Subscription is a followed channel source plus its polling policy.
type Subscription struct {
	ID                 string
	SourceURL          string
	SourceName         string
	ChannelID          string
	Priority           int
	CheckIntervalHours int
	Paused             bool
	LastCheckedAt      *time.Time
	LastError          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// DueAt returns the next time the subscription should be polled.
func (s *Subscription) DueAt() time.Time {
	if s.LastCheckedAt == nil {
		return time.Time{}
	}
	return s.LastCheckedAt.Add(time.Duration(s.CheckIntervalHours) * time.Hour)
}

// QueueItem is one video's processing job and its lifecycle state.
type QueueItem struct {
	ID                    string
	VideoID               string
	VideoURL              string
	ChannelName           string
	VideoTitle            string
	SubscriptionID        string // empty for manually submitted videos
	Priority              int
	ScheduledFor          time.Time
	DiscoveredAt          time.Time
	Status                Status
	AttemptCount          int
	MaxAttempts           int
	ProcessingStartedAt   *time.Time
	ProcessingCompletedAt *time.Time
	ErrorMessage          string
	RestaurantsFound      int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// PipelineLogEntry is one append-only pipeline event.
type PipelineLogEntry struct {
	ID          int64
	Timestamp   time.Time
	Level       string
	EventType   string
	Message     string
	QueueItemID string // empty when the event is not item-scoped
}

// Restaurant is a persisted extraction record that passed the
// hallucination filter.
type Restaurant struct {
	ID              string
	QueueItemID     string
	VideoID         string
	NameHe          string
	NameEn          string
	Cuisine         string
	City            string
	Neighborhood    string
	PriceRange      string
	HostOpinion     string
	HostComments    string
	MenuItems       []string
	SpecialFeatures []string
	GoogleName      string
	Confidence      float64
	Recommendation  string
	CreatedAt       time.Time
}

// QueueStats aggregates queue state for the stats endpoint.
type QueueStats struct {
	StatusCounts       map[Status]int
	AvgProcessingSecs  float64
	CompletedLast24h   int
	CompletedLast7d    int
	FailureRate        float64
	TotalRestaurants   int
	OldestQueuedAt     *time.Time
	ProcessingInFlight int
}
