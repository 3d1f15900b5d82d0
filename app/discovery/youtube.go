package discovery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// CandidateVideo is one recent upload discovered on a channel, before any
// queue membership decision is made.
type CandidateVideo struct {
	VideoID     string
	VideoURL    string
	Title       string
	ChannelName string
	PublishedAt time.Time
}

// Fetcher lists a channel's recent uploads, newest first.
type Fetcher interface {
	FetchRecent(ctx context.Context, sourceURL string, limit int) ([]CandidateVideo, error)
}

var _ Fetcher = (*YouTubeFetcher)(nil)

// YouTubeFetcher reads the public RSS feed YouTube publishes per channel.
// No API key is needed; the feed carries the channel's ~15 most recent
// uploads.
type YouTubeFetcher struct {
	httpClient *http.Client
	parser     *gofeed.Parser
	userAgent  string
}

func NewYouTubeFetcher(httpClient *http.Client, userAgent string) *YouTubeFetcher {
	return &YouTubeFetcher{
		httpClient: httpClient,
		parser:     gofeed.NewParser(),
		userAgent:  userAgent,
	}
}

func (f *YouTubeFetcher) FetchRecent(ctx context.Context, sourceURL string, limit int) ([]CandidateVideo, error) {
	feedURL, err := ResolveFeedURL(sourceURL)
	if err != nil {
		return nil, err
	}

	data, err := f.fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	feed, err := f.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse channel feed: %w", err)
	}

	videos := make([]CandidateVideo, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		videoID := extractVideoID(item)
		if videoID == "" {
			continue
		}

		video := CandidateVideo{
			VideoID:     videoID,
			VideoURL:    "https://www.youtube.com/watch?v=" + videoID,
			Title:       item.Title,
			ChannelName: feed.Title,
		}
		if item.PublishedParsed != nil {
			video.PublishedAt = *item.PublishedParsed
		}

		videos = append(videos, video)
		if limit > 0 && len(videos) >= limit {
			break
		}
	}

	return videos, nil
}

func (f *YouTubeFetcher) fetch(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch channel feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

// ResolveFeedURL turns a channel source URL into the RSS feed URL YouTube
// serves for it. Accepted forms: a feed URL as-is, a /channel/UC... page
// URL, or a bare UC... channel id.
func ResolveFeedURL(sourceURL string) (string, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return "", fmt.Errorf("empty source URL")
	}

	if strings.HasPrefix(sourceURL, "UC") && !strings.Contains(sourceURL, "/") {
		return "https://www.youtube.com/feeds/videos.xml?channel_id=" + sourceURL, nil
	}

	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return "", fmt.Errorf("invalid source URL: %w", err)
	}

	if strings.Contains(parsed.Path, "/feeds/videos.xml") {
		return sourceURL, nil
	}

	if idx := strings.Index(parsed.Path, "/channel/"); idx >= 0 {
		channelID := strings.Trim(parsed.Path[idx+len("/channel/"):], "/")
		if channelID != "" {
			return "https://www.youtube.com/feeds/videos.xml?channel_id=" + channelID, nil
		}
	}

	return "", fmt.Errorf("unsupported channel URL '%s': use a /channel/UC... URL, a channel id, or a feed URL", sourceURL)
}

// extractVideoID pulls the video id from a feed item: YouTube sets the
// GUID to "yt:video:VIDEOID"; fall back to the watch link's v parameter.
func extractVideoID(item *gofeed.Item) string {
	if id, ok := strings.CutPrefix(item.GUID, "yt:video:"); ok {
		return id
	}

	if item.Link != "" {
		if parsed, err := url.Parse(item.Link); err == nil {
			if v := parsed.Query().Get("v"); v != "" {
				return v
			}
		}
	}

	return ""
}
