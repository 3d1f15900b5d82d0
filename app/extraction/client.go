package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tastemap/tastemap/app/cfg"
)

// Worker invokes the external extraction service for one video. The
// service is untrusted and may be slow: callers bound it with the context.
type Worker interface {
	Extract(ctx context.Context, videoURL string) (*Result, error)
}

var _ Worker = (*HTTPWorker)(nil)

// HTTPWorker talks to the extraction service over HTTP: one POST per
// video, JSON in and out.
type HTTPWorker struct {
	httpClient *http.Client
	url        string
	timeout    time.Duration
	userAgent  string
}

type extractRequest struct {
	VideoURL string `json:"video_url"`
}

type extractResponse struct {
	Restaurants []Restaurant `json:"restaurants"`
	Count       int          `json:"count"`
	Error       string       `json:"error"`
}

func NewHTTPWorker(httpClient *http.Client) *HTTPWorker {
	cfg := cfg.Get()

	return &HTTPWorker{
		httpClient: httpClient,
		url:        cfg.ExtractorURL,
		timeout:    time.Duration(cfg.ExtractorTimeout) * time.Second,
		userAgent:  cfg.UserAgent,
	}
}

func (w *HTTPWorker) Extract(ctx context.Context, videoURL string) (*Result, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	payload, err := json.Marshal(extractRequest{VideoURL: videoURL})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(timeoutCtx, "POST", w.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", w.userAgent)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach extraction worker: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction worker returned HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var decoded extractResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if decoded.Error != "" {
		return nil, fmt.Errorf("extraction failed: %s", decoded.Error)
	}

	count := decoded.Count
	if count == 0 {
		count = len(decoded.Restaurants)
	}

	return &Result{Restaurants: decoded.Restaurants, Count: count}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
