package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// maxResponseBytes caps upstream response bodies so a misbehaving provider
// cannot consume unbounded memory.
const maxResponseBytes = 50 << 20

// LaunchClient fetches the launch catalog from a SpaceX-style REST API.
type LaunchClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewLaunchClient creates a LaunchClient for the given API base URL.
func NewLaunchClient(baseURL string, logger *slog.Logger) *LaunchClient {
	return &LaunchClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// launchJSON is the upstream launch document shape.
type launchJSON struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	DateUTC time.Time `json:"date_utc"`
	Success *bool     `json:"success"`
	Cores   []struct {
		Core string `json:"core"`
	} `json:"cores"`
}

// RecentLaunches returns launches within the last windowDays, newest first.
// With successOnly set, launches without a confirmed success are excluded.
func (c *LaunchClient) RecentLaunches(ctx context.Context, windowDays int, successOnly bool) ([]LaunchGroup, error) {
	body, err := getLimited(ctx, c.httpClient, c.baseURL+"/launches/past")
	if err != nil {
		return nil, fmt.Errorf("fetching launches: %w", err)
	}

	var docs []launchJSON
	if err := json.Unmarshal(body, &docs); err != nil {
		return nil, fmt.Errorf("decoding launches: %w", err)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -windowDays)
	var groups []LaunchGroup
	for _, d := range docs {
		if d.DateUTC.Before(cutoff) {
			continue
		}
		if successOnly && (d.Success == nil || !*d.Success) {
			continue
		}
		g := LaunchGroup{
			ID:         d.ID,
			Name:       d.Name,
			LaunchedAt: d.DateUTC,
			Success:    d.Success != nil && *d.Success,
		}
		if len(d.Cores) > 0 {
			g.CoreID = d.Cores[0].Core
		}
		groups = append(groups, g)
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].LaunchedAt.After(groups[j].LaunchedAt)
	})

	c.logger.Debug("launch catalog fetched",
		"total", len(docs),
		"in_window", len(groups),
		"window_days", windowDays,
		"success_only", successOnly,
	)
	return groups, nil
}

// getLimited performs an HTTP GET with a response size cap.
func getLimited(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("response from %s exceeds %d byte limit", url, maxResponseBytes)
	}
	return body, nil
}
