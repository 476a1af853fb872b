package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// BoosterClient fetches booster history from the launch catalog's cores
// endpoint. Lookups are best-effort; the caller omits booster metadata on
// any failure.
type BoosterClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewBoosterClient creates a BoosterClient for the given API base URL.
func NewBoosterClient(baseURL string, logger *slog.Logger) *BoosterClient {
	return &BoosterClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type coreJSON struct {
	Serial      string `json:"serial"`
	ReuseCount  int    `json:"reuse_count"`
	LandingType string `json:"landing_type"`
	LandingPad  string `json:"landing_pad"`
}

// BoosterInfo looks up one core. A 404 returns (nil, nil): the core is
// simply unknown, which is not an error.
func (c *BoosterClient) BoosterInfo(ctx context.Context, coreID string) (*BoosterInfo, error) {
	if coreID == "" {
		return nil, nil
	}

	u := c.baseURL + "/cores/" + url.PathEscape(coreID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching core %s: %w", coreID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d for core %s", resp.StatusCode, coreID)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading core %s: %w", coreID, err)
	}

	var doc coreJSON
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding core %s: %w", coreID, err)
	}

	return &BoosterInfo{
		CoreID:       doc.Serial,
		FlightNumber: doc.ReuseCount + 1,
		LandingType:  doc.LandingType,
		LandingPad:   doc.LandingPad,
	}, nil
}
