package providers

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ryanmio/starlink-trainspotter/internal/tle"
)

// SatelliteClient fetches per-launch element sets from a Celestrak-style
// TLE endpoint.
type SatelliteClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSatelliteClient creates a SatelliteClient for the given endpoint.
func NewSatelliteClient(baseURL string, logger *slog.Logger) *SatelliteClient {
	return &SatelliteClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// SatellitesForLaunch fetches the element sets for one launch's objects,
// queried by launch identifier. Malformed entries in the response are
// skipped during parsing, not treated as a fetch failure.
func (c *SatelliteClient) SatellitesForLaunch(ctx context.Context, launchID string) ([]tle.Entry, error) {
	u := fmt.Sprintf("%s?INTDES=%s&FORMAT=tle", c.baseURL, url.QueryEscape(launchID))

	body, err := getLimited(ctx, c.httpClient, u)
	if err != nil {
		return nil, fmt.Errorf("fetching satellites for launch %s: %w", launchID, err)
	}

	entries, err := tle.Parse(bytes.NewReader(body), c.logger)
	if err != nil {
		return nil, fmt.Errorf("parsing satellites for launch %s: %w", launchID, err)
	}

	c.logger.Debug("satellites fetched", "launch_id", launchID, "count", len(entries))
	return entries, nil
}
