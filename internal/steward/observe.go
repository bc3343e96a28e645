// Package steward implements the autonomous campaign steward.
// It observes a campaign via the API, decides whether to answer an emergent
// event or adopt a recommendation, and acts by enqueueing the matching action.
package steward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/talgya/hybrid-sim/internal/campaign"
	"github.com/talgya/hybrid-sim/internal/engine"
	"github.com/talgya/hybrid-sim/internal/hybrid"
)

// errNotFound marks a 404 from the API.
var errNotFound = errors.New("not found")

// Snapshot holds everything collected during one observation.
type Snapshot struct {
	CampaignID string
	Status     engine.Status
	State      campaign.State
	Results    *hybrid.HybridResults // nil until the campaign has ticked
	History    []HistoryRow
}

// HistoryRow mirrors items from GET /api/v1/campaigns/{id}/history.
type HistoryRow struct {
	Tick         uint64 `json:"tick"`
	Trigger      string `json:"trigger"`
	ActionCount  int    `json:"action_count"`
	ProcessingMs int64  `json:"processing_ms"`
}

// Observer fetches campaign state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Observe fetches the campaign's status, state, latest results and recent
// history.
func (o *Observer) Observe(ctx context.Context, campaignID string) (*Snapshot, error) {
	snap := &Snapshot{CampaignID: campaignID}
	base := "/api/v1/campaigns/" + campaignID

	var detail struct {
		Status engine.Status `json:"status"`
	}
	if err := o.fetchJSON(ctx, base, &detail); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	snap.Status = detail.Status

	if err := o.fetchJSON(ctx, base+"/state", &snap.State); err != nil {
		return nil, fmt.Errorf("fetch state: %w", err)
	}

	var res hybrid.HybridResults
	switch err := o.fetchJSON(ctx, base+"/results", &res); {
	case err == nil:
		snap.Results = &res
	case errors.Is(err, errNotFound):
	default:
		return nil, fmt.Errorf("fetch results: %w", err)
	}

	if err := o.fetchJSON(ctx, base+"/history?limit=10", &snap.History); err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	return snap, nil
}

// RegisteredCampaigns lists the campaigns the scheduler currently has
// registered and active.
func RegisteredCampaigns(ctx context.Context, o *Observer) ([]string, error) {
	var list []struct {
		ID         string `json:"id"`
		Registered bool   `json:"registered"`
		Active     bool   `json:"active"`
	}
	if err := o.fetchJSON(ctx, "/api/v1/campaigns", &list); err != nil {
		return nil, err
	}
	var ids []string
	for _, c := range list {
		if c.Registered && c.Active {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("GET %s: %w", path, errNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// WaitForAPI polls the status endpoint with exponential backoff until it
// responds or maxWait elapses.
func WaitForAPI(ctx context.Context, apiURL string, maxWait time.Duration) error {
	client := &http.Client{Timeout: 10 * time.Second}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 30 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/api/v1/status", nil)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			slog.Info("hybridsim not ready, retrying...", "error", err)
			return struct{}{}, err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return struct{}{}, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(maxWait))
	if err != nil {
		return fmt.Errorf("hybridsim API not ready after %s: %w", maxWait, err)
	}
	slog.Info("hybridsim API is ready")
	return nil
}
