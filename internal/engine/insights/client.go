// Package insights talks to the Google Area Insights and Places APIs.
//
// Area Insights exposes one endpoint with two shapes: INSIGHT_COUNT
// returns how many places match a filter, INSIGHT_PLACES returns their
// opaque resource names. Callers probe a count first and fetch places
// only when the count fits under their cap.
package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/shawnBuilds/suspended-business-scanner/internal/engine/geo"
	"github.com/shawnBuilds/suspended-business-scanner/internal/model"
)

const (
	computeEndpoint = "https://areainsights.googleapis.com/v1:computeInsights"

	insightCount  = "INSIGHT_COUNT"
	insightPlaces = "INSIGHT_PLACES"

	// maxBodyBytes caps how much of a response we will buffer.
	maxBodyBytes = 10 << 20
)

// Query is one computeInsights request: a circular region, a non-empty
// category list and the operating statuses to match.
type Query struct {
	Region     geo.Circle
	Categories []string
	Statuses   []string
}

// APIError is the non-200 envelope from the insights API. The runner
// decides whether to abandon a subset or the whole fetch; the error keeps
// the upstream status and body so logs stay diagnosable.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("area insights status %d: %s", e.Status, e.Body)
}

// Options are the client's logging toggles.
type Options struct {
	LogRequests     bool
	LogResponseKeys bool
}

// Client calls the Area Insights computeInsights endpoint. The HTTP
// client is expected to carry OAuth credentials in its transport.
type Client struct {
	endpoint string
	client   *http.Client
	logger   *log.Logger
	opts     Options
}

// NewClient builds a Client around an authenticated HTTP client.
func NewClient(hc *http.Client, logger *log.Logger, opts Options) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	if hc.Timeout == 0 {
		hc.Timeout = 60 * time.Second
	}
	return &Client{
		endpoint: computeEndpoint,
		client:   hc,
		logger:   logger,
		opts:     opts,
	}
}

// Wire shapes for the computeInsights request body.
type computeRequest struct {
	Insights []string       `json:"insights"`
	Filter   insightsFilter `json:"filter"`
}

type insightsFilter struct {
	LocationFilter  locationFilter `json:"locationFilter"`
	TypeFilter      *typeFilter    `json:"typeFilter,omitempty"`
	OperatingStatus []string       `json:"operatingStatus,omitempty"`
}

type locationFilter struct {
	Circle circleFilter `json:"circle"`
}

type circleFilter struct {
	Radius int    `json:"radius"`
	LatLng latLng `json:"latLng"`
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type typeFilter struct {
	IncludedTypes []string `json:"includedTypes"`
}

// Count probes how many places match the query. The API serializes the
// count as a decimal string; absent or malformed values parse to zero.
func (c *Client) Count(ctx context.Context, q Query) (int, error) {
	body, err := c.compute(ctx, insightCount, q)
	if err != nil {
		return 0, err
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return 0, fmt.Errorf("decoding count response: %w", err)
	}
	c.logResponseKeys(raw)
	return parseCount(raw["count"]), nil
}

// Places fetches the matching place resource names. Entries without a
// resource name are dropped.
func (c *Client) Places(ctx context.Context, q Query) ([]model.PlaceInsight, error) {
	body, err := c.compute(ctx, insightPlaces, q)
	if err != nil {
		return nil, err
	}

	var resp struct {
		PlaceInsights []model.PlaceInsight `json:"placeInsights"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding places response: %w", err)
	}

	out := resp.PlaceInsights[:0]
	for _, pi := range resp.PlaceInsights {
		if pi.Place != "" {
			out = append(out, pi)
		}
	}
	return out, nil
}

func (c *Client) compute(ctx context.Context, insight string, q Query) ([]byte, error) {
	if len(q.Categories) == 0 {
		return nil, fmt.Errorf("insights query requires at least one category")
	}

	reqBody := computeRequest{
		Insights: []string{insight},
		Filter: insightsFilter{
			LocationFilter: locationFilter{
				Circle: circleFilter{
					Radius: q.Region.RadiusM,
					LatLng: latLng{Latitude: q.Region.Lat(), Longitude: q.Region.Lng()},
				},
			},
			TypeFilter:      &typeFilter{IncludedTypes: q.Categories},
			OperatingStatus: q.Statuses,
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	if c.opts.LogRequests {
		c.logger.Debug("computeInsights request", "insight", insight, "body", string(payload))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling area insights: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func (c *Client) logResponseKeys(raw map[string]any) {
	if !c.opts.LogResponseKeys {
		return
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	c.logger.Debug("computeInsights response keys", "keys", keys)
}
