package insights

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/shawnBuilds/suspended-business-scanner/internal/model"
)

// detailFields is the field mask requested for every place detail.
var detailFields = strings.Join([]string{
	"name", "id", "displayName", "formattedAddress", "location",
	"types", "rating", "userRatingCount", "businessStatus",
}, ",")

// DetailsClient resolves opaque place resource names against the Places
// API. A rate limiter paces the lookups so a large batch does not hammer
// the endpoint.
type DetailsClient struct {
	apiKey   string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *log.Logger
}

// NewDetailsClient builds a resolver pacing one lookup per pause interval.
func NewDetailsClient(apiKey string, pause time.Duration, logger *log.Logger) *DetailsClient {
	if pause <= 0 {
		pause = 100 * time.Millisecond
	}
	return &DetailsClient{
		apiKey:   apiKey,
		endpoint: "https://places.googleapis.com/v1",
		client:   &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(pause), 1),
		logger:   logger,
	}
}

// Resolve fetches the detail record for one place resource name like
// "places/ChIJ...". Upstream failures and undecodable bodies resolve to
// (zero, false) so one bad place never aborts a batch.
func (c *DetailsClient) Resolve(ctx context.Context, resource string) (model.PlaceDetail, bool) {
	if resource == "" {
		return model.PlaceDetail{}, false
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return model.PlaceDetail{}, false
	}

	u := fmt.Sprintf("%s/%s?%s", c.endpoint, resource, url.Values{"fields": {detailFields}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		c.logger.Warn("building details request", "resource", resource, "err", err)
		return model.PlaceDetail{}, false
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("details lookup failed", "resource", resource, "err", err)
		return model.PlaceDetail{}, false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.logger.Warn("reading details response", "resource", resource, "err", err)
		return model.PlaceDetail{}, false
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("details lookup non-200", "resource", resource, "status", resp.StatusCode, "body", truncate(string(body), 300))
		return model.PlaceDetail{}, false
	}

	d, ok := decodePlaceDetail(body)
	if !ok {
		c.logger.Debug("details response not decodable", "resource", resource)
	}
	return d, ok
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
