// Package feed downloads vulnerability records from the NVD CVE API.
//
// One Fetch issues exactly one GET and returns the decoded records in feed
// order. There is no retry and no pagination beyond the optional
// resultsPerPage hint; the caller decides when to fetch again.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/JonMunkholm/nvdsync/internal/core"
	"github.com/JonMunkholm/nvdsync/internal/logging"
	"github.com/JonMunkholm/nvdsync/internal/metrics"
)

// DefaultURL is the NVD CVE API 2.0 endpoint.
const DefaultURL = "https://services.nvd.nist.gov/rest/json/cves/2.0"

// nvdTimeLayout is the extended ISO-8601 form the API accepts for date filters.
const nvdTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// ClientConfig configures the feed client.
type ClientConfig struct {
	// URL of the CVE endpoint (default: DefaultURL).
	URL string

	// APIKey is sent in the apiKey header when set.
	APIKey string

	// Timeout for the whole request including the body (default: 60s).
	Timeout time.Duration

	// RateLimit requests per second (default: 0.16, the keyless NVD quota).
	RateLimit float64

	// RateBurst maximum burst size (default: 1).
	RateBurst int

	// ResultsPerPage is passed through when positive.
	ResultsPerPage int

	// LastModifiedWindow restricts results to records modified within the
	// window ending now. Zero fetches without a date filter.
	LastModifiedWindow time.Duration

	// UserAgent string (default: "nvdsync/1.0").
	UserAgent string

	// Transport allows injecting a custom HTTP transport (for tests/stubs).
	Transport http.RoundTripper
}

// DefaultClientConfig returns a client config with sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		URL:       DefaultURL,
		Timeout:   60 * time.Second,
		RateLimit: 0.16,
		RateBurst: 1,
		UserAgent: "nvdsync/1.0",
	}
}

// Client is a rate-limited, single-attempt feed client.
type Client struct {
	config      *ClientConfig
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	now         func() time.Time
}

// NewClient creates a feed client with the given configuration.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.URL == "" {
		config.URL = DefaultURL
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 0.16
	}
	if config.RateBurst == 0 {
		config.RateBurst = 1
	}
	if config.UserAgent == "" {
		config.UserAgent = "nvdsync/1.0"
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: config.Transport,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
		now:         time.Now,
	}
}

// Fetch downloads the feed once and returns its records in feed order.
// A body without an item list yields an empty slice. Transport failures,
// non-2xx statuses and undecodable bodies are returned as *core.FetchError.
func (c *Client) Fetch(ctx context.Context) ([]Record, error) {
	// Wait fails only when ctx is done or its deadline comes before the next
	// token. Nothing was sent, so this is not a FetchError.
	if err := c.rateLimiter.Wait(ctx); err != nil {
		metrics.FeedRequests.WithLabelValues("cancelled").Inc()
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	recs, status, err := c.doOnce(ctx)
	metrics.FeedDuration.Observe(metrics.Milliseconds(start))

	logger := logging.WithFields(ctx, "url", c.config.URL, "status", status)
	if err != nil {
		metrics.FeedRequests.WithLabelValues(outcome(err)).Inc()
		logger.Error("feed request failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	metrics.FeedRequests.WithLabelValues("ok").Inc()
	logger.Info("feed fetched", "items", len(recs), "duration_ms", time.Since(start).Milliseconds())
	return recs, nil
}

// doOnce executes the single request attempt.
func (c *Client) doOnce(ctx context.Context) ([]Record, int, error) {
	reqURL, err := c.requestURL()
	if err != nil {
		return nil, 0, &core.FetchError{URL: c.config.URL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, &core.FetchError{URL: reqURL, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.APIKey != "" {
		req.Header.Set("apiKey", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &core.FetchError{URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	body := &countingReader{r: resp.Body}
	defer func() { metrics.FeedBytes.Add(float64(body.n)) }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(body, 512))
		return nil, resp.StatusCode, &core.FetchError{
			URL:        reqURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s: %s", resp.Status, snippet),
		}
	}

	var decoded response
	if err := json.NewDecoder(skipBOM(body)).Decode(&decoded); err != nil {
		return nil, resp.StatusCode, &core.FetchError{
			URL:        reqURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %v", core.ErrMalformedFeed, err),
		}
	}

	recs, ok := decoded.records()
	if !ok {
		logging.FromContext(ctx).Warn("feed response has no item list", "url", reqURL)
	}
	return recs, resp.StatusCode, nil
}

// requestURL adds the optional query parameters to the configured URL.
func (c *Client) requestURL() (string, error) {
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	q := u.Query()
	if c.config.ResultsPerPage > 0 {
		q.Set("resultsPerPage", strconv.Itoa(c.config.ResultsPerPage))
	}
	if c.config.LastModifiedWindow > 0 {
		end := c.now().UTC()
		q.Set("lastModStartDate", end.Add(-c.config.LastModifiedWindow).Format(nvdTimeLayout))
		q.Set("lastModEndDate", end.Format(nvdTimeLayout))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func outcome(err error) string {
	var fe *core.FetchError
	switch {
	case errors.Is(err, core.ErrMalformedFeed):
		return "decode"
	case errors.As(err, &fe) && fe.StatusCode != 0:
		return "status"
	default:
		return "transport"
	}
}
