// Package waktusolat is a client for the Malaysian prayer-time API at
// api.waktusolat.app together with the JAKIM zone table.
package waktusolat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the public waktusolat.app endpoint
	DefaultBaseURL = "https://api.waktusolat.app"

	// DefaultTimeout bounds every upstream request
	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 1 << 20
)

// ClientConfig configures the API client
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Client fetches monthly prayer schedules
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new API client
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: baseURL,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("waktusolat"),
	}
}

// BaseURL returns the normalized API base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchMonth retrieves the schedule for one zone and month.
// Endpoint: GET /v2/solat/{zone}?year=Y&month=M
func (c *Client) FetchMonth(ctx context.Context, zone string, year int, month time.Month) (*MonthlySchedule, error) {
	fail := func(kind error, status int, err error) error {
		return &FetchError{Kind: kind, Zone: zone, Year: year, Month: month, StatusCode: status, Err: err}
	}

	q := url.Values{}
	q.Set("year", strconv.Itoa(year))
	q.Set("month", strconv.Itoa(int(month)))
	endpoint := fmt.Sprintf("%s/v2/solat/%s?%s", c.baseURL, url.PathEscape(zone), q.Encode())

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fail(ErrNetwork, 0, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fail(ErrNetwork, 0, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	c.logger.Debug("Fetched monthly schedule",
		zap.String("zone", zone),
		zap.Int("year", year),
		zap.Int("month", int(month)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fail(ErrNetwork, resp.StatusCode, fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(snippet))))
	}

	var body apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return nil, fail(ErrUpstreamFormat, resp.StatusCode, fmt.Errorf("decoding body: %w", err))
	}
	if body.Prayers == nil {
		return nil, fail(ErrUpstreamFormat, resp.StatusCode, fmt.Errorf("missing prayers key"))
	}
	if body.Year != 0 && body.Year != year {
		return nil, fail(ErrUpstreamFormat, resp.StatusCode, fmt.Errorf("response is for year %d", body.Year))
	}
	if n := responseMonth(body); n != 0 && n != month {
		return nil, fail(ErrUpstreamFormat, resp.StatusCode, fmt.Errorf("response is for month %d", int(n)))
	}

	schedule := &MonthlySchedule{
		Zone:   zone,
		Year:   year,
		Month:  month,
		Rows:   *body.Prayers,
		Source: "api",
	}
	if err := schedule.Validate(); err != nil {
		return nil, fail(ErrUpstreamFormat, resp.StatusCode, err)
	}

	return schedule, nil
}

// FetchZones lists the zones known to the API.
// Endpoint: GET /zones
func (c *Client) FetchZones(ctx context.Context) ([]ZoneInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/zones", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching zones: %v", ErrNetwork, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetching zones: status %d", ErrNetwork, resp.StatusCode)
	}

	var zones []ZoneInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&zones); err != nil {
		return nil, fmt.Errorf("%w: decoding zones: %v", ErrUpstreamFormat, err)
	}
	return zones, nil
}

var monthAbbrev = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March, "APR": time.April,
	"MAY": time.May, "JUN": time.June, "JUL": time.July, "AUG": time.August,
	"SEP": time.September, "OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// responseMonth extracts the month the API claims to have answered for, or 0
func responseMonth(body apiResponse) time.Month {
	if body.MonthNumber >= 1 && body.MonthNumber <= 12 {
		return time.Month(body.MonthNumber)
	}
	switch m := body.Month.(type) {
	case float64:
		if m >= 1 && m <= 12 {
			return time.Month(int(m))
		}
	case string:
		if n, ok := monthAbbrev[strings.ToUpper(m)]; ok {
			return n
		}
		if n, err := strconv.Atoi(m); err == nil && n >= 1 && n <= 12 {
			return time.Month(n)
		}
	}
	return 0
}
