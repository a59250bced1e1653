package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"icemaker/internal/config"
	"icemaker/internal/services"
)

const (
	defaultHTTPTimeout   = 10 * time.Second
	defaultRetryBase     = 500 * time.Millisecond
	defaultRetryMax      = 8 * time.Second
	defaultRetryAttempts = 4
)

// Query is a structured address lookup. Name is carried for logging only and
// never sent to the provider or scored.
type Query struct {
	Name    string
	Street  string
	City    string
	State   string
	Country string
}

// Result is a successful geocode hit.
type Result struct {
	Latitude    float64
	Longitude   float64
	DisplayName string
	Postcode    string
	Address     AddressDetail
}

// AddressDetail carries the provider's decomposed address components used by
// confidence scoring.
type AddressDetail struct {
	Road     string `json:"road"`
	City     string `json:"city"`
	Town     string `json:"town"`
	Village  string `json:"village"`
	State    string `json:"state"`
	Postcode string `json:"postcode"`
	ISOLvl4  string `json:"ISO3166-2-lvl4"`
}

// Provider resolves addresses to coordinates and coordinates to IANA
// timezones. Implementations distinguish permanent misses
// (services.ErrNoResult) from transient failures (services.ErrTransient).
type Provider interface {
	Geocode(ctx context.Context, q Query) (*Result, error)
	Timezone(ctx context.Context, lat, lon float64) (string, error)
}

// Client talks to a Nominatim-compatible endpoint plus a coordinate-to-
// timezone endpoint. Calls are serialized through a configurable inter-call
// delay out of respect for the public provider's usage policy.
type Client struct {
	baseURL     string
	timezoneURL string
	userAgent   string
	httpClient  *http.Client

	rateLimit     time.Duration
	lastRequestAt time.Time

	retryAttempts int
	retryBase     time.Duration
	retryMax      time.Duration
	sleeper       func(context.Context, time.Duration) error
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSleeper overrides how waits are performed (useful for tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleeper != nil {
			c.sleeper = sleeper
		}
	}
}

// NewClient constructs a geocoding client from the geocoder config section.
func NewClient(cfg config.Geocoder, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	client := &Client{
		baseURL:       strings.TrimSpace(cfg.BaseURL),
		timezoneURL:   strings.TrimSpace(cfg.TimezoneURL),
		userAgent:     strings.TrimSpace(cfg.UserAgent),
		httpClient:    &http.Client{Timeout: timeout},
		rateLimit:     time.Duration(cfg.RateLimitMillis) * time.Millisecond,
		retryAttempts: defaultRetryAttempts,
		retryBase:     defaultRetryBase,
		retryMax:      defaultRetryMax,
		sleeper:       sleepContext,
	}
	if cfg.RetryAttempts > 0 {
		client.retryAttempts = cfg.RetryAttempts
	}
	if cfg.RetryBaseMillis > 0 {
		client.retryBase = time.Duration(cfg.RetryBaseMillis) * time.Millisecond
	}
	if cfg.RetryMaxMillis > 0 {
		client.retryMax = time.Duration(cfg.RetryMaxMillis) * time.Millisecond
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("geocode request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Geocode performs a structured address lookup. An empty result set returns
// services.ErrNoResult: the address as parsed does not exist to the
// provider, and retrying will not change that.
func (c *Client) Geocode(ctx context.Context, q Query) (*Result, error) {
	if strings.TrimSpace(q.City) == "" && strings.TrimSpace(q.Street) == "" {
		return nil, services.Wrap(services.ErrValidation, "geocode", "lookup",
			"query needs at least a street or city", nil)
	}
	country := q.Country
	if country == "" {
		country = "US"
	}
	params := url.Values{}
	params.Set("street", q.Street)
	params.Set("city", q.City)
	params.Set("state", q.State)
	params.Set("country", country)
	params.Set("format", "json")
	params.Set("addressdetails", "1")
	params.Set("limit", "1")
	endpoint := c.baseURL + "?" + params.Encode()

	body, err := c.getWithRetry(ctx, endpoint, "lookup")
	if err != nil {
		return nil, err
	}

	var hits []struct {
		Lat         string        `json:"lat"`
		Lon         string        `json:"lon"`
		DisplayName string        `json:"display_name"`
		Address     AddressDetail `json:"address"`
	}
	if err := json.Unmarshal(body, &hits); err != nil {
		return nil, services.Wrap(services.ErrTransient, "geocode", "lookup", "decode response", err)
	}
	if len(hits) == 0 {
		return nil, services.Wrap(services.ErrNoResult, "geocode", "lookup",
			fmt.Sprintf("no results for %q, %s, %s", q.Street, q.City, q.State), nil)
	}

	hit := hits[0]
	lat, latErr := strconv.ParseFloat(hit.Lat, 64)
	lon, lonErr := strconv.ParseFloat(hit.Lon, 64)
	if latErr != nil || lonErr != nil {
		return nil, services.Wrap(services.ErrTransient, "geocode", "lookup",
			fmt.Sprintf("unparseable coordinates %q,%q", hit.Lat, hit.Lon), nil)
	}
	return &Result{
		Latitude:    lat,
		Longitude:   lon,
		DisplayName: hit.DisplayName,
		Postcode:    hit.Address.Postcode,
		Address:     hit.Address,
	}, nil
}

// Timezone resolves coordinates to an IANA timezone name. An empty name in
// an otherwise valid response is treated as transient: the endpoint
// sometimes returns partial payloads under load.
func (c *Client) Timezone(ctx context.Context, lat, lon float64) (string, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	endpoint := c.timezoneURL + "?" + params.Encode()

	body, err := c.getWithRetry(ctx, endpoint, "timezone")
	if err != nil {
		return "", err
	}
	var payload struct {
		TimeZone string `json:"timeZone"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", services.Wrap(services.ErrTransient, "geocode", "timezone", "decode response", err)
	}
	name := strings.TrimSpace(payload.TimeZone)
	if name == "" {
		return "", services.Wrap(services.ErrTransient, "geocode", "timezone",
			fmt.Sprintf("empty timezone for %.4f,%.4f", lat, lon), nil)
	}
	return name, nil
}

func (c *Client) getWithRetry(ctx context.Context, endpoint, op string) ([]byte, error) {
	attempts := c.retryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.waitRateLimit(ctx); err != nil {
			return nil, err
		}
		body, err := c.getOnce(ctx, endpoint)
		if err == nil {
			return body, nil
		}
		lastErr = err

		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			break
		}
		if err := c.sleeper(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, services.Wrap(services.ErrTransient, "geocode", op, "request failed", lastErr)
}

func (c *Client) getOnce(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("geocode request: new request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request: http error: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("geocode request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}
	return body, nil
}

func (c *Client) waitRateLimit(ctx context.Context) error {
	if c.rateLimit <= 0 {
		c.lastRequestAt = time.Now()
		return nil
	}
	if elapsed := time.Since(c.lastRequestAt); elapsed < c.rateLimit {
		if err := c.sleeper(ctx, c.rateLimit-elapsed); err != nil {
			return err
		}
	}
	c.lastRequestAt = time.Now()
	return nil
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil {
		return 0, false
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return c.capDelay(statusErr.RetryAfter), true
			}
			return c.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.backoffDelay(attempt), true
	}
	return 0, false
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.retryBase
	for i := 1; i < attempt; i++ {
		if delay > c.retryMax/2 {
			delay = c.retryMax
			break
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if c.retryMax > 0 && delay > c.retryMax {
		return c.retryMax
	}
	return delay
}

func parseRetryAfter(header string) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(header); err == nil {
		if wait := time.Until(when); wait > 0 {
			return wait, true
		}
	}
	return 0, false
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
