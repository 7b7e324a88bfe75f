// Package apiclient is a thin HTTP wrapper around the tracking backend's REST
// API. Every call carries a timeout; timeouts, transport errors, non-2xx
// responses and envelopes with success=false are all returned as errors.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bus-tracker/internal/logging"
	"bus-tracker/internal/transit"
)

// ErrUnsuccessful is returned when the backend answers with success=false.
var ErrUnsuccessful = errors.New("unsuccessful response")

// UnsuccessfulError carries the backend's message for a success=false
// envelope. It matches ErrUnsuccessful with errors.Is.
type UnsuccessfulError struct {
	Path    string
	Message string
}

func (e *UnsuccessfulError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Path, ErrUnsuccessful, e.Message)
}

func (e *UnsuccessfulError) Unwrap() error { return ErrUnsuccessful }

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// Envelope is the common response wrapper of the backend.
type Envelope struct {
	Success bool             `json:"success"`
	Data    []transit.Record `json:"data"`
	Message string           `json:"message,omitempty"`
	Error   string           `json:"error,omitempty"`
	Count   int              `json:"count,omitempty"`
}

type Health struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// OK is true only for success=true with status "OK".
func (h Health) OK() bool { return h.Success && h.Status == "OK" }

// BusQuery selects the filtered buses endpoint when any field is non-empty.
type BusQuery struct {
	Routes    []string
	BusNumber string
}

type Client struct {
	baseURL       string
	httpClient    *http.Client
	dataTimeout   time.Duration
	healthTimeout time.Duration
	logger        *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

func New(baseURL string, dataTimeout, healthTimeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{},
		dataTimeout:   dataTimeout,
		healthTimeout: healthTimeout,
		logger:        logging.Discard(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FetchVehicles returns every live vehicle record, unfiltered.
func (c *Client) FetchVehicles(ctx context.Context) ([]transit.Record, error) {
	return c.FetchBuses(ctx, BusQuery{})
}

func (c *Client) FetchBuses(ctx context.Context, q BusQuery) ([]transit.Record, error) {
	params := url.Values{}
	var routes []string
	for _, r := range q.Routes {
		if r = strings.TrimSpace(r); r != "" {
			routes = append(routes, r)
		}
	}
	if len(routes) > 0 {
		params.Set("routes", strings.Join(routes, ","))
	}
	if n := strings.TrimSpace(q.BusNumber); n != "" {
		params.Set("busNumber", n)
	}
	path := "/buses"
	if len(params) > 0 {
		path = "/buses/filtered?" + params.Encode()
	}
	return c.getData(ctx, path)
}

func (c *Client) FetchRoutes(ctx context.Context) ([]transit.Record, error) {
	return c.getData(ctx, "/routes")
}

// FetchStops returns stop records; limit <= 0 means no limit parameter.
func (c *Client) FetchStops(ctx context.Context, limit int) ([]transit.Record, error) {
	path := "/stops"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	return c.getData(ctx, path)
}

func (c *Client) CheckHealth(ctx context.Context) (Health, error) {
	var h Health
	if err := c.get(ctx, "/health", c.healthTimeout, &h); err != nil {
		return Health{}, err
	}
	return h, nil
}

func (c *Client) getData(ctx context.Context, path string) ([]transit.Record, error) {
	var env Envelope
	if err := c.get(ctx, path, c.dataTimeout, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, &UnsuccessfulError{Path: path, Message: firstNonEmpty(env.Message, env.Error, "unknown API error")}
	}
	return env.Data, nil
}

func (c *Client) get(ctx context.Context, path string, timeout time.Duration, out any) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("api request", slog.String("url", u))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", u, err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, c.logger, "api_response_body")
	c.logger.Debug("api response", slog.String("url", u), slog.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, URL: u}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", u, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
