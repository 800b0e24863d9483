// Package client talks to a running bbcat relay over HTTP and the signaling
// WebSocket. It backs the bbcatctl command.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/guilhermesalviano/bbcat/internal/telemetry"
)

const DefaultTimeout = 10 * time.Second

// APIError is a non-2xx answer from the relay.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("relay returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("relay returned %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	base   *url.URL
	http   *http.Client
	apiKey string
	token  string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAPIKey sends key as X-API-Key on every request and as the apiKey query
// parameter on the signaling upgrade.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithBearerToken sends token as Authorization: Bearer on every request,
// including the signaling upgrade, for relays running AUTH_MODE=jwt.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("relay url %q must be http(s)://host[:port]", baseURL)
	}
	c := &Client{
		base: u,
		http: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// StreamInfo mirrors GET /api/stream-info.
type StreamInfo struct {
	URL         string            `json:"url"`
	ContentType string            `json:"contentType"`
	Status      string            `json:"status"`
	Headers     map[string]string `json:"headers"`
}

func (c *Client) Status(ctx context.Context) (telemetry.Report, error) {
	var r telemetry.Report
	err := c.getJSON(ctx, "/", &r)
	return r, err
}

// StreamInfo returns the upstream probe. A disconnected camera is reported
// as an *APIError carrying the relay's message.
func (c *Client) StreamInfo(ctx context.Context) (StreamInfo, error) {
	var info StreamInfo
	err := c.getJSON(ctx, "/api/stream-info", &info)
	return info, err
}

// Snapshot copies one JPEG frame into w and returns the byte count.
func (c *Client) Snapshot(ctx context.Context, w io.Writer) (int64, error) {
	resp, err := c.do(ctx, "/api/snapshot")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return 0, fmt.Errorf("snapshot: unexpected content type %q", ct)
	}
	return io.Copy(w, resp.Body)
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.do(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// do issues a GET and converts non-2xx answers into *APIError.
func (c *Client) do(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req.Header)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 == 2 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		apiErr.Message = body.Error
	}
	return nil, apiErr
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

// IsStatus reports whether err is an *APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

func (c *Client) authorize(h http.Header) {
	if c.apiKey != "" {
		h.Set("X-API-Key", c.apiKey)
	}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
}
