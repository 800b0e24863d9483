// Package upstream is the HTTP client used to talk to the network camera.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultSnapshotTimeout bounds /api/snapshot fetches.
	DefaultSnapshotTimeout = 5 * time.Second
	DefaultProbeTimeout    = 5 * time.Second
	DefaultOverrideTimeout = 10 * time.Second
	DefaultMaxSnapshot     = 8 << 20

	dialTimeout = 10 * time.Second
	// maxDiscardBytes caps how much of an override/probe body is drained so
	// the connection can be reused.
	maxDiscardBytes = 64 * 1024
)

type Options struct {
	Logger *slog.Logger

	// HTTPClient overrides the default client. It must not set Timeout:
	// streams are unbounded and use context cancellation instead.
	HTTPClient *http.Client

	SnapshotTimeout  time.Duration
	SnapshotMaxBytes int64
	ProbeTimeout     time.Duration
	OverrideTimeout  time.Duration
	UserAgent        string
}

// Client performs the four kinds of upstream requests the relay needs:
// long-lived stream opens, HEAD probes, snapshot fetches and the override
// side-effect call.
type Client struct {
	log  *slog.Logger
	http *http.Client
	opts Options

	snapshots singleflight.Group
}

func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SnapshotTimeout <= 0 {
		opts.SnapshotTimeout = DefaultSnapshotTimeout
	}
	if opts.SnapshotMaxBytes <= 0 {
		opts.SnapshotMaxBytes = DefaultMaxSnapshot
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.OverrideTimeout <= 0 {
		opts.OverrideTimeout = DefaultOverrideTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "bbcat-relay"
	}

	hc := opts.HTTPClient
	if hc == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.DialContext = (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext
		// MJPEG bodies are already compressed frames.
		transport.DisableCompression = true
		hc = &http.Client{Transport: transport}
	}

	return &Client{
		log:  opts.Logger,
		http: hc,
		opts: opts,
	}
}

// OverrideTimeout is the bound applied to Override calls.
func (c *Client) OverrideTimeout() time.Duration {
	return c.opts.OverrideTimeout
}

// Open starts a streaming GET on rawURL. The caller owns the returned body.
// The request lives as long as ctx; no other timeout applies.
func (c *Client) Open(ctx context.Context, rawURL string) (*http.Response, error) {
	resp, err := c.do(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ProbeResult describes the upstream stream without reading it.
type ProbeResult struct {
	URL         string            `json:"url"`
	StatusCode  int               `json:"-"`
	ContentType string            `json:"contentType"`
	Headers     map[string]string `json:"headers"`
}

// Probe issues a HEAD request to rawURL within the probe timeout.
func (c *Client) Probe(ctx context.Context, rawURL string) (ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ProbeTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodHead, rawURL)
	if err != nil {
		return ProbeResult{}, timeoutOr(ctx, err)
	}
	defer drainAndClose(resp.Body)

	headers := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		headers[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return ProbeResult{
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Headers:     headers,
	}, nil
}

// Override performs the side-effect GET on rawURL within the override
// timeout. The body is discarded.
func (c *Client) Override(ctx context.Context, rawURL string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.OverrideTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, rawURL)
	if err != nil {
		return timeoutOr(ctx, err)
	}
	drainAndClose(resp.Body)
	return nil
}

func (c *Client) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drainAndClose(resp.Body)
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// timeoutOr tags err with ErrTimeout when ctx hit its deadline.
func timeoutOr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxDiscardBytes))
	_ = body.Close()
}

// OverrideURL derives the override endpoint from the stream URL: same scheme
// and host, with path replaced by overridePath. Query and fragment are
// dropped.
func OverrideURL(sourceURL, overridePath string) (string, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", fmt.Errorf("parse source url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("source url %q is not absolute", sourceURL)
	}
	if !strings.HasPrefix(overridePath, "/") {
		overridePath = "/" + overridePath
	}
	out := url.URL{Scheme: u.Scheme, Host: u.Host, Path: overridePath}
	return out.String(), nil
}
