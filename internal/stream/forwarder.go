// Package stream forwards the camera's MJPEG stream to HTTP clients and
// watches it for the override marker.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/guilhermesalviano/bbcat/internal/metrics"
	"github.com/guilhermesalviano/bbcat/internal/upstream"
)

const (
	DefaultMarker      = `<a href="/override">`
	DefaultWindowBytes = 4 * 1024
	DefaultChunkBytes  = 32 * 1024
)

// ErrDownstreamClosed is returned when the client went away mid-stream.
var ErrDownstreamClosed = errors.New("downstream closed")

type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Predicate decides whether the override fires. Defaults to
	// MarkerPredicate(DefaultMarker, DefaultWindowBytes).
	Predicate Predicate

	// OverrideURL is requested once after a matching stream ends cleanly.
	// When empty it is derived from the source URL with OverridePath.
	OverrideURL  string
	OverridePath string

	ChunkBytes int
}

// Forwarder copies an upstream byte stream to a downstream sink chunk by
// chunk, feeding every forwarded chunk to a Matcher. When the upstream ends
// cleanly and the matcher latched, one detached override request is sent.
type Forwarder struct {
	client *upstream.Client
	log    *slog.Logger
	m      *metrics.Metrics
	opts   Options

	overrides sync.WaitGroup
}

func NewForwarder(client *upstream.Client, opts Options) *Forwarder {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Predicate == nil {
		opts.Predicate = MarkerPredicate([]byte(DefaultMarker), DefaultWindowBytes)
	}
	if opts.OverridePath == "" {
		opts.OverridePath = "/override"
	}
	if opts.ChunkBytes <= 0 {
		opts.ChunkBytes = DefaultChunkBytes
	}
	return &Forwarder{
		client: client,
		log:    opts.Logger,
		m:      opts.Metrics,
		opts:   opts,
	}
}

// Forward streams sourceURL into w until the upstream ends, the client
// disconnects (ctx is cancelled) or a write fails.
//
// An error wrapping upstream.ErrUnavailable means nothing was written to w;
// the caller still owns the response. Any other outcome has already sent a
// 200 with the upstream Content-Type.
func (f *Forwarder) Forward(ctx context.Context, sourceURL string, w http.ResponseWriter) (Result, error) {
	s := &session{
		id:      uuid.NewString(),
		state:   StateOpen,
		matcher: f.opts.Predicate(),
	}
	log := f.log.With("session_id", s.id)

	// Every return, including a failed downstream write, aborts the upstream
	// request.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resp, err := f.client.Open(ctx, sourceURL)
	if err != nil {
		s.close(StateClosedError)
		f.m.Inc(metrics.StreamUpstreamFailed)
		return s.result(false), err
	}
	defer resp.Body.Close()

	f.m.Inc(metrics.StreamSessionsOpened)
	defer f.m.Inc(metrics.StreamSessionsClosed)
	log.Debug("stream session opened", "source", sourceURL)

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	buf := make([]byte, f.opts.ChunkBytes)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, werr := w.Write(chunk); werr != nil {
				s.close(StateClosedError)
				f.m.Inc(metrics.StreamDownstreamGone)
				log.Debug("stream downstream write failed", "err", werr, "bytes", s.bytes)
				return s.result(false), fmt.Errorf("%w: %w", ErrDownstreamClosed, werr)
			}
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				s.close(StateClosedError)
				f.m.Inc(metrics.StreamDownstreamGone)
				return s.result(false), fmt.Errorf("%w: %w", ErrDownstreamClosed, ferr)
			}
			s.bytes += int64(n)
			f.m.Add(metrics.StreamBytesForwarded, uint64(n))
			s.matcher.Feed(chunk)
		}

		if rerr == nil {
			continue
		}
		if errors.Is(rerr, io.EOF) {
			break
		}

		s.close(StateClosedError)
		if ctx.Err() != nil {
			// The client disconnected and took the upstream request with it.
			f.m.Inc(metrics.StreamDownstreamGone)
			log.Debug("stream client disconnected", "bytes", s.bytes)
			return s.result(false), fmt.Errorf("%w: %w", ErrDownstreamClosed, ctx.Err())
		}
		log.Warn("stream upstream read failed", "err", rerr, "bytes", s.bytes)
		return s.result(false), fmt.Errorf("read upstream: %w", rerr)
	}

	s.close(StateClosedNormally)
	log.Debug("stream session ended", "bytes", s.bytes, "matched", s.matcher.Matched())
	if !s.matcher.Matched() {
		return s.result(false), nil
	}

	target := f.opts.OverrideURL
	if target == "" {
		target, err = upstream.OverrideURL(sourceURL, f.opts.OverridePath)
		if err != nil {
			log.Error("override url", "err", err)
			return s.result(false), nil
		}
	}
	f.fireOverride(log, target)
	return s.result(true), nil
}

// fireOverride sends the override request in the background. The result is
// logged and never retried.
func (f *Forwarder) fireOverride(log *slog.Logger, target string) {
	f.m.Inc(metrics.OverrideTriggered)
	f.overrides.Add(1)
	go func() {
		defer f.overrides.Done()
		if err := f.client.Override(context.Background(), target); err != nil {
			f.m.Inc(metrics.OverrideFailed)
			log.Error("override request failed", "url", target, "err", err)
			return
		}
		log.Info("override triggered", "url", target)
	}()
}

// Wait blocks until every dispatched override request has finished. Each is
// bounded by the client's override timeout.
func (f *Forwarder) Wait() {
	f.overrides.Wait()
}
