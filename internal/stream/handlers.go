package stream

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/guilhermesalviano/bbcat/internal/httpserver"
	"github.com/guilhermesalviano/bbcat/internal/metrics"
	"github.com/guilhermesalviano/bbcat/internal/upstream"
)

// Handlers serves the camera-facing HTTP routes.
type Handlers struct {
	Forwarder *Forwarder
	Client    *upstream.Client
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// StreamURL is the absolute upstream MJPEG URL.
	StreamURL string
}

func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /stream", h.handleStream)
	mux.HandleFunc("GET /food", h.handleStream)
	mux.HandleFunc("GET /api/stream-info", h.handleStreamInfo)
	mux.HandleFunc("GET /api/snapshot", h.handleSnapshot)
}

func (h *Handlers) handleStream(w http.ResponseWriter, r *http.Request) {
	res, err := h.Forwarder.Forward(r.Context(), h.StreamURL, w)
	switch {
	case err == nil:
	case errors.Is(err, upstream.ErrUnavailable):
		h.Logger.Error("stream upstream unavailable", "url", h.StreamURL, "err", err)
		httpserver.WriteError(w, http.StatusInternalServerError, "could not connect to the MJPEG stream")
		return
	case errors.Is(err, ErrDownstreamClosed):
		// Normal way for a viewer to leave.
	default:
		h.Logger.Warn("stream ended with error", "url", h.StreamURL, "err", err)
	}
	h.Logger.Debug("stream finished",
		"state", res.State.String(),
		"bytes", res.BytesForwarded,
		"override", res.OverrideFired,
	)
}

func (h *Handlers) handleStreamInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.Client.Probe(r.Context(), h.StreamURL)
	if err != nil {
		h.Logger.Error("stream info probe failed", "url", h.StreamURL, "err", err)
		httpserver.WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  "could not get stream information",
			"url":    h.StreamURL,
			"status": "disconnected",
		})
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"url":         info.URL,
		"contentType": info.ContentType,
		"status":      "connected",
		"headers":     info.Headers,
	})
}

func (h *Handlers) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	frame, err := h.Client.Snapshot(r.Context(), h.StreamURL)
	if err != nil {
		h.Metrics.Inc(metrics.SnapshotFailed)
		if errors.Is(err, upstream.ErrTimeout) {
			h.Logger.Warn("snapshot timed out", "url", h.StreamURL, "err", err)
			httpserver.WriteError(w, http.StatusGatewayTimeout, "timed out capturing a snapshot from the stream")
			return
		}
		h.Logger.Error("snapshot failed", "url", h.StreamURL, "err", err)
		httpserver.WriteError(w, http.StatusInternalServerError, "could not capture a snapshot from the stream")
		return
	}

	h.Metrics.Inc(metrics.SnapshotServed)
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame)
}
