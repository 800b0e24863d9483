package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/guilhermesalviano/bbcat/internal/httpserver"
)

const defaultCollectTimeout = 3 * time.Second

type Handler struct {
	Collector Collector
	// Timeout bounds one collection. Zero means three seconds.
	Timeout time.Duration
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.serve)
}

// serve always answers 200; probes that fail or time out are omitted.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultCollectTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	httpserver.WriteJSON(w, http.StatusOK, h.Collector.Collect(ctx))
}
