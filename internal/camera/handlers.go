package camera

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"

	"github.com/guilhermesalviano/bbcat/internal/httpserver"
	"github.com/guilhermesalviano/bbcat/internal/metrics"
)

type Handlers struct {
	Capturer Capturer
	Logger   *slog.Logger
	Metrics  *metrics.Metrics

	// Now labels the page; nil means time.Now.
	Now func() time.Time
}

func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	for _, p := range []string{"/usb-camera", "/camera", "/living-room"} {
		mux.HandleFunc("GET "+p, h.handlePage)
	}
}

func (h *Handlers) handlePage(w http.ResponseWriter, r *http.Request) {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	at := now()

	img, err := h.Capturer.Capture(r.Context())
	if err != nil {
		h.Metrics.Inc(metrics.CameraCaptureFailed)
		h.Logger.Error("webcam capture failed", "err", err)
		httpserver.WriteError(w, http.StatusInternalServerError, "could not capture an image from the USB webcam")
		return
	}

	var buf bytes.Buffer
	if err := renderPage(&buf, img, at); err != nil {
		h.Logger.Error("camera page render failed", "err", err)
		httpserver.WriteError(w, http.StatusInternalServerError, "could not render the camera page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = buf.WriteTo(w)
}
