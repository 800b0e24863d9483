package camera

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilhermesalviano/bbcat/internal/metrics"
)

// Smallest JPEG prefix http.DetectContentType recognises.
var fakeJPEG = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0xFF, 0xD9}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeCapturer struct {
	img []byte
	err error
}

func (f fakeCapturer) Capture(context.Context) ([]byte, error) { return f.img, f.err }

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}
}

func TestCommandCapturer(t *testing.T) {
	requireShell(t)

	t.Run("stdout is the image", func(t *testing.T) {
		c := CommandCapturer{Command: []string{"sh", "-c", "printf 'JPEGDATA'"}, Timeout: 5 * time.Second}
		img, err := c.Capture(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "JPEGDATA", string(img))
	})

	t.Run("non-zero exit", func(t *testing.T) {
		c := CommandCapturer{Command: []string{"sh", "-c", "echo 'no device' >&2; exit 3"}}
		_, err := c.Capture(context.Background())
		require.ErrorIs(t, err, ErrCaptureFailed)
		assert.Contains(t, err.Error(), "no device")
	})

	t.Run("empty output", func(t *testing.T) {
		c := CommandCapturer{Command: []string{"sh", "-c", "true"}}
		_, err := c.Capture(context.Background())
		require.ErrorIs(t, err, ErrCaptureFailed)
	})

	t.Run("timeout", func(t *testing.T) {
		c := CommandCapturer{Command: []string{"sh", "-c", "exec sleep 5"}, Timeout: 50 * time.Millisecond}
		start := time.Now()
		_, err := c.Capture(context.Background())
		require.ErrorIs(t, err, ErrCaptureFailed)
		assert.Less(t, time.Since(start), 4*time.Second)
	})

	t.Run("disabled", func(t *testing.T) {
		_, err := CommandCapturer{}.Capture(context.Background())
		require.ErrorIs(t, err, ErrCaptureFailed)
	})
}

func TestCaptureLabel(t *testing.T) {
	at := time.Date(2024, 3, 9, 7, 45, 12, 0, time.FixedZone("BRT", -3*3600))
	assert.Equal(t, "2024-03-09-10", captureLabel(at))
}

func TestHandlersRenderPage(t *testing.T) {
	mux := http.NewServeMux()
	h := &Handlers{
		Capturer: fakeCapturer{img: fakeJPEG},
		Logger:   discardLogger,
		Now:      func() time.Time { return time.Date(2024, 12, 24, 21, 5, 0, 0, time.UTC) },
	}
	h.RegisterRoutes(mux)

	for _, path := range []string{"/usb-camera", "/camera", "/living-room"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

		body := rec.Body.String()
		assert.Contains(t, body, "<title>Living Room</title>")
		assert.Contains(t, body, "<h1>Living room in 2024-12-24-21</h1>")
		assert.Contains(t, body, `src="data:image/jpeg;base64,`+base64.StdEncoding.EncodeToString(fakeJPEG)+`"`)
		assert.NotContains(t, body, "ZgotmplZ")
	}
}

func TestHandlersCaptureFailure(t *testing.T) {
	m := metrics.New()
	mux := http.NewServeMux()
	(&Handlers{
		Capturer: fakeCapturer{err: errors.Join(ErrCaptureFailed, errors.New("no /dev/video0"))},
		Logger:   discardLogger,
		Metrics:  m,
	}).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/camera", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, strings.Contains(body["error"], "webcam"), body)
	assert.Equal(t, uint64(1), m.Get(metrics.CameraCaptureFailed))
}
