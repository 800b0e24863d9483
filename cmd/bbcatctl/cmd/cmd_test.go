package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilhermesalviano/bbcat/internal/auth"
	"github.com/guilhermesalviano/bbcat/internal/httpserver"
	"github.com/guilhermesalviano/bbcat/internal/signaling"
	"github.com/guilhermesalviano/bbcat/internal/telemetry"
)

var frame = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0xFF, 0xD9}

func fakeRelay(t *testing.T, streamUp bool) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		httpserver.WriteJSON(w, http.StatusOK, telemetry.Report{
			Status:    "online",
			Uptime:    telemetry.Uptime{Server: 7200, API: 65},
			Memory:    &telemetry.Memory{Total: "3792 MB", Free: "2011 MB", Usage: "47%"},
			CPU:       telemetry.CPU{Model: "Cortex-A72", Cores: 4, Load: []float64{0.1, 0.2, 0.3}},
			Hostname:  "raspberrypi",
			Platform:  "linux",
			OSRelease: "6.1.0",
			Disk:      &telemetry.Disk{Total: "29G", Used: "12G", Available: "16G", UsagePercent: "42%"},
			Endpoints: telemetry.Endpoints,
		})
	})
	mux.HandleFunc("GET /api/stream-info", func(w http.ResponseWriter, r *http.Request) {
		if !streamUp {
			httpserver.WriteJSON(w, http.StatusInternalServerError, map[string]string{
				"error":  "could not get stream information",
				"status": "disconnected",
			})
			return
		}
		httpserver.WriteJSON(w, http.StatusOK, map[string]any{
			"url":         "http://192.168.18.40:4747/video",
			"contentType": "multipart/x-mixed-replace;boundary=--dcmjpeg",
			"status":      "connected",
			"headers":     map[string]string{"server": "DroidCam"},
		})
	})
	mux.HandleFunc("GET /api/snapshot", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(frame)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts.URL
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	out, err := run(t, "--relay", fakeRelay(t, true), "status")
	require.NoError(t, err)
	for _, want := range []string{"raspberrypi", "Cortex-A72", "2011 MB free of 3792 MB", "2h0m0s", "1m5s", "29G", "/api/stream-info"} {
		assert.Contains(t, out, want)
	}
}

func TestStreamInfoCommand(t *testing.T) {
	out, err := run(t, "-r", fakeRelay(t, true), "stream-info")
	require.NoError(t, err)
	assert.Contains(t, out, "http://192.168.18.40:4747/video")
	assert.Contains(t, out, "DroidCam")

	_, err = run(t, "-r", fakeRelay(t, false), "stream-info")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not get stream information")
}

func TestSnapshotCommand(t *testing.T) {
	relay := fakeRelay(t, true)
	path := filepath.Join(t.TempDir(), "frame.jpg")

	out, err := run(t, "-r", relay, "snapshot", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "saved 7 bytes")

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, frame, got)

	out, err = run(t, "-r", relay, "snapshot", "-o", "-")
	require.NoError(t, err)
	assert.Equal(t, string(frame), out)
}

func TestBadRelayURL(t *testing.T) {
	_, err := run(t, "-r", "localhost:3000", "status")
	require.Error(t, err)
}

func TestRoomWatchRequiresRoom(t *testing.T) {
	_, err := run(t, "room", "watch")
	require.Error(t, err)
}

func TestPrintEvent(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var buf bytes.Buffer
	printEvent(&buf, at, signaling.ServerMessage{Type: signaling.MessageTypeUserConnected, UserID: "phone"})
	printEvent(&buf, at, signaling.ServerMessage{Type: signaling.MessageTypeOffer, SenderID: "c1", Payload: signaling.Payload(`{"sdp":"x"}`)})
	printEvent(&buf, at, signaling.ServerMessage{Type: signaling.MessageTypeError, Code: "not_in_room", Message: "join first"})

	out := buf.String()
	assert.Contains(t, out, "03:04:05")
	assert.Contains(t, out, "phone")
	assert.Contains(t, out, "from c1 (11 bytes)")
	assert.Contains(t, out, "not_in_room: join first")
}

func TestTokenCommand(t *testing.T) {
	out, err := run(t, "token", "--secret", "shared", "--subject", "tablet", "--ttl", "5m")
	require.NoError(t, err)

	claims, err := auth.NewJWTVerifier("shared", nil).Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "tablet", claims.Subject)

	_, err = run(t, "token", "--secret", "")
	require.Error(t, err)
}
