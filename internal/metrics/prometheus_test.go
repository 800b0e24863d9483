package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusHandler_ExposesSnapshot(t *testing.T) {
	m := New()
	m.Inc(OverrideTriggered)
	m.Add(StreamBytesForwarded, 2048)
	m.Inc(`quote"back\slash`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	PrometheusHandler(m).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusOK)
	}

	body := rr.Body.String()
	for _, want := range []string{
		"# TYPE bbcat_relay_events_total counter",
		`bbcat_relay_events_total{event="override_triggered"} 1`,
		`bbcat_relay_events_total{event="stream_bytes_forwarded"} 2048`,
		`bbcat_relay_events_total{event="quote\"back\\slash"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}

	// Sorted output.
	if strings.Index(body, "override_triggered") > strings.Index(body, "stream_bytes_forwarded") {
		t.Fatalf("events not sorted:\n%s", body)
	}
}

func TestPrometheusHandler_NilMetrics(t *testing.T) {
	rr := httptest.NewRecorder()
	PrometheusHandler(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Inc("x")
	if got := m.Get("x"); got != 0 {
		t.Fatalf("Get=%d, want 0", got)
	}
	if snap := m.Snapshot(); len(snap) != 0 {
		t.Fatalf("Snapshot=%v, want empty", snap)
	}
}

func TestPrometheusHandler_Gauges(t *testing.T) {
	m := New()
	rooms := int64(3)
	m.SetGauge(GaugeSignalingRooms, func() int64 { return rooms })
	m.SetGauge(GaugeSignalingPeers, func() int64 { return 7 })
	m.SetGauge("ignored", nil)

	rr := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	for _, want := range []string{
		"# TYPE bbcat_relay_signaling_rooms gauge",
		"bbcat_relay_signaling_rooms 3",
		"bbcat_relay_signaling_peers 7",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
	if strings.Contains(body, "ignored") {
		t.Fatalf("nil gauge must not be registered:\n%s", body)
	}

	// Sampled on every scrape.
	rooms = 0
	rr = httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "bbcat_relay_signaling_rooms 0") {
		t.Fatalf("gauge not resampled:\n%s", rr.Body.String())
	}
}
