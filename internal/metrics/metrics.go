package metrics

import "sync"

// Event names. Each maps to one `event` label value on the exported counter.
const (
	StreamSessionsOpened  = "stream_sessions_opened"
	StreamSessionsClosed  = "stream_sessions_closed"
	StreamUpstreamFailed  = "stream_upstream_failed"
	StreamDownstreamGone  = "stream_downstream_gone"
	StreamBytesForwarded  = "stream_bytes_forwarded"
	OverrideTriggered     = "override_triggered"
	OverrideFailed        = "override_failed"
	SnapshotServed        = "snapshot_served"
	SnapshotFailed        = "snapshot_failed"
	CameraCaptureFailed   = "camera_capture_failed"
	SignalingConnected    = "signaling_connected"
	SignalingDisconnected = "signaling_disconnected"
	SignalingRelayed      = "signaling_relayed"
	SignalingAuthFailed   = "signaling_auth_failed"
	SignalingBadMessage   = "signaling_bad_message"

	// Drop reasons.
	DropReasonRateLimited = "signaling_drop_rate_limited"
	DropReasonQueueFull   = "signaling_drop_queue_full"
)

// Gauge names, sampled at scrape time.
const (
	GaugeSignalingRooms = "signaling_rooms"
	GaugeSignalingPeers = "signaling_peers"
)

// Metrics is a concurrency-safe registry of event counters and sampled
// gauges.
//
// A nil *Metrics is valid and discards every update, so components can be
// built without one in tests.
type Metrics struct {
	mu     sync.Mutex
	m      map[string]uint64
	gauges map[string]func() int64
}

func New() *Metrics {
	return &Metrics{
		m:      make(map[string]uint64),
		gauges: make(map[string]func() int64),
	}
}

// SetGauge registers fn to be sampled under name on every scrape. A later
// call with the same name replaces fn.
func (m *Metrics) SetGauge(name string, fn func() int64) {
	if m == nil || fn == nil {
		return
	}
	m.mu.Lock()
	m.gauges[name] = fn
	m.mu.Unlock()
}

// Gauges samples every registered gauge. The functions run outside the
// registry lock.
func (m *Metrics) Gauges() map[string]int64 {
	if m == nil {
		return map[string]int64{}
	}
	m.mu.Lock()
	fns := make(map[string]func() int64, len(m.gauges))
	for k, fn := range m.gauges {
		fns[k] = fn
	}
	m.mu.Unlock()

	out := make(map[string]int64, len(fns))
	for k, fn := range fns {
		out[k] = fn()
	}
	return out
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of every counter.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return map[string]uint64{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
