package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/guilhermesalviano/bbcat/internal/origin"
)

const (
	envVarUpstreamURL     = "MJPEG_URL"
	envVarPort            = "PORT"
	envVarListenAddr      = "BBCAT_LISTEN_ADDR"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"
	envVarLogFormat       = "BBCAT_LOG_FORMAT"
	envVarLogLevel        = "BBCAT_LOG_LEVEL"
	envVarShutdownTimeout = "BBCAT_SHUTDOWN_TIMEOUT"
	envVarMode            = "BBCAT_MODE"
	envVarTLSCertFile     = "TLS_CERT_FILE"
	envVarTLSKeyFile      = "TLS_KEY_FILE"

	// Stream forwarding.
	envVarStreamPath      = "STREAM_PATH"
	envVarOverridePath    = "OVERRIDE_PATH"
	envVarOverrideMarker  = "OVERRIDE_MARKER"
	envVarOverrideTimeout = "OVERRIDE_TIMEOUT"
	envVarScanWindowBytes = "SCAN_WINDOW_BYTES"

	// One-shot upstream fetches.
	envVarSnapshotTimeout  = "SNAPSHOT_TIMEOUT"
	envVarSnapshotMaxBytes = "SNAPSHOT_MAX_BYTES"
	envVarProbeTimeout     = "PROBE_TIMEOUT"

	// Local collaborators.
	envVarCameraCommand   = "CAMERA_COMMAND"
	envVarCameraTimeout   = "CAMERA_TIMEOUT"
	envVarThermalZonePath = "THERMAL_ZONE_PATH"

	// Signaling / WebSocket auth + hardening.
	envVarAuthMode                      = "AUTH_MODE"
	envVarAPIKey                        = "API_KEY"
	envVarJWTSecret                     = "JWT_SECRET"
	envVarSignalingWSIdleTimeout        = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarSignalingWSPingInterval       = "SIGNALING_WS_PING_INTERVAL"
	envVarMaxSignalingMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxSignalingMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarSignalingSendQueue            = "SIGNALING_SEND_QUEUE"
	envVarMaxSignalingBytesPerSecond    = "MAX_SIGNALING_BYTES_PER_SECOND"

	DefaultPort            = 3000
	DefaultShutdown        = 15 * time.Second
	DefaultMode       Mode = ModeDev
	DefaultAuthMode        = AuthModeNone

	DefaultStreamPath     = "/video"
	DefaultOverridePath   = "/override"
	DefaultOverrideMarker = `<a href="/override">`
	// DefaultOverrideTimeout bounds the detached override request so a hung
	// camera cannot pin goroutines after the stream it belongs to has ended.
	DefaultOverrideTimeout = 10 * time.Second
	DefaultScanWindowBytes = 4 * 1024

	DefaultSnapshotTimeout  = 5 * time.Second
	DefaultSnapshotMaxBytes = 8 << 20 // 8MiB
	DefaultProbeTimeout     = 5 * time.Second

	DefaultCameraCommand   = "fswebcam --no-banner -r 2560x1440 --jpeg 100 -"
	DefaultCameraTimeout   = 15 * time.Second
	DefaultThermalZonePath = "/sys/class/thermal/thermal_zone0/temp"

	DefaultSignalingWSIdleTimeout        = 60 * time.Second
	DefaultSignalingWSPingInterval       = 20 * time.Second
	DefaultMaxSignalingMessageBytes      = int64(64 * 1024)
	DefaultMaxSignalingMessagesPerSecond = 50
	DefaultSignalingSendQueue            = 64
	DefaultMaxSignalingBytesPerSecond    = 1 << 20
)

// ErrMissingUpstreamURL is returned by Load when MJPEG_URL is not configured.
// The process must not serve traffic without it.
var ErrMissingUpstreamURL = errors.New("upstream camera url is required (set " + envVarUpstreamURL + " or --upstream-url)")

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type AuthMode string

const (
	AuthModeNone   AuthMode = "none"
	AuthModeAPIKey AuthMode = "api_key"
	AuthModeJWT    AuthMode = "jwt"
)

type Config struct {
	ListenAddr      string
	AllowedOrigins  []string
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	Mode            Mode

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string
	TLSKeyFile  string

	// UpstreamURL is the camera base URL (scheme://host[:port][/prefix]).
	UpstreamURL *url.URL

	StreamPath      string
	OverridePath    string
	OverrideMarker  string
	OverrideTimeout time.Duration
	// ScanWindowBytes is the number of trailing stream bytes kept between
	// chunks while scanning for the override marker.
	ScanWindowBytes int

	SnapshotTimeout  time.Duration
	SnapshotMaxBytes int64
	ProbeTimeout     time.Duration

	// CameraCommand is split on whitespace and executed for each capture. The
	// command must write a single encoded image to stdout. Empty disables the
	// camera routes' capture (they answer 500).
	CameraCommand   []string
	CameraTimeout   time.Duration
	ThermalZonePath string

	AuthMode AuthMode
	APIKey   string // comma-separated; any listed key is accepted

	// JWTSecret is the HS256 key for AuthModeJWT tokens.
	JWTSecret string

	SignalingWSIdleTimeout        time.Duration
	SignalingWSPingInterval       time.Duration
	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int
	SignalingSendQueue            int

	// MaxSignalingBytesPerSecond budgets inbound payload bytes per socket.
	// Zero disables the byte budget.
	MaxSignalingBytesPerSecond int

	ICEServers []webrtc.ICEServer

	iceConfigErr error
}

func (c Config) ICEConfigError() error {
	return c.iceConfigErr
}

// TLSEnabled reports whether the server should terminate TLS itself.
func (c Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// StreamURL returns the absolute upstream URL of the MJPEG stream.
func (c Config) StreamURL() string {
	return joinURLPath(c.UpstreamURL, c.StreamPath)
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, envLogFormatOK := lookup(envVarLogFormat)
	envLogFormatSet := envLogFormatOK && envLogFormat != ""
	logFormatDefault := envLogFormat
	if !envLogFormatSet {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	envLogLevel, envLogLevelOK := lookup(envVarLogLevel)
	envLogLevelSet := envLogLevelOK && envLogLevel != ""
	logLevelDefault := envLogLevel
	if !envLogLevelSet {
		logLevelDefault = defaultLogLevelForMode(modeDefault)
	}

	port, err := envIntOrDefault(lookup, envVarPort, DefaultPort)
	if err != nil {
		return Config{}, err
	}
	listenAddr := envOrDefault(lookup, envVarListenAddr, "")
	upstreamURL := envOrDefault(lookup, envVarUpstreamURL, "")
	allowedOriginsStr := envOrDefault(lookup, envVarAllowedOrigins, "*")
	tlsCertFile := envOrDefault(lookup, envVarTLSCertFile, "")
	tlsKeyFile := envOrDefault(lookup, envVarTLSKeyFile, "")

	ice := ICESource{
		JSON:           envOrDefault(lookup, envICEServersJSON, ""),
		STUNURLs:       envOrDefault(lookup, envStunURLs, ""),
		TURNURLs:       envOrDefault(lookup, envTurnURLs, ""),
		TURNUsername:   envOrDefault(lookup, envTurnUsername, ""),
		TURNCredential: envOrDefault(lookup, envTurnCredential, ""),
	}

	streamPath := envOrDefault(lookup, envVarStreamPath, DefaultStreamPath)
	overridePath := envOrDefault(lookup, envVarOverridePath, DefaultOverridePath)
	overrideMarker := envOrDefault(lookup, envVarOverrideMarker, DefaultOverrideMarker)
	overrideTimeout, err := envDurationOrDefault(lookup, envVarOverrideTimeout, DefaultOverrideTimeout)
	if err != nil {
		return Config{}, err
	}
	scanWindowBytes, err := envIntOrDefault(lookup, envVarScanWindowBytes, DefaultScanWindowBytes)
	if err != nil {
		return Config{}, err
	}

	snapshotTimeout, err := envDurationOrDefault(lookup, envVarSnapshotTimeout, DefaultSnapshotTimeout)
	if err != nil {
		return Config{}, err
	}
	snapshotMaxBytes := int64(DefaultSnapshotMaxBytes)
	if raw, ok := lookup(envVarSnapshotMaxBytes); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarSnapshotMaxBytes, raw, err)
		}
		snapshotMaxBytes = n
	}
	probeTimeout, err := envDurationOrDefault(lookup, envVarProbeTimeout, DefaultProbeTimeout)
	if err != nil {
		return Config{}, err
	}

	cameraCommand := envOrDefault(lookup, envVarCameraCommand, DefaultCameraCommand)
	if raw, ok := lookup(envVarCameraCommand); ok && strings.TrimSpace(raw) == "" {
		// Explicitly set to empty: capture disabled.
		cameraCommand = ""
	}
	cameraTimeout, err := envDurationOrDefault(lookup, envVarCameraTimeout, DefaultCameraTimeout)
	if err != nil {
		return Config{}, err
	}
	thermalZonePath := envOrDefault(lookup, envVarThermalZonePath, DefaultThermalZonePath)

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}

	authModeDefault := string(DefaultAuthMode)
	if raw, ok := lookup(envVarAuthMode); ok && strings.TrimSpace(raw) != "" {
		authModeDefault = strings.TrimSpace(raw)
	}
	apiKey := envOrDefault(lookup, envVarAPIKey, "")
	jwtSecret := envOrDefault(lookup, envVarJWTSecret, "")

	signalingWSIdleTimeout, err := envDurationOrDefault(lookup, envVarSignalingWSIdleTimeout, DefaultSignalingWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	signalingWSPingInterval, err := envDurationOrDefault(lookup, envVarSignalingWSPingInterval, DefaultSignalingWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	maxSignalingMessageBytes := DefaultMaxSignalingMessageBytes
	if raw, ok := lookup(envVarMaxSignalingMessageBytes); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarMaxSignalingMessageBytes, raw, err)
		}
		maxSignalingMessageBytes = n
	}
	maxSignalingMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	signalingSendQueue, err := envIntOrDefault(lookup, envVarSignalingSendQueue, DefaultSignalingSendQueue)
	if err != nil {
		return Config{}, err
	}
	maxSignalingBytesPerSecond, err := envIntOrDefault(lookup, envVarMaxSignalingBytesPerSecond, DefaultMaxSignalingBytesPerSecond)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("bbcat-relay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		modeStr      string
		logFormatStr string
		logLevelStr  string
		authModeStr  string
	)

	fs.StringVar(&upstreamURL, "upstream-url", upstreamURL, "Camera base URL, e.g. http://192.168.18.40:4747 (env "+envVarUpstreamURL+")")
	fs.IntVar(&port, "port", port, "HTTP listen port (env "+envVarPort+")")
	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address host:port; overrides --port (env "+envVarListenAddr+")")
	fs.StringVar(&allowedOriginsStr, "allowed-origins", allowedOriginsStr, "Comma-separated list of allowed browser origins, or * (env "+envVarAllowedOrigins+")")
	fs.StringVar(&tlsCertFile, "tls-cert-file", tlsCertFile, "TLS certificate file; requires --tls-key-file (env "+envVarTLSCertFile+")")
	fs.StringVar(&tlsKeyFile, "tls-key-file", tlsKeyFile, "TLS private key file; requires --tls-cert-file (env "+envVarTLSKeyFile+")")
	fs.StringVar(&modeStr, "mode", modeDefault, "Run mode: dev or prod")
	fs.StringVar(&logFormatStr, "log-format", logFormatDefault, "Log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logLevelDefault, "Log level: debug, info, warn, error")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (e.g. 15s)")

	fs.StringVar(&streamPath, "stream-path", streamPath, "Path of the MJPEG stream below the upstream URL (env "+envVarStreamPath+")")
	fs.StringVar(&overridePath, "override-path", overridePath, "Path requested on the upstream host when the override marker is seen (env "+envVarOverridePath+")")
	fs.StringVar(&overrideMarker, "override-marker", overrideMarker, "Byte sequence in the stream that triggers the override request (env "+envVarOverrideMarker+")")
	fs.DurationVar(&overrideTimeout, "override-timeout", overrideTimeout, "Timeout for the override request (env "+envVarOverrideTimeout+")")
	fs.IntVar(&scanWindowBytes, "scan-window-bytes", scanWindowBytes, "Trailing bytes retained between chunks for the marker scan (env "+envVarScanWindowBytes+")")
	fs.DurationVar(&snapshotTimeout, "snapshot-timeout", snapshotTimeout, "Timeout for /api/snapshot upstream fetches (env "+envVarSnapshotTimeout+")")
	fs.Int64Var(&snapshotMaxBytes, "snapshot-max-bytes", snapshotMaxBytes, "Max bytes read from upstream for one snapshot (env "+envVarSnapshotMaxBytes+")")
	fs.DurationVar(&probeTimeout, "probe-timeout", probeTimeout, "Timeout for /api/stream-info HEAD probes (env "+envVarProbeTimeout+")")

	fs.StringVar(&cameraCommand, "camera-command", cameraCommand, "Command that writes one encoded webcam image to stdout (env "+envVarCameraCommand+")")
	fs.DurationVar(&cameraTimeout, "camera-timeout", cameraTimeout, "Timeout for a webcam capture (env "+envVarCameraTimeout+")")
	fs.StringVar(&thermalZonePath, "thermal-zone-path", thermalZonePath, "sysfs file with the CPU temperature in millidegrees (env "+envVarThermalZonePath+")")

	fs.StringVar(&authModeStr, "auth-mode", authModeDefault, "Signaling auth mode: none, api_key, or jwt (env "+envVarAuthMode+")")
	fs.DurationVar(&signalingWSIdleTimeout, "signaling-ws-idle-timeout", signalingWSIdleTimeout, "Close idle signaling WebSocket connections after this duration (env "+envVarSignalingWSIdleTimeout+")")
	fs.DurationVar(&signalingWSPingInterval, "signaling-ws-ping-interval", signalingWSPingInterval, "Send ping frames on signaling WebSocket connections at this interval (must be < --signaling-ws-idle-timeout; env "+envVarSignalingWSPingInterval+")")
	fs.Int64Var(&maxSignalingMessageBytes, "max-signaling-message-bytes", maxSignalingMessageBytes, "Max inbound signaling WS message size in bytes (env "+envVarMaxSignalingMessageBytes+")")
	fs.IntVar(&maxSignalingMessagesPerSecond, "max-signaling-messages-per-second", maxSignalingMessagesPerSecond, "Max inbound signaling WS messages per second (env "+envVarMaxSignalingMessagesPerSecond+")")
	fs.IntVar(&signalingSendQueue, "signaling-send-queue", signalingSendQueue, "Outbound messages buffered per signaling socket before it is dropped (env "+envVarSignalingSendQueue+")")
	fs.IntVar(&maxSignalingBytesPerSecond, "max-signaling-bytes-per-second", maxSignalingBytesPerSecond, "Max inbound signaling WS payload bytes per second, 0 disables (env "+envVarMaxSignalingBytesPerSecond+")")

	fs.StringVar(&ice.JSON, "ice-servers-json", ice.JSON, "JSON list of RTCIceServer entries for browsers ("+envICEServersJSON+")")
	fs.StringVar(&ice.STUNURLs, "stun-urls", ice.STUNURLs, "comma-separated STUN URLs ("+envStunURLs+")")
	fs.StringVar(&ice.TURNURLs, "turn-urls", ice.TURNURLs, "comma-separated TURN URLs ("+envTurnURLs+")")
	fs.StringVar(&ice.TURNUsername, "turn-username", ice.TURNUsername, "TURN username ("+envTurnUsername+")")
	fs.StringVar(&ice.TURNCredential, "turn-credential", ice.TURNCredential, "TURN credential ("+envTurnCredential+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}

	if !envLogFormatSet && !setFlags["log-format"] {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if !envLogLevelSet && !setFlags["log-level"] {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}
	authMode, err := parseAuthMode(authModeStr)
	if err != nil {
		return Config{}, err
	}

	upstream, err := parseUpstreamURL(upstreamURL)
	if err != nil {
		return Config{}, err
	}

	if listenAddr == "" {
		p, err := parsePortUint(uint(max(port, 0)))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s/--port: %w", envVarPort, err)
		}
		listenAddr = ":" + strconv.Itoa(int(p))
	}
	if _, _, err := net.SplitHostPort(listenAddr); err != nil {
		return Config{}, fmt.Errorf("invalid listen address %q: %w", listenAddr, err)
	}

	allowedOrigins, err := parseAllowedOrigins(allowedOriginsStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s/--allowed-origins: %w", envVarAllowedOrigins, err)
	}

	if (tlsCertFile == "") != (tlsKeyFile == "") {
		return Config{}, fmt.Errorf("%s and %s must be set together (or both unset)", envVarTLSCertFile, envVarTLSKeyFile)
	}

	if !strings.HasPrefix(streamPath, "/") {
		return Config{}, fmt.Errorf("%s/--stream-path must start with /", envVarStreamPath)
	}
	if !strings.HasPrefix(overridePath, "/") {
		return Config{}, fmt.Errorf("%s/--override-path must start with /", envVarOverridePath)
	}
	if overrideMarker == "" {
		return Config{}, fmt.Errorf("%s/--override-marker must not be empty", envVarOverrideMarker)
	}
	if scanWindowBytes < len(overrideMarker) {
		return Config{}, fmt.Errorf("%s/--scan-window-bytes must be >= the marker length (%d); got %d",
			envVarScanWindowBytes, len(overrideMarker), scanWindowBytes)
	}

	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("shutdown timeout must be > 0")
	}
	if overrideTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--override-timeout must be > 0", envVarOverrideTimeout)
	}
	if snapshotTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--snapshot-timeout must be > 0", envVarSnapshotTimeout)
	}
	if snapshotMaxBytes <= 0 {
		return Config{}, fmt.Errorf("%s/--snapshot-max-bytes must be > 0", envVarSnapshotMaxBytes)
	}
	if probeTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--probe-timeout must be > 0", envVarProbeTimeout)
	}
	if cameraTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--camera-timeout must be > 0", envVarCameraTimeout)
	}

	if authMode == AuthModeAPIKey && apiKey == "" {
		return Config{}, fmt.Errorf("%s=%s requires %s", envVarAuthMode, AuthModeAPIKey, envVarAPIKey)
	}
	if authMode == AuthModeJWT && strings.TrimSpace(jwtSecret) == "" {
		return Config{}, fmt.Errorf("%s=%s requires %s", envVarAuthMode, AuthModeJWT, envVarJWTSecret)
	}
	if signalingWSIdleTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--signaling-ws-idle-timeout must be > 0", envVarSignalingWSIdleTimeout)
	}
	if signalingWSPingInterval <= 0 || signalingWSPingInterval >= signalingWSIdleTimeout {
		return Config{}, fmt.Errorf("%s/--signaling-ws-ping-interval must be > 0 and < %s", envVarSignalingWSPingInterval, envVarSignalingWSIdleTimeout)
	}
	if maxSignalingMessageBytes <= 0 {
		return Config{}, fmt.Errorf("%s/--max-signaling-message-bytes must be > 0", envVarMaxSignalingMessageBytes)
	}
	if maxSignalingMessagesPerSecond <= 0 {
		return Config{}, fmt.Errorf("%s/--max-signaling-messages-per-second must be > 0", envVarMaxSignalingMessagesPerSecond)
	}
	if signalingSendQueue <= 0 {
		return Config{}, fmt.Errorf("%s/--signaling-send-queue must be > 0", envVarSignalingSendQueue)
	}
	// The budget is also the bucket size, so it must fit one maximal message.
	if maxSignalingBytesPerSecond < 0 || (maxSignalingBytesPerSecond > 0 && int64(maxSignalingBytesPerSecond) < maxSignalingMessageBytes) {
		return Config{}, fmt.Errorf("%s/--max-signaling-bytes-per-second must be 0 or >= %s", envVarMaxSignalingBytesPerSecond, envVarMaxSignalingMessageBytes)
	}

	cfg := Config{
		ListenAddr:      listenAddr,
		AllowedOrigins:  allowedOrigins,
		LogFormat:       logFormat,
		LogLevel:        level,
		ShutdownTimeout: shutdownTimeout,
		Mode:            mode,

		TLSCertFile: tlsCertFile,
		TLSKeyFile:  tlsKeyFile,

		UpstreamURL:     upstream,
		StreamPath:      streamPath,
		OverridePath:    overridePath,
		OverrideMarker:  overrideMarker,
		OverrideTimeout: overrideTimeout,
		ScanWindowBytes: scanWindowBytes,

		SnapshotTimeout:  snapshotTimeout,
		SnapshotMaxBytes: snapshotMaxBytes,
		ProbeTimeout:     probeTimeout,

		CameraCommand:   strings.Fields(cameraCommand),
		CameraTimeout:   cameraTimeout,
		ThermalZonePath: thermalZonePath,

		AuthMode:  authMode,
		APIKey:    apiKey,
		JWTSecret: jwtSecret,

		SignalingWSIdleTimeout:        signalingWSIdleTimeout,
		SignalingWSPingInterval:       signalingWSPingInterval,
		MaxSignalingMessageBytes:      maxSignalingMessageBytes,
		MaxSignalingMessagesPerSecond: maxSignalingMessagesPerSecond,
		SignalingSendQueue:            signalingSendQueue,
		MaxSignalingBytesPerSecond:    maxSignalingBytesPerSecond,
	}

	// ICE servers only matter to browser peers fetching /webrtc/ice; a broken
	// value is reported through /readyz instead of failing startup.
	cfg.ICEServers, cfg.iceConfigErr = ice.Servers()

	return cfg, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func parseUpstreamURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingUpstreamURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", envVarUpstreamURL, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid %s %q: scheme must be http or https", envVarUpstreamURL, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid %s %q: missing host", envVarUpstreamURL, raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func joinURLPath(base *url.URL, p string) string {
	if base == nil {
		return p
	}
	u := *base
	u.Path = strings.TrimRight(u.Path, "/") + p
	u.RawPath = ""
	return u.String()
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

func parseAuthMode(raw string) (AuthMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(AuthModeNone):
		return AuthModeNone, nil
	case string(AuthModeAPIKey), "apikey":
		return AuthModeAPIKey, nil
	case string(AuthModeJWT):
		return AuthModeJWT, nil
	default:
		return "", fmt.Errorf("invalid %s %q (expected %s, %s, or %s)", envVarAuthMode, raw, AuthModeNone, AuthModeAPIKey, AuthModeJWT)
	}
}

func parseAllowedOrigins(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if entry == "*" {
			out = append(out, entry)
			continue
		}

		normalizedOrigin, _, ok := origin.NormalizeHeader(entry)
		if !ok {
			return nil, fmt.Errorf("invalid origin %q (expected full origin like https://example.com)", entry)
		}
		out = append(out, normalizedOrigin)
	}

	return out, nil
}

func parsePortUint(v uint) (uint16, error) {
	if v == 0 || v > 65535 {
		return 0, fmt.Errorf("port %d out of range (1-65535)", v)
	}
	return uint16(v), nil
}
