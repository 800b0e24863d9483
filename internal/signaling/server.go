package signaling

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/guilhermesalviano/bbcat/internal/auth"
	"github.com/guilhermesalviano/bbcat/internal/config"
	"github.com/guilhermesalviano/bbcat/internal/httpserver"
	"github.com/guilhermesalviano/bbcat/internal/metrics"
	"github.com/guilhermesalviano/bbcat/internal/origin"
	"github.com/guilhermesalviano/bbcat/internal/ratelimit"
)

type Config struct {
	Hub      *Hub
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Verifier auth.Verifier
	AuthMode config.AuthMode
	Origins  origin.Policy

	IdleTimeout          time.Duration
	PingInterval         time.Duration
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	SendQueue            int

	// MaxBytesPerSecond budgets inbound payload bytes; zero disables it.
	MaxBytesPerSecond int

	// Clock drives the per-socket rate limiter. Nil means the wall clock.
	Clock ratelimit.Clock
}

// ConfigFrom fills the socket limits from the process configuration.
func ConfigFrom(cfg config.Config, hub *Hub, verifier auth.Verifier, logger *slog.Logger, m *metrics.Metrics) Config {
	return Config{
		Hub:                  hub,
		Logger:               logger,
		Metrics:              m,
		Verifier:             verifier,
		AuthMode:             cfg.AuthMode,
		Origins:              origin.NewPolicy(cfg.AllowedOrigins),
		IdleTimeout:          cfg.SignalingWSIdleTimeout,
		PingInterval:         cfg.SignalingWSPingInterval,
		MaxMessageBytes:      cfg.MaxSignalingMessageBytes,
		MaxMessagesPerSecond: cfg.MaxSignalingMessagesPerSecond,
		MaxBytesPerSecond:    cfg.MaxSignalingBytesPerSecond,
		SendQueue:            cfg.SignalingSendQueue,
	}
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Verifier == nil {
		c.Verifier, _ = auth.NewVerifier(config.Config{AuthMode: config.AuthModeNone})
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = config.DefaultSignalingWSIdleTimeout
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.IdleTimeout {
		c.PingInterval = c.IdleTimeout / 3
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = config.DefaultMaxSignalingMessageBytes
	}
	if c.MaxMessagesPerSecond <= 0 {
		c.MaxMessagesPerSecond = config.DefaultMaxSignalingMessagesPerSecond
	}
	if c.SendQueue <= 0 {
		c.SendQueue = config.DefaultSignalingSendQueue
	}
	if c.Clock == nil {
		c.Clock = ratelimit.RealClock{}
	}
	return c
}

// Server accepts signaling WebSockets on GET /signal and routes their
// messages through the Hub.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader

	mu     sync.Mutex
	peers  map[*Peer]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewServer(cfg Config) *Server {
	cfg = cfg.withDefaults()
	if cfg.Hub == nil {
		cfg.Hub = NewHub(cfg.Logger, cfg.Metrics)
	}
	s := &Server{
		cfg:   cfg,
		peers: make(map[*Peer]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		Subprotocols: []string{SubprotocolMsgpack, SubprotocolJSON},
		CheckOrigin: func(r *http.Request) bool {
			_, ok := cfg.Origins.Check(r)
			return ok
		},
	}
	cfg.Metrics.SetGauge(metrics.GaugeSignalingRooms, func() int64 { return int64(cfg.Hub.RoomCount()) })
	cfg.Metrics.SetGauge(metrics.GaugeSignalingPeers, func() int64 { return int64(s.PeerCount()) })
	return s
}

func (s *Server) Hub() *Hub { return s.cfg.Hub }

// PeerCount is the number of open signaling sockets.
func (s *Server) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /signal", s)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		httpserver.WriteError(w, http.StatusServiceUnavailable, "signaling is shutting down")
		return
	}

	cred, err := auth.CredentialFromRequest(s.cfg.AuthMode, r)
	if err == nil {
		err = s.cfg.Verifier.Verify(cred)
	}
	if err != nil {
		s.cfg.Metrics.Inc(metrics.SignalingAuthFailed)
		msg := "invalid credentials"
		if errors.Is(err, auth.ErrMissingCredentials) {
			msg = "missing credentials"
		}
		httpserver.WriteError(w, http.StatusUnauthorized, msg)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied.
		return
	}

	peer := newPeer(conn, CodecForSubprotocol(conn.Subprotocol()), s.cfg.SendQueue, s.cfg.Logger)
	go peer.writePump(s.cfg.PingInterval)
	if !s.track(peer) {
		peer.closeWith(websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer s.untrack(peer)

	s.cfg.Metrics.Inc(metrics.SignalingConnected)
	defer s.cfg.Metrics.Inc(metrics.SignalingDisconnected)
	peer.log.Debug("signaling connected", "subprotocol", conn.Subprotocol(), "remote", r.RemoteAddr)

	_ = peer.Deliver(ServerMessage{Type: MessageTypeWelcome, SenderID: peer.ID()})

	s.readLoop(peer)

	s.cfg.Hub.Leave(peer)
	peer.closeWith(websocket.CloseNormalClosure, "")
	peer.wait()
	peer.log.Debug("signaling disconnected")
}

func (s *Server) readLoop(p *Peer) {
	conn := p.conn
	limiter := ratelimit.NewSocketLimiter(s.cfg.Clock, s.cfg.MaxMessagesPerSecond, s.cfg.MaxBytesPerSecond)

	extend := func() { _ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)) }
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		frameType, r, err := conn.NextReader()
		if err != nil {
			if isTimeout(err) {
				p.closeWith(websocket.CloseGoingAway, "idle timeout")
			}
			return
		}
		extend()

		data, err := readLimited(r, s.cfg.MaxMessageBytes)
		if err != nil {
			if errors.Is(err, errMessageTooLarge) {
				s.cfg.Metrics.Inc(metrics.SignalingBadMessage)
				p.fail(ErrorCodeBadMessage, "message too large", websocket.CloseMessageTooBig, "message too large")
			}
			return
		}

		if !limiter.AllowMessage(len(data)) {
			s.cfg.Metrics.Inc(metrics.DropReasonRateLimited)
			p.fail(ErrorCodeRateLimited, "too many messages", websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		if frameType != p.codec.FrameType() {
			s.cfg.Metrics.Inc(metrics.SignalingBadMessage)
			p.fail(ErrorCodeBadMessage, "unexpected frame type", websocket.CloseUnsupportedData, "unexpected frame type")
			return
		}

		var msg ClientMessage
		if err := p.codec.Unmarshal(data, &msg); err != nil {
			s.cfg.Metrics.Inc(metrics.SignalingBadMessage)
			p.fail(ErrorCodeBadMessage, "invalid message", websocket.CloseUnsupportedData, "invalid message")
			return
		}
		if err := msg.Validate(); err != nil {
			// Malformed but well-framed messages are answered, not fatal.
			s.cfg.Metrics.Inc(metrics.SignalingBadMessage)
			_ = p.Deliver(errorMessage(ErrorCodeBadMessage, err.Error()))
			continue
		}

		s.dispatch(p, msg)
	}
}

func (s *Server) dispatch(p *Peer, msg ClientMessage) {
	switch msg.Type {
	case MessageTypeJoinRoom:
		if err := s.cfg.Hub.Join(msg.RoomID, msg.UserID, p); err != nil {
			_ = p.Deliver(errorMessage(ErrorCodeInternal, err.Error()))
		}
	case MessageTypeLeaveRoom:
		s.cfg.Hub.Leave(p)
	default:
		if _, err := s.cfg.Hub.Relay(p, msg.RoomID, msg.Type, msg.Payload); err != nil {
			code := ErrorCodeInternal
			if errors.Is(err, ErrNotInRoom) {
				code = ErrorCodeNotInRoom
			}
			_ = p.Deliver(errorMessage(code, err.Error()))
		}
	}
}

func (s *Server) track(p *Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.peers[p] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(p *Peer) {
	s.mu.Lock()
	delete(s.peers, p)
	s.mu.Unlock()
	s.wg.Done()
}

// Close asks every connected peer to go away and waits for their handlers to
// return. Peers still writing after closeGrace are dropped.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	peers := make([]*Peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		p.closeWith(websocket.CloseGoingAway, "server shutting down")
	}

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(closeGrace):
		for _, p := range peers {
			p.Close()
		}
		<-drained
	}
	s.cfg.Hub.Close()
}

var errMessageTooLarge = errors.New("message too large")

func readLimited(r io.Reader, max int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > max {
		return nil, errMessageTooLarge
	}
	return b, nil
}
