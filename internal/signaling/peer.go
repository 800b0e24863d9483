package signaling

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait = 10 * time.Second
	// wsCloseWait bounds the close frame written on the way out.
	wsCloseWait = time.Second
	// closeGrace is how long Server.Close waits for close frames before
	// dropping connections.
	closeGrace = 2 * wsCloseWait
)

// Peer is one signaling WebSocket. Outbound messages go through a bounded
// queue drained by writePump, which also owns closing the connection.
// Deliver and closeWith never block on the socket.
type Peer struct {
	id    string
	conn  *websocket.Conn
	codec Codec
	log   *slog.Logger

	send       chan ServerMessage
	done       chan struct{}
	writerDone chan struct{}

	// writeMu serializes data frames between writePump and fail. Control
	// frames go through gorilla's own lock.
	writeMu    sync.Mutex
	closeOnce  sync.Once
	closeFrame []byte
}

func newPeer(conn *websocket.Conn, codec Codec, queue int, logger *slog.Logger) *Peer {
	id := uuid.NewString()
	return &Peer{
		id:         id,
		conn:       conn,
		codec:      codec,
		log:        logger.With("peer_id", id),
		send:       make(chan ServerMessage, queue),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

func (p *Peer) ID() string { return p.id }

// Deliver queues msg. A full queue drops the connection at once: the client
// is not reading, so neither a close frame nor a partial negotiation would
// reach it.
func (p *Peer) Deliver(msg ServerMessage) error {
	select {
	case <-p.done:
		return ErrPeerClosed
	default:
	}

	select {
	case p.send <- msg:
		return nil
	case <-p.done:
		return ErrPeerClosed
	default:
		p.Close()
		return ErrSendQueueFull
	}
}

// Done is closed once the peer is closing.
func (p *Peer) Done() <-chan struct{} { return p.done }

// writePump drains the send queue and keeps the connection alive with pings.
// Once the peer is closing it writes the pending close frame, if any, and
// closes the connection.
func (p *Peer) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		<-p.done
		if p.closeFrame != nil {
			_ = p.conn.WriteControl(websocket.CloseMessage, p.closeFrame, time.Now().Add(wsCloseWait))
		}
		_ = p.conn.Close()
		close(p.writerDone)
	}()

	for {
		select {
		case <-p.done:
			return
		case msg := <-p.send:
			if err := p.write(msg); err != nil {
				p.log.Debug("signaling write failed", "err", err)
				p.Close()
				return
			}
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				p.Close()
				return
			}
		}
	}
}

func (p *Peer) write(msg ServerMessage) error {
	data, err := p.codec.Marshal(msg)
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return p.conn.WriteMessage(p.codec.FrameType(), data)
}

// fail writes an error message directly, bypassing the queue, then closes.
// It runs on the peer's own read goroutine.
func (p *Peer) fail(code, message string, closeCode int, closeReason string) {
	_ = p.write(errorMessage(code, message))
	p.closeWith(closeCode, closeReason)
}

// closeWith marks the peer closing and leaves the close frame to writePump.
func (p *Peer) closeWith(code int, reason string) {
	p.closeOnce.Do(func() {
		p.closeFrame = websocket.FormatCloseMessage(code, reason)
		close(p.done)
	})
}

// Close drops the connection without a close frame. A write stuck on a
// stalled client returns as soon as the socket is closed.
func (p *Peer) Close() {
	p.closeOnce.Do(func() { close(p.done) })
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// wait blocks until writePump has closed the connection.
func (p *Peer) wait() { <-p.writerDone }

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
