package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/guilhermesalviano/bbcat/internal/signaling"
)

type WatchOptions struct {
	RoomID string
	UserID string
	// Msgpack negotiates binary frames instead of JSON text.
	Msgpack bool
}

// WatchRoom joins a signaling room and calls fn for every server message,
// starting with the welcome. It returns nil when ctx is cancelled, or the
// first error from the socket or fn.
func (c *Client) WatchRoom(ctx context.Context, opts WatchOptions, fn func(signaling.ServerMessage) error) error {
	if opts.RoomID == "" || opts.UserID == "" {
		return errors.New("room id and user id are required")
	}

	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = u.Path + "/signal"
	if c.apiKey != "" {
		q := u.Query()
		q.Set("apiKey", c.apiKey)
		u.RawQuery = q.Encode()
	}

	d := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: DefaultTimeout,
		Subprotocols:     []string{signaling.SubprotocolJSON},
	}
	if opts.Msgpack {
		d.Subprotocols = []string{signaling.SubprotocolMsgpack}
	}

	header := http.Header{}
	c.authorize(header)
	conn, resp, err := d.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return &APIError{StatusCode: resp.StatusCode, Message: err.Error()}
		}
		return fmt.Errorf("dial signaling: %w", err)
	}
	defer conn.Close()
	codec := signaling.CodecForSubprotocol(conn.Subprotocol())

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	join, err := codec.Marshal(signaling.ClientMessage{
		Type:   signaling.MessageTypeJoinRoom,
		RoomID: opts.RoomID,
		UserID: opts.UserID,
	})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(codec.FrameType(), join); err != nil {
		return fmt.Errorf("join room: %w", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read signaling: %w", err)
		}
		var msg signaling.ServerMessage
		if err := codec.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode signaling message: %w", err)
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}
