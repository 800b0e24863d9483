package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

type MessageType string

const (
	// Client to server.
	MessageTypeJoinRoom  MessageType = "join-room"
	MessageTypeLeaveRoom MessageType = "leave-room"

	// Relayed in both directions.
	MessageTypeOffer        MessageType = "offer"
	MessageTypeAnswer       MessageType = "answer"
	MessageTypeICECandidate MessageType = "ice-candidate"

	// Server to client.
	MessageTypeWelcome          MessageType = "welcome"
	MessageTypeUserConnected    MessageType = "user-connected"
	MessageTypeUserDisconnected MessageType = "user-disconnected"
	MessageTypeError            MessageType = "error"
)

// Relayable reports whether t is forwarded verbatim to other room members.
func (t MessageType) Relayable() bool {
	switch t {
	case MessageTypeOffer, MessageTypeAnswer, MessageTypeICECandidate:
		return true
	default:
		return false
	}
}

// Error codes carried by error messages.
const (
	ErrorCodeBadMessage  = "bad_message"
	ErrorCodeNotInRoom   = "not_in_room"
	ErrorCodeRateLimited = "rate_limited"
	ErrorCodeInternal    = "internal_error"
)

// Payload is an opaque JSON value (SDP, ICE candidate, ...). It is kept as
// raw JSON and converted to native msgpack values on binary sockets so both
// codecs carry the same data.
type Payload json.RawMessage

func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

func (p *Payload) UnmarshalJSON(b []byte) error {
	*p = append((*p)[:0], b...)
	return nil
}

func (p Payload) EncodeMsgpack(enc *msgpack.Encoder) error {
	if len(p) == 0 {
		return enc.EncodeNil()
	}
	var v any
	if err := json.Unmarshal(p, &v); err != nil {
		return fmt.Errorf("payload is not valid json: %w", err)
	}
	return enc.Encode(v)
}

func (p *Payload) DecodeMsgpack(dec *msgpack.Decoder) error {
	v, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	if v == nil {
		*p = nil
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("payload cannot be represented as json: %w", err)
	}
	*p = b
	return nil
}

// Equal reports whether both payloads hold the same JSON value. Key order
// and whitespace are ignored.
func (p Payload) Equal(other Payload) bool {
	if len(p) == 0 || len(other) == 0 {
		return len(p) == len(other)
	}
	var a, b any
	if json.Unmarshal(p, &a) != nil || json.Unmarshal(other, &b) != nil {
		return bytes.Equal(p, other)
	}
	return reflect.DeepEqual(a, b)
}

// ClientMessage is sent by browser peers.
type ClientMessage struct {
	Type    MessageType `json:"type" msgpack:"type"`
	RoomID  string      `json:"roomId,omitempty" msgpack:"roomId,omitempty"`
	UserID  string      `json:"userId,omitempty" msgpack:"userId,omitempty"`
	Payload Payload     `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

func (m ClientMessage) Validate() error {
	switch m.Type {
	case MessageTypeJoinRoom:
		if m.RoomID == "" {
			return fmt.Errorf("join-room message missing roomId")
		}
		if m.UserID == "" {
			return fmt.Errorf("join-room message missing userId")
		}
	case MessageTypeOffer, MessageTypeAnswer, MessageTypeICECandidate:
		if m.UserID != "" {
			return fmt.Errorf("%s message has unexpected userId", m.Type)
		}
	case MessageTypeLeaveRoom:
		if m.UserID != "" || len(m.Payload) != 0 {
			return fmt.Errorf("leave-room message has unexpected fields")
		}
	case "":
		return fmt.Errorf("message missing type")
	default:
		return fmt.Errorf("unsupported message type %q", m.Type)
	}
	return nil
}

// ServerMessage is sent to browser peers.
type ServerMessage struct {
	Type     MessageType `json:"type" msgpack:"type"`
	RoomID   string      `json:"roomId,omitempty" msgpack:"roomId,omitempty"`
	UserID   string      `json:"userId,omitempty" msgpack:"userId,omitempty"`
	SenderID string      `json:"senderId,omitempty" msgpack:"senderId,omitempty"`
	Payload  Payload     `json:"payload,omitempty" msgpack:"payload,omitempty"`

	Code    string `json:"code,omitempty" msgpack:"code,omitempty"`
	Message string `json:"message,omitempty" msgpack:"message,omitempty"`
}

func errorMessage(code, message string) ServerMessage {
	return ServerMessage{Type: MessageTypeError, Code: code, Message: message}
}
