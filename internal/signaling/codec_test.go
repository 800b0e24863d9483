package signaling

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestCodecForSubprotocol(t *testing.T) {
	assert.IsType(t, MsgpackCodec{}, CodecForSubprotocol(SubprotocolMsgpack))
	assert.IsType(t, JSONCodec{}, CodecForSubprotocol(SubprotocolJSON))
	assert.IsType(t, JSONCodec{}, CodecForSubprotocol(""))

	assert.Equal(t, websocket.BinaryMessage, MsgpackCodec{}.FrameType())
	assert.Equal(t, websocket.TextMessage, JSONCodec{}.FrameType())
}

func TestCodecsCarrySameMessage(t *testing.T) {
	in := ServerMessage{
		Type:     MessageTypeOffer,
		RoomID:   "living-room",
		SenderID: "c0ffee",
		Payload:  Payload(`{"type":"offer","sdp":"v=0\r\n","nested":{"n":[1,2,3]}}`),
	}

	for _, codec := range []Codec{JSONCodec{}, MsgpackCodec{}} {
		data, err := codec.Marshal(in)
		require.NoError(t, err)

		var out ServerMessage
		require.NoError(t, codec.Unmarshal(data, &out))
		assert.Equal(t, in.Type, out.Type)
		assert.Equal(t, in.RoomID, out.RoomID)
		assert.Equal(t, in.SenderID, out.SenderID)
		assert.True(t, in.Payload.Equal(out.Payload), "payload %s", out.Payload)
	}
}

func TestJSONCodecWireShape(t *testing.T) {
	data, err := JSONCodec{}.Marshal(ServerMessage{Type: MessageTypeUserConnected, RoomID: "r", UserID: "u"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"user-connected","roomId":"r","userId":"u"}`, string(data))
}

func TestJSONCodecStrict(t *testing.T) {
	var msg ClientMessage
	assert.Error(t, JSONCodec{}.Unmarshal([]byte(`{"type":"offer","extra":1}`), &msg))
	assert.Error(t, JSONCodec{}.Unmarshal([]byte(`{"type":"offer"}{"type":"offer"}`), &msg))
	assert.Error(t, JSONCodec{}.Unmarshal([]byte(`not json`), &msg))
	require.NoError(t, JSONCodec{}.Unmarshal([]byte(`{"type":"offer","payload":{"sdp":"x"}}`), &msg))
	assert.Equal(t, MessageTypeOffer, msg.Type)
	assert.JSONEq(t, `{"sdp":"x"}`, string(msg.Payload))
}

func TestMsgpackCodecStrict(t *testing.T) {
	extra, err := msgpack.Marshal(map[string]any{"type": "offer", "extra": 1})
	require.NoError(t, err)

	var msg ClientMessage
	assert.Error(t, MsgpackCodec{}.Unmarshal(extra, &msg))

	one, err := MsgpackCodec{}.Marshal(ClientMessage{Type: MessageTypeLeaveRoom})
	require.NoError(t, err)
	assert.Error(t, MsgpackCodec{}.Unmarshal(append(one, one...), &msg))
	require.NoError(t, MsgpackCodec{}.Unmarshal(one, &msg))
	assert.Equal(t, MessageTypeLeaveRoom, msg.Type)
}

func TestMsgpackPayloadIsNative(t *testing.T) {
	data, err := MsgpackCodec{}.Marshal(ClientMessage{
		Type:    MessageTypeICECandidate,
		Payload: Payload(`{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMLineIndex":0}`),
	})
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, msgpack.Unmarshal(data, &generic))
	payload, ok := generic["payload"].(map[string]any)
	require.True(t, ok, "payload decoded as %T", generic["payload"])
	assert.Equal(t, "candidate:1 1 udp 1 10.0.0.1 5000 typ host", payload["candidate"])
}

func TestClientMessageValidate(t *testing.T) {
	valid := []ClientMessage{
		{Type: MessageTypeJoinRoom, RoomID: "r", UserID: "u"},
		{Type: MessageTypeLeaveRoom},
		{Type: MessageTypeOffer, RoomID: "r", Payload: Payload(`{}`)},
		{Type: MessageTypeAnswer},
		{Type: MessageTypeICECandidate, Payload: Payload(`null`)},
	}
	for _, m := range valid {
		assert.NoError(t, m.Validate(), "%+v", m)
	}

	invalid := []ClientMessage{
		{},
		{Type: MessageTypeJoinRoom, UserID: "u"},
		{Type: MessageTypeJoinRoom, RoomID: "r"},
		{Type: MessageTypeOffer, UserID: "spoofed"},
		{Type: MessageTypeLeaveRoom, UserID: "u"},
		{Type: MessageTypeWelcome},
		{Type: "shout"},
	}
	for _, m := range invalid {
		assert.Error(t, m.Validate(), "%+v", m)
	}
}
