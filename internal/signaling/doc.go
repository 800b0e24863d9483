// Package signaling relays WebRTC offer/answer/ICE messages between browser
// peers that joined the same room over a WebSocket.
//
// The relay never inspects payloads: peers negotiate their own media
// sessions and only use the server to reach each other.
package signaling
