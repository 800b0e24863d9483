package signaling

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/guilhermesalviano/bbcat/internal/metrics"
)

var (
	ErrEmptyRoomID   = errors.New("room id is required")
	ErrEmptyUserID   = errors.New("user id is required")
	ErrNotInRoom     = errors.New("peer has not joined the room")
	ErrNotRelayable  = errors.New("message type cannot be relayed")
	ErrHubClosed     = errors.New("signaling hub closed")
	ErrPeerClosed    = errors.New("peer closed")
	ErrSendQueueFull = errors.New("peer send queue full")
)

// Member is one connected peer as seen by the Hub. Deliver must not block;
// an error evicts the member from its room.
type Member interface {
	// ID is the connection-scoped identifier used as senderId.
	ID() string
	Deliver(msg ServerMessage) error
}

type membership struct {
	roomID string
	userID string
}

type room struct {
	id string
	// members is keyed by the caller-supplied user id.
	members map[string]Member
}

type delivery struct {
	to  Member
	msg ServerMessage
}

// Hub owns the room table. Join, Leave and Relay are the only operations that
// change membership; each runs under one mutex and delivers outside it.
type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	rooms       map[string]*room
	memberships map[Member]membership
	closed      bool
}

func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:         logger,
		metrics:     m,
		rooms:       make(map[string]*room),
		memberships: make(map[Member]membership),
	}
}

// Join adds m to roomID under userID and notifies every other member with
// user-connected. A member belongs to at most one room: joining another room
// leaves the current one first. A second handle joining with a user id that
// is already present replaces the earlier handle.
func (h *Hub) Join(roomID, userID string, m Member) error {
	if roomID == "" {
		return ErrEmptyRoomID
	}
	if userID == "" {
		return ErrEmptyUserID
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}

	var out []delivery
	if prev, ok := h.memberships[m]; ok {
		if prev == (membership{roomID: roomID, userID: userID}) {
			h.mu.Unlock()
			return nil
		}
		out = h.removeLocked(m, prev)
	}

	r, ok := h.rooms[roomID]
	if !ok {
		r = &room{id: roomID, members: make(map[string]Member)}
		h.rooms[roomID] = r
	}
	if replaced, ok := r.members[userID]; ok && replaced != m {
		delete(h.memberships, replaced)
		h.log.Debug("signaling member replaced", "room_id", roomID, "user_id", userID, "peer_id", replaced.ID())
	}
	r.members[userID] = m
	h.memberships[m] = membership{roomID: roomID, userID: userID}

	for uid, other := range r.members {
		if uid == userID {
			continue
		}
		out = append(out, delivery{to: other, msg: ServerMessage{
			Type:   MessageTypeUserConnected,
			RoomID: roomID,
			UserID: userID,
		}})
	}
	h.mu.Unlock()

	h.log.Debug("signaling join", "room_id", roomID, "user_id", userID, "peer_id", m.ID())
	h.deliver(out)
	return nil
}

// Leave removes m from its room, if any, and tells the remaining members
// with user-disconnected. Empty rooms are dropped. Once Leave returns, no
// broadcast started afterwards targets m.
func (h *Hub) Leave(m Member) {
	h.mu.Lock()
	ms, ok := h.memberships[m]
	if !ok {
		h.mu.Unlock()
		return
	}
	out := h.removeLocked(m, ms)
	h.mu.Unlock()

	h.log.Debug("signaling leave", "room_id", ms.roomID, "user_id", ms.userID, "peer_id", m.ID())
	h.deliver(out)
}

// removeLocked drops m from its room and returns the departure notices.
func (h *Hub) removeLocked(m Member, ms membership) []delivery {
	delete(h.memberships, m)

	r, ok := h.rooms[ms.roomID]
	if !ok {
		return nil
	}
	if r.members[ms.userID] != m {
		return nil
	}
	delete(r.members, ms.userID)

	if len(r.members) == 0 {
		delete(h.rooms, ms.roomID)
		return nil
	}

	out := make([]delivery, 0, len(r.members))
	for _, other := range r.members {
		out = append(out, delivery{to: other, msg: ServerMessage{
			Type:   MessageTypeUserDisconnected,
			RoomID: ms.roomID,
			UserID: ms.userID,
		}})
	}
	return out
}

// Relay forwards payload to every other member of the sender's room, tagged
// with the sender's connection id. roomID may be empty to mean the sender's
// current room; any other room is rejected with ErrNotInRoom. A room with no
// other members is a no-op. It returns the number of members reached.
func (h *Hub) Relay(from Member, roomID string, typ MessageType, payload Payload) (int, error) {
	if !typ.Relayable() {
		return 0, ErrNotRelayable
	}

	h.mu.Lock()
	ms, ok := h.memberships[from]
	if !ok || (roomID != "" && roomID != ms.roomID) {
		h.mu.Unlock()
		return 0, ErrNotInRoom
	}
	r := h.rooms[ms.roomID]
	out := make([]delivery, 0, len(r.members))
	for _, other := range r.members {
		if other == from {
			continue
		}
		out = append(out, delivery{to: other, msg: ServerMessage{
			Type:     typ,
			RoomID:   ms.roomID,
			SenderID: from.ID(),
			Payload:  payload,
		}})
	}
	h.mu.Unlock()

	n := h.deliver(out)
	h.metrics.Add(metrics.SignalingRelayed, uint64(n))
	return n, nil
}

// deliver sends outside the lock and evicts members whose Deliver fails.
func (h *Hub) deliver(out []delivery) int {
	var (
		ok      int
		evicted []Member
	)
	for _, d := range out {
		if err := d.to.Deliver(d.msg); err != nil {
			if errors.Is(err, ErrSendQueueFull) {
				h.metrics.Inc(metrics.DropReasonQueueFull)
				h.log.Warn("signaling peer send queue full, evicting", "peer_id", d.to.ID())
			}
			evicted = append(evicted, d.to)
			continue
		}
		ok++
	}
	for _, m := range evicted {
		h.Leave(m)
	}
	return ok
}

// RoomOf returns the room and user id m joined with.
func (h *Hub) RoomOf(m Member) (roomID, userID string, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ms, ok := h.memberships[m]
	return ms.roomID, ms.userID, ok
}

// Members returns the sorted user ids present in roomID.
func (h *Hub) Members(roomID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(r.members))
	for uid := range r.members {
		ids = append(ids, uid)
	}
	sort.Strings(ids)
	return ids
}

// RoomCount returns the number of non-empty rooms.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Close drops every room. Later joins fail with ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.rooms = make(map[string]*room)
	h.memberships = make(map[Member]membership)
}
