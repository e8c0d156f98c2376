package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SONUshilla/VideoCallingBackend/internal/core"
	"github.com/SONUshilla/VideoCallingBackend/internal/domain"
	"github.com/SONUshilla/VideoCallingBackend/internal/metrics"
)

const unknownName = "Unknown"

// Relay handles membership and presence: joins, chat and typing
// indicators. Sender identity in every outbound event comes from the
// room's membership directory keyed by the authenticated socket id —
// identity fields in client payloads are never trusted.
type Relay struct {
	reg     *Registry
	metrics *metrics.Metrics
}

// NewRelay builds the relay over the shared registry.
func NewRelay(reg *Registry, m *metrics.Metrics) *Relay {
	return &Relay{reg: reg, metrics: m}
}

// JoinReply is what the joiner gets back: who is already here.
type JoinReply struct {
	RoomID        domain.RoomID   `json:"roomId"`
	ExistingUsers []domain.Member `json:"existingUsers"`
}

// Join puts a socket into a room, creating the room on first use. The
// joiner's session is created empty; existing members learn about the
// newcomer, the newcomer gets the membership snapshot. A repeat join by
// the same socket overwrites its directory entry.
func (rl *Relay) Join(ctx context.Context, sid domain.SocketID, signal core.SignalConnection, roomID domain.RoomID, name, avatar string) (JoinReply, error) {
	var room *Room
	member := domain.NewMember(sid, name, avatar)
	for {
		var err error
		room, err = rl.reg.GetOrCreateRoom(ctx, roomID, sid)
		if err != nil {
			return JoinReply{}, err
		}
		if room.addSession(newSession(sid, signal), member) {
			break
		}
		// Lost the race against the last member's teardown: the room
		// closed between lookup and insert. Drop the stale entry and
		// start over with a fresh room.
		rl.reg.dropRoomEntry(room)
	}
	rl.reg.BindSocket(sid, roomID)
	rl.metrics.Joins.Inc()
	rl.metrics.ActiveSessions.Inc()

	room.Broadcast(sid, encodeEvent(EventNewUserJoined, member))
	log.Info().Str("module", "app.presence").Str("sid", string(sid)).Str("room", string(roomID)).Str("name", member.Name).Msg("joined room")

	return JoinReply{RoomID: roomID, ExistingUsers: room.MembersSnapshot(sid)}, nil
}

// ExistingUsers returns the membership snapshot minus the caller.
func (rl *Relay) ExistingUsers(sid domain.SocketID) (ExistingUsersEvent, error) {
	room, ok := rl.reg.RoomOf(sid)
	if !ok {
		return ExistingUsersEvent{}, newError(ErrCodeRoomNotFound, "socket %s is not in a room", sid)
	}
	return ExistingUsersEvent{ExistingUsers: room.MembersSnapshot(sid)}, nil
}

// CreateMeeting allocates a meeting id hosted by the caller.
func (rl *Relay) CreateMeeting(sid domain.SocketID) Meeting {
	return rl.reg.CreateMeeting(sid)
}

// Chat relays a message to everyone else in the sender's room. The sender
// echoes locally, so it is excluded. Sockets outside any room are ignored.
func (rl *Relay) Chat(sid domain.SocketID, message string, ts time.Time) {
	room, ok := rl.reg.RoomOf(sid)
	if !ok {
		return
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	member := rl.memberOrUnknown(room, sid)
	room.Broadcast(sid, encodeEvent(EventReceiveMessage, ChatMessageEvent{
		Message:   message,
		SenderID:  sid,
		Username:  member.Name,
		UserDp:    member.Avatar,
		Timestamp: ts,
	}))
}

// TypingStart tells the sender's peers they started typing.
func (rl *Relay) TypingStart(sid domain.SocketID) {
	rl.typing(sid, EventUserTyping)
}

// TypingStop tells the sender's peers they stopped typing.
func (rl *Relay) TypingStop(sid domain.SocketID) {
	rl.typing(sid, EventUserStoppedTyping)
}

func (rl *Relay) typing(sid domain.SocketID, event string) {
	room, ok := rl.reg.RoomOf(sid)
	if !ok {
		return
	}
	member := rl.memberOrUnknown(room, sid)
	room.Broadcast(sid, encodeEvent(event, TypingEvent{
		SenderID: sid,
		Username: member.Name,
	}))
}

func (rl *Relay) memberOrUnknown(room *Room, sid domain.SocketID) domain.Member {
	if m, ok := room.Member(sid); ok {
		return m
	}
	return domain.Member{SocketID: sid, Name: unknownName}
}
