package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SONUshilla/VideoCallingBackend/internal/core"
	"github.com/SONUshilla/VideoCallingBackend/internal/domain"
)

// streamEntry pairs a catalog record with its live engine object.
type streamEntry struct {
	info     domain.StreamInfo
	producer core.Producer
}

// Room is the authoritative state of one meeting: the shared router, the
// audio-level observer, the membership directory and the stream catalog.
// One mutex serializes all mutation; engine round-trips never happen under
// it.
type Room struct {
	ID        domain.RoomID
	Host      domain.SocketID
	CreatedAt time.Time

	router   core.Router
	observer core.AudioLevelObserver

	mu sync.Mutex
	// closed is set by the registry when the room is released; a closed
	// room accepts no new sessions.
	closed   bool
	sessions map[domain.SocketID]*Session
	members  map[domain.SocketID]domain.Member
	streams  map[domain.StreamID]streamEntry
}

func newRoom(id domain.RoomID, host domain.SocketID, router core.Router, observer core.AudioLevelObserver) *Room {
	return &Room{
		ID:        id,
		Host:      host,
		CreatedAt: time.Now(),
		router:    router,
		observer:  observer,
		sessions:  make(map[domain.SocketID]*Session),
		members:   make(map[domain.SocketID]domain.Member),
		streams:   make(map[domain.StreamID]streamEntry),
	}
}

// Router returns the room's shared forwarding context.
func (r *Room) Router() core.Router { return r.router }

// Observer returns the room's audio-level observer.
func (r *Room) Observer() core.AudioLevelObserver { return r.observer }

// addSession reports false when the room has already been released; the
// caller must then obtain a fresh room instead of joining a dead one.
func (r *Room) addSession(s *Session, m domain.Member) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.sessions[s.SocketID] = s
	r.members[s.SocketID] = m
	return true
}

// closeIfEmpty marks the room closed when no members remain. It flips the
// flag at most once; only the caller that won gets true and may release
// the room's engine objects. A concurrent join that already inserted its
// member makes this fail, keeping the room alive.
func (r *Room) closeIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || len(r.members) > 0 {
		return false
	}
	r.closed = true
	return true
}

// Session returns the session for a socket, if joined.
func (r *Room) Session(sid domain.SocketID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sid]
	return s, ok
}

// removeSession is pure bookkeeping removal; closing the session's engine
// resources is the cleanup coordinator's job.
func (r *Room) removeSession(sid domain.SocketID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	delete(r.members, sid)
}

// Member resolves a socket to its directory entry.
func (r *Room) Member(sid domain.SocketID) (domain.Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[sid]
	return m, ok
}

// MemberCount reports the directory size.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// MembersSnapshot copies the directory, excluding the given socket.
func (r *Room) MembersSnapshot(exclude domain.SocketID) []domain.Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Member, 0, len(r.members))
	for sid, m := range r.members {
		if sid == exclude {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (r *Room) putStream(info domain.StreamInfo, p core.Producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[info.ID] = streamEntry{info: info, producer: p}
}

// Stream looks a published stream up in the room catalog.
func (r *Room) Stream(id domain.StreamID) (domain.StreamInfo, core.Producer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.streams[id]
	return e.info, e.producer, ok
}

func (r *Room) removeStream(id domain.StreamID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, id)
}

func (r *Room) setStreamPaused(id domain.StreamID, paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.streams[id]; ok {
		e.info.Paused = paused
		r.streams[id] = e
	}
}

// StreamsSnapshot copies the catalog, excluding streams owned by the given
// socket. The snapshot may be slightly stale by the time it is sent.
func (r *Room) StreamsSnapshot(exclude domain.SocketID) []domain.StreamInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.StreamInfo, 0, len(r.streams))
	for _, e := range r.streams {
		if e.info.Owner == exclude {
			continue
		}
		out = append(out, e.info)
	}
	return out
}

// Broadcast fans a frame out to every member except from. Slow receivers
// are skipped; a presence event is not worth stalling the room for.
func (r *Room) Broadcast(from domain.SocketID, f core.Frame) {
	if f == nil {
		return
	}
	r.mu.Lock()
	targets := make([]*Session, 0, len(r.sessions))
	for sid, s := range r.sessions {
		if sid == from {
			continue
		}
		targets = append(targets, s)
	}
	r.mu.Unlock()

	for _, s := range targets {
		if err := s.Signal().TrySend(f); err != nil {
			log.Warn().Str("module", "app.room").Str("room", string(r.ID)).Str("sid", string(s.SocketID)).Err(err).Msg("broadcast drop")
		}
	}
}
