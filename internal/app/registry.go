package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/SONUshilla/VideoCallingBackend/internal/core"
	"github.com/SONUshilla/VideoCallingBackend/internal/domain"
	"github.com/SONUshilla/VideoCallingBackend/internal/metrics"
)

// Observer policy used for every room.
const (
	observerMaxEntries = 1
	observerThreshold  = -75 // dBov
	observerInterval   = 5 * time.Second
)

// Meeting is the in-memory record behind createMeeting. Reconstructed fresh
// on restart; persistence is out of scope here.
type Meeting struct {
	ID        domain.MeetingID
	Host      domain.SocketID
	CreatedAt time.Time
}

// roomEntry serializes lazy room creation: the first joiner allocates the
// router and observer, concurrent joiners wait on ready and reuse the result.
type roomEntry struct {
	ready chan struct{}
	room  *Room
	err   error
}

// Registry owns the process-wide room table, the socket-to-room binding and
// the reverse stream index. Initialized at process start, never persisted.
type Registry struct {
	engine  core.Engine
	metrics *metrics.Metrics
	roomGC  bool

	mu           sync.RWMutex
	rooms        map[domain.RoomID]*roomEntry
	socketToRoom map[domain.SocketID]domain.RoomID
	// streamToSocket resolves out-of-band engine events (active speaker)
	// to the owning participant.
	streamToSocket map[domain.StreamID]domain.SocketID
	meetings       map[domain.MeetingID]Meeting
}

// Option configures a Registry.
type Option func(*Registry)

// WithRoomGC controls whether a room is released once its membership
// directory empties.
func WithRoomGC(on bool) Option {
	return func(r *Registry) { r.roomGC = on }
}

// NewRegistry creates an empty registry backed by the given engine.
func NewRegistry(engine core.Engine, m *metrics.Metrics, opts ...Option) *Registry {
	r := &Registry{
		engine:         engine,
		metrics:        m,
		roomGC:         true,
		rooms:          make(map[domain.RoomID]*roomEntry),
		socketToRoom:   make(map[domain.SocketID]domain.RoomID),
		streamToSocket: make(map[domain.StreamID]domain.SocketID),
		meetings:       make(map[domain.MeetingID]Meeting),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreateRoom returns the room for id, creating router, observer and
// state on first use. Concurrent first-joins for the same id allocate
// exactly one router: the loser of the map race waits for the winner.
// host only takes effect when this call creates the room.
func (r *Registry) GetOrCreateRoom(ctx context.Context, id domain.RoomID, host domain.SocketID) (*Room, error) {
	r.mu.Lock()
	if e, ok := r.rooms[id]; ok {
		r.mu.Unlock()
		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e.err != nil {
			return nil, e.err
		}
		return e.room, nil
	}
	e := &roomEntry{ready: make(chan struct{})}
	r.rooms[id] = e
	r.mu.Unlock()

	room, err := r.createRoom(ctx, id, host)
	if err != nil {
		e.err = err
		close(e.ready)
		r.mu.Lock()
		delete(r.rooms, id)
		r.mu.Unlock()
		return nil, err
	}
	e.room = room
	close(e.ready)
	r.metrics.RoomsCreated.Inc()
	r.metrics.ActiveRooms.Inc()
	log.Info().Str("module", "app.registry").Str("room", string(id)).Str("host", string(host)).Msg("room created")
	return room, nil
}

func (r *Registry) createRoom(ctx context.Context, id domain.RoomID, host domain.SocketID) (*Room, error) {
	router, err := r.engine.CreateRouter(ctx)
	if err != nil {
		return nil, wrapError(ErrCodeInternal, err, "create router for room %s", id)
	}
	observer, err := router.CreateAudioLevelObserver(core.AudioLevelObserverConfig{
		MaxEntries: observerMaxEntries,
		Threshold:  observerThreshold,
		Interval:   observerInterval,
	})
	if err != nil {
		_ = router.Close()
		return nil, wrapError(ErrCodeInternal, err, "create audio observer for room %s", id)
	}

	room := newRoom(id, host, router, observer)

	observer.OnVolumes(func(levels []core.AudioLevel) {
		for _, lv := range levels {
			owner, ok := r.StreamOwner(lv.StreamID)
			if !ok {
				// The producing session may already be gone.
				continue
			}
			room.Broadcast("", encodeEvent(EventActiveSpeaker, ActiveSpeakerEvent{
				SocketID:   owner,
				ProducerID: lv.StreamID,
			}))
		}
	})
	observer.OnSilence(func() {
		room.Broadcast("", encodeEvent(EventSilence, struct{}{}))
	})

	return room, nil
}

// Room returns an established room, or false if the id is unknown or still
// being created.
func (r *Registry) Room(id domain.RoomID) (*Room, bool) {
	r.mu.RLock()
	e, ok := r.rooms[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
	default:
		return nil, false
	}
	if e.err != nil {
		return nil, false
	}
	return e.room, true
}

// BindSocket records which room a socket has joined.
func (r *Registry) BindSocket(sid domain.SocketID, id domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.socketToRoom[sid] = id
}

// UnbindSocket drops the socket's room binding.
func (r *Registry) UnbindSocket(sid domain.SocketID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.socketToRoom, sid)
}

// RoomOf resolves a socket to its current room.
func (r *Registry) RoomOf(sid domain.SocketID) (*Room, bool) {
	r.mu.RLock()
	id, ok := r.socketToRoom[sid]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return r.Room(id)
}

// SessionOf resolves a socket to its room and session in one step.
func (r *Registry) SessionOf(sid domain.SocketID) (*Room, *Session, error) {
	room, ok := r.RoomOf(sid)
	if !ok {
		return nil, nil, newError(ErrCodeRoomNotFound, "socket %s is not in a room", sid)
	}
	sess, ok := room.Session(sid)
	if !ok {
		return nil, nil, newError(ErrCodeSessionNotFound, "no session for socket %s in room %s", sid, room.ID)
	}
	return room, sess, nil
}

// RegisterStream adds a stream to the reverse index.
func (r *Registry) RegisterStream(id domain.StreamID, owner domain.SocketID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streamToSocket[id] = owner
}

// UnregisterStream removes a stream from the reverse index.
func (r *Registry) UnregisterStream(id domain.StreamID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streamToSocket, id)
}

// StreamOwner resolves a stream id to the socket that produced it.
func (r *Registry) StreamOwner(id domain.StreamID) (domain.SocketID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.streamToSocket[id]
	return sid, ok
}

// CreateMeeting records a new meeting hosted by the given socket.
func (r *Registry) CreateMeeting(host domain.SocketID) Meeting {
	m := Meeting{
		ID:        domain.MeetingID(uuid.NewString()),
		Host:      host,
		CreatedAt: time.Now(),
	}
	r.mu.Lock()
	r.meetings[m.ID] = m
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("meeting", string(m.ID)).Str("host", string(host)).Msg("meeting created")
	return m
}

// Meeting looks up a meeting record.
func (r *Registry) Meeting(id domain.MeetingID) (Meeting, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.meetings[id]
	return m, ok
}

// dropRoomEntry removes the table entry for this exact room instance.
// Idempotent; a newer room under the same id is left alone.
func (r *Registry) dropRoomEntry(room *Room) {
	r.mu.Lock()
	if e, ok := r.rooms[room.ID]; ok && e.room == room {
		delete(r.rooms, room.ID)
	}
	r.mu.Unlock()
}

// releaseIfEmpty garbage-collects a room whose directory has emptied:
// the room is marked closed so no join can slip in, then the observer
// and router are closed best-effort and the entry removed. No-op while
// members remain or when GC is disabled.
func (r *Registry) releaseIfEmpty(room *Room) {
	if !r.roomGC || !room.closeIfEmpty() {
		return
	}
	r.dropRoomEntry(room)

	if err := room.Observer().Close(); err != nil {
		log.Warn().Err(err).Str("module", "app.registry").Str("room", string(room.ID)).Msg("close observer")
	}
	if err := room.Router().Close(); err != nil {
		log.Warn().Err(err).Str("module", "app.registry").Str("room", string(room.ID)).Msg("close router")
	}
	r.metrics.RoomsReleased.Inc()
	r.metrics.ActiveRooms.Dec()
	log.Info().Str("module", "app.registry").Str("room", string(room.ID)).Msg("empty room released")
}

// RoomCount reports how many rooms are live.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// RoomInfo is a read-only view for the REST surface.
type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"memberCount"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// ListRooms snapshots the live rooms.
func (r *Registry) ListRooms() []RoomInfo {
	r.mu.RLock()
	entries := make([]*roomEntry, 0, len(r.rooms))
	for _, e := range r.rooms {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]RoomInfo, 0, len(entries))
	for _, e := range entries {
		select {
		case <-e.ready:
		default:
			continue
		}
		if e.err != nil {
			continue
		}
		out = append(out, RoomInfo{ID: e.room.ID, MemberCount: e.room.MemberCount(), CreatedAt: e.room.CreatedAt})
	}
	return out
}
