package app

import (
	"encoding/json"
	"sync"

	"github.com/SONUshilla/VideoCallingBackend/internal/core"
	"github.com/SONUshilla/VideoCallingBackend/internal/domain"
)

// Session is one participant's server-side state within a room: its two
// transports, the streams it publishes and the streams it receives.
//
// mu is the per-session serialization point: every handshake step that
// reads-then-writes session state holds it for the whole step, engine
// round-trip included, so interleaved events on the same session cannot
// observe a half-applied mutation. Unrelated sessions proceed independently.
type Session struct {
	SocketID domain.SocketID

	// signal is set once at join and never replaced; safe to read unlocked.
	signal core.SignalConnection

	mu            sync.Mutex
	sendTransport core.Transport
	recvTransport core.Transport
	producers     map[domain.StreamID]core.Producer
	consumers     map[domain.ConsumerID]core.Consumer
	screenShare   domain.StreamID
	// rtpCapabilities remembers the receive capabilities the client sent
	// with its first consume; later consumes may omit them.
	rtpCapabilities json.RawMessage
}

func newSession(sid domain.SocketID, signal core.SignalConnection) *Session {
	return &Session{
		SocketID:  sid,
		signal:    signal,
		producers: make(map[domain.StreamID]core.Producer),
		consumers: make(map[domain.ConsumerID]core.Consumer),
	}
}

// Signal returns the session's messaging endpoint.
func (s *Session) Signal() core.SignalConnection { return s.signal }

// SendTransport returns the session's send-side transport, if created.
func (s *Session) SendTransport() core.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendTransport
}

// RecvTransport returns the session's receive-side transport, if created.
func (s *Session) RecvTransport() core.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recvTransport
}

// ScreenShare returns the active screen-share stream id, if any.
func (s *Session) ScreenShare() domain.StreamID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screenShare
}

// ProducerCount reports how many streams the session currently publishes.
func (s *Session) ProducerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.producers)
}

// ConsumerCount reports how many remote streams the session receives.
func (s *Session) ConsumerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.consumers)
}
