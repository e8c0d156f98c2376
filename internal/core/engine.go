package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/SONUshilla/VideoCallingBackend/internal/domain"
)

// Engine is the media engine control plane. The orchestration layer never
// touches packets; it only creates and releases engine objects.
type Engine interface {
	// CreateRouter allocates a per-room forwarding context.
	CreateRouter(ctx context.Context) (Router, error)
}

// Router is a per-room capability-negotiation and forwarding context.
// Every transport of every session in a room hangs off the same router.
type Router interface {
	// Capabilities returns the router's RTP capabilities verbatim; clients
	// feed them to their local media stack unchanged.
	Capabilities() json.RawMessage
	// CreateTransport allocates a bidirectional ICE/DTLS transport.
	CreateTransport(ctx context.Context) (Transport, error)
	// CreateAudioLevelObserver attaches a speech-activity observer.
	CreateAudioLevelObserver(cfg AudioLevelObserverConfig) (AudioLevelObserver, error)
	Close() error
}

// AudioLevelObserverConfig fixes the observer sampling policy.
type AudioLevelObserverConfig struct {
	// MaxEntries bounds how many speakers a volumes event reports.
	MaxEntries int
	// Threshold in dBov below which a producer counts as silent.
	Threshold int
	// Interval between samples.
	Interval time.Duration
}

// AudioLevel is one producer's measured level in a volumes event.
type AudioLevel struct {
	StreamID domain.StreamID
	// Level in dBov; 0 is loudest, -127 silence.
	Level int
}

// AudioLevelObserver reports speech activity over the audio producers
// attached to it. Callbacks fire on the observer's own goroutine.
type AudioLevelObserver interface {
	AddProducer(p Producer) error
	RemoveProducer(id domain.StreamID)
	OnVolumes(func(levels []AudioLevel))
	OnSilence(func())
	Close() error
}

// TransportInfo carries the connection parameters a client needs to reach
// a server-side transport.
type TransportInfo struct {
	ID             domain.TransportID `json:"id"`
	ICEParameters  json.RawMessage    `json:"iceParameters"`
	ICECandidates  json.RawMessage    `json:"iceCandidates"`
	DTLSParameters json.RawMessage    `json:"dtlsParameters"`
}

// ProduceRequest asks a transport to receive one media flow from its client.
type ProduceRequest struct {
	Kind          domain.MediaKind
	RTPParameters json.RawMessage
	AppData       domain.AppData
}

// ConsumeRequest asks a transport to send an existing producer's media to
// its client, subject to the client's receive capabilities.
type ConsumeRequest struct {
	Producer        Producer
	RTPCapabilities json.RawMessage
}

// Transport is one ICE/DTLS media channel between a client and the engine.
type Transport interface {
	Info() TransportInfo
	// Connect applies the client's DTLS parameters and completes the
	// transport handshake.
	Connect(ctx context.Context, dtlsParameters json.RawMessage) error
	Produce(ctx context.Context, req ProduceRequest) (Producer, error)
	// Consume creates a consumer in the paused state; the client resumes it
	// once its receive pipeline is wired.
	Consume(ctx context.Context, req ConsumeRequest) (Consumer, error)
	Close() error
}

// Producer is one published media flow inside the engine.
type Producer interface {
	ID() domain.StreamID
	Kind() domain.MediaKind
	Pause() error
	Resume() error
	Paused() bool
	Close() error
}

// Consumer is a receive-side binding of one client to a remote producer.
type Consumer interface {
	ID() domain.ConsumerID
	Kind() domain.MediaKind
	// RTPParameters the client needs to decode this consumer's stream.
	RTPParameters() json.RawMessage
	Resume() error
	Close() error
}
