package app

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SONUshilla/VideoCallingBackend/internal/core"
	"github.com/SONUshilla/VideoCallingBackend/internal/domain"
)

// Outbound notification names. The frontend listens to these verbatim.
const (
	EventNewUserJoined        = "newUserJoined"
	EventExistingUsers        = "existingUsers"
	EventUserLeft             = "userLeft"
	EventUserDisconnected     = "userDisconnected"
	EventNewProducer          = "newProducer"
	EventExistingProducers    = "existingProducers"
	EventProducerClosed       = "producer-closed"
	EventProducerPaused       = "producerpaused"
	EventProducerResumed      = "producerresume"
	EventActiveSpeaker        = "ActiveSpeaker"
	EventSilence              = "silence"
	EventReceiveMessage       = "receive_message"
	EventUserTyping           = "user_typing"
	EventUserStoppedTyping    = "user_stopped_typing"
	EventRTPCapabilities      = "rtp-capabilities"
	EventSendTransportCreated = "send-transport-created"
)

// NewProducerEvent announces a freshly published stream to room peers.
type NewProducerEvent struct {
	SocketID   domain.SocketID  `json:"socketId"`
	ProducerID domain.StreamID  `json:"producerId"`
	Kind       domain.MediaKind `json:"kind"`
	AppData    domain.AppData   `json:"appData"`
}

// ProducerClosedEvent tells peers a stream is gone for good.
type ProducerClosedEvent struct {
	ProducerID domain.StreamID `json:"producerId"`
}

// ProducerStateEvent reports a pause or resume, tagged with the owner.
type ProducerStateEvent struct {
	ProducerID domain.StreamID `json:"producerId"`
	SocketID   domain.SocketID `json:"socketId"`
}

// UserLeftEvent carries the identity the directory held at departure time.
type UserLeftEvent struct {
	SocketID domain.SocketID `json:"socketId"`
	Name     string          `json:"name"`
}

// UserDisconnectedEvent is the coarse presence signal.
type UserDisconnectedEvent struct {
	SocketID domain.SocketID `json:"socketId"`
}

// ActiveSpeakerEvent resolves a volumes report to its owning participant.
type ActiveSpeakerEvent struct {
	SocketID   domain.SocketID `json:"socketId"`
	ProducerID domain.StreamID `json:"producerId"`
}

// ChatMessageEvent relays a chat line with server-resolved identity.
type ChatMessageEvent struct {
	Message   string          `json:"message"`
	SenderID  domain.SocketID `json:"senderId"`
	Username  string          `json:"username"`
	UserDp    string          `json:"userDp,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// TypingEvent reports typing start/stop with server-resolved identity.
type TypingEvent struct {
	SenderID domain.SocketID `json:"senderId"`
	Username string          `json:"username"`
}

// ExistingUsersEvent is the membership snapshot pushed to a joiner.
type ExistingUsersEvent struct {
	ExistingUsers []domain.Member `json:"existingUsers"`
}

// ProducerSummary is one entry of an existingProducers response.
type ProducerSummary struct {
	ID       domain.StreamID `json:"id"`
	SocketID domain.SocketID `json:"socketId"`
	IsPaused bool            `json:"isPaused"`
	AppData  domain.AppData  `json:"appData"`
}

// ExistingProducersEvent lists the streams a joiner may consume.
type ExistingProducersEvent struct {
	Producers []ProducerSummary `json:"producers"`
}

type eventEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// encodeEvent wraps a payload in the wire envelope. Encoding failures are
// programming errors on our own types; they are logged and yield nil, which
// TrySend implementations treat as a no-op.
func encodeEvent(name string, v any) core.Frame {
	b, err := json.Marshal(eventEnvelope{Type: name, Data: v})
	if err != nil {
		log.Error().Err(err).Str("module", "app.events").Str("event", name).Msg("encode event")
		return nil
	}
	return b
}
