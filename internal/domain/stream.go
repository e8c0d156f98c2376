package domain

// MediaKind is the payload class of a stream.
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

// MediaTag is the application-level purpose of a stream, carried in the
// produce request's appData and echoed to consumers.
type MediaTag string

const (
	TagMic    MediaTag = "mic"
	TagCamera MediaTag = "camera"
	TagScreen MediaTag = "screen"
)

// AppData travels with a stream from producer to every consumer.
type AppData struct {
	MediaTag MediaTag `json:"mediaTag,omitempty"`
}

// StreamInfo is the catalog entry for one published stream.
type StreamInfo struct {
	ID     StreamID  `json:"id"`
	Owner  SocketID  `json:"socketId"`
	Kind   MediaKind `json:"kind"`
	Tag    MediaTag  `json:"-"`
	Paused bool      `json:"isPaused"`
}

// IsScreenShare reports whether the stream is a shared screen.
func (s StreamInfo) IsScreenShare() bool {
	return s.Kind == MediaKindVideo && s.Tag == TagScreen
}
