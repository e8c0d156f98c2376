// Package pion implements the media-engine control plane on top of
// pion/webrtc's ORTC API: one Router per room, ICE/DTLS transports
// allocated on demand, RTP receivers as producers and RTP senders as
// consumers, with in-process packet forwarding between them.
package pion

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/SONUshilla/VideoCallingBackend/internal/core"
	"github.com/SONUshilla/VideoCallingBackend/internal/domain"
)

// audioLevelExtensionID is the fixed header-extension id for the RFC 6464
// ssrc-audio-level extension; it is announced in the router capabilities
// and clients must use the same mapping.
const audioLevelExtensionID = 1

const audioLevelURI = "urn:ietf:params:rtp-hdrext:ssrc-audio-level"

// Payload types announced in router capabilities.
const (
	payloadTypeOpus = 111
	payloadTypeVP8  = 96
)

// Config carries the network-facing knobs of the engine.
type Config struct {
	// AnnouncedIP is the address written into ICE candidates when the
	// server sits behind NAT. Empty means candidates use local addresses.
	AnnouncedIP string
	// MinPort/MaxPort bound the ephemeral UDP range for media.
	MinPort uint16
	MaxPort uint16
	// ICEServers are STUN/TURN urls handed to the gatherer.
	ICEServers []string
}

// Engine creates routers. One engine serves the whole process.
type Engine struct {
	cfg Config
}

// NewEngine builds an engine from config.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// CreateRouter allocates a per-room media context with the fixed opus/VP8
// codec set.
func (e *Engine) CreateRouter(_ context.Context) (core.Router, error) {
	media := &webrtc.MediaEngine{}
	if err := media.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     webrtc.MimeTypeOpus,
			ClockRate:    48000,
			Channels:     2,
			SDPFmtpLine:  "minptime=10;useinbandfec=1",
			RTCPFeedback: nil,
		},
		PayloadType: payloadTypeOpus,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}
	if err := media.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
			RTCPFeedback: []webrtc.RTCPFeedback{
				{Type: webrtc.TypeRTCPFBNACK},
				{Type: webrtc.TypeRTCPFBNACK, Parameter: "pli"},
			},
		},
		PayloadType: payloadTypeVP8,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, err
	}
	if err := media.RegisterHeaderExtension(webrtc.RTPHeaderExtensionCapability{URI: audioLevelURI}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}

	settings := webrtc.SettingEngine{}
	if e.cfg.MinPort != 0 || e.cfg.MaxPort != 0 {
		if err := settings.SetEphemeralUDPPortRange(e.cfg.MinPort, e.cfg.MaxPort); err != nil {
			return nil, err
		}
	}
	if e.cfg.AnnouncedIP != "" {
		settings.SetNAT1To1IPs([]string{e.cfg.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(media), webrtc.WithSettingEngine(settings))

	caps, err := json.Marshal(routerCapabilities())
	if err != nil {
		return nil, err
	}

	r := &Router{
		api:          api,
		iceServers:   e.cfg.ICEServers,
		capabilities: caps,
		transports:   make(map[domain.TransportID]*Transport),
	}
	log.Info().Str("module", "pion.engine").Msg("router created")
	return r, nil
}

// Router is the per-room forwarding context. It tracks the transports it
// allocated so a room release can reap stragglers.
type Router struct {
	api          *webrtc.API
	iceServers   []string
	capabilities json.RawMessage

	mu         sync.Mutex
	closed     bool
	transports map[domain.TransportID]*Transport
}

// Capabilities returns the router RTP capabilities blob.
func (r *Router) Capabilities() json.RawMessage { return r.capabilities }

// CreateTransport allocates an ICE/DTLS transport and gathers its
// candidates before returning.
func (r *Router) CreateTransport(ctx context.Context) (core.Transport, error) {
	t, err := newTransport(ctx, r.api, r.iceServers)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = t.Close()
		return nil, errRouterClosed
	}
	r.transports[t.info.ID] = t
	r.mu.Unlock()

	t.onClose = func() {
		r.mu.Lock()
		delete(r.transports, t.info.ID)
		r.mu.Unlock()
	}
	return t, nil
}

// CreateAudioLevelObserver starts a sampler over the router's audio
// producers.
func (r *Router) CreateAudioLevelObserver(cfg core.AudioLevelObserverConfig) (core.AudioLevelObserver, error) {
	return newLevelObserver(cfg), nil
}

// Close reaps any transport still open. Normally cleanup has closed them
// all before the room is released.
func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	remaining := make([]*Transport, 0, len(r.transports))
	for _, t := range r.transports {
		remaining = append(remaining, t)
	}
	r.transports = make(map[domain.TransportID]*Transport)
	r.mu.Unlock()

	for _, t := range remaining {
		if err := t.Close(); err != nil {
			log.Warn().Err(err).Str("module", "pion.engine").Str("transport", string(t.info.ID)).Msg("close straggler transport")
		}
	}
	return nil
}

// Capability description handed to clients. Shapes mirror what browser-side
// media libraries expect to feed their device loaders.
type codecCapability struct {
	Kind      string `json:"kind"`
	MimeType  string `json:"mimeType"`
	ClockRate uint32 `json:"clockRate"`
	Channels  uint16 `json:"channels,omitempty"`
	SDPFmtp   string `json:"sdpFmtpLine,omitempty"`
	Payload   uint8  `json:"preferredPayloadType"`
}

type headerExtensionCapability struct {
	Kind string `json:"kind"`
	URI  string `json:"uri"`
	ID   int    `json:"preferredId"`
}

type capabilities struct {
	Codecs           []codecCapability           `json:"codecs"`
	HeaderExtensions []headerExtensionCapability `json:"headerExtensions"`
}

func routerCapabilities() capabilities {
	return capabilities{
		Codecs: []codecCapability{
			{Kind: "audio", MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2, SDPFmtp: "minptime=10;useinbandfec=1", Payload: payloadTypeOpus},
			{Kind: "video", MimeType: webrtc.MimeTypeVP8, ClockRate: 90000, Payload: payloadTypeVP8},
		},
		HeaderExtensions: []headerExtensionCapability{
			{Kind: "audio", URI: audioLevelURI, ID: audioLevelExtensionID},
		},
	}
}
