package pion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/SONUshilla/VideoCallingBackend/internal/core"
	"github.com/SONUshilla/VideoCallingBackend/internal/domain"
)

var (
	errRouterClosed    = errors.New("router is closed")
	errTransportClosed = errors.New("transport is closed")
	errNotConnected    = errors.New("transport is not connected")
	errForeignProducer = errors.New("producer was not created by this engine")
)

// Transport is one ICE+DTLS bundle. A session holds at most two: one for
// sending media to the server, one for receiving.
type Transport struct {
	api      *webrtc.API
	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport
	info     core.TransportInfo
	onClose  func()

	mu        sync.Mutex
	connected bool
	closed    bool
}

func newTransport(ctx context.Context, api *webrtc.API, iceServers []string) (*Transport, error) {
	servers := make([]webrtc.ICEServer, 0, len(iceServers))
	for _, u := range iceServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}

	gatherer, err := api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("new ice gatherer: %w", err)
	}
	ice := api.NewICETransport(gatherer)
	dtls, err := api.NewDTLSTransport(ice, nil)
	if err != nil {
		return nil, fmt.Errorf("new dtls transport: %w", err)
	}

	gathered := make(chan struct{})
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			close(gathered)
		}
	})
	if err := gatherer.Gather(); err != nil {
		return nil, fmt.Errorf("gather: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		_ = gatherer.Close()
		return nil, ctx.Err()
	}

	candidates, err := gatherer.GetLocalCandidates()
	if err != nil {
		return nil, fmt.Errorf("local candidates: %w", err)
	}
	iceParams, err := gatherer.GetLocalParameters()
	if err != nil {
		return nil, fmt.Errorf("local ice parameters: %w", err)
	}
	dtlsParams, err := dtls.GetLocalParameters()
	if err != nil {
		return nil, fmt.Errorf("local dtls parameters: %w", err)
	}

	info := core.TransportInfo{ID: domain.TransportID(uuid.NewString())}
	if info.ICEParameters, err = json.Marshal(iceParams); err != nil {
		return nil, err
	}
	if info.ICECandidates, err = json.Marshal(candidates); err != nil {
		return nil, err
	}
	if info.DTLSParameters, err = json.Marshal(dtlsParams); err != nil {
		return nil, err
	}

	return &Transport{
		api:      api,
		gatherer: gatherer,
		ice:      ice,
		dtls:     dtls,
		info:     info,
	}, nil
}

// Info returns the parameters the client needs to connect back.
func (t *Transport) Info() core.TransportInfo { return t.info }

// remoteParameters is the connect payload: the client's DTLS fingerprints
// plus its ICE parameters, carried in one blob.
type remoteParameters struct {
	Role          string                   `json:"dtlsRole,omitempty"`
	Fingerprints  []webrtc.DTLSFingerprint `json:"fingerprints"`
	ICEParameters webrtc.ICEParameters     `json:"iceParameters"`
}

// Connect starts ICE and the DTLS handshake with the client's parameters.
// The server always takes the controlled ICE role; the client initiates.
func (t *Transport) Connect(ctx context.Context, dtlsParameters json.RawMessage) error {
	var params remoteParameters
	if err := json.Unmarshal(dtlsParameters, &params); err != nil {
		return fmt.Errorf("decode remote parameters: %w", err)
	}
	if len(params.Fingerprints) == 0 {
		return errors.New("remote parameters carry no dtls fingerprints")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errTransportClosed
	}
	if t.connected {
		t.mu.Unlock()
		return errors.New("transport already connected")
	}
	t.connected = true
	t.mu.Unlock()

	iceRole := webrtc.ICERoleControlled
	if err := t.ice.Start(t.gatherer, params.ICEParameters, &iceRole); err != nil {
		return fmt.Errorf("start ice: %w", err)
	}
	if err := t.dtls.Start(webrtc.DTLSParameters{
		Role:         dtlsRoleFrom(params.Role),
		Fingerprints: params.Fingerprints,
	}); err != nil {
		return fmt.Errorf("start dtls: %w", err)
	}
	log.Debug().Str("module", "pion.transport").Str("transport", string(t.info.ID)).Msg("connected")
	return nil
}

func dtlsRoleFrom(s string) webrtc.DTLSRole {
	switch s {
	case "server":
		return webrtc.DTLSRoleServer
	case "client":
		return webrtc.DTLSRoleClient
	default:
		return webrtc.DTLSRoleAuto
	}
}

// remoteRTPParameters is what the client sends with produce: the SSRCs it
// will stamp on outgoing packets.
type remoteRTPParameters struct {
	Encodings []struct {
		SSRC uint32 `json:"ssrc"`
	} `json:"encodings"`
}

// Produce attaches an RTP receiver for an incoming client track and starts
// the forwarding loop. The transport must be connected first.
func (t *Transport) Produce(ctx context.Context, req core.ProduceRequest) (core.Producer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errTransportClosed
	}
	if !t.connected {
		t.mu.Unlock()
		return nil, errNotConnected
	}
	t.mu.Unlock()

	var params remoteRTPParameters
	if err := json.Unmarshal(req.RTPParameters, &params); err != nil {
		return nil, fmt.Errorf("decode rtp parameters: %w", err)
	}
	if len(params.Encodings) == 0 || params.Encodings[0].SSRC == 0 {
		return nil, errors.New("rtp parameters carry no ssrc")
	}
	ssrc := params.Encodings[0].SSRC

	kind, codec, payloadType := codecFor(req.Kind)
	receiver, err := t.api.NewRTPReceiver(kind, t.dtls)
	if err != nil {
		return nil, fmt.Errorf("new rtp receiver: %w", err)
	}
	err = receiver.Receive(webrtc.RTPReceiveParameters{
		Encodings: []webrtc.RTPDecodingParameters{{
			RTPCodingParameters: webrtc.RTPCodingParameters{
				SSRC:        webrtc.SSRC(ssrc),
				PayloadType: payloadType,
			},
		}},
	})
	if err != nil {
		_ = receiver.Stop()
		return nil, fmt.Errorf("receive: %w", err)
	}

	p := newProducer(domain.StreamID(uuid.NewString()), req.Kind, codec, receiver, t.dtls, webrtc.SSRC(ssrc))
	go p.loop()
	log.Debug().Str("module", "pion.transport").Str("stream", string(p.id)).Str("kind", string(req.Kind)).Uint32("ssrc", ssrc).Msg("producer attached")
	return p, nil
}

// Consume attaches an RTP sender that mirrors the producer's track to this
// transport. The consumer starts paused; the caller resumes it once the
// client side is wired.
func (t *Transport) Consume(ctx context.Context, req core.ConsumeRequest) (core.Consumer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	producer, ok := req.Producer.(*Producer)
	if !ok {
		return nil, errForeignProducer
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errTransportClosed
	}
	if !t.connected {
		t.mu.Unlock()
		return nil, errNotConnected
	}
	t.mu.Unlock()

	id := domain.ConsumerID(uuid.NewString())
	local, err := webrtc.NewTrackLocalStaticRTP(producer.codec, string(producer.id), string(id))
	if err != nil {
		return nil, fmt.Errorf("new local track: %w", err)
	}
	sender, err := t.api.NewRTPSender(local, t.dtls)
	if err != nil {
		return nil, fmt.Errorf("new rtp sender: %w", err)
	}
	sendParams := sender.GetParameters()
	if err := sender.Send(sendParams); err != nil {
		_ = sender.Stop()
		return nil, fmt.Errorf("send: %w", err)
	}
	rtpParams, err := json.Marshal(sendParams)
	if err != nil {
		_ = sender.Stop()
		return nil, err
	}

	c := newConsumer(id, producer, local, sender, rtpParams)
	producer.attach(id, c.out)
	log.Debug().Str("module", "pion.transport").Str("consumer", string(id)).Str("stream", string(producer.id)).Msg("consumer attached")
	return c, nil
}

// Close stops DTLS, ICE and the gatherer. Producers and consumers riding
// on the transport fail their next read or write and shut down.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	if t.onClose != nil {
		t.onClose()
	}
	var errs []error
	if err := t.dtls.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := t.ice.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := t.gatherer.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func codecFor(kind domain.MediaKind) (webrtc.RTPCodecType, webrtc.RTPCodecCapability, webrtc.PayloadType) {
	if kind == domain.MediaKindAudio {
		return webrtc.RTPCodecTypeAudio, webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		}, payloadTypeOpus
	}
	return webrtc.RTPCodecTypeVideo, webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeVP8,
		ClockRate: 90000,
	}, payloadTypeVP8
}
