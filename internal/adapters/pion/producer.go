package pion

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/SONUshilla/VideoCallingBackend/internal/domain"
)

// Out-track states. Transitions are one-way except active<->muted.
const (
	outActive int32 = iota
	outMuted
	outDead
)

// outTrack is one consumer's write endpoint on a producer's fan-out list.
// The forwarding loop reads state without locks; Resume/Pause flip it.
type outTrack struct {
	track *webrtc.TrackLocalStaticRTP
	state atomic.Int32
}

func (o *outTrack) mute()   { o.state.CompareAndSwap(outActive, outMuted) }
func (o *outTrack) unmute() { o.state.CompareAndSwap(outMuted, outActive) }
func (o *outTrack) kill()   { o.state.Store(outDead) }

// Producer owns one incoming client track: the RTP receiver, the fan-out
// list and, for audio, the last observed level from the RFC 6464 header
// extension.
type Producer struct {
	id       domain.StreamID
	kind     domain.MediaKind
	codec    webrtc.RTPCodecCapability
	receiver *webrtc.RTPReceiver
	dtls     *webrtc.DTLSTransport
	ssrc     webrtc.SSRC

	paused atomic.Bool
	done   chan struct{}
	once   sync.Once

	mu   sync.RWMutex
	outs map[domain.ConsumerID]*outTrack

	// level holds -dBov (0 loudest, 127 silence); levelAt is unix nanos of
	// the packet that carried it. Both zero until the first audio packet.
	level   atomic.Int32
	levelAt atomic.Int64
}

func newProducer(id domain.StreamID, kind domain.MediaKind, codec webrtc.RTPCodecCapability, receiver *webrtc.RTPReceiver, dtls *webrtc.DTLSTransport, ssrc webrtc.SSRC) *Producer {
	p := &Producer{
		id:       id,
		kind:     kind,
		codec:    codec,
		receiver: receiver,
		dtls:     dtls,
		ssrc:     ssrc,
		done:     make(chan struct{}),
		outs:     make(map[domain.ConsumerID]*outTrack),
	}
	p.level.Store(silenceLevel)
	return p
}

// ID returns the stream id.
func (p *Producer) ID() domain.StreamID { return p.id }

// Kind reports audio or video.
func (p *Producer) Kind() domain.MediaKind { return p.kind }

// Pause stops forwarding without tearing anything down.
func (p *Producer) Pause() error {
	p.paused.Store(true)
	return nil
}

// Resume restarts forwarding.
func (p *Producer) Resume() error {
	p.paused.Store(false)
	return nil
}

// Paused reports the pause flag.
func (p *Producer) Paused() bool { return p.paused.Load() }

// Close stops the receiver and ends the forwarding loop.
func (p *Producer) Close() error {
	var err error
	p.once.Do(func() {
		close(p.done)
		err = p.receiver.Stop()
	})
	return err
}

func (p *Producer) attach(id domain.ConsumerID, out *outTrack) {
	p.mu.Lock()
	p.outs[id] = out
	p.mu.Unlock()
}

func (p *Producer) detach(id domain.ConsumerID) {
	p.mu.Lock()
	if out, ok := p.outs[id]; ok {
		out.kill()
		delete(p.outs, id)
	}
	p.mu.Unlock()
}

// loop reads packets off the receiver track and fans them out. It exits
// when the receiver stops (transport closed or Close called).
func (p *Producer) loop() {
	track := p.receiver.Track()
	if track == nil {
		return
	}
	var dead []domain.ConsumerID
	for {
		select {
		case <-p.done:
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Str("module", "pion.producer").Str("stream", string(p.id)).Msg("read loop ended")
			}
			return
		}

		if p.kind == domain.MediaKindAudio {
			p.observeLevel(pkt)
		}
		if p.paused.Load() {
			continue
		}

		dead = dead[:0]
		p.mu.RLock()
		for id, out := range p.outs {
			if out.state.Load() != outActive {
				continue
			}
			if err := out.track.WriteRTP(pkt); err != nil {
				out.kill()
				dead = append(dead, id)
			}
		}
		p.mu.RUnlock()

		if len(dead) > 0 {
			p.mu.Lock()
			for _, id := range dead {
				delete(p.outs, id)
			}
			p.mu.Unlock()
		}
	}
}

// observeLevel extracts the RFC 6464 audio level. The payload's top bit is
// the voice-activity flag; the low 7 bits are -dBov.
func (p *Producer) observeLevel(pkt *rtp.Packet) {
	buf := pkt.GetExtension(audioLevelExtensionID)
	if len(buf) == 0 {
		return
	}
	p.level.Store(int32(buf[0] & 0x7F))
	p.levelAt.Store(time.Now().UnixNano())
}

// requestKeyframe asks the sender for a fresh keyframe via PLI. Used when
// a video consumer resumes so the new viewer is not stuck on grey frames.
func (p *Producer) requestKeyframe() {
	if p.kind != domain.MediaKindVideo {
		return
	}
	_, err := p.dtls.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: uint32(p.ssrc)},
	})
	if err != nil {
		log.Debug().Err(err).Str("module", "pion.producer").Str("stream", string(p.id)).Msg("write pli")
	}
}

// audioLevel reports the last level as -dBov with its observation time.
func (p *Producer) audioLevel() (int, time.Time) {
	at := p.levelAt.Load()
	if at == 0 {
		return silenceLevel, time.Time{}
	}
	return int(p.level.Load()), time.Unix(0, at)
}

// Consumer wraps the RTP sender that mirrors one producer to one session.
type Consumer struct {
	id       domain.ConsumerID
	producer *Producer
	out      *outTrack
	sender   *webrtc.RTPSender
	params   json.RawMessage
	once     sync.Once
}

func newConsumer(id domain.ConsumerID, producer *Producer, local *webrtc.TrackLocalStaticRTP, sender *webrtc.RTPSender, params json.RawMessage) *Consumer {
	out := &outTrack{track: local}
	// Born muted: the client resumes once its receiving end is set up.
	out.state.Store(outMuted)
	return &Consumer{
		id:       id,
		producer: producer,
		out:      out,
		sender:   sender,
		params:   params,
	}
}

// ID returns the consumer id.
func (c *Consumer) ID() domain.ConsumerID { return c.id }

// Kind reports the consumed media kind.
func (c *Consumer) Kind() domain.MediaKind { return c.producer.kind }

// RTPParameters returns the send parameters the client decodes with.
func (c *Consumer) RTPParameters() json.RawMessage { return c.params }

// Resume unmutes the fan-out entry. For video it also requests a keyframe
// so the viewer gets a decodable picture immediately.
func (c *Consumer) Resume() error {
	c.out.unmute()
	c.producer.requestKeyframe()
	return nil
}

// Close detaches from the producer and stops the sender.
func (c *Consumer) Close() error {
	var err error
	c.once.Do(func() {
		c.producer.detach(c.id)
		err = c.sender.Stop()
	})
	return err
}
