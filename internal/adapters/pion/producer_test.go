package pion

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SONUshilla/VideoCallingBackend/internal/domain"
)

func testCodec(kind domain.MediaKind) webrtc.RTPCodecCapability {
	_, c, _ := codecFor(kind)
	return c
}

func levelPacket(t *testing.T, level byte, voice bool) *rtp.Packet {
	t.Helper()
	pkt := &rtp.Packet{Header: rtp.Header{Extension: true, ExtensionProfile: 0xBEDE}}
	b := level & 0x7F
	if voice {
		b |= 0x80
	}
	require.NoError(t, pkt.SetExtension(audioLevelExtensionID, []byte{b}))
	return pkt
}

func TestObserveLevelParsesExtension(t *testing.T) {
	p := newProducer("s-1", domain.MediaKindAudio, testCodec(domain.MediaKindAudio), nil, nil, 1234)

	// Voice-activity bit must not leak into the level.
	p.observeLevel(levelPacket(t, 42, true))
	lv, at := p.audioLevel()
	assert.Equal(t, 42, lv)
	assert.False(t, at.IsZero())
}

func TestAudioLevelBeforeFirstPacketIsSilence(t *testing.T) {
	p := newProducer("s-1", domain.MediaKindAudio, testCodec(domain.MediaKindAudio), nil, nil, 1234)
	lv, at := p.audioLevel()
	assert.Equal(t, silenceLevel, lv)
	assert.True(t, at.IsZero())
}

func TestOutTrackStateTransitions(t *testing.T) {
	o := &outTrack{}
	o.state.Store(outMuted)

	o.unmute()
	assert.Equal(t, outActive, o.state.Load())
	o.mute()
	assert.Equal(t, outMuted, o.state.Load())

	o.kill()
	assert.Equal(t, outDead, o.state.Load())
	// A dead track never comes back.
	o.unmute()
	assert.Equal(t, outDead, o.state.Load())
}

func TestProducerPauseFlag(t *testing.T) {
	p := newProducer("s-1", domain.MediaKindVideo, testCodec(domain.MediaKindVideo), nil, nil, 1)
	assert.False(t, p.Paused())
	require.NoError(t, p.Pause())
	assert.True(t, p.Paused())
	require.NoError(t, p.Resume())
	assert.False(t, p.Paused())
}
