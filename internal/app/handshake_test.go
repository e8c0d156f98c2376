package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SONUshilla/VideoCallingBackend/internal/core"
	"github.com/SONUshilla/VideoCallingBackend/internal/domain"
)

// mediaReady walks one socket through transport creation and connect so a
// test can go straight to producing or consuming.
func (e *testEnv) mediaReady(t *testing.T, sid domain.SocketID) {
	t.Helper()
	ctx := context.Background()
	_, err := e.handshake.CreateSendTransport(ctx, sid)
	require.NoError(t, err)
	err = e.handshake.ConnectSendTransport(ctx, sid, json.RawMessage(`{"fingerprints":[]}`))
	require.NoError(t, err)
	_, err = e.handshake.CreateRecvTransport(ctx, sid)
	require.NoError(t, err)
	err = e.handshake.ConnectRecvTransport(ctx, sid, json.RawMessage(`{"fingerprints":[]}`))
	require.NoError(t, err)
}

func (e *testEnv) produce(t *testing.T, sid domain.SocketID, kind domain.MediaKind, tag domain.MediaTag) domain.StreamID {
	t.Helper()
	id, err := e.handshake.Produce(context.Background(), sid, core.ProduceRequest{
		Kind:          kind,
		RTPParameters: json.RawMessage(`{"encodings":[{"ssrc":1234}]}`),
		AppData:       domain.AppData{MediaTag: tag},
	})
	require.NoError(t, err)
	return id
}

func TestCapabilitiesRequiresRoom(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.handshake.Capabilities("ghost")
	require.Error(t, err)
	assert.Equal(t, ErrCodeRoomNotFound, CodeOf(err))
}

func TestCapabilitiesReturnsRouterBlob(t *testing.T) {
	env := newTestEnv(t)
	env.join(t, "alice", "meet-1", "Alice")

	caps, err := env.handshake.Capabilities("alice")
	require.NoError(t, err)
	assert.JSONEq(t, `{"codecs":[{"kind":"audio"},{"kind":"video"}]}`, string(caps))
}

func TestCreateTransportReplacesPrevious(t *testing.T) {
	env := newTestEnv(t)
	env.join(t, "alice", "meet-1", "Alice")

	first, err := env.handshake.CreateSendTransport(context.Background(), "alice")
	require.NoError(t, err)
	second, err := env.handshake.CreateSendTransport(context.Background(), "alice")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	room, _ := env.reg.Room("meet-1")
	sess, _ := room.Session("alice")
	assert.Equal(t, second.ID, sess.SendTransport().Info().ID)
}

func TestConnectTransportWithoutCreate(t *testing.T) {
	env := newTestEnv(t)
	env.join(t, "alice", "meet-1", "Alice")

	err := env.handshake.ConnectSendTransport(context.Background(), "alice", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Equal(t, ErrCodeTransportNotFound, CodeOf(err))
}

func TestProduceWithoutSendTransport(t *testing.T) {
	env := newTestEnv(t)
	env.join(t, "alice", "meet-1", "Alice")

	_, err := env.handshake.Produce(context.Background(), "alice", core.ProduceRequest{Kind: domain.MediaKindAudio})
	require.Error(t, err)
	assert.Equal(t, ErrCodeTransportNotFound, CodeOf(err))
}

func TestProduceRegistersEverywhere(t *testing.T) {
	env := newTestEnv(t)
	env.join(t, "alice", "meet-1", "Alice")
	bobSig := env.join(t, "bob", "meet-1", "Bob")
	env.mediaReady(t, "alice")

	id := env.produce(t, "alice", domain.MediaKindAudio, domain.TagMic)

	room, _ := env.reg.Room("meet-1")
	sess, _ := room.Session("alice")
	assert.Equal(t, 1, sess.ProducerCount())

	info, _, ok := room.Stream(id)
	require.True(t, ok)
	assert.Equal(t, domain.SocketID("alice"), info.Owner)
	assert.Equal(t, domain.TagMic, info.Tag)

	owner, ok := env.reg.StreamOwner(id)
	require.True(t, ok)
	assert.Equal(t, domain.SocketID("alice"), owner)

	// Audio joins the speaker observer.
	assert.True(t, env.engine.routers[0].observer.has(id))

	// Peers hear about it, the producer itself does not.
	assert.Equal(t, 1, bobSig.count(EventNewProducer))
}

func TestProduceScreenShareTracked(t *testing.T) {
	env := newTestEnv(t)
	env.join(t, "alice", "meet-1", "Alice")
	env.mediaReady(t, "alice")

	id := env.produce(t, "alice", domain.MediaKindVideo, domain.TagScreen)

	room, _ := env.reg.Room("meet-1")
	sess, _ := room.Session("alice")
	assert.Equal(t, id, sess.ScreenShare())
	// Video never reaches the audio observer.
	assert.False(t, env.engine.routers[0].observer.has(id))
}

func TestProduceObserverFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.join(t, "alice", "meet-1", "Alice")
	env.mediaReady(t, "alice")
	env.engine.routers[0].observer.failAdd = true

	_, err := env.handshake.Produce(context.Background(), "alice", core.ProduceRequest{
		Kind:          domain.MediaKindAudio,
		RTPParameters: json.RawMessage(`{"encodings":[{"ssrc":1}]}`),
	})
	require.Error(t, err)
	assert.Equal(t, ErrCodeProducerCreation, CodeOf(err))

	room, _ := env.reg.Room("meet-1")
	sess, _ := room.Session("alice")
	assert.Equal(t, 0, sess.ProducerCount())
	assert.Empty(t, room.StreamsSnapshot(""))
}

func TestExistingProducersExcludesCaller(t *testing.T) {
	env := newTestEnv(t)
	env.join(t, "alice", "meet-1", "Alice")
	env.join(t, "bob", "meet-1", "Bob")
	env.mediaReady(t, "alice")
	env.mediaReady(t, "bob")

	aliceStream := env.produce(t, "alice", domain.MediaKindAudio, domain.TagMic)
	env.produce(t, "bob", domain.MediaKindVideo, domain.TagCamera)

	got, err := env.handshake.ExistingProducers("bob")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, aliceStream, got[0].ID)
	assert.Equal(t, domain.SocketID("alice"), got[0].SocketID)
	assert.False(t, got[0].IsPaused)
}

func TestConsumeLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.join(t, "alice", "meet-1", "Alice")
	env.join(t, "bob", "meet-1", "Bob")
	env.mediaReady(t, "alice")
	stream := env.produce(t, "alice", domain.MediaKindVideo, domain.TagCamera)

	caps := json.RawMessage(`{"codecs":[]}`)

	// No receive transport yet.
	_, err := env.handshake.Consume(context.Background(), "bob", stream, caps)
	require.Error(t, err)
	assert.Equal(t, ErrCodeTransportNotFound, CodeOf(err))

	env.mediaReady(t, "bob")

	_, err = env.handshake.Consume(context.Background(), "bob", "no-such-stream", caps)
	require.Error(t, err)
	assert.Equal(t, ErrCodeStreamNotFound, CodeOf(err))

	reply, err := env.handshake.Consume(context.Background(), "bob", stream, caps)
	require.NoError(t, err)
	assert.Equal(t, stream, reply.ProducerID)
	assert.Equal(t, domain.MediaKindVideo, reply.Kind)
	assert.Equal(t, domain.TagCamera, reply.AppData.MediaTag)

	room, _ := env.reg.Room("meet-1")
	sess, _ := room.Session("bob")
	assert.Equal(t, 1, sess.ConsumerCount())

	// Resuming an unknown consumer fails; the real one succeeds.
	err = env.handshake.ResumeConsumer(context.Background(), "bob", "bogus")
	require.Error(t, err)
	assert.Equal(t, ErrCodeConsumerNotFound, CodeOf(err))
	require.NoError(t, env.handshake.ResumeConsumer(context.Background(), "bob", reply.ID))
}

func TestConsumeReusesStoredCapabilities(t *testing.T) {
	env := newTestEnv(t)
	env.join(t, "alice", "meet-1", "Alice")
	env.join(t, "bob", "meet-1", "Bob")
	env.mediaReady(t, "alice")
	env.mediaReady(t, "bob")
	audio := env.produce(t, "alice", domain.MediaKindAudio, domain.TagMic)
	video := env.produce(t, "alice", domain.MediaKindVideo, domain.TagCamera)

	// The first consume must carry the capabilities.
	_, err := env.handshake.Consume(context.Background(), "bob", audio, nil)
	require.Error(t, err)
	assert.Equal(t, ErrCodeBadRequest, CodeOf(err))

	_, err = env.handshake.Consume(context.Background(), "bob", audio, json.RawMessage(`{"codecs":[]}`))
	require.NoError(t, err)

	// Later consumes may omit them and reuse the remembered set.
	_, err = env.handshake.Consume(context.Background(), "bob", video, nil)
	require.NoError(t, err)
}

func TestPauseResumeReportsOwnerIdentity(t *testing.T) {
	env := newTestEnv(t)
	aliceSig := env.join(t, "alice", "meet-1", "Alice")
	env.join(t, "bob", "meet-1", "Bob")
	env.mediaReady(t, "alice")
	stream := env.produce(t, "alice", domain.MediaKindVideo, domain.TagCamera)

	// Bob pauses Alice's stream; the notification still names Alice.
	require.NoError(t, env.handshake.PauseProducer("bob", stream))
	require.Equal(t, 1, aliceSig.count(EventProducerPaused))

	var env2 struct {
		Data ProducerStateEvent `json:"data"`
	}
	for _, fr := range aliceSig.frames {
		var head struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(fr, &head))
		if head.Type == EventProducerPaused {
			require.NoError(t, json.Unmarshal(fr, &env2))
		}
	}
	assert.Equal(t, domain.SocketID("alice"), env2.Data.SocketID)

	room, _ := env.reg.Room("meet-1")
	info, producer, _ := room.Stream(stream)
	assert.True(t, info.Paused)
	assert.True(t, producer.Paused())

	require.NoError(t, env.handshake.ResumeProducer("bob", stream))
	info, producer, _ = room.Stream(stream)
	assert.False(t, info.Paused)
	assert.False(t, producer.Paused())
	assert.Equal(t, 1, aliceSig.count(EventProducerResumed))
}

func TestCloseStreamOnlyByOwner(t *testing.T) {
	env := newTestEnv(t)
	env.join(t, "alice", "meet-1", "Alice")
	bobSig := env.join(t, "bob", "meet-1", "Bob")
	env.mediaReady(t, "alice")
	env.mediaReady(t, "bob")
	stream := env.produce(t, "alice", domain.MediaKindVideo, domain.TagScreen)

	err := env.handshake.CloseStream("bob", stream)
	require.Error(t, err)
	assert.Equal(t, ErrCodeStreamNotFound, CodeOf(err))

	room, _ := env.reg.Room("meet-1")
	_, _, stillThere := room.Stream(stream)
	assert.True(t, stillThere, "foreign close attempt must not touch the stream")

	require.NoError(t, env.handshake.CloseStream("alice", stream))

	sess, _ := room.Session("alice")
	assert.Equal(t, 0, sess.ProducerCount())
	assert.Equal(t, domain.StreamID(""), sess.ScreenShare())
	_, _, gone := room.Stream(stream)
	assert.False(t, gone)
	_, owned := env.reg.StreamOwner(stream)
	assert.False(t, owned)
	assert.Equal(t, 1, bobSig.count(EventProducerClosed))
}
