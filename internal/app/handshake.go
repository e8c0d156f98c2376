package app

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/SONUshilla/VideoCallingBackend/internal/core"
	"github.com/SONUshilla/VideoCallingBackend/internal/domain"
	"github.com/SONUshilla/VideoCallingBackend/internal/metrics"
)

// Handshake processes the ordered media-negotiation requests of a session.
// It is stateless itself: all state lives in the registry's rooms and
// sessions. Send-side and receive-side steps are independent and may
// interleave; within one session each step runs under the session lock.
type Handshake struct {
	reg     *Registry
	metrics *metrics.Metrics
}

// NewHandshake builds the handler over the shared registry.
func NewHandshake(reg *Registry, m *metrics.Metrics) *Handshake {
	return &Handshake{reg: reg, metrics: m}
}

// fail counts a handshake failure and passes the error through.
func (h *Handshake) fail(err error) error {
	h.metrics.HandshakeErrors.WithLabelValues(string(CodeOf(err))).Inc()
	return err
}

// Capabilities returns the room router's RTP capabilities verbatim.
func (h *Handshake) Capabilities(sid domain.SocketID) (json.RawMessage, error) {
	room, ok := h.reg.RoomOf(sid)
	if !ok {
		return nil, h.fail(newError(ErrCodeRoomNotFound, "socket %s is not in a room", sid))
	}
	return room.Router().Capabilities(), nil
}

// CreateSendTransport allocates the session's send-side transport and
// returns its connection parameters. A repeated call replaces the previous
// transport, closing it best-effort.
func (h *Handshake) CreateSendTransport(ctx context.Context, sid domain.SocketID) (core.TransportInfo, error) {
	return h.createTransport(ctx, sid, true)
}

// CreateRecvTransport is the receive-side twin of CreateSendTransport.
func (h *Handshake) CreateRecvTransport(ctx context.Context, sid domain.SocketID) (core.TransportInfo, error) {
	return h.createTransport(ctx, sid, false)
}

func (h *Handshake) createTransport(ctx context.Context, sid domain.SocketID, send bool) (core.TransportInfo, error) {
	room, sess, err := h.reg.SessionOf(sid)
	if err != nil {
		return core.TransportInfo{}, h.fail(err)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	t, err := room.Router().CreateTransport(ctx)
	if err != nil {
		return core.TransportInfo{}, h.fail(wrapError(ErrCodeTransportAllocation, err, "allocate transport for socket %s", sid))
	}

	var old core.Transport
	if send {
		old, sess.sendTransport = sess.sendTransport, t
	} else {
		old, sess.recvTransport = sess.recvTransport, t
	}
	if old != nil {
		if cerr := old.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("module", "app.handshake").Str("sid", string(sid)).Msg("close replaced transport")
		}
	}

	log.Info().Str("module", "app.handshake").Str("sid", string(sid)).Bool("send", send).Str("transport", string(t.Info().ID)).Msg("transport created")
	return t.Info(), nil
}

// ConnectSendTransport applies the client's DTLS parameters to the stored
// send transport.
func (h *Handshake) ConnectSendTransport(ctx context.Context, sid domain.SocketID, dtlsParameters json.RawMessage) error {
	return h.connectTransport(ctx, sid, dtlsParameters, true)
}

// ConnectRecvTransport applies the client's DTLS parameters to the stored
// receive transport.
func (h *Handshake) ConnectRecvTransport(ctx context.Context, sid domain.SocketID, dtlsParameters json.RawMessage) error {
	return h.connectTransport(ctx, sid, dtlsParameters, false)
}

func (h *Handshake) connectTransport(ctx context.Context, sid domain.SocketID, dtlsParameters json.RawMessage, send bool) error {
	_, sess, err := h.reg.SessionOf(sid)
	if err != nil {
		return h.fail(err)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	t := sess.recvTransport
	if send {
		t = sess.sendTransport
	}
	if t == nil {
		return h.fail(newError(ErrCodeTransportNotFound, "socket %s has no transport to connect", sid))
	}
	if err := t.Connect(ctx, dtlsParameters); err != nil {
		return h.fail(wrapError(ErrCodeInternal, err, "connect transport for socket %s", sid))
	}
	return nil
}

// Produce publishes one media flow over the session's send transport and
// registers it in the session map, the room catalog and the reverse index.
// Audio streams are attached to the room's level observer; a screen-share
// tag is recorded on the session. Peers are notified of the new stream.
func (h *Handshake) Produce(ctx context.Context, sid domain.SocketID, req core.ProduceRequest) (domain.StreamID, error) {
	room, sess, err := h.reg.SessionOf(sid)
	if err != nil {
		return "", h.fail(err)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.sendTransport == nil {
		return "", h.fail(newError(ErrCodeTransportNotFound, "socket %s has no send transport", sid))
	}

	producer, err := sess.sendTransport.Produce(ctx, req)
	if err != nil {
		return "", h.fail(wrapError(ErrCodeProducerCreation, err, "produce %s for socket %s", req.Kind, sid))
	}

	if producer.Kind() == domain.MediaKindAudio {
		if err := room.Observer().AddProducer(producer); err != nil {
			_ = producer.Close()
			return "", h.fail(wrapError(ErrCodeProducerCreation, err, "attach audio observer for socket %s", sid))
		}
	}

	info := domain.StreamInfo{
		ID:    producer.ID(),
		Owner: sid,
		Kind:  producer.Kind(),
		Tag:   req.AppData.MediaTag,
	}
	sess.producers[info.ID] = producer
	room.putStream(info, producer)
	h.reg.RegisterStream(info.ID, sid)
	if info.IsScreenShare() {
		sess.screenShare = info.ID
	}
	h.metrics.ActiveProducers.Inc()

	room.Broadcast(sid, encodeEvent(EventNewProducer, NewProducerEvent{
		SocketID:   sid,
		ProducerID: info.ID,
		Kind:       info.Kind,
		AppData:    req.AppData,
	}))

	log.Info().Str("module", "app.handshake").Str("sid", string(sid)).Str("stream", string(info.ID)).Str("kind", string(info.Kind)).Str("tag", string(info.Tag)).Msg("producer created")
	return info.ID, nil
}

// ExistingProducers lists the streams published by everyone but the caller.
func (h *Handshake) ExistingProducers(sid domain.SocketID) ([]ProducerSummary, error) {
	room, ok := h.reg.RoomOf(sid)
	if !ok {
		return nil, h.fail(newError(ErrCodeRoomNotFound, "socket %s is not in a room", sid))
	}
	streams := room.StreamsSnapshot(sid)
	out := make([]ProducerSummary, 0, len(streams))
	for _, s := range streams {
		out = append(out, ProducerSummary{
			ID:       s.ID,
			SocketID: s.Owner,
			IsPaused: s.Paused,
			AppData:  domain.AppData{MediaTag: s.Tag},
		})
	}
	return out, nil
}

// ConsumeReply carries everything a client needs to receive a stream.
type ConsumeReply struct {
	ID            domain.ConsumerID `json:"id"`
	ProducerID    domain.StreamID   `json:"producerId"`
	Kind          domain.MediaKind  `json:"kind"`
	RTPParameters json.RawMessage   `json:"rtpParameters"`
	AppData       domain.AppData    `json:"appData"`
}

// Consume binds the session's receive transport to a published stream. The
// consumer starts paused; the client resumes it by id once ready.
func (h *Handshake) Consume(ctx context.Context, sid domain.SocketID, streamID domain.StreamID, capabilities json.RawMessage) (ConsumeReply, error) {
	room, sess, err := h.reg.SessionOf(sid)
	if err != nil {
		return ConsumeReply{}, h.fail(err)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.recvTransport == nil {
		return ConsumeReply{}, h.fail(newError(ErrCodeTransportNotFound, "socket %s has no receive transport", sid))
	}
	info, producer, ok := room.Stream(streamID)
	if !ok {
		return ConsumeReply{}, h.fail(newError(ErrCodeStreamNotFound, "stream %s not in room %s", streamID, room.ID))
	}

	// The first consume must carry the client's RTP capabilities; later
	// ones may omit them and reuse the remembered set.
	if len(capabilities) == 0 {
		capabilities = sess.rtpCapabilities
	}
	if len(capabilities) == 0 {
		return ConsumeReply{}, h.fail(BadRequest("socket %s supplied no rtp capabilities", sid))
	}

	consumer, err := sess.recvTransport.Consume(ctx, core.ConsumeRequest{
		Producer:        producer,
		RTPCapabilities: capabilities,
	})
	if err != nil {
		return ConsumeReply{}, h.fail(wrapError(ErrCodeInternal, err, "consume stream %s for socket %s", streamID, sid))
	}
	sess.consumers[consumer.ID()] = consumer
	sess.rtpCapabilities = capabilities
	h.metrics.ActiveConsumers.Inc()

	log.Info().Str("module", "app.handshake").Str("sid", string(sid)).Str("stream", string(streamID)).Str("consumer", string(consumer.ID())).Msg("consumer created")
	return ConsumeReply{
		ID:            consumer.ID(),
		ProducerID:    info.ID,
		Kind:          consumer.Kind(),
		RTPParameters: consumer.RTPParameters(),
		AppData:       domain.AppData{MediaTag: info.Tag},
	}, nil
}

// ResumeConsumer unpauses a consumer previously created by Consume.
func (h *Handshake) ResumeConsumer(ctx context.Context, sid domain.SocketID, id domain.ConsumerID) error {
	_, sess, err := h.reg.SessionOf(sid)
	if err != nil {
		return h.fail(err)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	consumer, ok := sess.consumers[id]
	if !ok {
		return h.fail(newError(ErrCodeConsumerNotFound, "consumer %s not found for socket %s", id, sid))
	}
	if err := consumer.Resume(); err != nil {
		return h.fail(wrapError(ErrCodeInternal, err, "resume consumer %s", id))
	}
	return nil
}

// PauseProducer pauses a published stream by id and tells the room, tagged
// with the owning socket. Any member may pause; identity in the
// notification is always the owner's, resolved from the catalog.
func (h *Handshake) PauseProducer(sid domain.SocketID, streamID domain.StreamID) error {
	return h.setProducerPaused(sid, streamID, true)
}

// ResumeProducer is the inverse of PauseProducer.
func (h *Handshake) ResumeProducer(sid domain.SocketID, streamID domain.StreamID) error {
	return h.setProducerPaused(sid, streamID, false)
}

func (h *Handshake) setProducerPaused(sid domain.SocketID, streamID domain.StreamID, paused bool) error {
	room, ok := h.reg.RoomOf(sid)
	if !ok {
		return h.fail(newError(ErrCodeRoomNotFound, "socket %s is not in a room", sid))
	}
	info, producer, ok := room.Stream(streamID)
	if !ok {
		return h.fail(newError(ErrCodeStreamNotFound, "stream %s not in room %s", streamID, room.ID))
	}

	var err error
	event := EventProducerPaused
	if paused {
		err = producer.Pause()
	} else {
		err = producer.Resume()
		event = EventProducerResumed
	}
	if err != nil {
		return h.fail(wrapError(ErrCodeInternal, err, "set stream %s paused=%t", streamID, paused))
	}
	room.setStreamPaused(streamID, paused)

	room.Broadcast(sid, encodeEvent(event, ProducerStateEvent{
		ProducerID: streamID,
		SocketID:   info.Owner,
	}))
	return nil
}

// CloseStream tears one of the caller's own streams down explicitly (e.g.
// the screen share ended). The stream leaves the session map, the room
// catalog and the reverse index together; the engine close is best-effort.
func (h *Handshake) CloseStream(sid domain.SocketID, streamID domain.StreamID) error {
	room, sess, err := h.reg.SessionOf(sid)
	if err != nil {
		return h.fail(err)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	producer, ok := sess.producers[streamID]
	if !ok {
		return h.fail(newError(ErrCodeStreamNotFound, "stream %s not owned by socket %s", streamID, sid))
	}

	delete(sess.producers, streamID)
	if sess.screenShare == streamID {
		sess.screenShare = ""
	}
	room.removeStream(streamID)
	h.reg.UnregisterStream(streamID)

	if producer.Kind() == domain.MediaKindAudio {
		room.Observer().RemoveProducer(streamID)
	}
	if cerr := producer.Close(); cerr != nil {
		log.Warn().Err(cerr).Str("module", "app.handshake").Str("stream", string(streamID)).Msg("close producer")
	}
	h.metrics.ActiveProducers.Dec()

	room.Broadcast(sid, encodeEvent(EventProducerClosed, ProducerClosedEvent{ProducerID: streamID}))
	log.Info().Str("module", "app.handshake").Str("sid", string(sid)).Str("stream", string(streamID)).Msg("stream closed")
	return nil
}
