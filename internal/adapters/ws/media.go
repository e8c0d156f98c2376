package ws

import (
	"context"
	"encoding/json"

	"github.com/SONUshilla/VideoCallingBackend/internal/app"
	"github.com/SONUshilla/VideoCallingBackend/internal/core"
	"github.com/SONUshilla/VideoCallingBackend/internal/domain"
)

func (ctl *Controller) handleCapabilities(sid domain.SocketID, c *wsConn, env envelope) {
	caps, err := ctl.Handshake.Capabilities(sid)
	if err != nil {
		ctl.nack(sid, c, env, err)
		return
	}
	payload := struct {
		RTPCapabilities json.RawMessage `json:"rtpCapabilities"`
	}{RTPCapabilities: caps}
	ctl.ack(c, env, payload)
	ctl.push(c, app.EventRTPCapabilities, payload)
}

func (ctl *Controller) handleCreateTransport(ctx context.Context, sid domain.SocketID, c *wsConn, env envelope, send bool) {
	var (
		info core.TransportInfo
		err  error
	)
	if send {
		info, err = ctl.Handshake.CreateSendTransport(ctx, sid)
	} else {
		info, err = ctl.Handshake.CreateRecvTransport(ctx, sid)
	}
	if err != nil {
		ctl.nack(sid, c, env, err)
		return
	}
	ctl.ack(c, env, info)
	if send {
		ctl.push(c, app.EventSendTransportCreated, info)
	}
}

func (ctl *Controller) handleConnectTransport(ctx context.Context, sid domain.SocketID, c *wsConn, env envelope, send bool) {
	p, err := decode[struct {
		DTLSParameters json.RawMessage `json:"dtlsParameters"`
	}](env)
	if err != nil {
		ctl.nack(sid, c, env, err)
		return
	}
	if send {
		err = ctl.Handshake.ConnectSendTransport(ctx, sid, p.DTLSParameters)
	} else {
		err = ctl.Handshake.ConnectRecvTransport(ctx, sid, p.DTLSParameters)
	}
	if err != nil {
		ctl.nack(sid, c, env, err)
		return
	}
	ctl.ack(c, env, struct {
		Connected bool `json:"connected"`
	}{Connected: true})
}

func (ctl *Controller) handleProduce(ctx context.Context, sid domain.SocketID, c *wsConn, env envelope) {
	p, err := decode[struct {
		Kind          string          `json:"kind"`
		RTPParameters json.RawMessage `json:"rtpParameters"`
		AppData       domain.AppData  `json:"appData"`
	}](env)
	if err != nil {
		ctl.nack(sid, c, env, err)
		return
	}
	kind := domain.MediaKind(p.Kind)
	if kind != domain.MediaKindAudio && kind != domain.MediaKindVideo {
		ctl.nack(sid, c, env, app.BadRequest("unknown media kind %q", p.Kind))
		return
	}

	id, err := ctl.Handshake.Produce(ctx, sid, core.ProduceRequest{
		Kind:          kind,
		RTPParameters: p.RTPParameters,
		AppData:       p.AppData,
	})
	if err != nil {
		ctl.nack(sid, c, env, err)
		return
	}
	ctl.ack(c, env, struct {
		ID domain.StreamID `json:"id"`
	}{ID: id})
}

func (ctl *Controller) handleExistingProducers(sid domain.SocketID, c *wsConn, env envelope) {
	producers, err := ctl.Handshake.ExistingProducers(sid)
	if err != nil {
		ctl.nack(sid, c, env, err)
		return
	}
	ctl.ack(c, env, app.ExistingProducersEvent{Producers: producers})
}

func (ctl *Controller) handleConsume(ctx context.Context, sid domain.SocketID, c *wsConn, env envelope) {
	p, err := decode[struct {
		ProducerID      string          `json:"producerId"`
		RTPCapabilities json.RawMessage `json:"rtpCapabilities"`
	}](env)
	if err != nil {
		ctl.nack(sid, c, env, err)
		return
	}
	reply, err := ctl.Handshake.Consume(ctx, sid, domain.StreamID(p.ProducerID), p.RTPCapabilities)
	if err != nil {
		ctl.nack(sid, c, env, err)
		return
	}
	ctl.ack(c, env, reply)
}

func (ctl *Controller) handleConsumerResume(ctx context.Context, sid domain.SocketID, c *wsConn, env envelope) {
	p, err := decode[struct {
		ConsumerID string `json:"consumerId"`
	}](env)
	if err != nil {
		ctl.nack(sid, c, env, err)
		return
	}
	if err := ctl.Handshake.ResumeConsumer(ctx, sid, domain.ConsumerID(p.ConsumerID)); err != nil {
		ctl.nack(sid, c, env, err)
		return
	}
	ctl.ack(c, env, struct {
		Resumed bool `json:"resumed"`
	}{Resumed: true})
}

func (ctl *Controller) handleProducerState(sid domain.SocketID, c *wsConn, env envelope, paused bool) {
	p, err := decode[struct {
		ProducerID string `json:"producerId"`
	}](env)
	if err != nil {
		ctl.nack(sid, c, env, err)
		return
	}
	id := domain.StreamID(p.ProducerID)
	if paused {
		err = ctl.Handshake.PauseProducer(sid, id)
	} else {
		err = ctl.Handshake.ResumeProducer(sid, id)
	}
	if err != nil {
		ctl.nack(sid, c, env, err)
		return
	}
	ctl.ack(c, env, struct {
		Paused bool `json:"paused"`
	}{Paused: paused})
}

func (ctl *Controller) handleCloseStream(sid domain.SocketID, c *wsConn, env envelope) {
	p, err := decode[struct {
		ProducerID string `json:"producerId"`
	}](env)
	if err != nil {
		ctl.nack(sid, c, env, err)
		return
	}
	if err := ctl.Handshake.CloseStream(sid, domain.StreamID(p.ProducerID)); err != nil {
		ctl.nack(sid, c, env, err)
		return
	}
	ctl.ack(c, env, struct {
		Closed bool `json:"closed"`
	}{Closed: true})
}
