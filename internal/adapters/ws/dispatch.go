package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/SONUshilla/VideoCallingBackend/internal/app"
	"github.com/SONUshilla/VideoCallingBackend/internal/domain"
)

// envelope is the inbound frame shape. rid correlates the ack; requests
// without one are fire-and-forget.
type envelope struct {
	Type string          `json:"type"`
	RID  string          `json:"rid,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ackEnvelope struct {
	Type  string     `json:"type"`
	RID   string     `json:"rid"`
	Data  any        `json:"data,omitempty"`
	Error *wireError `json:"error,omitempty"`
}

func (ctl *Controller) handle(ctx context.Context, sid domain.SocketID, c *wsConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "ws").Str("sid", string(sid)).Msg("bad json")
		return
	}

	switch env.Type {
	case "createMeeting":
		ctl.handleCreateMeeting(sid, c, env)
	case "joinRoom":
		ctl.handleJoin(ctx, sid, c, env)
	case "leftMeeting":
		ctl.handleLeave(sid, c, env)
	case "get-existing-users":
		ctl.handleExistingUsers(sid, c, env)
	case "send_message":
		ctl.handleChat(sid, c, env)
	case "typing":
		ctl.handleTyping(sid, c, true)
	case "stop_typing":
		ctl.handleTyping(sid, c, false)
	case "get-rtp-capabilities":
		ctl.handleCapabilities(sid, c, env)
	case "create-send-transport":
		ctl.handleCreateTransport(ctx, sid, c, env, true)
	case "create-recv-transport":
		ctl.handleCreateTransport(ctx, sid, c, env, false)
	case "transport-connect":
		ctl.handleConnectTransport(ctx, sid, c, env, true)
	case "connect-recv-transport":
		ctl.handleConnectTransport(ctx, sid, c, env, false)
	case "produce":
		ctl.handleProduce(ctx, sid, c, env)
	case "get-existing-producers":
		ctl.handleExistingProducers(sid, c, env)
	case "consume":
		ctl.handleConsume(ctx, sid, c, env)
	case "consumerResume":
		ctl.handleConsumerResume(ctx, sid, c, env)
	case "producer-paused":
		ctl.handleProducerState(sid, c, env, true)
	case "producer-resume":
		ctl.handleProducerState(sid, c, env, false)
	case "screenShareStopped":
		ctl.handleCloseStream(sid, c, env)
	default:
		log.Warn().Str("module", "ws").Str("sid", string(sid)).Str("type", env.Type).Msg("unknown request")
	}
}

// ack answers a correlated request. Requests without a rid get no answer;
// errors on those are only logged.
func (ctl *Controller) ack(c *wsConn, env envelope, v any) {
	if env.RID == "" {
		return
	}
	ctl.sendJSON(c, ackEnvelope{Type: "ack", RID: env.RID, Data: v})
}

func (ctl *Controller) nack(sid domain.SocketID, c *wsConn, env envelope, err error) {
	log.Warn().Err(err).Str("module", "ws").Str("sid", string(sid)).Str("type", env.Type).Msg("request failed")
	if env.RID == "" {
		return
	}
	we := &wireError{Code: string(app.ErrCodeInternal), Message: "internal error"}
	var appErr *app.Error
	if errors.As(err, &appErr) {
		we.Code = string(appErr.Code)
		we.Message = appErr.Message
	}
	ctl.sendJSON(c, ackEnvelope{Type: "ack", RID: env.RID, Error: we})
}

// push sends a server-initiated event to this socket only.
func (ctl *Controller) push(c *wsConn, event string, v any) {
	ctl.sendJSON(c, envelope{Type: event, Data: mustRaw(v)})
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "ws").Msg("sendJSON dropped")
	}
}

func mustRaw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("encode event data")
		return nil
	}
	return b
}

func decode[T any](env envelope) (T, error) {
	var p T
	if len(env.Data) == 0 {
		return p, errors.New("request carries no data")
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return p, err
	}
	return p, nil
}
