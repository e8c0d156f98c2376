package ws

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SONUshilla/VideoCallingBackend/internal/app"
	"github.com/SONUshilla/VideoCallingBackend/internal/domain"
)

func (ctl *Controller) handleCreateMeeting(sid domain.SocketID, c *wsConn, env envelope) {
	m := ctl.Relay.CreateMeeting(sid)
	ctl.ack(c, env, struct {
		MeetingID domain.MeetingID `json:"meetingId"`
	}{MeetingID: m.ID})
}

func (ctl *Controller) handleJoin(ctx context.Context, sid domain.SocketID, c *wsConn, env envelope) {
	p, err := decode[struct {
		RoomID string `json:"roomId"`
		Name   string `json:"name"`
		Avatar string `json:"profilePic"`
	}](env)
	if err != nil {
		ctl.nack(sid, c, env, err)
		return
	}
	if p.RoomID == "" {
		ctl.nack(sid, c, env, app.BadRequest("joinRoom requires a roomId"))
		return
	}

	reply, err := ctl.Relay.Join(ctx, sid, c, domain.RoomID(p.RoomID), p.Name, p.Avatar)
	if err != nil {
		ctl.nack(sid, c, env, err)
		return
	}
	ctl.ack(c, env, reply)

	// Joiners also get the snapshots as pushes so clients that key off
	// events rather than the ack stay in sync.
	ctl.push(c, app.EventExistingUsers, app.ExistingUsersEvent{ExistingUsers: reply.ExistingUsers})
	if producers, perr := ctl.Handshake.ExistingProducers(sid); perr == nil {
		ctl.push(c, app.EventExistingProducers, app.ExistingProducersEvent{Producers: producers})
	}
}

// handleLeave tears the session down while keeping the socket open, so the
// client can join another room on the same connection.
func (ctl *Controller) handleLeave(sid domain.SocketID, c *wsConn, env envelope) {
	ctl.Cleanup.Leave(sid)
	ctl.ack(c, env, struct {
		Left bool `json:"left"`
	}{Left: true})
}

func (ctl *Controller) handleExistingUsers(sid domain.SocketID, c *wsConn, env envelope) {
	reply, err := ctl.Relay.ExistingUsers(sid)
	if err != nil {
		ctl.nack(sid, c, env, err)
		return
	}
	ctl.ack(c, env, reply)
}

func (ctl *Controller) handleChat(sid domain.SocketID, c *wsConn, env envelope) {
	if !ctl.chatGas.Allow(sid) {
		log.Warn().Str("module", "ws").Str("sid", string(sid)).Msg("chat rate limited")
		return
	}
	p, err := decode[struct {
		Message   string    `json:"message"`
		Timestamp time.Time `json:"timestamp"`
	}](env)
	if err != nil {
		ctl.nack(sid, c, env, err)
		return
	}
	if p.Message == "" {
		return
	}
	ctl.Relay.Chat(sid, p.Message, p.Timestamp)
	ctl.ack(c, env, struct {
		Delivered bool `json:"delivered"`
	}{Delivered: true})
}

func (ctl *Controller) handleTyping(sid domain.SocketID, c *wsConn, start bool) {
	if !ctl.chatGas.Allow(sid) {
		return
	}
	if start {
		ctl.Relay.TypingStart(sid)
		return
	}
	ctl.Relay.TypingStop(sid)
}
