package app

import (
	"github.com/rs/zerolog/log"

	"github.com/SONUshilla/VideoCallingBackend/internal/domain"
	"github.com/SONUshilla/VideoCallingBackend/internal/metrics"
)

// Cleanup tears a departing session down: notify peers, close every engine
// object the session accumulated, then remove the bookkeeping entries.
// Every close is best-effort — one failure never stops the remaining
// steps — and the whole teardown is safe on partially-built sessions.
type Cleanup struct {
	reg     *Registry
	metrics *metrics.Metrics
}

// NewCleanup builds the coordinator over the shared registry.
func NewCleanup(reg *Registry, m *metrics.Metrics) *Cleanup {
	return &Cleanup{reg: reg, metrics: m}
}

// Disconnect runs the teardown after an abrupt connection loss.
func (c *Cleanup) Disconnect(sid domain.SocketID) {
	c.run(sid, "disconnect")
}

// Leave runs the teardown for an explicit leftMeeting request. Calling it
// for a socket that never joined, or that already left, is a no-op.
func (c *Cleanup) Leave(sid domain.SocketID) {
	c.run(sid, "leave")
}

func (c *Cleanup) run(sid domain.SocketID, reason string) {
	room, ok := c.reg.RoomOf(sid)
	if !ok {
		// Never joined, teardown already ran, or the room itself is gone.
		// Drop any leftover binding so the index cannot leak.
		c.reg.UnbindSocket(sid)
		return
	}
	logger := log.With().Str("module", "app.cleanup").Str("sid", string(sid)).Str("room", string(room.ID)).Str("reason", reason).Logger()

	member, hadMember := room.Member(sid)
	if !hadMember {
		member = domain.Member{SocketID: sid, Name: unknownName}
	}

	// Peers learn about the departure first so their UI reacts even if an
	// engine close below is slow.
	room.Broadcast(sid, encodeEvent(EventUserLeft, UserLeftEvent{SocketID: sid, Name: member.Name}))
	room.Broadcast(sid, encodeEvent(EventUserDisconnected, UserDisconnectedEvent{SocketID: sid}))

	sess, hadSession := room.Session(sid)
	if hadSession {
		// Hold the session lock for the whole teardown so no in-flight
		// handshake step interleaves with it.
		sess.mu.Lock()

		for id, producer := range sess.producers {
			if producer.Kind() == domain.MediaKindAudio {
				room.Observer().RemoveProducer(id)
			}
			if err := producer.Close(); err != nil {
				logger.Warn().Err(err).Str("stream", string(id)).Msg("close producer")
			}
			room.removeStream(id)
			c.reg.UnregisterStream(id)
			c.metrics.ActiveProducers.Dec()
			room.Broadcast(sid, encodeEvent(EventProducerClosed, ProducerClosedEvent{ProducerID: id}))
		}
		clear(sess.producers)
		sess.screenShare = ""

		// Consumption is private to the session; no peer notification.
		for id, consumer := range sess.consumers {
			if err := consumer.Close(); err != nil {
				logger.Warn().Err(err).Str("consumer", string(id)).Msg("close consumer")
			}
			c.metrics.ActiveConsumers.Dec()
		}
		clear(sess.consumers)

		if sess.sendTransport != nil {
			if err := sess.sendTransport.Close(); err != nil {
				logger.Warn().Err(err).Msg("close send transport")
			}
			sess.sendTransport = nil
		}
		if sess.recvTransport != nil {
			if err := sess.recvTransport.Close(); err != nil {
				logger.Warn().Err(err).Msg("close recv transport")
			}
			sess.recvTransport = nil
		}

		sess.mu.Unlock()
		c.metrics.ActiveSessions.Dec()
	}

	room.removeSession(sid)
	c.reg.UnbindSocket(sid)
	c.metrics.Leaves.Inc()

	logger.Info().Bool("had_session", hadSession).Msg("cleanup complete")

	c.reg.releaseIfEmpty(room)
}
