// Package ws is the signaling transport: one WebSocket per participant,
// JSON envelopes in both directions. Requests carry a correlation id and
// get an ack; server-initiated events share the same envelope shape
// without one.
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/SONUshilla/VideoCallingBackend/internal/app"
	"github.com/SONUshilla/VideoCallingBackend/internal/core"
	"github.com/SONUshilla/VideoCallingBackend/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Limits bounds one connection's IO.
type Limits struct {
	// ReadLimit caps an inbound message in bytes.
	ReadLimit int64
	// PingPeriod spaces keepalive pings; the read deadline is slightly wider.
	PingPeriod time.Duration
	// ChatPerMinute caps chat and typing frames per socket.
	ChatPerMinute int
}

// DefaultLimits is used when config leaves the knobs zero.
var DefaultLimits = Limits{
	ReadLimit:     64 * 1024,
	PingPeriod:    30 * time.Second,
	ChatPerMinute: 60,
}

// Controller upgrades meeting connections and dispatches their frames to
// the orchestration services.
type Controller struct {
	Handshake *app.Handshake
	Relay     *app.Relay
	Cleanup   *app.Cleanup

	limits  Limits
	chatGas *rateLimiter
}

// NewController wires the controller over the three services.
func NewController(h *app.Handshake, r *app.Relay, c *app.Cleanup, limits Limits) *Controller {
	if limits.ReadLimit <= 0 {
		limits.ReadLimit = DefaultLimits.ReadLimit
	}
	if limits.PingPeriod <= 0 {
		limits.PingPeriod = DefaultLimits.PingPeriod
	}
	if limits.ChatPerMinute <= 0 {
		limits.ChatPerMinute = DefaultLimits.ChatPerMinute
	}
	return &Controller{
		Handshake: h,
		Relay:     r,
		Cleanup:   c,
		limits:    limits,
		chatGas:   newRateLimiter(limits.ChatPerMinute, time.Minute),
	}
}

// wsConn implements core.SignalConnection over one socket. TrySend never
// blocks: a full send buffer means the peer is too slow and the frame is
// dropped.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{
		conn: conn,
		send: make(chan core.Frame, 64),
	}
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleMeeting upgrades the request and runs the connection's pumps. Each
// connection gets a fresh socket id; reconnecting means rejoining.
func (ctl *Controller) HandleMeeting(ctx context.Context, c *gin.Context) {
	sid := domain.SocketID(uuid.NewString())
	log.Info().Str("module", "ws").Str("sid", string(sid)).Str("user", c.GetString("user_id")).Msg("new meeting connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.limits.ReadLimit)

	conn := newWSConn(ws)
	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, sid, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}
