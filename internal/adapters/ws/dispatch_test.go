package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SONUshilla/VideoCallingBackend/internal/app"
	"github.com/SONUshilla/VideoCallingBackend/internal/core"
)

// drain pulls every buffered frame off the connection.
func drain(c *wsConn) []ackEnvelope {
	var out []ackEnvelope
	for {
		select {
		case f := <-c.send:
			var env ackEnvelope
			if json.Unmarshal(f, &env) == nil {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func newTestController() (*Controller, *wsConn) {
	return NewController(nil, nil, nil, Limits{}), newWSConn(nil)
}

func TestAckCarriesCorrelationID(t *testing.T) {
	ctl, conn := newTestController()

	ctl.ack(conn, envelope{Type: "produce", RID: "42"}, map[string]string{"id": "s-1"})

	acks := drain(conn)
	require.Len(t, acks, 1)
	assert.Equal(t, "ack", acks[0].Type)
	assert.Equal(t, "42", acks[0].RID)
	assert.Nil(t, acks[0].Error)
}

func TestAckSkippedWithoutRID(t *testing.T) {
	ctl, conn := newTestController()
	ctl.ack(conn, envelope{Type: "typing"}, nil)
	assert.Empty(t, drain(conn))
}

func TestNackMapsStructuredErrors(t *testing.T) {
	ctl, conn := newTestController()

	ctl.nack("sid", conn, envelope{Type: "consume", RID: "7"}, app.BadRequest("missing producerId"))

	acks := drain(conn)
	require.Len(t, acks, 1)
	require.NotNil(t, acks[0].Error)
	assert.Equal(t, string(app.ErrCodeBadRequest), acks[0].Error.Code)
	assert.Equal(t, "missing producerId", acks[0].Error.Message)
}

func TestNackHidesUnclassifiedErrors(t *testing.T) {
	ctl, conn := newTestController()

	ctl.nack("sid", conn, envelope{Type: "consume", RID: "7"}, assert.AnError)

	acks := drain(conn)
	require.Len(t, acks, 1)
	require.NotNil(t, acks[0].Error)
	assert.Equal(t, string(app.ErrCodeInternal), acks[0].Error.Code)
	assert.Equal(t, "internal error", acks[0].Error.Message, "internal details must not leak to clients")
}

func TestDecodeRejectsEmptyAndMalformedData(t *testing.T) {
	type payload struct {
		RoomID string `json:"roomId"`
	}

	_, err := decode[payload](envelope{Type: "joinRoom"})
	assert.Error(t, err)

	_, err = decode[payload](envelope{Type: "joinRoom", Data: json.RawMessage(`{bad`)})
	assert.Error(t, err)

	p, err := decode[payload](envelope{Type: "joinRoom", Data: json.RawMessage(`{"roomId":"meet-1"}`)})
	require.NoError(t, err)
	assert.Equal(t, "meet-1", p.RoomID)
}

func TestTrySendAfterCloseFails(t *testing.T) {
	conn := newWSConn(nil)
	conn.mu.Lock()
	conn.closed = true
	conn.mu.Unlock()
	assert.Error(t, conn.TrySend(core.Frame(`{}`)))
}

func TestTrySendBackpressure(t *testing.T) {
	conn := &wsConn{conn: nil, send: make(chan core.Frame, 1)}
	require.NoError(t, conn.TrySend(core.Frame(`{}`)))
	assert.ErrorIs(t, conn.TrySend(core.Frame(`{}`)), ErrBackpressure)
}
