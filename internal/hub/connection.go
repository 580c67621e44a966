package hub

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/veilchess/veilchess-server/internal/obslog"
	"github.com/veilchess/veilchess-server/pkg/wiredto"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

// Sender is the outbound half of a client connection. The broadcaster
// only ever sees this interface; tests plug in recorders.
type Sender interface {
	ID() string
	Send(ev wiredto.Envelope) bool
}

// wsSender wraps one websocket with a buffered egress pump. A consumer
// that cannot keep up gets dropped rather than stalling the room.
type wsSender struct {
	id   string
	sock *websocket.Conn

	send      chan wiredto.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

func newWSSender(id string, sock *websocket.Conn) *wsSender {
	return &wsSender{
		id:   id,
		sock: sock,
		send: make(chan wiredto.Envelope, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *wsSender) ID() string { return c.id }

func (c *wsSender) Send(ev wiredto.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		obslog.L().Warn("conn_send_overflow", zap.String("conn_id", c.id), zap.String("event", ev.Type))
		c.close(websocket.StatusPolicyViolation, "send buffer overflow")
		return false
	}
}

func (c *wsSender) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.sock.Close(code, reason)
	})
}

// writePump drains the send channel onto the socket until the
// connection dies.
func (c *wsSender) writePump(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			c.close(websocket.StatusGoingAway, "server shutdown")
			return
		case ev := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.sock, ev)
			cancel()
			if err != nil {
				c.close(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		}
	}
}
