package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/park285/pvp-chess-server/internal/obslog"
	"github.com/park285/pvp-chess-server/pkg/chessdto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// conn is one client socket. Reads happen on the server's goroutine; writes go through
// egress so room fan-out never waits on the network.
type conn struct {
	id     string
	ws     *websocket.Conn
	egress chan chessdto.Envelope
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once

	mu    sync.Mutex
	seats map[string]string // room code → identity token
}

func newConn(id string, ws *websocket.Conn, queue int) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &conn{
		id:     id,
		ws:     ws,
		egress: make(chan chessdto.Envelope, queue),
		ctx:    ctx,
		cancel: cancel,
		seats:  make(map[string]string),
	}
}

func (c *conn) enqueue(env chessdto.Envelope) {
	select {
	case <-c.ctx.Done():
	case c.egress <- env:
	default:
		obslog.L().Warn("ws_slow_consumer", zap.String("conn", c.id), zap.String("type", env.Type))
		go c.close(websocket.StatusPolicyViolation, "slow consumer")
	}
}

func (c *conn) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case env := <-c.egress:
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := wsjson.Write(ctx, c.ws, env)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_write_error", zap.String("conn", c.id), zap.Error(err))
				c.close(websocket.StatusGoingAway, "write failure")
				return
			}
		}
	}
}

// pingLoop drops the connection after two consecutive failed pings.
func (c *conn) pingLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := c.ws.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				c.close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (c *conn) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.ws.Close(code, reason)
	})
}

func (c *conn) bind(code, identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seats[code] = identity
}

func (c *conn) unbind(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seats, code)
}

// identity returns the token this connection joined code with, or "".
func (c *conn) identity(code string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seats[code]
}
