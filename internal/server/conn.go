package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/koltyakov/miniaccounts/internal/btp"
)

const wsWriteTimeout = 10 * time.Second

type connState uint8

const (
	stateAwaitingAuth connState = iota
	stateAuthenticated
)

// conn is one client WebSocket. state and account are owned by the read
// loop; account is stable once the state is authenticated.
type conn struct {
	id     string
	ws     *websocket.Conn
	req    *http.Request
	remote string

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	state   connState
	account string

	writeMu sync.Mutex
	closed  atomic.Bool
}

func (c *conn) writeFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		_ = c.ws.Close()
		return err
	}
	defer func() { _ = c.ws.SetWriteDeadline(time.Time{}) }()
	err := c.ws.WriteMessage(websocket.BinaryMessage, frame)
	if err != nil {
		_ = c.ws.Close()
	}
	return err
}

func (c *conn) writePacket(p *btp.Packet) error {
	frame, err := btp.Serialize(p)
	if err != nil {
		return err
	}
	return c.writeFrame(frame)
}

func (c *conn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

// close sends a close frame and drops the socket; the read loop then exits.
func (c *conn) close(code int, text string) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	msg := websocket.FormatCloseMessage(code, text)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = c.ws.Close()
}
