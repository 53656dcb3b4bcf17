package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// ErrConnClosed is returned by Send after the connection's write pump exited.
var ErrConnClosed = errors.New("realtime: connection closed")

// Conn adapts a gorilla websocket to the hub's connection contract. Outbound
// messages go through a buffered channel drained by a single write pump, so
// Send never touches the socket concurrently and never blocks past its
// context.
type Conn struct {
	id     string
	userID int64
	roomID int64

	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
}

// NewConn wraps ws with a fresh connection identity.
func NewConn(ws *websocket.Conn, roomID, userID int64, sendBuffer int) *Conn {
	return &Conn{
		id:     xid.New().String(),
		userID: userID,
		roomID: roomID,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *Conn) ID() string    { return c.id }
func (c *Conn) UserID() int64 { return c.userID }
func (c *Conn) RoomID() int64 { return c.roomID }

// Send queues one outbound message. It fails once the write pump has exited
// or when the queue stays full past ctx's deadline.
func (c *Conn) Send(ctx context.Context, message []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- message:
		return nil
	case <-c.done:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the underlying transport. The read loop observing the closed
// socket drives unregistration; Close itself does not.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// writePump owns all writes on the socket. It exits when the socket breaks or
// the read side closed the connection, marking the connection dead for Send.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.done)
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop blocks until the client disconnects or the socket errors. Inbound
// frames are liveness signals only; payloads are discarded.
func (c *Conn) readLoop() error {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return err
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
	}
}
