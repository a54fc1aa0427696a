package wstransport

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/streamspace-dev/pluginrt/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Frame is the wire envelope for one RPC call or server push over the
// websocket connection. Request frames carry Op + Payload; response
// frames echo the request's ID and carry Result as [error?, value?].
type Frame struct {
	ID      string          `json:"id,omitempty"`
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// Conn is one connected RPC peer.
type Conn struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan Frame
}

func newConn(hub *Hub, wsConn *websocket.Conn) *Conn {
	return &Conn{id: uuid.NewString(), hub: hub, conn: wsConn, send: make(chan Frame, 256)}
}

// push enqueues a server-push frame without blocking the caller; a
// full send buffer marks the peer slow and its connection is dropped,
// matching the teacher's Hub.Broadcast backpressure handling.
func (c *Conn) push(frame Frame) {
	select {
	case c.send <- frame:
	default:
		logger.Transport().Warn().Str("conn", c.id).Msg("websocket peer send buffer full, dropping connection")
		c.hub.unregister <- c
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads request frames and hands each to handle. It exits
// when the connection closes.
func (c *Conn) readPump(handle func(frame Frame) (Frame, bool)) {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Transport().Debug().Err(err).Str("conn", c.id).Msg("websocket read error")
			}
			return
		}
		if response, ok := handle(frame); ok {
			c.push(response)
		}
	}
}
