package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

// Envelope is the JSON frame sent to clients. Clients pull state over HTTP
// after a signal; frames carry no message bodies.
type Envelope struct {
	Type string `json:"type"`
	At   int64  `json:"at"`
}

type Connection struct {
	ws     *websocket.Conn
	send   chan []byte
	handle string
	userID string
	srv    *Server

	closeOnce sync.Once
	done      chan struct{}
}

func newConnection(conn *websocket.Conn, handle, userID string, srv *Server) *Connection {
	return &Connection{
		ws:     conn,
		send:   make(chan []byte, 64),
		handle: handle,
		userID: userID,
		srv:    srv,
		done:   make(chan struct{}),
	}
}

// enqueue never blocks; a full buffer means the client is not keeping up.
func (c *Connection) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// close runs the disconnect path exactly once, however many pumps call it.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.srv.detach(c)
	})
}

func (c *Connection) readPump() {
	defer c.close()
	cfg := c.srv.cfg
	readWait := cfg.PingInterval * 2
	c.ws.SetReadLimit(cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(readWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(readWait))
		if mt != websocket.TextMessage {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if env.Type == "ping" {
			b, _ := json.Marshal(Envelope{Type: "pong", At: time.Now().Unix()})
			c.enqueue(b)
		}
	}
}

func (c *Connection) writePump() {
	cfg := c.srv.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.ws.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case b := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteDeadline))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				c.srv.log.Debugw("ws write failed", "user", c.userID, "handle", c.handle, "err", err)
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(cfg.WriteDeadline)); err != nil {
				return
			}
		}
	}
}
