package realtime

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024

	eventConnected = "connected"
	eventPing      = "ping"
	eventPong      = "pong"
)

// ConnectedEvent tells the browser which handle to send as socketId.
type ConnectedEvent struct {
	SocketID string `json:"socketId"`
}

type inbound struct {
	Event string `json:"event"`
}

// ServeWS upgrades the request to a WebSocket and attaches it to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return h.originAllowed(r.Header.Get("Origin"))
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remoteAddr", r.RemoteAddr, "error", err)
		return
	}

	id, events := h.Connect()
	c := &client{
		id:      id,
		hub:     h,
		conn:    conn,
		events:  events,
		replies: make(chan Message, 8),
		logger:  h.logger.With("connectionId", id),
	}
	c.replies <- Message{Event: eventConnected, Data: ConnectedEvent{SocketID: id}}

	go c.writePump()
	go c.readPump()
}

type client struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	events  <-chan Message
	replies chan Message
	logger  *slog.Logger
}

// readPump only watches for pings and for the connection going away.
func (c *client) readPump() {
	defer func() {
		c.hub.Disconnect(c.id)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("set read deadline", "error", err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("unexpected websocket close", "error", err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Event == eventPing {
			select {
			case c.replies <- Message{Event: eventPong}:
			default:
			}
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.events:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.write(msg); err != nil {
				return
			}

		case msg := <-c.replies:
			if err := c.write(msg); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) write(msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("encode realtime message", "event", msg.Event, "error", err)
		return nil
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.logger.Debug("write realtime message", "event", msg.Event, "error", err)
		return err
	}
	return nil
}
