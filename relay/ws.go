package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shynome/tourrtc/signaler"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
	// EventSubscribed is the first frame of every websocket connection.
	EventSubscribed = "subscribed"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origins are checked by OriginFilter
	CheckOrigin: func(r *http.Request) bool { return true },
}

// hub tracks the websocket clients of every channel.
type hub struct {
	mu       sync.RWMutex
	channels map[string]map[*wsClient]struct{}
	logger   *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		channels: make(map[string]map[*wsClient]struct{}),
		logger:   logger,
	}
}

type wsClient struct {
	id      string
	channel string
	conn    *websocket.Conn
	send    chan []byte
}

func (h *hub) add(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.channels[c.channel]
	if !ok {
		clients = make(map[*wsClient]struct{})
		h.channels[c.channel] = clients
	}
	clients[c] = struct{}{}
}

func (h *hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.channels[c.channel]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.channels, c.channel)
	}
}

func (h *hub) broadcast(channel string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.channels[channel] {
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("dropping frame, client buffer full", "client", c.id, "channel", channel)
		}
	}
}

func (h *hub) count(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.channels {
		for c := range clients {
			close(c.send)
		}
	}
	h.channels = make(map[string]map[*wsClient]struct{})
}

func (r *Relay) handleWebSocket(c *gin.Context) {
	channel := c.Param("channel")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := &wsClient{
		id:      uuid.NewString(),
		channel: channel,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
	}
	// queued ahead of any broadcast, so it is always the first frame
	ack, _ := json.Marshal(signaler.Envelope{Event: EventSubscribed})
	client.send <- ack
	r.ws.add(client)
	r.logger.Info("websocket joined", "client", client.id, "channel", channel)

	go r.writePump(client)
	go r.readPump(client)
}

func (r *Relay) readPump(c *wsClient) {
	defer func() {
		r.ws.remove(c)
		c.conn.Close()
		r.logger.Info("websocket left", "client", c.id, "channel", c.channel)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				r.logger.Warn("websocket read", "client", c.id, "error", err)
			}
			return
		}
		var env signaler.Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
			r.logger.Warn("dropping malformed frame", "client", c.id, "error", err)
			continue
		}
		r.Publish(c.channel, env.Event, env.Payload)
	}
}

func (r *Relay) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				r.logger.Warn("websocket write", "client", c.id, "error", err)
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
