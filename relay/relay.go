// Package relay is the broadcast-channel server peers signal through.
//
// A channel is addressed by name and fans every message out to all of its
// subscribers, the sender included. Subscribers either hold an SSE stream
// (GET /sse?t={channel}, publishing with POST /sse?t={channel}&e={event})
// or a websocket (GET /ws/{channel}, exchanging {"event","payload"}
// frames). Both kinds share channels.
package relay

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/donovanhide/eventsource"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shynome/tourrtc/signaler"
)

// maxPayload bounds a published message body.
const maxPayload = 64 << 10

type Options struct {
	// AllowedOrigins enables the browser origin filter when not empty.
	AllowedOrigins []string
	// JWTSecret enables token auth on channel routes when set.
	JWTSecret string
}

type Relay struct {
	opts   Options
	logger *slog.Logger
	sse    *eventsource.Server
	ws     *hub
	engine *gin.Engine
}

func New(opts Options, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Relay{
		opts:   opts,
		logger: logger,
		sse:    eventsource.NewServer(),
		ws:     newHub(logger),
	}
	r.engine = r.routes()
	return r
}

func (r *Relay) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if len(r.opts.AllowedOrigins) > 0 {
		router.Use(OriginFilter(r.opts.AllowedOrigins))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	channels := router.Group("/")
	if r.opts.JWTSecret != "" {
		channels.Use(JWTAuth(r.opts.JWTSecret))
	}
	channels.GET("/sse", r.handleStream)
	channels.POST("/sse", r.handlePublish)
	channels.GET("/ws/:channel", r.handleWebSocket)
	return router
}

func (r *Relay) Handler() http.Handler { return r.engine }

// Publish fans payload out to every subscriber of channel.
func (r *Relay) Publish(channel string, event string, payload json.RawMessage) {
	r.sse.Publish([]string{channel}, &sseEvent{
		id:    uuid.NewString(),
		event: event,
		data:  string(payload),
	})
	frame, err := json.Marshal(signaler.Envelope{Event: event, Payload: payload})
	if err != nil {
		r.logger.Warn("dropping unencodable message", "channel", channel, "event", event, "error", err)
		return
	}
	r.ws.broadcast(channel, frame)
}

// Subscribers counts the websocket clients of channel.
func (r *Relay) Subscribers(channel string) int { return r.ws.count(channel) }

// Close ends every stream and websocket.
func (r *Relay) Close() {
	r.sse.Close()
	r.ws.closeAll()
}

func (r *Relay) handleStream(c *gin.Context) {
	channel := c.Query("t")
	if channel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "t is required"})
		return
	}
	r.logger.Debug("stream opened", "channel", channel)
	r.sse.Handler(channel)(c.Writer, c.Request)
	r.logger.Debug("stream closed", "channel", channel)
}

func (r *Relay) handlePublish(c *gin.Context) {
	channel, event := c.Query("t"), c.Query("e")
	if channel == "" || event == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "t and e are required"})
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxPayload))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	}
	if !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload must be JSON"})
		return
	}
	r.Publish(channel, event, body)
	c.Status(http.StatusNoContent)
}

type sseEvent struct {
	id    string
	event string
	data  string
}

func (e *sseEvent) Id() string    { return e.id }
func (e *sseEvent) Event() string { return e.event }
func (e *sseEvent) Data() string  { return e.data }
