// Package ws is a broadcast transport over a relay websocket: one
// connection per channel at {endpoint}/ws/{channel}, carrying
// {"event","payload"} frames. The relay acknowledges a new connection with
// a "subscribed" frame before fanning anything out to it.
//
// A dropped connection is redialed with backoff until the channel is
// closed. Events broadcast while disconnected are not replayed.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/shynome/tourrtc/signaler"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 10 * time.Second
	maxRedial   = 30 * time.Second
	// EventSubscribed acknowledges the subscription.
	EventSubscribed = "subscribed"
)

var ErrNoAck = errors.New("ws: relay did not acknowledge the subscription")

// minRedial is the first redial delay; it doubles up to maxRedial.
var minRedial = time.Second

type Transport struct {
	endpoint *url.URL
	header   http.Header
	dialer   *websocket.Dialer
	logger   *slog.Logger
}

type Option func(*Transport)

func WithToken(token string) Option {
	return func(t *Transport) { t.header.Set("Authorization", "Bearer "+token) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// New accepts ws, wss, http and https endpoints.
func New(endpoint string, opts ...Option) (t *Transport, err error) {
	defer err2.Handle(&err)

	u := try.To1(url.Parse(endpoint))
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("ws: unsupported endpoint scheme %q", u.Scheme)
	}
	t = &Transport{
		endpoint: u,
		header:   http.Header{},
		dialer:   websocket.DefaultDialer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

var _ signaler.Transport = (*Transport)(nil)

func (t *Transport) Channel(name string) (signaler.Channel, error) {
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		ctx:      ctx,
		cancel:   cancel,
		t:        t,
		name:     name,
		handlers: make(map[string][]func([]byte)),
		logger:   t.logger.With("channel", name),
	}, nil
}

func (t *Transport) channelURL(name string) string {
	u := *t.endpoint
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/" + name
	return u.String()
}

type Channel struct {
	// ctx bounds redials; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	t      *Transport
	name   string
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[string][]func([]byte)
	conn     *websocket.Conn
	closed   bool

	writeMu sync.Mutex
}

var _ signaler.Channel = (*Channel)(nil)

func (ch *Channel) On(event string, handler func(payload []byte)) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.handlers[event] = append(ch.handlers[event], handler)
}

// Subscribe dials the relay and waits for its acknowledgement.
func (ch *Channel) Subscribe(ctx context.Context) error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return signaler.ErrClosed
	}
	if ch.conn != nil {
		ch.mu.Unlock()
		return nil
	}
	ch.mu.Unlock()

	conn, err := ch.dial(ctx)
	if err != nil {
		return err
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed || ch.conn != nil {
		conn.Close()
		if ch.closed {
			return signaler.ErrClosed
		}
		return nil
	}
	ch.conn = conn
	go ch.readLoop(conn)
	return nil
}

func (ch *Channel) dial(ctx context.Context) (conn *websocket.Conn, err error) {
	defer func() {
		if err != nil && conn != nil {
			conn.Close()
			conn = nil
		}
	}()
	defer err2.Handle(&err)

	conn, res, err := ch.t.dialer.DialContext(ctx, ch.t.channelURL(ch.name), ch.t.header)
	if err != nil {
		if res != nil {
			return nil, fmt.Errorf("ws: dial %s: %w (status %s)", ch.name, err, res.Status)
		}
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		try.To(conn.SetReadDeadline(deadline))
	}
	_, frame := try.To2(conn.ReadMessage())
	var env signaler.Envelope
	try.To(json.Unmarshal(frame, &env))
	if env.Event != EventSubscribed {
		return conn, fmt.Errorf("%w: got %q", ErrNoAck, env.Event)
	}
	try.To(conn.SetReadDeadline(time.Time{}))
	return conn, nil
}

// readLoop delivers frames and redials whenever the connection drops.
// Pings from the relay are answered by the connection's default handler.
func (ch *Channel) readLoop(conn *websocket.Conn) {
	for {
		err := ch.read(conn)
		if ch.isClosed() {
			return
		}
		ch.logger.Warn("relay connection lost", "error", err)
		if conn = ch.redial(); conn == nil {
			return
		}
	}
}

func (ch *Channel) read(conn *websocket.Conn) error {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env signaler.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			ch.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		ch.mu.Lock()
		handlers := slices.Clone(ch.handlers[env.Event])
		closed := ch.closed
		ch.mu.Unlock()
		if closed {
			return nil
		}
		for _, fn := range handlers {
			fn(env.Payload)
		}
	}
}

// redial returns the new connection, or nil once the channel is closed.
func (ch *Channel) redial() *websocket.Conn {
	delay := minRedial
	for {
		select {
		case <-ch.ctx.Done():
			return nil
		case <-time.After(delay):
		}
		dialCtx, cancel := context.WithTimeout(ch.ctx, dialTimeout)
		conn, err := ch.dial(dialCtx)
		cancel()
		if err != nil {
			ch.logger.Warn("redial failed", "error", err, "retry-in", delay)
			delay = min(delay*2, maxRedial)
			continue
		}
		ch.mu.Lock()
		if ch.closed {
			ch.mu.Unlock()
			conn.Close()
			return nil
		}
		old := ch.conn
		ch.conn = conn
		ch.mu.Unlock()
		old.Close()
		ch.logger.Info("relay connection restored")
		return conn
	}
}

func (ch *Channel) isClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

func (ch *Channel) Send(ctx context.Context, event string, payload []byte) (err error) {
	defer err2.Handle(&err)

	ch.mu.Lock()
	conn, closed := ch.conn, ch.closed
	ch.mu.Unlock()
	switch {
	case closed:
		return signaler.ErrClosed
	case conn == nil:
		return signaler.ErrNotSubscribed
	}

	frame := try.To1(json.Marshal(signaler.Envelope{Event: event, Payload: payload}))
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	try.To(conn.SetWriteDeadline(deadline))
	try.To(conn.WriteMessage(websocket.TextMessage, frame))
	return nil
}

func (ch *Channel) Close() error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil
	}
	ch.closed = true
	conn := ch.conn
	ch.mu.Unlock()
	ch.cancel()
	if conn == nil {
		return nil
	}

	ch.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ch.writeMu.Unlock()
	return conn.Close()
}
