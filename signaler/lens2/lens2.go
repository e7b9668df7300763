// Package lens2 is a broadcast transport over a lens2-style HTTP relay:
// subscribers hold an SSE stream on GET ?t={channel}, publishers POST the
// payload to ?t={channel}&e={event}.
//
// Credentials come from the endpoint URL userinfo (basic auth) or from a
// bearer token.
package lens2

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/donovanhide/eventsource"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/shynome/tourrtc/signaler"
)

type Transport struct {
	client *client
	logger *slog.Logger
}

type Option func(*Transport)

// WithToken authenticates with a bearer token instead of URL userinfo.
func WithToken(token string) Option {
	return func(t *Transport) { t.client.token = token }
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

func New(endpoint string, opts ...Option) (t *Transport, err error) {
	defer err2.Handle(&err)

	t = &Transport{
		client: try.To1(newClient(endpoint, "")),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

var _ signaler.Transport = (*Transport)(nil)

func (t *Transport) Channel(name string) (signaler.Channel, error) {
	return &Channel{
		t:        t,
		name:     name,
		handlers: make(map[string][]func([]byte)),
		logger:   t.logger.With("channel", name),
	}, nil
}

type Channel struct {
	t      *Transport
	name   string
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[string][]func([]byte)
	stream   *eventsource.Stream
	cancel   context.CancelFunc
	done     chan struct{}
	closed   bool
}

var _ signaler.Channel = (*Channel)(nil)

func (ch *Channel) On(event string, handler func(payload []byte)) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.handlers[event] = append(ch.handlers[event], handler)
}

// Subscribe opens the event stream. It returns once the relay answered the
// stream request, which is when it starts fanning messages out to us.
func (ch *Channel) Subscribe(ctx context.Context) error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return signaler.ErrClosed
	}
	if ch.stream != nil {
		ch.mu.Unlock()
		return nil
	}
	ch.mu.Unlock()

	// the stream outlives ctx, which only bounds the connect
	streamCtx, cancel := context.WithCancel(context.Background())
	stream, err := ch.connect(ctx, streamCtx)
	if err != nil {
		cancel()
		return err
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed || ch.stream != nil {
		stream.Close()
		cancel()
		if ch.closed {
			return signaler.ErrClosed
		}
		return nil
	}
	ch.stream = stream
	ch.cancel = cancel
	ch.done = make(chan struct{})
	go ch.drainErrors(stream, ch.done)
	go ch.deliver(stream, ch.done)
	return nil
}

func (ch *Channel) connect(ctx, streamCtx context.Context) (stream *eventsource.Stream, err error) {
	defer err2.Handle(&err)

	req := try.To1(ch.t.client.newReq(streamCtx, http.MethodGet, ch.name, "", http.NoBody))
	type result struct {
		stream *eventsource.Stream
		err    error
	}
	connected := make(chan result, 1)
	go func() {
		stream, err := eventsource.SubscribeWithRequest("", req)
		connected <- result{stream, err}
	}()
	select {
	case r := <-connected:
		return r.stream, r.err
	case <-ctx.Done():
		go func() {
			if r := <-connected; r.stream != nil {
				r.stream.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// deliver runs the handlers of one stream. Stream.Close does not close the
// stream's channels, so both loops also watch done.
func (ch *Channel) deliver(stream *eventsource.Stream, done <-chan struct{}) {
	for {
		var ev eventsource.Event
		select {
		case <-done:
			return
		case e, ok := <-stream.Events:
			if !ok {
				return
			}
			ev = e
		}
		ch.mu.Lock()
		handlers := slices.Clone(ch.handlers[ev.Event()])
		ch.mu.Unlock()
		payload := []byte(ev.Data())
		for _, fn := range handlers {
			fn(payload)
		}
	}
}

// drainErrors keeps the stream's reconnect loop from blocking on its
// error channel.
func (ch *Channel) drainErrors(stream *eventsource.Stream, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case err, ok := <-stream.Errors:
			if !ok {
				return
			}
			ch.logger.Warn("event stream", "error", err)
		}
	}
}

func (ch *Channel) Send(ctx context.Context, event string, payload []byte) (err error) {
	defer err2.Handle(&err)

	ch.mu.Lock()
	closed := ch.closed
	ch.mu.Unlock()
	if closed {
		return signaler.ErrClosed
	}
	req := try.To1(ch.t.client.newReq(ctx, http.MethodPost, ch.name, event, bytes.NewReader(payload)))
	req.Header.Set("Content-Type", "application/json")
	res := try.To1(ch.t.client.doReq(req))
	res.Body.Close()
	return nil
}

func (ch *Channel) Close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return nil
	}
	ch.closed = true
	if ch.stream != nil {
		close(ch.done)
		ch.stream.Close()
		ch.cancel()
	}
	return nil
}
