// Package redisps is a broadcast transport over Redis pub/sub. A channel
// maps onto the Redis channel of the same name; messages are
// {"event","payload"} envelopes.
package redisps

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/redis/go-redis/v9"
	"github.com/shynome/tourrtc/signaler"
)

// Connect opens a client and checks the server answers.
func Connect(ctx context.Context, opts *redis.Options) (*redis.Client, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

type Transport struct {
	client *redis.Client
	logger *slog.Logger
}

func New(client *redis.Client, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{client: client, logger: logger}
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
	pubsub   *redis.PubSub
	closed   bool
}

var _ signaler.Channel = (*Channel)(nil)

func (ch *Channel) On(event string, handler func(payload []byte)) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.handlers[event] = append(ch.handlers[event], handler)
}

// Subscribe returns after Redis confirmed the subscription.
func (ch *Channel) Subscribe(ctx context.Context) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	switch {
	case ch.closed:
		return signaler.ErrClosed
	case ch.pubsub != nil:
		return nil
	}

	pubsub := ch.t.client.Subscribe(ctx, ch.name)
	reply, err := pubsub.Receive(ctx)
	if err != nil {
		pubsub.Close()
		return err
	}
	if _, ok := reply.(*redis.Subscription); !ok {
		pubsub.Close()
		return fmt.Errorf("redisps: unexpected subscribe reply %T", reply)
	}
	ch.pubsub = pubsub
	go ch.deliver(pubsub.Channel())
	return nil
}

func (ch *Channel) deliver(messages <-chan *redis.Message) {
	for msg := range messages {
		event, payload, err := decode([]byte(msg.Payload))
		if err != nil {
			ch.logger.Warn("dropping malformed message", "error", err)
			continue
		}
		ch.mu.Lock()
		handlers := slices.Clone(ch.handlers[event])
		closed := ch.closed
		ch.mu.Unlock()
		if closed {
			return
		}
		for _, fn := range handlers {
			fn(payload)
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
	msg := try.To1(encode(event, payload))
	try.To(ch.t.client.Publish(ctx, ch.name, msg).Err())
	return nil
}

func (ch *Channel) Close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return nil
	}
	ch.closed = true
	if ch.pubsub != nil {
		return ch.pubsub.Close()
	}
	return nil
}

func encode(event string, payload []byte) ([]byte, error) {
	return json.Marshal(signaler.Envelope{Event: event, Payload: payload})
}

func decode(msg []byte) (event string, payload []byte, err error) {
	var env signaler.Envelope
	if err = json.Unmarshal(msg, &env); err != nil {
		return
	}
	if env.Event == "" {
		return "", nil, fmt.Errorf("redisps: envelope without event")
	}
	return env.Event, env.Payload, nil
}
