// Package local is an in-process broadcast transport. Peers sharing a Hub
// exchange messages without any network; tests and the example use it.
package local

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/shynome/tourrtc/internal/fifo"
	"github.com/shynome/tourrtc/signaler"
)

type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Binding]struct{}
	taps     []func(Delivery)
}

// Delivery is one message fanned out by the hub.
type Delivery struct {
	ID      string
	Channel string
	Event   string
	Payload []byte
}

func NewHub() *Hub {
	return &Hub{
		channels: make(map[string]map[*Binding]struct{}),
	}
}

var _ signaler.Transport = (*Hub)(nil)

func (hub *Hub) Channel(name string) (signaler.Channel, error) {
	return hub.Bind(name), nil
}

func (hub *Hub) Bind(name string) *Binding {
	return &Binding{
		hub:      hub,
		name:     name,
		handlers: make(map[string][]func([]byte)),
		inbox:    fifo.New[Delivery](),
		done:     make(chan struct{}),
	}
}

// Tap registers fn to observe every message sent through the hub.
func (hub *Hub) Tap(fn func(Delivery)) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.taps = append(hub.taps, fn)
}

// Subscribers counts the subscribed bindings of a channel.
func (hub *Hub) Subscribers(name string) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.channels[name])
}

func (hub *Hub) publish(d Delivery) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for _, tap := range hub.taps {
		tap(d)
	}
	for b := range hub.channels[d.Channel] {
		b.inbox.Push(d)
	}
}

func (hub *Hub) register(b *Binding) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	subs, ok := hub.channels[b.name]
	if !ok {
		subs = make(map[*Binding]struct{})
		hub.channels[b.name] = subs
	}
	subs[b] = struct{}{}
}

func (hub *Hub) unregister(b *Binding) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	subs := hub.channels[b.name]
	delete(subs, b)
	if len(subs) == 0 {
		delete(hub.channels, b.name)
	}
}

// Binding is one subscriber's view of a hub channel.
type Binding struct {
	hub  *Hub
	name string

	mu         sync.Mutex
	handlers   map[string][]func([]byte)
	subscribed bool
	closed     bool

	inbox *fifo.Queue[Delivery]
	done  chan struct{}
	once  sync.Once
}

var _ signaler.Channel = (*Binding)(nil)

func (b *Binding) On(event string, handler func(payload []byte)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], handler)
}

func (b *Binding) Subscribe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return signaler.ErrClosed
	}
	if b.subscribed {
		return nil
	}
	b.subscribed = true
	b.hub.register(b)
	go b.deliver()
	return nil
}

func (b *Binding) Send(ctx context.Context, event string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return signaler.ErrClosed
	}
	b.hub.publish(Delivery{
		ID:      uuid.NewString(),
		Channel: b.name,
		Event:   event,
		Payload: append([]byte(nil), payload...),
	})
	return nil
}

func (b *Binding) deliver() {
	for {
		select {
		case <-b.done:
			return
		case <-b.inbox.Ready():
		}
		for _, d := range b.inbox.Drain() {
			b.mu.Lock()
			handlers := slices.Clone(b.handlers[d.Event])
			closed := b.closed
			b.mu.Unlock()
			if closed {
				return
			}
			for _, fn := range handlers {
				fn(d.Payload)
			}
		}
	}
}

func (b *Binding) Close() error {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		subscribed := b.subscribed
		b.mu.Unlock()
		if subscribed {
			b.hub.unregister(b)
		}
		b.inbox.Close()
		close(b.done)
	})
	return nil
}
