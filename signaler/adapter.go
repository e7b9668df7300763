package signaler

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// Signaler multiplexes signaling and termination messages over the one
// broadcast channel of a session.
type Signaler struct {
	transport Transport
	logger    *slog.Logger

	mu        sync.Mutex
	sessionID string
	channel   Channel

	onSignal   []func(Message)
	onEnd      []func(SessionEnd)
	onLocation []func(Location)
}

func New(transport Transport, logger *slog.Logger) *Signaler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signaler{
		transport: transport,
		logger:    logger,
	}
}

// SubscribeToSession binds to the channel of sessionID. Binding the same
// session again is a no-op; binding another session releases the old one.
func (s *Signaler) SubscribeToSession(sessionID string) (err error) {
	defer err2.Handle(&err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel != nil {
		if s.sessionID == sessionID {
			return nil
		}
		s.releaseLocked()
	}

	ch := try.To1(s.transport.Channel(ChannelName(sessionID)))
	ch.On(EventSignal, func(payload []byte) { s.dispatchSignal(ch, payload) })
	ch.On(EventSessionEnd, func(payload []byte) { s.dispatchEnd(ch, payload) })
	ch.On(EventLocation, func(payload []byte) { s.dispatchLocation(ch, payload) })
	s.sessionID = sessionID
	s.channel = ch
	return nil
}

func (s *Signaler) bound() (Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel == nil {
		return nil, ErrNotBound
	}
	return s.channel, nil
}

// Subscribe activates delivery and returns once the transport has
// confirmed the subscription.
func (s *Signaler) Subscribe(ctx context.Context) error {
	ch, err := s.bound()
	if err != nil {
		return err
	}
	return ch.Subscribe(ctx)
}

func (s *Signaler) OnWebRTCSignal(fn func(Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel == nil {
		return ErrNotBound
	}
	s.onSignal = append(s.onSignal, fn)
	return nil
}

func (s *Signaler) OnSessionEnd(fn func(SessionEnd)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel == nil {
		return ErrNotBound
	}
	s.onEnd = append(s.onEnd, fn)
	return nil
}

func (s *Signaler) OnLocationUpdate(fn func(Location)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel == nil {
		return ErrNotBound
	}
	s.onLocation = append(s.onLocation, fn)
	return nil
}

func (s *Signaler) BroadcastWebRTCSignal(ctx context.Context, sessionID string, msg Message) (err error) {
	defer err2.Handle(&err)

	ch := try.To1(s.bound())
	payload := try.To1(json.Marshal(SignalPayload{SessionID: sessionID, Message: msg}))
	try.To(ch.Send(ctx, EventSignal, payload))
	return nil
}

func (s *Signaler) BroadcastSessionEnd(ctx context.Context, sessionID, fromID, toID string) (err error) {
	defer err2.Handle(&err)

	ch := try.To1(s.bound())
	payload := try.To1(json.Marshal(NewSessionEnd(sessionID, fromID, toID)))
	try.To(ch.Send(ctx, EventSessionEnd, payload))
	return nil
}

// BroadcastLocation shares a position on the session channel. The sessionID
// argument overrides loc.SessionID.
func (s *Signaler) BroadcastLocation(ctx context.Context, sessionID string, loc Location) (err error) {
	defer err2.Handle(&err)

	ch := try.To1(s.bound())
	loc.SessionID = sessionID
	try.To(loc.Validate())
	payload := try.To1(json.Marshal(loc))
	try.To(ch.Send(ctx, EventLocation, payload))
	return nil
}

// Unsubscribe releases the channel. No handler runs after it returns.
func (s *Signaler) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked()
}

func (s *Signaler) releaseLocked() error {
	ch := s.channel
	if ch == nil {
		return nil
	}
	s.channel = nil
	s.sessionID = ""
	s.onSignal = nil
	s.onEnd = nil
	s.onLocation = nil
	return ch.Close()
}

// handlers returns the registered handlers while ch is still the live
// binding; deliveries racing an Unsubscribe get nothing.
func (s *Signaler) handlers(ch Channel) ([]func(Message), []func(SessionEnd)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel != ch {
		return nil, nil
	}
	return slices.Clone(s.onSignal), slices.Clone(s.onEnd)
}

func (s *Signaler) dispatchSignal(ch Channel, payload []byte) {
	onSignal, _ := s.handlers(ch)
	if len(onSignal) == 0 {
		return
	}
	var body SignalPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		s.logger.Warn("dropping undecodable signal", "error", err)
		return
	}
	if err := body.Message.Validate(); err != nil {
		s.logger.Warn("dropping malformed signal", "error", err)
		return
	}
	for _, fn := range onSignal {
		fn(body.Message)
	}
}

func (s *Signaler) dispatchEnd(ch Channel, payload []byte) {
	_, onEnd := s.handlers(ch)
	if len(onEnd) == 0 {
		return
	}
	var end SessionEnd
	if err := json.Unmarshal(payload, &end); err != nil {
		s.logger.Warn("dropping undecodable session-end", "error", err)
		return
	}
	for _, fn := range onEnd {
		fn(end)
	}
}

func (s *Signaler) dispatchLocation(ch Channel, payload []byte) {
	s.mu.Lock()
	var onLocation []func(Location)
	if s.channel == ch {
		onLocation = slices.Clone(s.onLocation)
	}
	s.mu.Unlock()
	if len(onLocation) == 0 {
		return
	}
	var loc Location
	if err := json.Unmarshal(payload, &loc); err != nil {
		s.logger.Warn("dropping undecodable location", "error", err)
		return
	}
	if err := loc.Validate(); err != nil {
		s.logger.Warn("dropping malformed location", "error", err)
		return
	}
	for _, fn := range onLocation {
		fn(loc)
	}
}
