package signaler

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/pion/webrtc/v3"
)

type SDP = webrtc.SessionDescription

type Candidate = webrtc.ICECandidateInit

// Event names carried on a session channel.
const (
	EventSignal      = "webrtc-signal"
	EventSessionEnd  = "session-end"
	EventLocation    = "location"
	EventCallRequest = "call-request"
)

// ChannelName is the broadcast channel both peers of a session bind to.
func ChannelName(sessionID string) string { return "session:" + sessionID }

// Transport opens named broadcast channels. Every subscriber of a name
// receives every message sent on it, the sender included.
type Transport interface {
	Channel(name string) (Channel, error)
}

// Channel is one binding to a named broadcast channel.
//
// Handlers registered with On run once per inbound message, in arrival
// order, from a single goroutine per Channel. Messages sent before Subscribe
// has returned may be dropped.
type Channel interface {
	On(event string, handler func(payload []byte))
	Subscribe(ctx context.Context) error
	Send(ctx context.Context, event string, payload []byte) error
	Close() error
}

// Envelope frames an event on transports without native event names.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var (
	ErrNotBound      = errors.New("signaler: channel not initialized, call SubscribeToSession first")
	ErrNotSubscribed = errors.New("signaler: channel is not subscribed")
	ErrClosed        = errors.New("signaler: channel is closed")
)
