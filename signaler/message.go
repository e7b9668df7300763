package signaler

import (
	"errors"
	"fmt"
	"time"
)

type MessageType string

const (
	TypeReady        MessageType = "ready"
	TypeOffer        MessageType = "offer"
	TypeAnswer       MessageType = "answer"
	TypeICECandidate MessageType = "ice-candidate"
	TypeSessionEnd   MessageType = "session-end"
)

// Message is the signaling wire format shared with every peer honoring the
// protocol. SDP is set for offer and answer, Candidate for ice-candidate.
type Message struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
	FromID    string      `json:"fromId"`
	ToID      string      `json:"toId"`
	SDP       *SDP        `json:"sdp,omitempty"`
	Candidate *Candidate  `json:"candidate,omitempty"`
}

var ErrInvalidMessage = errors.New("signaler: invalid message")

func (m Message) Validate() error {
	switch m.Type {
	case TypeReady, TypeSessionEnd:
	case TypeOffer, TypeAnswer:
		if m.SDP == nil {
			return fmt.Errorf("%w: %s without sdp", ErrInvalidMessage, m.Type)
		}
	case TypeICECandidate:
		if m.Candidate == nil {
			return fmt.Errorf("%w: ice-candidate without candidate", ErrInvalidMessage)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	if m.FromID == "" || m.ToID == "" {
		return fmt.Errorf("%w: %s missing fromId or toId", ErrInvalidMessage, m.Type)
	}
	return nil
}

// SignalPayload is the body of a webrtc-signal event.
type SignalPayload struct {
	SessionID string  `json:"sessionId"`
	Message   Message `json:"message"`
}

// SessionEnd is the body of a session-end event.
type SessionEnd struct {
	SessionID string `json:"sessionId"`
	FromID    string `json:"fromId"`
	ToID      string `json:"toId"`
	Timestamp string `json:"timestamp"`
}

func NewSessionEnd(sessionID, fromID, toID string) SessionEnd {
	return SessionEnd{
		SessionID: sessionID,
		FromID:    fromID,
		ToID:      toID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Location is the body of a location event: the driver's position as
// shared with the supporter during a session.
type Location struct {
	SessionID string   `json:"sessionId"`
	DriverID  string   `json:"driverId"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Heading   *float64 `json:"heading,omitempty"`
}

func (l Location) Validate() error {
	switch {
	case l.Latitude < -90 || l.Latitude > 90:
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidMessage, l.Latitude)
	case l.Longitude < -180 || l.Longitude > 180:
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidMessage, l.Longitude)
	case l.Heading != nil && (*l.Heading < 0 || *l.Heading > 360):
		return fmt.Errorf("%w: heading %v out of range", ErrInvalidMessage, *l.Heading)
	}
	return nil
}
