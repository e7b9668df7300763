package tourrtc

import (
	"errors"

	"github.com/pion/webrtc/v3"
	"github.com/shynome/tourrtc/media"
	"github.com/shynome/tourrtc/signaler"
)

// Connection is the point-to-point media connection a Peer negotiates.
type Connection interface {
	AddTrack(track media.Track, stream *media.Stream) error
	CreateOffer() (signaler.SDP, error)
	CreateAnswer() (signaler.SDP, error)
	SetLocalDescription(sdp signaler.SDP) error
	SetRemoteDescription(sdp signaler.SDP) error
	HasRemoteDescription() bool
	AddICECandidate(c signaler.Candidate) error
	// Observe installs callbacks. It is called once, before negotiation.
	Observe(o Observer)
	Close() error
}

// Observer receives connection events. Callbacks may run on any goroutine
// and must not block.
type Observer struct {
	OnTrack              func(track media.Track)
	OnICECandidate       func(c signaler.Candidate)
	OnConnectionState    func(s webrtc.PeerConnectionState)
	OnICEConnectionState func(s webrtc.ICEConnectionState)
	OnICEGatheringState  func(s webrtc.ICEGathererState)
}

// ConnectionFactory creates the connection of one Peer.
type ConnectionFactory func(iceServers []webrtc.ICEServer) (Connection, error)

var ErrUnsupportedTrack = errors.New("tourrtc: track cannot be sent on this connection")

// DefaultICEServers are used when Config.ICEServers is empty.
var DefaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
	{URLs: []string{"stun:stun1.l.google.com:19302"}},
}
