package tourrtc

import (
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/pion/ice/v2"
	"github.com/pion/webrtc/v3"
	"github.com/shynome/tourrtc/media"
	"github.com/shynome/tourrtc/mux"
	"github.com/shynome/tourrtc/signaler"
)

// API builds pion PeerConnections sharing one media and setting engine.
type API struct {
	api *webrtc.API
	mux ice.UDPMux
}

// NewAPI registers the default codecs. A non-zero udpPort routes all ICE
// traffic through a single UDP port.
func NewAPI(udpPort uint16) (a *API, err error) {
	defer err2.Handle(&err)

	m := &webrtc.MediaEngine{}
	try.To(m.RegisterDefaultCodecs())

	a = &API{}
	settingEngine := webrtc.SettingEngine{}
	if udpPort != 0 {
		a.mux = try.To1(mux.Listen(&settingEngine, udpPort))
	}
	a.api = webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithSettingEngine(settingEngine),
	)
	return a, nil
}

// NewConnection is a ConnectionFactory.
func (a *API) NewConnection(iceServers []webrtc.ICEServer) (Connection, error) {
	pc, err := a.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: iceServers,
	})
	if err != nil {
		return nil, err
	}
	return &pionConnection{pc: pc}, nil
}

func (a *API) Close() error {
	if a.mux != nil {
		return a.mux.Close()
	}
	return nil
}

type pionConnection struct {
	pc *webrtc.PeerConnection
}

var _ Connection = (*pionConnection)(nil)

// AddTrack sends track. The stream grouping travels inside the pion track,
// which was created with the stream id.
func (c *pionConnection) AddTrack(track media.Track, _ *media.Stream) error {
	local, ok := track.(media.LocalTrack)
	if !ok {
		return ErrUnsupportedTrack
	}
	_, err := c.pc.AddTrack(local.TrackLocal())
	return err
}

func (c *pionConnection) CreateOffer() (signaler.SDP, error)  { return c.pc.CreateOffer(nil) }
func (c *pionConnection) CreateAnswer() (signaler.SDP, error) { return c.pc.CreateAnswer(nil) }

func (c *pionConnection) SetLocalDescription(sdp signaler.SDP) error {
	return c.pc.SetLocalDescription(sdp)
}

func (c *pionConnection) SetRemoteDescription(sdp signaler.SDP) error {
	return c.pc.SetRemoteDescription(sdp)
}

func (c *pionConnection) HasRemoteDescription() bool { return c.pc.RemoteDescription() != nil }

func (c *pionConnection) AddICECandidate(candidate signaler.Candidate) error {
	return c.pc.AddICECandidate(candidate)
}

func (c *pionConnection) Observe(o Observer) {
	if o.OnTrack != nil {
		c.pc.OnTrack(func(t *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			o.OnTrack(media.NewRemoteTrack(t))
		})
	}
	if o.OnICECandidate != nil {
		c.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
			// nil marks the end of gathering
			if candidate == nil {
				return
			}
			o.OnICECandidate(candidate.ToJSON())
		})
	}
	if o.OnConnectionState != nil {
		c.pc.OnConnectionStateChange(o.OnConnectionState)
	}
	if o.OnICEConnectionState != nil {
		c.pc.OnICEConnectionStateChange(o.OnICEConnectionState)
	}
	if o.OnICEGatheringState != nil {
		c.pc.OnICEGatheringStateChange(o.OnICEGatheringState)
	}
}

func (c *pionConnection) Close() error { return c.pc.Close() }
