package tourrtc

import (
	"context"

	"github.com/pion/webrtc/v3"
	"github.com/shynome/tourrtc/media"
	"github.com/shynome/tourrtc/signaler"
)

// event is anything the Peer's loop reacts to.
type event interface{ isEvent() }

type (
	signalEvent          struct{ msg signaler.Message }
	sessionEndEvent      struct{ end signaler.SessionEnd }
	candidateEvent       struct{ candidate signaler.Candidate }
	trackEvent           struct{ track media.Track }
	connectionStateEvent struct{ state webrtc.PeerConnectionState }
	iceStateEvent        struct{ state webrtc.ICEConnectionState }
	gatheringEvent       struct{ state webrtc.ICEGathererState }
)

type endRequest struct {
	ctx   context.Context
	reply chan error
}

func (signalEvent) isEvent()          {}
func (sessionEndEvent) isEvent()      {}
func (candidateEvent) isEvent()       {}
func (trackEvent) isEvent()           {}
func (connectionStateEvent) isEvent() {}
func (iceStateEvent) isEvent()        {}
func (gatheringEvent) isEvent()       {}
func (endRequest) isEvent()           {}

// dispatch handles one event and reports whether the loop must stop.
func (p *Peer) dispatch(ctx context.Context, ev event) (stop bool) {
	switch ev := ev.(type) {
	case signalEvent:
		p.handleSignal(ctx, ev.msg)
	case sessionEndEvent:
		return p.handleSessionEnd(ev.end)
	case candidateEvent:
		c := ev.candidate
		if err := p.send(ctx, signaler.Message{Type: signaler.TypeICECandidate, Candidate: &c}); err != nil {
			p.fail(err)
		}
	case trackEvent:
		if remote := p.remote.Add(ev.track); remote != nil {
			p.logger.Info("remote track", "kind", string(ev.track.Kind()), "id", ev.track.ID())
			p.update(func(s *Snapshot) { s.RemoteStream = remote })
		}
	case connectionStateEvent:
		p.handleConnectionState(ev.state)
	case iceStateEvent:
		p.logger.Info("ice connection state", "state", ev.state.String())
	case gatheringEvent:
		p.logger.Debug("ice gathering state", "state", ev.state.String())
	case endRequest:
		ev.reply <- p.endSession(ev.ctx)
	}
	return false
}
