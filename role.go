package tourrtc

import (
	"context"
	"errors"
	"fmt"

	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/shynome/tourrtc/signaler"
)

// role holds the role-specific halves of the handshake. Candidate handling
// and message filtering are shared and live on Peer.
type role interface {
	String() string
	// subscribed runs once the session channel is confirmed.
	subscribed(ctx context.Context, p *Peer) error
	onReady(ctx context.Context, p *Peer, msg signaler.Message) error
	onOffer(ctx context.Context, p *Peer, msg signaler.Message) error
	onAnswer(ctx context.Context, p *Peer, msg signaler.Message) error
}

// errIgnored marks a signal that is valid on the wire but not actionable
// by this role in this phase.
var errIgnored = errors.New("tourrtc: signal ignored")

func ignored(msg signaler.Message, p *Peer) error {
	return fmt.Errorf("%w: %s from %s as %s in %s", errIgnored, msg.Type, msg.FromID, p.role, p.state)
}

func newRole(isInitiator bool) role {
	if isInitiator {
		return initiator{}
	}
	return responder{}
}

// passive ignores every hook.
type passive struct{}

func (passive) subscribed(context.Context, *Peer) error { return nil }

func (passive) onReady(_ context.Context, p *Peer, msg signaler.Message) error {
	return ignored(msg, p)
}

func (passive) onOffer(_ context.Context, p *Peer, msg signaler.Message) error {
	return ignored(msg, p)
}

func (passive) onAnswer(_ context.Context, p *Peer, msg signaler.Message) error {
	return ignored(msg, p)
}

// initiator waits for the responder's ready, offers, and applies the answer.
type initiator struct{ passive }

func (initiator) String() string { return "initiator" }

func (initiator) subscribed(_ context.Context, p *Peer) error {
	return p.transition(StateWaitingForReady)
}

func (initiator) onReady(ctx context.Context, p *Peer, msg signaler.Message) (err error) {
	if msg.FromID != p.cfg.PeerID || p.state != StateWaitingForReady {
		return ignored(msg, p)
	}
	defer err2.Handle(&err)

	offer := try.To1(p.conn.CreateOffer())
	try.To(p.conn.SetLocalDescription(offer))
	try.To(p.send(ctx, signaler.Message{Type: signaler.TypeOffer, SDP: &offer}))
	return p.transition(StateOfferSent)
}

func (initiator) onAnswer(_ context.Context, p *Peer, msg signaler.Message) (err error) {
	if p.state != StateOfferSent || p.conn.HasRemoteDescription() {
		return ignored(msg, p)
	}
	defer err2.Handle(&err)

	try.To(p.conn.SetRemoteDescription(*msg.SDP))
	p.flushCandidates()
	p.update(func(s *Snapshot) { s.HandshakeComplete = true })
	return nil
}

// responder announces readiness, then answers the initiator's offer.
type responder struct{ passive }

func (responder) String() string { return "responder" }

// subscribed moves to WAITING_FOR_OFFER before announcing itself, so an
// offer still gets answered when the ready broadcast fails.
func (responder) subscribed(ctx context.Context, p *Peer) (err error) {
	defer err2.Handle(&err)

	try.To(p.transition(StateWaitingForOffer))
	return p.send(ctx, signaler.Message{Type: signaler.TypeReady})
}

func (responder) onOffer(ctx context.Context, p *Peer, msg signaler.Message) (err error) {
	if p.state != StateWaitingForOffer {
		return ignored(msg, p)
	}
	defer err2.Handle(&err)

	try.To(p.conn.SetRemoteDescription(*msg.SDP))
	p.flushCandidates()
	answer := try.To1(p.conn.CreateAnswer())
	try.To(p.conn.SetLocalDescription(answer))
	try.To(p.send(ctx, signaler.Message{Type: signaler.TypeAnswer, SDP: &answer}))
	try.To(p.transition(StateAnswerSent))
	p.update(func(s *Snapshot) { s.HandshakeComplete = true })
	return nil
}
