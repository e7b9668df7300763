package tourrtc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lainio/err2/assert"
	"github.com/lainio/err2/try"
	"github.com/pion/webrtc/v3"
	"github.com/shynome/tourrtc/media"
	"github.com/shynome/tourrtc/signaler"
	"github.com/shynome/tourrtc/signaler/local"
)

const (
	session = "s-1"
	driver  = "D"
	support = "S"
)

type fakeTrack struct {
	id      string
	kind    media.Kind
	stopped atomic.Int32
}

func (t *fakeTrack) ID() string       { return t.id }
func (t *fakeTrack) Kind() media.Kind { return t.kind }
func (t *fakeTrack) Stop()            { t.stopped.Add(1) }

type fakeDevices struct {
	mu     sync.Mutex
	errs   []error
	calls  []media.Constraints
	stream *media.Stream
}

func (d *fakeDevices) GetUserMedia(_ context.Context, c media.Constraints) (*media.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, c)
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return d.stream, nil
}

func newDevices(id string) (*fakeDevices, *fakeTrack) {
	audio := &fakeTrack{id: id + "-audio", kind: media.KindAudio}
	return &fakeDevices{stream: media.NewStream(id, audio)}, audio
}

type fakeConn struct {
	mu         sync.Mutex
	tracks     []media.Track
	local      *signaler.SDP
	remote     *signaler.SDP
	candidates []signaler.Candidate
	observer   Observer
	closed     int
	remoteErr  error
}

func (c *fakeConn) AddTrack(track media.Track, _ *media.Stream) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = append(c.tracks, track)
	return nil
}

func (c *fakeConn) CreateOffer() (signaler.SDP, error) {
	return signaler.SDP{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (c *fakeConn) CreateAnswer() (signaler.SDP, error) {
	return signaler.SDP{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (c *fakeConn) SetLocalDescription(sdp signaler.SDP) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = &sdp
	return nil
}

func (c *fakeConn) SetRemoteDescription(sdp signaler.SDP) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remoteErr != nil {
		return c.remoteErr
	}
	c.remote = &sdp
	return nil
}

func (c *fakeConn) HasRemoteDescription() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote != nil
}

func (c *fakeConn) AddICECandidate(candidate signaler.Candidate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates = append(c.candidates, candidate)
	return nil
}

func (c *fakeConn) Observe(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = o
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) Observer() Observer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observer
}

func (c *fakeConn) Candidates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.candidates)
}

func (c *fakeConn) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// factory records every connection it creates.
type factory struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
}

func (f *factory) New([]webrtc.ICEServer) (Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := &fakeConn{}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *factory) Conn() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[0]
}

func (f *factory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

type testPeer struct {
	*Peer
	devices *fakeDevices
	track   *fakeTrack
	conns   *factory
}

func newTestPeer(hub signaler.Transport, me, peer string, initiator bool, onEnded func()) *testPeer {
	devices, track := newDevices(me)
	conns := &factory{}
	p := New(Config{
		SessionID:      session,
		MyID:           me,
		PeerID:         peer,
		IsInitiator:    initiator,
		OnSessionEnded: onEnded,
	}, Deps{
		Transport:     hub,
		Devices:       devices,
		NewConnection: conns.New,
	})
	return &testPeer{Peer: p, devices: devices, track: track, conns: conns}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func inState(p *testPeer, s State) func() bool {
	return func() bool { return p.State() == s }
}

// outsider joins the session channel as a third party.
func outsider(t *testing.T, hub *local.Hub) *signaler.Signaler {
	s := signaler.New(hub, nil)
	try.To(s.SubscribeToSession(session))
	try.To(s.Subscribe(context.Background()))
	t.Cleanup(func() { s.Unsubscribe() })
	return s
}

// wire collects every signal published on the hub.
type wire struct {
	mu   sync.Mutex
	msgs []signaler.Message
}

func (w *wire) tap(d local.Delivery) {
	if d.Event != signaler.EventSignal {
		return
	}
	var body signaler.SignalPayload
	if json.Unmarshal(d.Payload, &body) != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, body.Message)
}

func (w *wire) messages() []signaler.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]signaler.Message(nil), w.msgs...)
}

func handshake(t *testing.T, hub *local.Hub, onDriverEnded, onSupportEnded func()) (d, s *testPeer) {
	ctx := context.Background()
	d = newTestPeer(hub, driver, support, true, onDriverEnded)
	s = newTestPeer(hub, support, driver, false, onSupportEnded)
	t.Cleanup(func() {
		d.Close()
		s.Close()
	})

	try.To(d.Start(ctx))
	waitFor(t, "initiator listening", inState(d, StateWaitingForReady))
	try.To(s.Start(ctx))
	waitFor(t, "handshake", func() bool { return d.HandshakeComplete() && s.HandshakeComplete() })
	return d, s
}

func TestHandshake(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	hub := local.NewHub()
	w := &wire{}
	hub.Tap(w.tap)
	d, s := handshake(t, hub, nil, nil)

	assert.Equal(d.State(), StateOfferSent)
	assert.Equal(s.State(), StateAnswerSent)
	assert.That(d.Err() == nil)
	assert.That(s.Err() == nil)
	assert.Equal(d.conns.Conn().remote.Type, webrtc.SDPTypeAnswer)
	assert.Equal(s.conns.Conn().remote.Type, webrtc.SDPTypeOffer)
	assert.Equal(len(d.conns.Conn().tracks), 1)

	for _, m := range w.messages() {
		assert.Equal(m.SessionID, session)
		switch m.Type {
		case signaler.TypeOffer:
			assert.Equal(m.FromID, driver)
			assert.Equal(m.ToID, support)
		case signaler.TypeReady, signaler.TypeAnswer:
			assert.Equal(m.FromID, support)
			assert.Equal(m.ToID, driver)
		}
	}

	d.conns.Conn().Observer().OnConnectionState(webrtc.PeerConnectionStateConnected)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	try.To(d.WaitConnected(ctx))
	assert.That(d.IsConnected())
	assert.Equal(d.State(), StateConnected)
	assert.That(!s.IsConnected())
}

func TestTrickleAndRemoteTracks(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	hub := local.NewHub()
	d, s := handshake(t, hub, nil, nil)

	mid := "0"
	d.conns.Conn().Observer().OnICECandidate(signaler.Candidate{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host", SDPMid: &mid})
	waitFor(t, "candidate applied", func() bool { return s.conns.Conn().Candidates() == 1 })

	before := s.RemoteStream()
	assert.Equal(before.Len(), 0)
	video := &fakeTrack{id: "remote-video", kind: media.KindVideo}
	s.conns.Conn().Observer().OnTrack(video)
	waitFor(t, "remote track", func() bool { return s.RemoteStream().Len() == 1 })
	after := s.RemoteStream()
	assert.That(before != after)
	assert.Equal(before.Len(), 0)
	assert.Equal(len(after.VideoTracks()), 1)

	// a redelivered track keeps the track set
	s.conns.Conn().Observer().OnTrack(video)
	s.conns.Conn().Observer().OnTrack(&fakeTrack{id: "remote-audio", kind: media.KindAudio})
	waitFor(t, "second track", func() bool { return s.RemoteStream().Len() == 2 })
}

func TestForeignSessionEndIgnored(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	hub := local.NewHub()
	var ended atomic.Int32
	x := newTestPeer(hub, "X", driver, false, func() { ended.Add(1) })
	defer x.Close()
	try.To(x.Start(context.Background()))
	waitFor(t, "responder listening", inState(x, StateWaitingForOffer))

	ctx := context.Background()
	o := outsider(t, hub)
	try.To(o.BroadcastSessionEnd(ctx, session, driver, support))
	offer := signaler.SDP{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}
	try.To(o.BroadcastWebRTCSignal(ctx, session, signaler.Message{
		Type: signaler.TypeOffer, SessionID: session, FromID: driver, ToID: "X", SDP: &offer,
	}))

	// the offer queued behind the session-end was still handled
	waitFor(t, "answer", inState(x, StateAnswerSent))
	assert.Equal(ended.Load(), int32(0))
	assert.That(x.LocalStream() != nil)
	assert.Equal(x.conns.Conn().Closed(), 0)
}

func TestCandidates(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	hub := local.NewHub()
	d := newTestPeer(hub, driver, support, true, nil)
	defer d.Close()
	ctx := context.Background()
	try.To(d.Start(ctx))
	waitFor(t, "initiator listening", inState(d, StateWaitingForReady))

	o := outsider(t, hub)
	send := func(m signaler.Message) {
		m.SessionID = session
		try.To(o.BroadcastWebRTCSignal(ctx, session, m))
	}
	candidate := func(c string) *signaler.Candidate { return &signaler.Candidate{Candidate: c} }

	send(signaler.Message{Type: signaler.TypeICECandidate, FromID: "Z", ToID: driver, Candidate: candidate("foreign")})
	send(signaler.Message{Type: signaler.TypeICECandidate, FromID: support, ToID: "Z", Candidate: candidate("misaddressed")})
	send(signaler.Message{Type: signaler.TypeICECandidate, FromID: support, ToID: driver, Candidate: candidate("early")})
	send(signaler.Message{Type: signaler.TypeReady, FromID: support, ToID: driver})
	waitFor(t, "offer", inState(d, StateOfferSent))
	assert.Equal(d.conns.Conn().Candidates(), 0)

	answer := signaler.SDP{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}
	send(signaler.Message{Type: signaler.TypeAnswer, FromID: support, ToID: driver, SDP: &answer})
	waitFor(t, "handshake", d.HandshakeComplete)
	assert.Equal(d.conns.Conn().Candidates(), 1)

	send(signaler.Message{Type: signaler.TypeICECandidate, FromID: "Z", ToID: driver, Candidate: candidate("foreign")})
	send(signaler.Message{Type: signaler.TypeICECandidate, FromID: support, ToID: driver, Candidate: candidate("late")})
	waitFor(t, "late candidate", func() bool { return d.conns.Conn().Candidates() == 2 })

	c := d.conns.Conn()
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(c.candidates[0].Candidate, "early")
	assert.Equal(c.candidates[1].Candidate, "late")
}

func TestDuplicateSignalsIgnored(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	hub := local.NewHub()
	d, s := handshake(t, hub, nil, nil)
	ctx := context.Background()
	o := outsider(t, hub)

	offer := signaler.SDP{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}
	answer := signaler.SDP{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}
	for _, m := range []signaler.Message{
		{Type: signaler.TypeReady, FromID: support, ToID: driver},
		{Type: signaler.TypeAnswer, FromID: support, ToID: driver, SDP: &answer},
		{Type: signaler.TypeOffer, FromID: driver, ToID: support, SDP: &offer},
		// wrong role
		{Type: signaler.TypeOffer, FromID: support, ToID: driver, SDP: &offer},
		{Type: signaler.TypeReady, FromID: driver, ToID: support},
	} {
		m.SessionID = session
		try.To(o.BroadcastWebRTCSignal(ctx, session, m))
	}
	end := make(chan struct{})
	try.To(o.OnSessionEnd(func(signaler.SessionEnd) { close(end) }))
	try.To(o.BroadcastSessionEnd(ctx, session, "Z", "nobody"))
	select {
	case <-end:
	case <-time.After(2 * time.Second):
		t.Fatal("marker not delivered")
	}
	// the peers' bindings deliver in order; give their loops a moment
	time.Sleep(50 * time.Millisecond)

	assert.Equal(d.State(), StateOfferSent)
	assert.Equal(s.State(), StateAnswerSent)
	assert.That(d.Err() == nil)
	assert.That(s.Err() == nil)
}

func TestSessionEndRoundTrip(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	hub := local.NewHub()
	var driverEnded, supportEnded atomic.Int32
	done := make(chan struct{})
	d, s := handshake(t, hub,
		func() { driverEnded.Add(1) },
		func() {
			supportEnded.Add(1)
			close(done)
		},
	)
	s.conns.Conn().Observer().OnConnectionState(webrtc.PeerConnectionStateConnected)
	waitFor(t, "supporter connected", s.IsConnected)

	try.To(d.EndSession(context.Background()))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session-end not handled")
	}

	snap := s.Snapshot()
	assert.Equal(snap.State, StateClosed)
	assert.That(snap.LocalStream == nil)
	assert.That(snap.RemoteStream == nil)
	assert.That(!snap.Connected)
	assert.Equal(s.conns.Conn().Closed(), 1)
	assert.Equal(s.track.stopped.Load(), int32(1))
	assert.Equal(hub.Subscribers(signaler.ChannelName(session)), 1)

	// disposal after the session ended releases nothing twice
	try.To(s.Close())
	try.To(s.Close())
	assert.Equal(s.conns.Conn().Closed(), 1)
	assert.Equal(s.track.stopped.Load(), int32(1))
	assert.Equal(supportEnded.Load(), int32(1))

	// the sender stays up until disposed
	assert.Equal(d.State(), StateOfferSent)
	assert.Equal(driverEnded.Load(), int32(0))
	try.To(d.Close())
	try.To(d.Close())
	assert.Equal(d.conns.Conn().Closed(), 1)
	assert.Equal(d.track.stopped.Load(), int32(1))
	assert.Equal(d.State(), StateClosed)
	assert.Equal(driverEnded.Load(), int32(0))
	assert.Equal(hub.Subscribers(signaler.ChannelName(session)), 0)
}

func TestMediaDenied(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	hub := local.NewHub()
	w := &wire{}
	hub.Tap(w.tap)
	p := newTestPeer(hub, support, driver, false, nil)
	p.devices.errs = []error{media.ErrNotAllowed, media.ErrNotAllowed}
	try.To(p.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := p.WaitConnected(ctx)
	var acquire *media.AcquireError
	assert.That(errors.As(err, &acquire))
	assert.Equal(acquire.Kind, media.ErrorPermissionDenied)
	assert.Equal(p.State(), StateClosed)
	assert.Equal(p.conns.Count(), 0)
	assert.That(p.LocalStream() == nil)

	try.To(p.EndSession(context.Background()))
	try.To(p.Close())
	assert.Equal(len(w.messages()), 0)
}

func TestMediaFallback(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	hub := local.NewHub()
	p := newTestPeer(hub, support, driver, false, nil)
	defer p.Close()
	p.Peer.cfg.VideoEnabled = true
	p.devices.errs = []error{media.ErrOverconstrained}
	try.To(p.Start(context.Background()))
	waitFor(t, "responder listening", inState(p, StateWaitingForOffer))

	assert.That(p.Err() == nil)
	assert.Equal(p.LocalStream().ID(), support)
	p.devices.mu.Lock()
	defer p.devices.mu.Unlock()
	assert.Equal(len(p.devices.calls), 2)
	assert.Equal(p.devices.calls[1].String(), media.FallbackConstraints(true).String())
}

func TestNegotiationErrorNotFatal(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	hub := local.NewHub()
	p := newTestPeer(hub, support, driver, false, nil)
	defer p.Close()
	ctx := context.Background()
	try.To(p.Start(ctx))
	waitFor(t, "responder listening", inState(p, StateWaitingForOffer))

	broken := errors.New("bad sdp")
	c := p.conns.Conn()
	c.mu.Lock()
	c.remoteErr = broken
	c.mu.Unlock()

	o := outsider(t, hub)
	offer := signaler.SDP{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}
	try.To(o.BroadcastWebRTCSignal(ctx, session, signaler.Message{
		Type: signaler.TypeOffer, SessionID: session, FromID: driver, ToID: support, SDP: &offer,
	}))
	waitFor(t, "error surfaced", func() bool { return p.Err() != nil })
	assert.That(errors.Is(p.Err(), broken))
	assert.Equal(p.State(), StateWaitingForOffer)
	assert.Equal(c.Closed(), 0)

	// a later good offer recovers the handshake
	c.mu.Lock()
	c.remoteErr = nil
	c.mu.Unlock()
	try.To(o.BroadcastWebRTCSignal(ctx, session, signaler.Message{
		Type: signaler.TypeOffer, SessionID: session, FromID: driver, ToID: support, SDP: &offer,
	}))
	waitFor(t, "answer", inState(p, StateAnswerSent))
}

// flakyTransport fails the first n sends across all of its channels.
type flakyTransport struct {
	signaler.Transport
	failures atomic.Int32
}

var errSendFailed = errors.New("send failed")

type flakyChannel struct {
	signaler.Channel
	t *flakyTransport
}

func (t *flakyTransport) Channel(name string) (signaler.Channel, error) {
	ch, err := t.Transport.Channel(name)
	if err != nil {
		return nil, err
	}
	return &flakyChannel{Channel: ch, t: t}, nil
}

func (ch *flakyChannel) Send(ctx context.Context, event string, payload []byte) error {
	if ch.t.failures.Add(-1) >= 0 {
		return errSendFailed
	}
	return ch.Channel.Send(ctx, event, payload)
}

func TestReadySendFailureRecoverable(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	hub := local.NewHub()
	flaky := &flakyTransport{Transport: hub}
	flaky.failures.Store(1)
	p := newTestPeer(flaky, support, driver, false, nil)
	defer p.Close()
	ctx := context.Background()
	try.To(p.Start(ctx))

	waitFor(t, "ready failure surfaced", func() bool { return p.Err() != nil })
	assert.That(errors.Is(p.Err(), errSendFailed))
	assert.Equal(p.State(), StateWaitingForOffer)

	o := outsider(t, hub)
	offer := signaler.SDP{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}
	try.To(o.BroadcastWebRTCSignal(ctx, session, signaler.Message{
		Type: signaler.TypeOffer, SessionID: session, FromID: driver, ToID: support, SDP: &offer,
	}))
	waitFor(t, "answer", inState(p, StateAnswerSent))
	assert.That(p.HandshakeComplete())
	assert.That(p.conns.Conn().HasRemoteDescription())
}

func TestWaitConnectedStalled(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	p := newTestPeer(local.NewHub(), driver, support, true, nil)
	defer p.Close()
	try.To(p.Start(context.Background()))
	waitFor(t, "initiator listening", inState(p, StateWaitingForReady))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.WaitConnected(ctx)
	var stalled *StalledError
	assert.That(errors.As(err, &stalled))
	assert.Equal(stalled.State, StateWaitingForReady)
	assert.That(errors.Is(err, context.DeadlineExceeded))
}

func TestIncompleteIdentity(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	hub := local.NewHub()
	p := newTestPeer(hub, driver, "", true, nil)
	try.To(p.Start(context.Background()))
	try.To(p.EndSession(context.Background()))
	assert.Equal(p.State(), StateIdle)
	assert.Equal(len(p.devices.calls), 0)
	try.To(p.Close())
	assert.Equal(p.State(), StateClosed)
}

func TestCloseBeforeStart(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	p := newTestPeer(local.NewHub(), driver, support, true, nil)
	try.To(p.Close())
	try.To(p.Close())
	assert.Equal(p.State(), StateClosed)
	assert.That(errors.Is(p.Start(context.Background()), ErrClosed))
	try.To(p.EndSession(context.Background()))
	assert.Equal(p.conns.Count(), 0)
}

func TestAccepts(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	types := []signaler.MessageType{
		signaler.TypeReady, signaler.TypeOffer, signaler.TypeAnswer,
		signaler.TypeICECandidate, signaler.TypeSessionEnd,
	}
	ids := []string{driver, support, "X"}
	for _, typ := range types {
		for _, from := range ids {
			for _, to := range ids {
				m := signaler.Message{Type: typ, FromID: from, ToID: to}
				if !accepts(m, driver, support) {
					continue
				}
				assert.Equal(m.ToID, driver)
				if typ == signaler.TypeOffer || typ == signaler.TypeAnswer || typ == signaler.TypeICECandidate {
					assert.Equal(m.FromID, support)
				}
			}
		}
	}
	assert.That(accepts(signaler.Message{Type: signaler.TypeReady, FromID: support, ToID: driver}, driver, support))
}

func TestTransitions(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	assert.That(canTransition(StateIdle, StateMediaReady))
	assert.That(canTransition(StateSignalingSubscribed, StateWaitingForReady))
	assert.That(canTransition(StateSignalingSubscribed, StateWaitingForOffer))
	assert.That(canTransition(StateOfferSent, StateConnected))
	assert.That(!canTransition(StateIdle, StateSignalingSubscribed))
	assert.That(!canTransition(StateWaitingForReady, StateAnswerSent))
	assert.That(!canTransition(StateConnected, StateOfferSent))
	for s := StateIdle; s < StateClosed; s++ {
		assert.That(canTransition(s, StateClosed))
		assert.That(!canTransition(StateClosed, s))
	}
	assert.That(!canTransition(StateClosed, StateClosed))
	assert.Equal(StateWaitingForOffer.String(), "WAITING_FOR_OFFER")
	assert.Equal(State(42).String(), "State(42)")
}
