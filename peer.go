// Package tourrtc pairs a driver with a remote supporter over one
// point-to-point audio/video connection.
//
// Each participant runs a Peer. The driver is the initiator and the
// supporter the responder. Both bind to the broadcast channel of their
// session, and the responder announces "ready" once it listens, so the
// initiator never offers into the void. Offer, answer and trickled ICE
// candidates follow; after that media flows directly between the peers.
// Either side ends the call with EndSession, which makes the other side
// release everything without waiting for ICE to notice.
//
// A Peer is single-threaded: transport deliveries, connection callbacks and
// API calls are queued as events and handled one at a time by the Peer's
// loop, which alone mutates negotiation state.
package tourrtc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/pion/webrtc/v3"
	"github.com/shynome/tourrtc/internal/fifo"
	"github.com/shynome/tourrtc/media"
	"github.com/shynome/tourrtc/signaler"
)

type Config struct {
	SessionID   string
	MyID        string
	PeerID      string
	IsInitiator bool

	VideoEnabled bool
	DeviceClass  media.DeviceClass

	// ICEServers defaults to DefaultICEServers.
	ICEServers []webrtc.ICEServer

	// OnSessionEnded runs once after the peer ended the session and this
	// Peer released its resources.
	OnSessionEnded func()
}

func (c Config) complete() bool {
	return c.SessionID != "" && c.MyID != "" && c.PeerID != ""
}

type Deps struct {
	Transport     signaler.Transport
	Devices       media.Devices
	NewConnection ConnectionFactory
	Logger        *slog.Logger
}

// Snapshot is what a Peer exposes to the application.
type Snapshot struct {
	State             State
	LocalStream       *media.Stream
	RemoteStream      *media.Stream
	Connected         bool
	HandshakeComplete bool
	// Err is the last error. Media and setup errors come with StateClosed;
	// negotiation errors leave the state machine where it was.
	Err error
}

var ErrClosed = errors.New("tourrtc: peer closed")

type Peer struct {
	cfg     Config
	role    role
	logger  *slog.Logger
	signals *signaler.Signaler
	media   *media.Manager
	newConn ConnectionFactory

	// owned by the loop
	state    State
	conn     Connection
	remote   media.Remote
	pending  []signaler.Candidate
	released bool

	events *fifo.Queue[event]

	mu        sync.RWMutex
	view      Snapshot
	changed   chan struct{}
	listeners []func(Snapshot)

	lifeMu    sync.Mutex
	started   bool
	closed    bool
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func New(cfg Config, deps Deps) *Peer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := newRole(cfg.IsInitiator)
	logger = logger.With("session", cfg.SessionID, "me", cfg.MyID, "peer", cfg.PeerID, "role", r.String())
	return &Peer{
		cfg:     cfg,
		role:    r,
		logger:  logger,
		signals: signaler.New(deps.Transport, logger),
		media:   media.NewManager(deps.Devices, logger),
		newConn: deps.NewConnection,
		events:  fifo.New[event](),
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the Peer. With an incomplete session identity it does
// nothing and the Peer stays idle.
func (p *Peer) Start(ctx context.Context) error {
	if !p.cfg.complete() {
		p.logger.Info("session identity incomplete, not starting")
		return nil
	}
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.started {
		return nil
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx)
	return nil
}

// Close disposes of the Peer: the connection is closed, local tracks are
// stopped and the channel is left. Safe to call more than once.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		p.lifeMu.Lock()
		p.closed = true
		started := p.started
		p.lifeMu.Unlock()
		if started {
			p.cancel()
			return
		}
		p.events.Close()
		p.update(func(s *Snapshot) { s.State = StateClosed })
		close(p.done)
	})
	<-p.done
	return nil
}

// EndSession tells the peer the session is over. It is a no-op before the
// Peer joined its session channel or after it stopped.
func (p *Peer) EndSession(ctx context.Context) error {
	if !p.cfg.complete() {
		return nil
	}
	p.lifeMu.Lock()
	started := p.started
	p.lifeMu.Unlock()
	if !started {
		return nil
	}
	req := endRequest{ctx: ctx, reply: make(chan error, 1)}
	if !p.events.Push(req) {
		return nil
	}
	select {
	case err := <-req.reply:
		return err
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StalledError reports a Peer that did not connect in time.
type StalledError struct {
	State State
	Err   error
}

func (e *StalledError) Error() string {
	return fmt.Sprintf("tourrtc: not connected, stuck in %s: %v", e.State, e.Err)
}

func (e *StalledError) Unwrap() error { return e.Err }

// WaitConnected blocks until the connection is up, the Peer closed, or ctx
// is done. There is no built-in handshake timeout; callers bound the wait
// with ctx and get a *StalledError naming the phase the Peer is stuck in.
func (p *Peer) WaitConnected(ctx context.Context) error {
	for {
		p.mu.RLock()
		snap, changed := p.view, p.changed
		p.mu.RUnlock()
		if snap.Connected {
			return nil
		}
		if snap.State == StateClosed {
			if snap.Err != nil {
				return snap.Err
			}
			return ErrClosed
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return &StalledError{State: snap.State, Err: context.Cause(ctx)}
		}
	}
}

func (p *Peer) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.view
}

func (p *Peer) State() State                { return p.Snapshot().State }
func (p *Peer) LocalStream() *media.Stream  { return p.Snapshot().LocalStream }
func (p *Peer) RemoteStream() *media.Stream { return p.Snapshot().RemoteStream }
func (p *Peer) IsConnected() bool           { return p.Snapshot().Connected }
func (p *Peer) HandshakeComplete() bool     { return p.Snapshot().HandshakeComplete }
func (p *Peer) Err() error                  { return p.Snapshot().Err }

// OnChange registers fn to receive every new Snapshot. fn runs on the
// Peer's loop and must neither block nor call Close.
func (p *Peer) OnChange(fn func(Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *Peer) update(fn func(*Snapshot)) {
	p.mu.Lock()
	fn(&p.view)
	snap := p.view
	close(p.changed)
	p.changed = make(chan struct{})
	listeners := slices.Clone(p.listeners)
	p.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

func (p *Peer) fail(err error) {
	p.logger.Warn("negotiation error", "state", p.state.String(), "error", err)
	p.update(func(s *Snapshot) { s.Err = err })
}

func (p *Peer) transition(to State) error {
	if !canTransition(p.state, to) {
		return fmt.Errorf("tourrtc: illegal transition %s -> %s", p.state, to)
	}
	p.logger.Info("state", "from", p.state.String(), "to", to.String())
	p.state = to
	p.update(func(s *Snapshot) { s.State = to })
	return nil
}

func (p *Peer) run(ctx context.Context) {
	ended := p.loop(ctx)
	p.release()
	p.cancel()
	close(p.done)
	if ended && p.cfg.OnSessionEnded != nil {
		p.cfg.OnSessionEnded()
	}
}

// loop reports whether it stopped on the peer's session-end.
func (p *Peer) loop(ctx context.Context) (ended bool) {
	if err := p.setup(ctx); err != nil {
		if ctx.Err() == nil {
			p.logger.Error("session setup failed", "error", err)
			p.update(func(s *Snapshot) { s.Err = err })
		}
		return false
	}
	if err := p.role.subscribed(ctx, p); err != nil {
		p.fail(err)
	}
	for {
		select {
		case <-ctx.Done():
			return false
		case <-p.events.Ready():
		}
		for _, ev := range p.events.Drain() {
			if p.dispatch(ctx, ev) {
				return true
			}
		}
	}
}

// setup acquires media, builds the connection and joins the session
// channel, in that order, so no early signal finds the Peer unprepared.
func (p *Peer) setup(ctx context.Context) (err error) {
	defer err2.Handle(&err)

	local := try.To1(p.media.Acquire(ctx, p.cfg.VideoEnabled, p.cfg.DeviceClass))
	p.update(func(s *Snapshot) { s.LocalStream = local })

	servers := p.cfg.ICEServers
	if len(servers) == 0 {
		servers = DefaultICEServers
	}
	p.conn = try.To1(p.newConn(servers))
	for _, track := range local.Tracks() {
		try.To(p.conn.AddTrack(track, local))
	}
	remote := p.remote.Reset(uuid.NewString())
	p.update(func(s *Snapshot) { s.RemoteStream = remote })
	p.conn.Observe(Observer{
		OnTrack:              func(t media.Track) { p.events.Push(trackEvent{t}) },
		OnICECandidate:       func(c signaler.Candidate) { p.events.Push(candidateEvent{c}) },
		OnConnectionState:    func(s webrtc.PeerConnectionState) { p.events.Push(connectionStateEvent{s}) },
		OnICEConnectionState: func(s webrtc.ICEConnectionState) { p.events.Push(iceStateEvent{s}) },
		OnICEGatheringState:  func(s webrtc.ICEGathererState) { p.events.Push(gatheringEvent{s}) },
	})
	try.To(p.transition(StateMediaReady))

	try.To(p.signals.SubscribeToSession(p.cfg.SessionID))
	try.To(p.signals.OnWebRTCSignal(func(m signaler.Message) { p.events.Push(signalEvent{m}) }))
	try.To(p.signals.OnSessionEnd(func(e signaler.SessionEnd) { p.events.Push(sessionEndEvent{e}) }))
	try.To(p.signals.Subscribe(ctx))
	return p.transition(StateSignalingSubscribed)
}

// release frees everything the Peer owns. Only the first call acts.
func (p *Peer) release() {
	if p.released {
		return
	}
	p.released = true
	p.events.Close()
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.logger.Warn("closing connection", "error", err)
		}
		p.conn = nil
	}
	p.media.Release()
	p.remote.Clear()
	p.pending = nil
	if err := p.signals.Unsubscribe(); err != nil {
		p.logger.Warn("leaving session channel", "error", err)
	}
	p.state = StateClosed
	p.update(func(s *Snapshot) {
		s.State = StateClosed
		s.LocalStream = nil
		s.RemoteStream = nil
		s.Connected = false
	})
	p.logger.Info("released")
}

// send stamps msg with this session's addressing and broadcasts it.
func (p *Peer) send(ctx context.Context, msg signaler.Message) error {
	msg.SessionID = p.cfg.SessionID
	msg.FromID = p.cfg.MyID
	msg.ToID = p.cfg.PeerID
	return p.signals.BroadcastWebRTCSignal(ctx, p.cfg.SessionID, msg)
}

// accepts is the addressing filter applied to every inbound signal.
func accepts(msg signaler.Message, myID, peerID string) bool {
	if msg.ToID != myID {
		return false
	}
	switch msg.Type {
	case signaler.TypeOffer, signaler.TypeAnswer, signaler.TypeICECandidate:
		return msg.FromID == peerID
	}
	return true
}

func (p *Peer) handleSignal(ctx context.Context, msg signaler.Message) {
	if !accepts(msg, p.cfg.MyID, p.cfg.PeerID) {
		p.logger.Debug("discarding signal", "type", msg.Type, "from", msg.FromID, "to", msg.ToID)
		return
	}
	var err error
	switch msg.Type {
	case signaler.TypeReady:
		err = p.role.onReady(ctx, p, msg)
	case signaler.TypeOffer:
		err = p.role.onOffer(ctx, p, msg)
	case signaler.TypeAnswer:
		err = p.role.onAnswer(ctx, p, msg)
	case signaler.TypeICECandidate:
		err = p.addRemoteCandidate(*msg.Candidate)
	default:
		p.logger.Debug("ignoring signal", "type", msg.Type)
		return
	}
	switch {
	case err == nil:
	case errors.Is(err, errIgnored):
		p.logger.Debug("signal not applicable", "reason", err)
	default:
		p.fail(err)
	}
}

// addRemoteCandidate holds candidates that outrun the remote description
// until flushCandidates applies them.
func (p *Peer) addRemoteCandidate(c signaler.Candidate) error {
	if !p.conn.HasRemoteDescription() {
		p.pending = append(p.pending, c)
		return nil
	}
	return p.conn.AddICECandidate(c)
}

func (p *Peer) flushCandidates() {
	pending := p.pending
	p.pending = nil
	for _, c := range pending {
		if err := p.conn.AddICECandidate(c); err != nil {
			p.fail(err)
		}
	}
}

// handleSessionEnd reports whether the Peer must stop.
func (p *Peer) handleSessionEnd(end signaler.SessionEnd) bool {
	if end.ToID != p.cfg.MyID {
		p.logger.Debug("discarding session-end", "from", end.FromID, "to", end.ToID)
		return false
	}
	p.logger.Info("session ended by peer", "from", end.FromID)
	p.release()
	return true
}

func (p *Peer) endSession(ctx context.Context) error {
	if p.state < StateSignalingSubscribed {
		return nil
	}
	return p.signals.BroadcastSessionEnd(ctx, p.cfg.SessionID, p.cfg.MyID, p.cfg.PeerID)
}

func (p *Peer) handleConnectionState(s webrtc.PeerConnectionState) {
	p.logger.Info("connection state", "state", s.String())
	connected := s == webrtc.PeerConnectionStateConnected
	if connected && (p.state == StateOfferSent || p.state == StateAnswerSent) {
		if err := p.transition(StateConnected); err != nil {
			p.fail(err)
		}
	}
	p.update(func(snap *Snapshot) { snap.Connected = connected })
}
