// example runs a driver and a supporter in one process, signaling over an
// in-process hub, and lets the driver end the call once media flows.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/shynome/tourrtc"
	"github.com/shynome/tourrtc/media"
	"github.com/shynome/tourrtc/signaler/local"
	"github.com/spf13/pflag"
)

var loglevel = new(slog.LevelVar)

func main() {
	timeout := pflag.Duration("timeout", 15*time.Second, "give up connecting after this long")
	video := pflag.Bool("video", true, "send video from the driver")
	pflag.Parse()

	defer err2.Catch(func(err error) {
		slog.Error("example failed", "error", err)
		os.Exit(1)
	})

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: loglevel}))
	hub := local.NewHub()
	api := try.To1(tourrtc.NewAPI(0))
	defer api.Close()

	p := startPair(hub, api, *video, logger)
	defer p.close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	try.To(p.driver.WaitConnected(ctx))
	try.To(p.supporter.WaitConnected(ctx))
	pumpLocal(ctx, p.driver.LocalStream())
	pumpLocal(ctx, p.supporter.LocalStream())
	time.Sleep(time.Second)
	logger.Info("connected",
		"driver-remote-tracks", p.driver.RemoteStream().Len(),
		"supporter-remote-tracks", p.supporter.RemoteStream().Len())

	try.To(p.driver.EndSession(ctx))
	select {
	case <-p.supporterEnded:
		logger.Info("supporter released", "state", p.supporter.State().String())
	case <-ctx.Done():
		try.To(ctx.Err())
	}
}

type pair struct {
	driver, supporter *tourrtc.Peer
	supporterEnded    chan struct{}
}

// startPair starts the initiator first; a responder announcing itself
// before anyone listens would wait forever.
func startPair(hub *local.Hub, api *tourrtc.API, video bool, logger *slog.Logger) *pair {
	p := &pair{supporterEnded: make(chan struct{})}
	newPeer := func(me, peer string, initiator bool, onEnded func()) *tourrtc.Peer {
		return tourrtc.New(tourrtc.Config{
			SessionID:      "example",
			MyID:           me,
			PeerID:         peer,
			IsInitiator:    initiator,
			VideoEnabled:   video && initiator,
			DeviceClass:    media.Handheld,
			OnSessionEnded: onEnded,
		}, tourrtc.Deps{
			Transport:     hub,
			Devices:       media.SampleDevices{Microphone: true, Camera: true},
			NewConnection: api.NewConnection,
			Logger:        logger,
		})
	}
	p.driver = newPeer("driver", "supporter", true, nil)
	p.supporter = newPeer("supporter", "driver", false, func() { close(p.supporterEnded) })

	ctx := context.Background()
	try.To(p.driver.Start(ctx))
	waitState(p.driver, tourrtc.StateWaitingForReady, 5*time.Second)
	try.To(p.supporter.Start(ctx))
	return p
}

func waitState(p *tourrtc.Peer, want tourrtc.State, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for p.State() != want {
		if p.State() == tourrtc.StateClosed || time.Now().After(deadline) {
			try.To(&tourrtc.StalledError{State: p.State(), Err: p.Err()})
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// pumpLocal feeds placeholder samples into the sample tracks of stream
// until ctx is done.
func pumpLocal(ctx context.Context, stream *media.Stream) {
	for _, t := range stream.Tracks() {
		if st, ok := t.(*media.SampleTrack); ok {
			go st.Pump(ctx, []byte{0xf8, 0xff, 0xfe}, 20*time.Millisecond)
		}
	}
}

func (p *pair) close() {
	p.driver.Close()
	p.supporter.Close()
}
