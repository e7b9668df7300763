package main

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/lainio/err2/assert"
	"github.com/lainio/err2/try"
	"github.com/shynome/tourrtc"
	"github.com/shynome/tourrtc/signaler/local"
)

func TestMain(m *testing.M) {
	if os.Getenv("TOURRTC_DEBUG") == "" {
		loglevel.Set(slog.LevelError)
	}
	os.Exit(m.Run())
}

func newAPI(t *testing.T) *tourrtc.API {
	api := try.To1(tourrtc.NewAPI(0))
	t.Cleanup(func() { api.Close() })
	return api
}

func logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: loglevel}))
}

func waitHandshake(t *testing.T, peers ...*tourrtc.Peer) {
	deadline := time.Now().Add(10 * time.Second)
	for _, p := range peers {
		for !p.HandshakeComplete() {
			if time.Now().After(deadline) {
				t.Fatalf("handshake incomplete, stuck in %s: %v", p.State(), p.Err())
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// TestHandshake negotiates real pion connections. Connectivity itself is
// not required.
func TestHandshake(t *testing.T) {
	assert.PushTester(t)
	defer assert.PopTester()

	p := startPair(local.NewHub(), newAPI(t), true, logger())
	defer p.close()
	waitHandshake(t, p.driver, p.supporter)

	assert.That(p.driver.Err() == nil)
	assert.That(p.supporter.Err() == nil)
	assert.Equal(len(p.driver.LocalStream().VideoTracks()), 1)
	assert.Equal(len(p.supporter.LocalStream().VideoTracks()), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	try.To(p.driver.EndSession(ctx))
	select {
	case <-p.supporterEnded:
	case <-ctx.Done():
		t.Fatal("supporter did not see the session end")
	}
	assert.Equal(p.supporter.State(), tourrtc.StateClosed)
	assert.That(p.supporter.LocalStream() == nil)
	assert.That(!p.supporter.IsConnected())
	assert.That(p.driver.State() != tourrtc.StateClosed)
}

// TestConnect needs a non-loopback interface for ICE host candidates.
func TestConnect(t *testing.T) {
	if os.Getenv("TOURRTC_TEST_ICE") == "" {
		t.Skip("TOURRTC_TEST_ICE not set")
	}
	assert.PushTester(t)
	defer assert.PopTester()

	p := startPair(local.NewHub(), newAPI(t), true, logger())
	defer p.close()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	try.To(p.driver.WaitConnected(ctx))
	try.To(p.supporter.WaitConnected(ctx))
	assert.Equal(p.driver.State(), tourrtc.StateConnected)
	pumpLocal(ctx, p.driver.LocalStream())

	// the driver's audio and video reach the supporter
	deadline := time.Now().Add(5 * time.Second)
	for p.supporter.RemoteStream().Len() < 2 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(p.supporter.RemoteStream().Len(), 2)
}
