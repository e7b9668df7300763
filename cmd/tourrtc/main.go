// tourrtc joins one driver/supporter session from the command line.
//
// It captures synthetic audio (and video with --video) from sample tracks,
// negotiates with the peer over the configured transport and logs what
// happens. Interrupting it ends the session for both sides.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/shynome/tourrtc"
	"github.com/shynome/tourrtc/config"
	"github.com/shynome/tourrtc/media"
	"github.com/spf13/pflag"
)

// an Opus frame of silence
var silence = []byte{0xf8, 0xff, 0xfe}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	defer err2.Handle(&err)

	flags := pflag.NewFlagSet("tourrtc", pflag.ContinueOnError)
	configPath := flags.String("config", "", "config file (default: $TOURRTC_CONFIG)")
	sessionID := flags.String("session", "", "session id shared with the peer")
	myID := flags.String("id", "", "participant id of this side")
	peerID := flags.String("peer", "", "participant id of the other side")
	initiator := flags.Bool("initiator", false, "send the offer (the driver side)")
	video := flags.Bool("video", false, "send video as well as audio")
	deviceClass := flags.String("device-class", "", "desktop or handheld (overrides media.device_class)")
	transport := flags.String("transport", "", "sse, ws or redis (overrides transport.kind)")
	endpoint := flags.String("signaler", "", "relay endpoint (overrides transport.endpoint)")
	stall := flags.Duration("stall-after", 30*time.Second, "warn when not connected after this long")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg := try.To1(config.Load(*configPath))
	if *deviceClass != "" {
		cfg.Media.DeviceClass = *deviceClass
	}
	if *transport != "" {
		cfg.Transport.Kind = *transport
	}
	if *endpoint != "" {
		cfg.Transport.Endpoint = *endpoint
	}
	try.To(cfg.Validate())
	if *sessionID == "" || *myID == "" || *peerID == "" {
		return errors.New("--session, --id and --peer are required")
	}

	logger := cfg.Log.Logger(os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tr, closeTransport := try.To2(newTransport(ctx, cfg.Transport, logger))
	defer closeTransport()
	api := try.To1(tourrtc.NewAPI(cfg.ICE.UDPPort))
	defer api.Close()

	ended := make(chan struct{})
	peer := tourrtc.New(tourrtc.Config{
		SessionID:      *sessionID,
		MyID:           *myID,
		PeerID:         *peerID,
		IsInitiator:    *initiator,
		VideoEnabled:   *video,
		DeviceClass:    cfg.DeviceClass(),
		ICEServers:     cfg.ICEServers(),
		OnSessionEnded: func() { close(ended) },
	}, tourrtc.Deps{
		Transport:     tr,
		Devices:       media.SampleDevices{Microphone: true, Camera: true},
		NewConnection: api.NewConnection,
		Logger:        logger,
	})
	defer peer.Close()

	pumping := false
	peer.OnChange(func(s tourrtc.Snapshot) {
		if !pumping && s.LocalStream != nil {
			pumping = true
			for _, t := range s.LocalStream.Tracks() {
				if st, ok := t.(*media.SampleTrack); ok {
					go st.Pump(ctx, silence, 20*time.Millisecond)
				}
			}
		}
		if s.Err != nil {
			var acquire *media.AcquireError
			if errors.As(s.Err, &acquire) {
				logger.Error(acquire.Kind.Message(), "kind", acquire.Kind.String())
			}
		}
	})
	// the peer outlives the interrupt, which ends the session instead
	try.To(peer.Start(context.Background()))

	go func() {
		waitCtx, cancel := context.WithTimeout(ctx, *stall)
		defer cancel()
		err := peer.WaitConnected(waitCtx)
		var stalled *tourrtc.StalledError
		if errors.As(err, &stalled) && ctx.Err() == nil {
			logger.Warn("handshake stalled", "state", stalled.State.String())
		}
		if stopsSession(err) {
			logger.Error("session stopped", "error", err)
			stop()
		}
	}()

	select {
	case <-ended:
		logger.Info("session ended by peer")
		return nil
	case <-ctx.Done():
	}

	endCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := peer.EndSession(endCtx); err != nil {
		logger.Warn("ending session", "error", err)
	}
	return nil
}

// stopsSession reports whether a WaitConnected result means the peer died
// on its own. A stall keeps waiting and a plain close is the normal end.
func stopsSession(err error) bool {
	var stalled *tourrtc.StalledError
	switch {
	case err == nil, errors.As(err, &stalled), errors.Is(err, tourrtc.ErrClosed):
		return false
	}
	return true
}
