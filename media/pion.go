package media

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	pionmedia "github.com/pion/webrtc/v3/pkg/media"
)

// LocalTrack is a local track a pion PeerConnection can send.
type LocalTrack interface {
	Track
	TrackLocal() webrtc.TrackLocal
}

var ErrTrackStopped = errors.New("media: track stopped")

// SampleTrack is a local track fed with encoded samples by the caller.
type SampleTrack struct {
	local   *webrtc.TrackLocalStaticSample
	kind    Kind
	once    sync.Once
	stopped chan struct{}
}

var _ LocalTrack = (*SampleTrack)(nil)

func NewSampleTrack(kind Kind, streamID string) (*SampleTrack, error) {
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	if kind == KindVideo {
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}
	local, err := webrtc.NewTrackLocalStaticSample(codec, string(kind)+"-"+uuid.NewString(), streamID)
	if err != nil {
		return nil, err
	}
	return &SampleTrack{local: local, kind: kind, stopped: make(chan struct{})}, nil
}

func (t *SampleTrack) ID() string                    { return t.local.ID() }
func (t *SampleTrack) Kind() Kind                    { return t.kind }
func (t *SampleTrack) TrackLocal() webrtc.TrackLocal { return t.local }

func (t *SampleTrack) Stop() { t.once.Do(func() { close(t.stopped) }) }

func (t *SampleTrack) Stopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

func (t *SampleTrack) WriteSample(s pionmedia.Sample) error {
	if t.Stopped() {
		return ErrTrackStopped
	}
	return t.local.WriteSample(s)
}

// Pump writes data as one sample every interval until the track stops or
// ctx is done.
func (t *SampleTrack) Pump(ctx context.Context, data []byte, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopped:
			return
		case <-ticker.C:
			if err := t.WriteSample(pionmedia.Sample{Data: data, Duration: interval}); err != nil {
				return
			}
		}
	}
}

// SampleDevices emulates capture hardware with SampleTracks, for hosts
// without cameras and for tests.
type SampleDevices struct {
	Microphone bool
	Camera     bool
	// FacingModes lists what the camera can satisfy; empty accepts any.
	FacingModes []string
}

var _ Devices = SampleDevices{}

func (d SampleDevices) GetUserMedia(ctx context.Context, c Constraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !d.Microphone {
		return nil, ErrNotFound
	}
	if c.Video != nil {
		if !d.Camera {
			return nil, ErrNotFound
		}
		mode := c.Video.FacingMode
		if mode != "" && len(d.FacingModes) > 0 && !slices.Contains(d.FacingModes, mode) {
			return nil, ErrOverconstrained
		}
	}

	streamID := uuid.NewString()
	audio, err := NewSampleTrack(KindAudio, streamID)
	if err != nil {
		return nil, err
	}
	tracks := []Track{audio}
	if c.Video != nil {
		video, err := NewSampleTrack(KindVideo, streamID)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, video)
	}
	return NewStream(streamID, tracks...), nil
}

// RemoteTrack wraps a track received from the peer.
type RemoteTrack struct {
	remote *webrtc.TrackRemote
}

var _ Track = (*RemoteTrack)(nil)

func NewRemoteTrack(t *webrtc.TrackRemote) *RemoteTrack { return &RemoteTrack{remote: t} }

func (t *RemoteTrack) ID() string                  { return t.remote.ID() }
func (t *RemoteTrack) Kind() Kind                  { return Kind(t.remote.Kind().String()) }
func (t *RemoteTrack) StreamID() string            { return t.remote.StreamID() }
func (t *RemoteTrack) Remote() *webrtc.TrackRemote { return t.remote }

// Stop is a no-op: remote tracks end with the connection.
func (t *RemoteTrack) Stop() {}
