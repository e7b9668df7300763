// Package media acquires local capture tracks and keeps the local and
// remote track collections of a call.
//
// A Stream is an immutable snapshot: adding a track yields a new Stream, so
// observers comparing references see every change and never a half-built
// collection.
package media

import "sync"

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

type Track interface {
	ID() string
	Kind() Kind
	// Stop releases the capture device behind the track. Idempotent.
	Stop()
}

type Stream struct {
	id     string
	tracks []Track
}

func NewStream(id string, tracks ...Track) *Stream {
	return &Stream{id: id, tracks: append([]Track(nil), tracks...)}
}

func (s *Stream) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

func (s *Stream) Tracks() []Track {
	if s == nil {
		return nil
	}
	return append([]Track(nil), s.tracks...)
}

func (s *Stream) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tracks)
}

func (s *Stream) ofKind(k Kind) (tracks []Track) {
	if s == nil {
		return nil
	}
	for _, t := range s.tracks {
		if t.Kind() == k {
			tracks = append(tracks, t)
		}
	}
	return
}

func (s *Stream) AudioTracks() []Track { return s.ofKind(KindAudio) }
func (s *Stream) VideoTracks() []Track { return s.ofKind(KindVideo) }

// With returns a new snapshot holding s's tracks plus t. A track whose id
// is already present is not added twice.
func (s *Stream) With(t Track) *Stream {
	id := s.ID()
	tracks := s.Tracks()
	for _, have := range tracks {
		if have.ID() == t.ID() {
			return NewStream(id, tracks...)
		}
	}
	return NewStream(id, append(tracks, t)...)
}

// Stop stops every track.
func (s *Stream) Stop() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// Remote accumulates the tracks received from the peer.
type Remote struct {
	mu      sync.Mutex
	current *Stream
}

// Reset installs an empty snapshot, ready to receive tracks.
func (r *Remote) Reset(id string) *Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = NewStream(id)
	return r.current
}

// Add rebuilds the snapshot with t. After Clear it is a no-op returning nil,
// so late track events cannot revive a disposed stream.
func (r *Remote) Add(t Track) *Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	r.current = r.current.With(t)
	return r.current
}

func (r *Remote) Snapshot() *Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *Remote) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = nil
}
