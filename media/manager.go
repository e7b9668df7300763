package media

import (
	"context"
	"log/slog"
)

// Devices is the capture capability: it turns a constraint request into a
// stream of live local tracks.
type Devices interface {
	GetUserMedia(ctx context.Context, c Constraints) (*Stream, error)
}

// Manager owns the local stream of one peer.
type Manager struct {
	devices Devices
	logger  *slog.Logger
	local   *Stream
}

func NewManager(devices Devices, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{devices: devices, logger: logger}
}

// Acquire requests the primary constraints and, if that fails, retries
// once with FallbackConstraints. A failure of both is returned as an
// *AcquireError.
func (m *Manager) Acquire(ctx context.Context, videoEnabled bool, class DeviceClass) (*Stream, error) {
	primary := SelectConstraints(videoEnabled, class)
	stream, err := m.devices.GetUserMedia(ctx, primary)
	if err == nil {
		m.local = stream
		return stream, nil
	}
	m.logger.Warn("primary capture failed, retrying with fallback",
		"constraints", primary.String(), "kind", Classify(err).Kind.String(), "error", err)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, Classify(ctxErr)
	}
	fallback := FallbackConstraints(videoEnabled)
	stream, err = m.devices.GetUserMedia(ctx, fallback)
	if err != nil {
		return nil, Classify(err)
	}
	m.local = stream
	return stream, nil
}

func (m *Manager) Local() *Stream { return m.local }

// Release stops every local track and forgets the stream. Idempotent.
func (m *Manager) Release() {
	if m.local == nil {
		return
	}
	m.local.Stop()
	m.local = nil
}
