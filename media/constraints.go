package media

import (
	"fmt"
	"strings"
)

// DeviceClass tunes capture constraints to the kind of device the peer
// runs on.
type DeviceClass int

const (
	Desktop DeviceClass = iota
	Handheld
)

func (c DeviceClass) String() string {
	switch c {
	case Handheld:
		return "handheld"
	default:
		return "desktop"
	}
}

func ParseDeviceClass(s string) (DeviceClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "desktop":
		return Desktop, nil
	case "handheld", "mobile":
		return Handheld, nil
	}
	return Desktop, fmt.Errorf("media: unknown device class %q", s)
}

// Facing modes understood by FacingMode.
const (
	FacingUser        = "user"
	FacingEnvironment = "environment"
)

type AudioConstraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// VideoConstraints holds ideal values, which a device may approximate.
// FacingMode, when set, is required.
type VideoConstraints struct {
	Width      int
	Height     int
	FrameRate  int
	FacingMode string
}

// Constraints is one capture request. Video nil means audio only.
type Constraints struct {
	Audio AudioConstraints
	Video *VideoConstraints
}

func (c Constraints) String() string {
	if c.Video == nil {
		return fmt.Sprintf("audio%+v", c.Audio)
	}
	return fmt.Sprintf("audio%+v video%+v", c.Audio, *c.Video)
}

// SelectConstraints picks the primary capture request.
func SelectConstraints(videoEnabled bool, class DeviceClass) Constraints {
	var c Constraints
	if class == Handheld {
		c.Audio = AudioConstraints{EchoCancellation: true, NoiseSuppression: true, AutoGainControl: true}
	} else {
		c.Audio = AudioConstraints{EchoCancellation: true}
	}
	if !videoEnabled {
		return c
	}
	c.Video = &VideoConstraints{Width: 1280, Height: 720, FrameRate: 30}
	if class == Handheld {
		c.Video.FacingMode = FacingEnvironment
	}
	return c
}

// FallbackConstraints is the reduced request retried once after the primary
// one fails.
func FallbackConstraints(videoEnabled bool) Constraints {
	var c Constraints
	if videoEnabled {
		c.Video = &VideoConstraints{Width: 640, Height: 480, FrameRate: 15}
	}
	return c
}
