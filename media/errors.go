package media

import (
	"errors"
	"io/fs"
	"syscall"
)

// ErrorKind is the stable taxonomy of capture failures.
type ErrorKind int

const (
	ErrorUnknown ErrorKind = iota
	ErrorPermissionDenied
	ErrorDeviceNotFound
	ErrorDeviceBusy
	ErrorUnsupportedConstraints
	ErrorInsecureContext
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorPermissionDenied:
		return "permission-denied"
	case ErrorDeviceNotFound:
		return "device-not-found"
	case ErrorDeviceBusy:
		return "device-busy"
	case ErrorUnsupportedConstraints:
		return "unsupported-constraints"
	case ErrorInsecureContext:
		return "insecure-context"
	default:
		return "unknown"
	}
}

// Message is the text shown to the user for k.
func (k ErrorKind) Message() string {
	switch k {
	case ErrorPermissionDenied:
		return "Camera or microphone access was denied. Allow access in your settings and try again."
	case ErrorDeviceNotFound:
		return "No camera or microphone was found. Connect a device and try again."
	case ErrorDeviceBusy:
		return "The camera or microphone is in use by another application."
	case ErrorUnsupportedConstraints:
		return "This device does not support the requested camera settings."
	case ErrorInsecureContext:
		return "Camera and microphone access requires a secure (HTTPS) connection."
	default:
		return "The camera or microphone could not be started."
	}
}

// Sentinels for Devices implementations.
var (
	ErrNotAllowed      = errors.New("media: permission denied")
	ErrNotFound        = errors.New("media: device not found")
	ErrNotReadable     = errors.New("media: device not readable")
	ErrOverconstrained = errors.New("media: constraints cannot be satisfied")
	ErrInsecure        = errors.New("media: insecure context")
)

// NamedError is implemented by errors carrying a DOMException-style name,
// such as "NotAllowedError".
type NamedError interface {
	error
	Name() string
}

var errorNames = map[string]ErrorKind{
	"NotAllowedError":             ErrorPermissionDenied,
	"PermissionDeniedError":       ErrorPermissionDenied,
	"NotFoundError":               ErrorDeviceNotFound,
	"DevicesNotFoundError":        ErrorDeviceNotFound,
	"NotReadableError":            ErrorDeviceBusy,
	"TrackStartError":             ErrorDeviceBusy,
	"OverconstrainedError":        ErrorUnsupportedConstraints,
	"ConstraintNotSatisfiedError": ErrorUnsupportedConstraints,
	"SecurityError":               ErrorInsecureContext,
}

type AcquireError struct {
	Kind ErrorKind
	Err  error
}

func (e *AcquireError) Error() string {
	if e.Err == nil {
		return "media: " + e.Kind.String()
	}
	return "media: " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *AcquireError) Unwrap() error { return e.Err }

// Classify maps err onto the taxonomy. An *AcquireError is returned as is.
func Classify(err error) *AcquireError {
	if err == nil {
		return nil
	}
	var acquire *AcquireError
	if errors.As(err, &acquire) {
		return acquire
	}
	return &AcquireError{Kind: kindOf(err), Err: err}
}

func kindOf(err error) ErrorKind {
	var named NamedError
	if errors.As(err, &named) {
		if kind, ok := errorNames[named.Name()]; ok {
			return kind
		}
	}
	switch {
	case errors.Is(err, ErrNotAllowed), errors.Is(err, fs.ErrPermission):
		return ErrorPermissionDenied
	case errors.Is(err, ErrNotFound), errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENODEV):
		return ErrorDeviceNotFound
	case errors.Is(err, ErrNotReadable), errors.Is(err, syscall.EBUSY):
		return ErrorDeviceBusy
	case errors.Is(err, ErrOverconstrained):
		return ErrorUnsupportedConstraints
	case errors.Is(err, ErrInsecure):
		return ErrorInsecureContext
	}
	return ErrorUnknown
}
