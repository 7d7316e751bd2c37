// Package camera owns the physical video device. Every capture strategy
// acquires and releases the device through a Manager so that at most one of
// them holds it at any time.
package camera

import (
	"context"
	"errors"
	"image"

	"github.com/mamadbah2/balsam/internal/config"
	"github.com/mamadbah2/balsam/internal/domain/models"
)

// ErrTorchUnsupported is returned when the open stream has no controllable light.
var ErrTorchUnsupported = errors.New("torch not supported by camera")

// Constraints describe the requested video stream.
type Constraints struct {
	FacingMode string
	Width      int
	Height     int
}

// ConstraintsFrom builds the stream constraints from configuration.
func ConstraintsFrom(cfg config.CameraConfig) Constraints {
	return Constraints{FacingMode: cfg.FacingMode, Width: cfg.Width, Height: cfg.Height}
}

// DeviceInfo identifies an enumerated video input.
type DeviceInfo struct {
	ID    string
	Label string
}

// Stream is an open video stream.
type Stream interface {
	// Frame returns the current frame. ErrStreamClosed means the stream will
	// never produce frames again.
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

// Torch is implemented by streams that can switch a flash light.
type Torch interface {
	ToggleTorch() (bool, error)
}

// Provider is the host video capture capability.
type Provider interface {
	Devices(ctx context.Context) ([]DeviceInfo, error)
	// Open requests a stream. It returns ErrStreamPending while the OS has not
	// granted access yet and ErrPermissionDenied once access was refused.
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// IsTransient reports whether an acquisition failure is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, models.ErrDeviceUnavailable) || errors.Is(err, models.ErrStreamPending)
}

// Unavailable is a Provider for hosts without a camera. It never lists a
// device, so acquisition keeps retrying until the caller gives up.
type Unavailable struct{}

// Devices implements Provider.
func (Unavailable) Devices(ctx context.Context) ([]DeviceInfo, error) { return nil, nil }

// Open implements Provider.
func (Unavailable) Open(ctx context.Context, c Constraints) (Stream, error) {
	return nil, models.ErrDeviceUnavailable
}
