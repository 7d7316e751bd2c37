package models

import (
	"errors"
	"fmt"
)

// Camera lifecycle errors.
var (
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	ErrPermissionDenied  = errors.New("camera permission denied")
	ErrDeviceBusy        = errors.New("camera device busy")
	// ErrStreamPending is reported while the OS has not yet granted the stream.
	ErrStreamPending = errors.New("camera stream not granted yet")
	ErrStreamClosed  = errors.New("camera stream closed")
)

// Decode errors.
var (
	ErrDecodeUnavailable = errors.New("qr decoding capability unavailable")
	ErrDecode            = errors.New("qr decoding failed")
	ErrNoQrInFrame       = errors.New("no qr code found in frame")
)

// ErrSessionFinished is returned when an already used scan session is started again.
var ErrSessionFinished = errors.New("scan session already finished")

// ErrDrugNotFound indicates the requested id is not part of the local inventory.
var ErrDrugNotFound = errors.New("drug not found")

// GatewayError is any non-success answer of the inventory backend. Message is
// the text supplied by the server and is shown to the user verbatim.
type GatewayError struct {
	Op      string
	Status  int
	Message string
}

func (e *GatewayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("inventory api %s: status=%d, message=%s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("inventory api %s: %s", e.Op, e.Message)
}

// ValidationError is a local precondition failure detected before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// UserMessage renders err for a notification shown to the user.
func UserMessage(err error) string {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) && gwErr.Message != "" {
		return gwErr.Message
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return valErr.Error()
	}
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Camera access was denied."
	case errors.Is(err, ErrDeviceBusy):
		return "The camera is already in use."
	case errors.Is(err, ErrDeviceUnavailable):
		return "No camera is available."
	case errors.Is(err, ErrStreamClosed):
		return "The camera stream stopped."
	case errors.Is(err, ErrNoQrInFrame):
		return "No QR code found."
	case err == nil:
		return ""
	default:
		return err.Error()
	}
}
