package models

import "time"

// CaptureKind tags the capture strategy that produced a decode input.
type CaptureKind string

const (
	CaptureLiveNative   CaptureKind = "live_native"
	CaptureLiveFallback CaptureKind = "live_fallback"
	CaptureSnapshot     CaptureKind = "snapshot"
	CaptureUpload       CaptureKind = "upload"
)

// ParseCaptureKind maps user supplied text onto a CaptureKind. "live" means
// the native detector with automatic fallback.
func ParseCaptureKind(raw string) (CaptureKind, bool) {
	switch raw {
	case "live", string(CaptureLiveNative):
		return CaptureLiveNative, true
	case "fallback", string(CaptureLiveFallback):
		return CaptureLiveFallback, true
	case string(CaptureSnapshot):
		return CaptureSnapshot, true
	case string(CaptureUpload):
		return CaptureUpload, true
	default:
		return "", false
	}
}

// IsLive reports whether the kind keeps the camera for a detection loop.
func (k CaptureKind) IsLive() bool {
	return k == CaptureLiveNative || k == CaptureLiveFallback
}

// SessionState is the lifecycle state of one scan session.
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateAcquiring SessionState = "acquiring"
	StateDetecting SessionState = "detecting"
	StateDecoded   SessionState = "decoded"
	StateCancelled SessionState = "cancelled"
	StateFailed    SessionState = "failed"
)

// Terminal reports whether no further transition can happen.
func (s SessionState) Terminal() bool {
	return s == StateDecoded || s == StateCancelled || s == StateFailed
}

// DecodeResult is a scanned payload with its provenance. It is consumed by
// the dispatch step and never stored.
type DecodeResult struct {
	Payload string
	Source  CaptureKind
	// Item names the uploaded image the payload came from.
	Item string
}

// NotificationLevel distinguishes successes from failures.
type NotificationLevel string

const (
	NotifySuccess NotificationLevel = "success"
	NotifyError   NotificationLevel = "error"
)

// Notification is a single human readable message for the user.
type Notification struct {
	Level   NotificationLevel `json:"level"`
	Message string            `json:"message"`
	At      time.Time         `json:"at"`
}
