// Package decoder finds QR payloads in camera frames and still images.
package decoder

import (
	"context"
	"image"
)

// FormatQRCode is the platform format name of QR codes.
const FormatQRCode = "qr_code"

// Adapter detects zero or one QR payload in an image. A returned error means
// this attempt failed; callers treat it as "no detection" and carry on.
type Adapter interface {
	Name() string
	Detect(ctx context.Context, frame image.Image) (payload string, found bool, err error)
}

// Barcode is one detection reported by a platform detector.
type Barcode struct {
	RawValue string
	Format   string
}

// PlatformDetector is the host barcode detection capability.
type PlatformDetector interface {
	SupportedFormats(ctx context.Context) ([]string, error)
	Detect(ctx context.Context, frame image.Image, formats []string) ([]Barcode, error)
}
