package decoder

import (
	"context"
	"fmt"
	"image"
	"slices"

	"github.com/mamadbah2/balsam/internal/domain/models"
)

// Native runs detection on the platform capability.
type Native struct {
	platform PlatformDetector
}

// NewNative probes the platform once and returns ErrDecodeUnavailable when
// it is missing, the probe fails or QR codes are not supported.
func NewNative(ctx context.Context, platform PlatformDetector) (native *Native, err error) {
	if platform == nil {
		return nil, fmt.Errorf("native detector: %w", models.ErrDecodeUnavailable)
	}

	defer func() {
		if r := recover(); r != nil {
			native, err = nil, fmt.Errorf("native detector probe panicked: %v: %w", r, models.ErrDecodeUnavailable)
		}
	}()

	formats, err := platform.SupportedFormats(ctx)
	if err != nil {
		return nil, fmt.Errorf("native detector probe: %v: %w", err, models.ErrDecodeUnavailable)
	}
	if !slices.Contains(formats, FormatQRCode) {
		return nil, fmt.Errorf("native detector lacks %s: %w", FormatQRCode, models.ErrDecodeUnavailable)
	}

	return &Native{platform: platform}, nil
}

// Name implements Adapter.
func (n *Native) Name() string { return "native" }

// Detect implements Adapter.
func (n *Native) Detect(ctx context.Context, frame image.Image) (payload string, found bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload, found, err = "", false, fmt.Errorf("native detector panicked: %v: %w", r, models.ErrDecode)
		}
	}()

	codes, err := n.platform.Detect(ctx, frame, []string{FormatQRCode})
	if err != nil {
		return "", false, fmt.Errorf("native detect: %v: %w", err, models.ErrDecode)
	}
	for _, code := range codes {
		if code.RawValue != "" {
			return code.RawValue, true, nil
		}
	}
	return "", false, nil
}
