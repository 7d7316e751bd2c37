package decoder

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Selector picks the decoder for one scan session. The platform probe runs
// at most once per Selector; a failed probe is never repeated.
type Selector struct {
	platform PlatformDetector
	logger   *zap.Logger

	once     sync.Once
	native   *Native
	probeErr error

	portableOnce sync.Once
	portable     *Portable
}

// NewSelector returns a selector preferring platform over portable detection.
func NewSelector(platform PlatformDetector, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{platform: platform, logger: logger}
}

// Preferred returns the native adapter when the platform supports QR codes,
// otherwise the portable one. native reports which was chosen.
func (s *Selector) Preferred(ctx context.Context) (adapter Adapter, native bool) {
	s.once.Do(func() {
		s.native, s.probeErr = NewNative(ctx, s.platform)
		if s.probeErr != nil {
			s.logger.Info("native qr detector unavailable, using portable decoder", zap.Error(s.probeErr))
		}
	})
	if s.native != nil {
		return s.native, true
	}
	return s.Portable(), false
}

// Portable returns the software decoder.
func (s *Selector) Portable() Adapter {
	s.portableOnce.Do(func() {
		s.portable = NewPortable()
	})
	return s.portable
}
