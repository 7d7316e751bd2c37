package scanning

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mamadbah2/balsam/internal/device/camera"
	"github.com/mamadbah2/balsam/internal/device/decoder"
	"github.com/mamadbah2/balsam/internal/domain/models"
)

// Upload is one image picked by the user.
type Upload struct {
	Name string
	Data []byte
}

// liveSource runs a detection loop on the camera until the first payload.
type liveSource struct {
	kind        models.CaptureKind
	cameras     *camera.Manager
	constraints camera.Constraints
	adapter     decoder.Adapter
	limiter     *rate.Limiter
	logger      *zap.Logger

	handle atomic.Pointer[camera.Handle]
}

func newLiveSource(kind models.CaptureKind, cameras *camera.Manager, constraints camera.Constraints, adapter decoder.Adapter, fps float64, logger *zap.Logger) *liveSource {
	return &liveSource{
		kind:        kind,
		cameras:     cameras,
		constraints: constraints,
		adapter:     adapter,
		limiter:     rate.NewLimiter(rate.Limit(fps), 1),
		logger:      logger,
	}
}

// run acquires the camera, reports it through acquired and loops until a
// payload is found and claim succeeds, ctx is done or the stream dies. The
// device is released before run returns on every path. ok is false when a
// payload was found but the claim was refused.
func (l *liveSource) run(ctx context.Context, acquired func(), claim func() bool) (result models.DecodeResult, ok bool, err error) {
	h, err := l.cameras.Acquire(ctx, l.constraints)
	if err != nil {
		return models.DecodeResult{}, false, err
	}
	l.handle.Store(h)
	defer func() {
		l.handle.Store(nil)
		if relErr := h.Release(); relErr != nil {
			l.logger.Warn("camera release failed", zap.Error(relErr))
		}
	}()

	acquired()

	for frames := 1; ; frames++ {
		if err := ctx.Err(); err != nil {
			return models.DecodeResult{}, false, err
		}
		// One detection per refresh tick.
		if err := l.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return models.DecodeResult{}, false, ctxErr
			}
			return models.DecodeResult{}, false, err
		}

		frame, err := h.Frame(ctx)
		if err != nil {
			if errors.Is(err, models.ErrStreamClosed) {
				return models.DecodeResult{}, false, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return models.DecodeResult{}, false, ctxErr
			}
			l.logger.Debug("frame unavailable", zap.Int("frame", frames), zap.Error(err))
			continue
		}

		payload, found, err := l.adapter.Detect(ctx, frame)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return models.DecodeResult{}, false, ctxErr
			}
			l.logger.Debug("frame detection failed", zap.Int("frame", frames), zap.String("decoder", l.adapter.Name()), zap.Error(err))
			continue
		}
		if !found {
			continue
		}

		if !claim() {
			l.logger.Debug("detection discarded, session no longer accepts results")
			return models.DecodeResult{}, false, nil
		}
		l.logger.Info("qr code detected", zap.String("source", string(l.kind)), zap.Int("frame", frames))
		return models.DecodeResult{Payload: payload, Source: l.kind}, true, nil
	}
}

func (l *liveSource) toggleTorch() (bool, error) {
	h := l.handle.Load()
	if h == nil {
		return false, fmt.Errorf("toggle torch: %w", models.ErrDeviceUnavailable)
	}
	return h.ToggleTorch()
}

// snapshotSource takes one still per user trigger.
type snapshotSource struct {
	cameras     *camera.Manager
	constraints camera.Constraints
	adapter     decoder.Adapter
	logger      *zap.Logger
}

// capture acquires the camera, grabs exactly one frame, releases the camera
// and runs detection on the still. A miss or a failed detection is
// ErrNoQrInFrame; acquisition errors and a dead stream are returned as is.
func (s *snapshotSource) capture(ctx context.Context) (models.DecodeResult, error) {
	h, err := s.cameras.Acquire(ctx, s.constraints)
	if err != nil {
		return models.DecodeResult{}, err
	}

	frame, err := h.Frame(ctx)
	if relErr := h.Release(); relErr != nil {
		s.logger.Warn("camera release failed", zap.Error(relErr))
	}
	if err != nil {
		if errors.Is(err, models.ErrStreamClosed) || ctx.Err() != nil {
			return models.DecodeResult{}, err
		}
		return models.DecodeResult{}, fmt.Errorf("snapshot frame: %v: %w", err, models.ErrNoQrInFrame)
	}

	payload, found, err := s.adapter.Detect(ctx, frame)
	switch {
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.DecodeResult{}, ctxErr
		}
		s.logger.Debug("snapshot detection failed", zap.String("decoder", s.adapter.Name()), zap.Error(err))
		return models.DecodeResult{}, fmt.Errorf("snapshot: %v: %w", err, models.ErrNoQrInFrame)
	case !found:
		return models.DecodeResult{}, models.ErrNoQrInFrame
	}
	return models.DecodeResult{Payload: payload, Source: models.CaptureSnapshot}, nil
}

// uploadSource detects payloads in user supplied images. It never touches the camera.
type uploadSource struct {
	adapter decoder.Adapter
}

func (u *uploadSource) detect(ctx context.Context, item Upload) (models.DecodeResult, error) {
	img, _, err := image.Decode(bytes.NewReader(item.Data))
	if err != nil {
		return models.DecodeResult{}, fmt.Errorf("read image %s: %v: %w", item.Name, err, models.ErrDecode)
	}

	payload, found, err := u.adapter.Detect(ctx, img)
	if err != nil {
		return models.DecodeResult{}, fmt.Errorf("image %s: %w", item.Name, err)
	}
	if !found {
		return models.DecodeResult{}, fmt.Errorf("image %s: %w", item.Name, models.ErrNoQrInFrame)
	}
	return models.DecodeResult{Payload: payload, Source: models.CaptureUpload, Item: item.Name}, nil
}
