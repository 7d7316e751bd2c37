package camera

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/balsam/internal/config"
	"github.com/mamadbah2/balsam/internal/domain/models"
)

// Waiter pauses between acquisition attempts. It must return early with the
// context error once ctx is done.
type Waiter func(ctx context.Context, d time.Duration) error

// Option configures a Manager.
type Option func(*Manager)

// WithWaiter replaces the timer based pause between attempts.
func WithWaiter(w Waiter) Option {
	return func(m *Manager) { m.wait = w }
}

// Manager grants exclusive access to the camera.
type Manager struct {
	provider   Provider
	retryDelay time.Duration
	wait       Waiter
	logger     *zap.Logger

	mu      sync.Mutex
	holder  *Handle
	pending bool

	acquired atomic.Int64
	released atomic.Int64
}

// NewManager constructs a camera lifecycle manager.
func NewManager(provider Provider, cfg config.CameraConfig, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		provider:   provider,
		retryDelay: cfg.RetryDelay,
		wait:       sleep,
		logger:     logger,
	}
	if m.retryDelay <= 0 {
		m.retryDelay = time.Second
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Acquire opens the camera for the caller. Transient failures are retried
// every retry delay until the stream opens or ctx is done; there is no other
// bound. A second caller gets ErrDeviceBusy until the handle is released.
func (m *Manager) Acquire(ctx context.Context, c Constraints) (*Handle, error) {
	m.mu.Lock()
	if m.holder != nil || m.pending {
		m.mu.Unlock()
		return nil, fmt.Errorf("acquire camera: %w", models.ErrDeviceBusy)
	}
	m.pending = true
	m.mu.Unlock()

	for attempt := 1; ; attempt++ {
		stream, err := m.open(ctx, c)
		if err == nil {
			h := &Handle{manager: m, stream: stream}
			m.mu.Lock()
			m.holder = h
			m.pending = false
			m.mu.Unlock()
			m.acquired.Add(1)
			m.logger.Debug("camera acquired", zap.Int("attempt", attempt))
			return h, nil
		}

		if ctx.Err() != nil {
			m.clearPending()
			return nil, fmt.Errorf("acquire camera: %w", ctx.Err())
		}
		if !IsTransient(err) {
			m.clearPending()
			return nil, fmt.Errorf("acquire camera: %w", err)
		}

		m.logger.Warn("camera not ready, retrying", zap.Int("attempt", attempt), zap.Duration("delay", m.retryDelay), zap.Error(err))
		if err := m.wait(ctx, m.retryDelay); err != nil {
			m.clearPending()
			return nil, fmt.Errorf("acquire camera: %w", err)
		}
	}
}

// Release gives the device back. Releasing nil or an already released handle is a no-op.
func (m *Manager) Release(h *Handle) error {
	if h == nil {
		return nil
	}
	return h.Release()
}

// Held reports whether a handle is currently live.
func (m *Manager) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holder != nil
}

// Counts returns how many handles were acquired and released so far.
func (m *Manager) Counts() (acquired, released int64) {
	return m.acquired.Load(), m.released.Load()
}

func (m *Manager) open(ctx context.Context, c Constraints) (Stream, error) {
	devices, err := m.provider.Devices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, models.ErrDeviceUnavailable
	}
	return m.provider.Open(ctx, c)
}

func (m *Manager) clearPending() {
	m.mu.Lock()
	m.pending = false
	m.mu.Unlock()
}

func (m *Manager) releaseHandle(h *Handle) error {
	err := h.stream.Close()

	m.mu.Lock()
	if m.holder == h {
		m.holder = nil
	}
	m.mu.Unlock()

	m.released.Add(1)
	if err != nil {
		m.logger.Warn("camera stream close failed", zap.Error(err))
		return fmt.Errorf("release camera: %w", err)
	}
	m.logger.Debug("camera released")
	return nil
}

// Handle is exclusive ownership of the open stream.
type Handle struct {
	manager *Manager
	stream  Stream
	once    sync.Once
	err     error
}

// Frame pulls the current frame from the stream.
func (h *Handle) Frame(ctx context.Context) (image.Image, error) {
	return h.stream.Frame(ctx)
}

// ToggleTorch flips the flash light when the stream supports one.
func (h *Handle) ToggleTorch() (bool, error) {
	torch, ok := h.stream.(Torch)
	if !ok {
		return false, ErrTorchUnsupported
	}
	return torch.ToggleTorch()
}

// Release closes the stream and frees the device. It is idempotent.
func (h *Handle) Release() error {
	h.once.Do(func() {
		h.err = h.manager.releaseHandle(h)
	})
	return h.err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
