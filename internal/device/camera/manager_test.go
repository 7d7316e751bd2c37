package camera

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/balsam/internal/config"
	"github.com/mamadbah2/balsam/internal/domain/models"
)

type fakeStream struct {
	mu     sync.Mutex
	closes int
}

func (s *fakeStream) Frame(ctx context.Context) (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, 4, 4)), nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

type fakeProvider struct {
	mu        sync.Mutex
	noDevices int
	openErrs  []error
	opens     int
	streams   []*fakeStream
}

func (p *fakeProvider) Devices(ctx context.Context) ([]DeviceInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.noDevices > 0 {
		p.noDevices--
		return nil, nil
	}
	return []DeviceInfo{{ID: "cam0", Label: "back"}}, nil
}

func (p *fakeProvider) Open(ctx context.Context, c Constraints) (Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opens++
	if len(p.openErrs) > 0 {
		err := p.openErrs[0]
		p.openErrs = p.openErrs[1:]
		return nil, err
	}
	s := &fakeStream{}
	p.streams = append(p.streams, s)
	return s, nil
}

type recordingWaiter struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (w *recordingWaiter) wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.delays = append(w.delays, d)
	w.mu.Unlock()
	return ctx.Err()
}

var testConstraints = Constraints{FacingMode: "environment", Width: 1280, Height: 720}

func newTestManager(p Provider, w Waiter) *Manager {
	return NewManager(p, config.CameraConfig{RetryDelay: time.Second}, nil, WithWaiter(w))
}

func TestAcquireRetriesTransientFailures(t *testing.T) {
	provider := &fakeProvider{openErrs: []error{models.ErrDeviceUnavailable, models.ErrDeviceUnavailable}}
	waiter := &recordingWaiter{}
	m := newTestManager(provider, waiter.wait)

	h, err := m.Acquire(context.Background(), testConstraints)
	require.NoError(t, err)
	require.NotNil(t, h)

	assert.Equal(t, 3, provider.opens)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, waiter.delays)
	assert.True(t, m.Held())
	require.NoError(t, h.Release())
}

func TestAcquireRetriesWhileNoDeviceOrStreamPending(t *testing.T) {
	provider := &fakeProvider{noDevices: 2, openErrs: []error{models.ErrStreamPending}}
	waiter := &recordingWaiter{}
	m := newTestManager(provider, waiter.wait)

	h, err := m.Acquire(context.Background(), testConstraints)
	require.NoError(t, err)
	assert.Len(t, waiter.delays, 3)
	require.NoError(t, h.Release())
}

func TestAcquireFatalErrorsAreNotRetried(t *testing.T) {
	provider := &fakeProvider{openErrs: []error{models.ErrPermissionDenied}}
	waiter := &recordingWaiter{}
	m := newTestManager(provider, waiter.wait)

	_, err := m.Acquire(context.Background(), testConstraints)
	require.ErrorIs(t, err, models.ErrPermissionDenied)
	assert.Empty(t, waiter.delays)
	assert.False(t, m.Held())

	// The failed attempt must not leave the device reserved.
	h, err := m.Acquire(context.Background(), testConstraints)
	require.NoError(t, err)
	require.NoError(t, h.Release())
}

func TestAcquireIsExclusive(t *testing.T) {
	m := newTestManager(&fakeProvider{}, (&recordingWaiter{}).wait)

	h, err := m.Acquire(context.Background(), testConstraints)
	require.NoError(t, err)

	_, err = m.Acquire(context.Background(), testConstraints)
	require.ErrorIs(t, err, models.ErrDeviceBusy)

	require.NoError(t, m.Release(h))

	h2, err := m.Acquire(context.Background(), testConstraints)
	require.NoError(t, err)
	require.NoError(t, h2.Release())
}

func TestAcquireBusyWhileRetrying(t *testing.T) {
	provider := &fakeProvider{openErrs: []error{models.ErrDeviceUnavailable}}
	entered := make(chan struct{})
	proceed := make(chan struct{})
	m := NewManager(provider, config.CameraConfig{RetryDelay: time.Second}, nil, WithWaiter(func(ctx context.Context, d time.Duration) error {
		close(entered)
		<-proceed
		return nil
	}))

	done := make(chan error, 1)
	go func() {
		h, err := m.Acquire(context.Background(), testConstraints)
		if err == nil {
			err = h.Release()
		}
		done <- err
	}()

	<-entered
	_, err := m.Acquire(context.Background(), testConstraints)
	require.ErrorIs(t, err, models.ErrDeviceBusy)
	close(proceed)
	require.NoError(t, <-done)
}

func TestAcquireCancelledDuringRetry(t *testing.T) {
	provider := &fakeProvider{noDevices: 1_000_000}
	m := NewManager(provider, config.CameraConfig{RetryDelay: time.Millisecond}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := m.Acquire(ctx, testConstraints)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, m.Held())

	acquired, released := m.Counts()
	assert.Zero(t, acquired)
	assert.Zero(t, released)
}

func TestReleaseIsIdempotent(t *testing.T) {
	provider := &fakeProvider{}
	m := newTestManager(provider, (&recordingWaiter{}).wait)

	h, err := m.Acquire(context.Background(), testConstraints)
	require.NoError(t, err)

	require.NoError(t, h.Release())
	require.NoError(t, h.Release())
	require.NoError(t, m.Release(h))
	require.NoError(t, m.Release(nil))

	acquired, released := m.Counts()
	assert.EqualValues(t, 1, acquired)
	assert.EqualValues(t, 1, released)
	assert.Equal(t, 1, provider.streams[0].closes)
}

func TestHandleTorch(t *testing.T) {
	m := newTestManager(&fakeProvider{}, (&recordingWaiter{}).wait)
	h, err := m.Acquire(context.Background(), testConstraints)
	require.NoError(t, err)
	defer h.Release()

	_, err = h.ToggleTorch()
	assert.True(t, errors.Is(err, ErrTorchUnsupported))
}

func TestAcquireWithoutCameraWaitsForCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	m := newTestManager(Unavailable{}, func(ctx context.Context, d time.Duration) error {
		attempts++
		if attempts == 3 {
			cancel()
		}
		return ctx.Err()
	})

	_, err := m.Acquire(ctx, testConstraints)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, attempts)
	assert.False(t, m.Held())
}
