package scanning

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/balsam/internal/config"
	"github.com/mamadbah2/balsam/internal/device/camera"
	"github.com/mamadbah2/balsam/internal/device/decoder"
	"github.com/mamadbah2/balsam/internal/domain/models"
)

func testConfig() config.Config {
	return config.Config{
		Camera: config.CameraConfig{FacingMode: "environment", Width: 640, Height: 480, RetryDelay: time.Second},
		Scan:   config.ScanConfig{NativeRate: 1000, FallbackRate: 1000},
	}
}

// labelled is a frame the fake platform detector can read.
type labelled struct {
	*image.Gray
	payload string
}

func labelledFrame(payload string) image.Image {
	return labelled{Gray: image.NewGray(image.Rect(0, 0, 8, 8)), payload: payload}
}

func blankFrame() image.Image {
	return image.NewGray(image.Rect(0, 0, 64, 64))
}

func qrImage(t testing.TB, payload string) image.Image {
	t.Helper()
	matrix, err := qrcode.NewQRCodeWriter().Encode(payload, gozxing.BarcodeFormat_QR_CODE, 120, 120, nil)
	require.NoError(t, err)
	return matrix
}

func qrPNG(t testing.TB, payload string) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, qrImage(t, payload)))
	return buf.Bytes()
}

func blankPNG(t testing.TB) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, blankFrame()))
	return buf.Bytes()
}

type fakePlatform struct {
	mu      sync.Mutex
	formats []string
	probes  int
	detects int
	// gate, when set, holds every readable detection until closed.
	gate      chan struct{}
	blockedOn context.Context
}

func (p *fakePlatform) SupportedFormats(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes++
	return p.formats, nil
}

func (p *fakePlatform) Detect(ctx context.Context, frame image.Image, formats []string) ([]decoder.Barcode, error) {
	p.mu.Lock()
	p.detects++
	gate := p.gate
	l, ok := frame.(labelled)
	if ok && gate != nil {
		p.blockedOn = ctx
	}
	p.mu.Unlock()
	if !ok {
		return nil, nil
	}
	if gate != nil {
		<-gate
	}
	return []decoder.Barcode{{RawValue: l.payload, Format: decoder.FormatQRCode}}, nil
}

// blocked returns the context of the detection waiting on the gate, if any.
func (p *fakePlatform) blocked() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blockedOn
}

func (p *fakePlatform) counts() (probes, detects int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probes, p.detects
}

type fakeStream struct {
	mu         sync.Mutex
	frames     []image.Image
	next       int
	closing    bool
	closed     bool
	closeDelay time.Duration
}

// Frame replays frames and repeats the last one forever.
func (s *fakeStream) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, models.ErrStreamClosed
	}
	frame := s.frames[min(s.next, len(s.frames)-1)]
	s.next++
	return frame, nil
}

// Close takes closeDelay to shut the stream, like a slow camera driver.
func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closing = true
	delay := s.closeDelay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing && !s.closed
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeProvider struct {
	mu         sync.Mutex
	openErrs   []error
	frames     []image.Image
	streams    []*fakeStream
	closeDelay time.Duration
}

func (p *fakeProvider) Devices(ctx context.Context) ([]camera.DeviceInfo, error) {
	return []camera.DeviceInfo{{ID: "cam0", Label: "back"}}, nil
}

func (p *fakeProvider) Open(ctx context.Context, c camera.Constraints) (camera.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.openErrs) > 0 {
		err := p.openErrs[0]
		p.openErrs = p.openErrs[1:]
		return nil, err
	}
	s := &fakeStream{frames: p.frames, closeDelay: p.closeDelay}
	p.streams = append(p.streams, s)
	return s, nil
}

func (p *fakeProvider) opened() []*fakeStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*fakeStream(nil), p.streams...)
}

type fakeDispatcher struct {
	mu      sync.Mutex
	results []models.DecodeResult
	err     error
	// rejects fails the listed payloads only.
	rejects map[string]error
	// gate, when set, blocks every dispatch until closed.
	gate chan struct{}
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, result models.DecodeResult) (models.Drug, error) {
	if d.gate != nil {
		<-d.gate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, result)
	if d.err != nil {
		return models.Drug{}, d.err
	}
	if err, ok := d.rejects[result.Payload]; ok {
		return models.Drug{}, err
	}
	return models.Drug{ID: "drug-" + result.Payload, BrandName: result.Payload, Group: models.DefaultGroup}, nil
}

func (d *fakeDispatcher) calls() []models.DecodeResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.DecodeResult(nil), d.results...)
}

type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, message)
}

func (n *recordingNotifier) Error(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, message)
}

func (n *recordingNotifier) snapshot() (successes, errs []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.successes...), append([]string(nil), n.errors...)
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

func (w *recordingWaiter) recorded() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.delays...)
}

type harness struct {
	provider   *fakeProvider
	platform   *fakePlatform
	cameras    *camera.Manager
	dispatcher *fakeDispatcher
	notifier   *recordingNotifier
	waiter     *recordingWaiter
}

func newHarness(provider *fakeProvider, platform *fakePlatform) *harness {
	h := &harness{
		provider:   provider,
		platform:   platform,
		dispatcher: &fakeDispatcher{},
		notifier:   &recordingNotifier{},
		waiter:     &recordingWaiter{},
	}
	h.cameras = camera.NewManager(provider, testConfig().Camera, nil, camera.WithWaiter(h.waiter.wait))
	return h
}

func (h *harness) deps() Deps {
	d := Deps{
		Cameras:    h.cameras,
		Dispatcher: h.dispatcher,
		Notifier:   h.notifier,
	}
	// A nil *fakePlatform must stay a nil interface.
	if h.platform != nil {
		d.Platform = h.platform
	}
	return d
}

func (h *harness) session() *Session {
	return NewSession(testConfig(), h.deps())
}

func waitSettled(t testing.TB, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	select {
	case <-s.Done():
	case <-ctx.Done():
		t.Fatalf("session %s did not settle, state %s", s.ID(), s.State())
	}
}
