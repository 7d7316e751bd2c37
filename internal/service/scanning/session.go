package scanning

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/balsam/internal/config"
	"github.com/mamadbah2/balsam/internal/device/camera"
	"github.com/mamadbah2/balsam/internal/device/decoder"
	"github.com/mamadbah2/balsam/internal/domain/models"
	"github.com/mamadbah2/balsam/internal/service/notify"
)

// ErrWrongKind is returned when an operation does not apply to the session's capture kind.
var ErrWrongKind = errors.New("operation not supported by this capture kind")

// ErrSessionFinished is returned by a session that already ran.
var ErrSessionFinished = models.ErrSessionFinished

// Dispatcher turns a scanned payload into a stored drug.
type Dispatcher interface {
	Dispatch(ctx context.Context, result models.DecodeResult) (models.Drug, error)
}

// Deps are the collaborators shared by all sessions.
type Deps struct {
	Cameras    *camera.Manager
	Platform   decoder.PlatformDetector
	Dispatcher Dispatcher
	Notifier   notify.Notifier
	Logger     *zap.Logger
}

// Status is a point in time view of a session.
type Status struct {
	ID         string              `json:"id"`
	Kind       models.CaptureKind  `json:"kind"`
	State      models.SessionState `json:"state"`
	Error      string              `json:"error,omitempty"`
	Drug       *models.Drug        `json:"drug,omitempty"`
	Dispatched int                 `json:"dispatched"`
	Total      int                 `json:"total,omitempty"`
}

// Session coordinates one scan intent from start to a single outcome:
// Idle → Acquiring → Detecting → Decoded | Cancelled | Failed. A dispatch
// rejected by the backend sends the session back to Idle; it cannot be
// started again.
type Session struct {
	id       string
	cfg      config.Config
	deps     Deps
	selector *decoder.Selector
	logger   *zap.Logger

	mu              sync.Mutex
	kind            models.CaptureKind
	state           models.SessionState
	err             error
	drug            *models.Drug
	dispatched      int
	total           int
	started         bool
	claimed         bool
	cancelRequested bool
	settled         bool

	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
	done    chan struct{}

	// released is closed once no capture source of the session can hold the camera.
	released    chan struct{}
	releaseOnce sync.Once

	live      *liveSource
	snapshot  *snapshotSource
	triggerMu sync.Mutex
}

// NewSession creates an Idle session.
func NewSession(cfg config.Config, deps Deps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	logger = logger.With(zap.String("session", id))

	return &Session{
		id:       id,
		cfg:      cfg,
		deps:     deps,
		selector: decoder.NewSelector(deps.Platform, logger.Named("decoder")),
		logger:   logger,
		state:    models.StateIdle,
		done:     make(chan struct{}),
		released: make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Done is closed once the session settled.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Session) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error the session settled with, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		ID:         s.id,
		Kind:       s.kind,
		State:      s.state,
		Dispatched: s.dispatched,
		Total:      s.total,
	}
	if s.err != nil {
		st.Error = models.UserMessage(s.err)
	}
	if s.drug != nil {
		d := *s.drug
		st.Drug = &d
	}
	return st
}

// Wait blocks until the session settles or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start begins scanning with the given capture kind. ctx bounds the whole
// session; cancelling it has the same effect as Cancel. Live kinds enter
// Acquiring, snapshot and upload enter Detecting.
func (s *Session) Start(ctx context.Context, kind models.CaptureKind, uploads ...Upload) error {
	switch kind {
	case models.CaptureLiveNative, models.CaptureLiveFallback, models.CaptureSnapshot:
	case models.CaptureUpload:
		if len(uploads) == 0 {
			return &models.ValidationError{Field: "images", Message: "must contain at least one image"}
		}
	default:
		return fmt.Errorf("start scan %q: %w", kind, ErrWrongKind)
	}

	var snapshotAdapter decoder.Adapter
	if kind == models.CaptureSnapshot {
		snapshotAdapter, _ = s.selector.Preferred(ctx)
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrSessionFinished
	}
	s.started = true
	s.kind = kind
	s.ctx, s.cancel = context.WithCancel(ctx)
	if kind.IsLive() {
		s.state = models.StateAcquiring
	} else {
		s.state = models.StateDetecting
	}

	switch kind {
	case models.CaptureLiveNative, models.CaptureLiveFallback:
		s.workers.Add(1)
		go s.runLive(kind)
	case models.CaptureSnapshot:
		// Trigger releases the camera before it claims a payload.
		s.markReleased()
		s.snapshot = &snapshotSource{
			cameras:     s.deps.Cameras,
			constraints: camera.ConstraintsFrom(s.cfg.Camera),
			adapter:     snapshotAdapter,
			logger:      s.logger.Named("snapshot"),
		}
	case models.CaptureUpload:
		s.markReleased()
		s.total = len(uploads)
		s.workers.Add(1)
		go s.runUpload(uploads)
	}
	s.mu.Unlock()

	// A cancelled parent settles the session like an explicit Cancel.
	context.AfterFunc(s.ctx, s.Cancel)

	s.logger.Info("scan session started", zap.String("kind", string(kind)))
	return nil
}

// Cancel stops the session from any non-terminal state. It returns after the
// capture source let go of the camera, on every path. A payload detected
// concurrently is discarded. A settled session, or one whose payload is
// already being dispatched, keeps its outcome.
func (s *Session) Cancel() {
	s.mu.Lock()
	if !s.started {
		s.started = true
		s.cancelRequested = true
		s.mu.Unlock()
		s.markReleased()
		s.settle(models.StateCancelled, nil)
		return
	}
	if s.settled || s.claimed || s.cancelRequested {
		pending := s.cancelRequested && !s.settled
		s.mu.Unlock()
		<-s.released
		if pending {
			// another caller is already tearing the session down
			<-s.done
		}
		return
	}
	s.cancelRequested = true
	s.mu.Unlock()

	s.cancel()
	s.workers.Wait()
	s.settle(models.StateCancelled, nil)
	s.logger.Info("scan session cancelled")
}

// Trigger takes one snapshot and dispatches its payload. On a miss it
// returns ErrNoQrInFrame and the session stays in Detecting for another try.
func (s *Session) Trigger(ctx context.Context) error {
	s.mu.Lock()
	if s.kind != models.CaptureSnapshot {
		s.mu.Unlock()
		return fmt.Errorf("trigger snapshot: %w", ErrWrongKind)
	}
	if s.settled || s.claimed || s.cancelRequested {
		s.mu.Unlock()
		return ErrSessionFinished
	}
	s.workers.Add(1)
	sessionCtx := s.ctx
	s.mu.Unlock()
	defer s.workers.Done()

	if !s.triggerMu.TryLock() {
		return fmt.Errorf("trigger snapshot: %w", models.ErrDeviceBusy)
	}
	defer s.triggerMu.Unlock()

	tctx, cancel := context.WithCancel(sessionCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	result, err := s.snapshot.capture(tctx)
	if err != nil {
		switch {
		case sessionCtx.Err() != nil:
			return fmt.Errorf("trigger snapshot: %w", sessionCtx.Err())
		case tctx.Err() != nil:
			return fmt.Errorf("trigger snapshot: %w", tctx.Err())
		case errors.Is(err, models.ErrNoQrInFrame):
			s.logger.Info("snapshot without qr code", zap.Error(err))
			s.notifyError(err)
			return err
		case errors.Is(err, models.ErrDeviceBusy):
			s.notifyError(err)
			return err
		default:
			s.fail(err)
			return err
		}
	}

	if !s.claim() {
		return ErrSessionFinished
	}
	return s.dispatch(sessionCtx, result)
}

// ToggleTorch flips the flash light of the live camera.
func (s *Session) ToggleTorch() (bool, error) {
	s.mu.Lock()
	live := s.live
	s.mu.Unlock()
	if live == nil {
		return false, fmt.Errorf("toggle torch: %w", ErrWrongKind)
	}
	return live.toggleTorch()
}

func (s *Session) runLive(requested models.CaptureKind) {
	defer s.workers.Done()
	defer s.markReleased()

	var (
		adapter decoder.Adapter
		kind    = requested
		fps     = s.cfg.Scan.FallbackRate
	)
	if requested == models.CaptureLiveNative {
		var native bool
		adapter, native = s.selector.Preferred(s.ctx)
		if native {
			fps = s.cfg.Scan.NativeRate
		} else {
			kind = models.CaptureLiveFallback
		}
	} else {
		adapter = s.selector.Portable()
	}

	live := newLiveSource(kind, s.deps.Cameras, camera.ConstraintsFrom(s.cfg.Camera), adapter, fps, s.logger.Named("live"))
	s.mu.Lock()
	s.kind = kind
	s.live = live
	s.mu.Unlock()

	result, ok, err := live.run(s.ctx, s.onAcquired, s.claim)
	s.markReleased()

	switch {
	case s.ctx.Err() != nil && !ok:
		// Cancel settles once every worker returned.
		return
	case err != nil:
		s.fail(err)
	case !ok:
		return
	default:
		_ = s.dispatch(s.ctx, result)
	}
}

func (s *Session) runUpload(uploads []Upload) {
	defer s.workers.Done()

	adapter, _ := s.selector.Preferred(s.ctx)
	src := &uploadSource{adapter: adapter}

	var (
		dispatched int
		lastErr    error
		notified   bool
		lastDrug   *models.Drug
	)
	for i, item := range uploads {
		if s.ctx.Err() != nil {
			return
		}

		result, err := src.detect(s.ctx, item)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Warn("skipping uploaded image", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
			lastErr = err
			notified = false
			continue
		}

		drug, err := s.deps.Dispatcher.Dispatch(s.ctx, result)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Warn("uploaded qr code rejected", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
			s.notifyError(err)
			lastErr = err
			notified = true
			continue
		}

		dispatched++
		lastDrug = &drug
		s.mu.Lock()
		s.dispatched = dispatched
		s.drug = lastDrug
		s.mu.Unlock()
	}

	if dispatched > 0 {
		s.notifySuccess(fmt.Sprintf("%d of %d images added", dispatched, len(uploads)))
		s.settle(models.StateDecoded, nil)
		return
	}
	if lastErr == nil {
		lastErr = models.ErrNoQrInFrame
	}
	if notified {
		// the gateway rejection was already shown to the user
		s.logger.Error("scan session failed", zap.Error(lastErr))
		s.settle(models.StateFailed, lastErr)
		return
	}
	s.fail(lastErr)
}

func (s *Session) markReleased() {
	s.releaseOnce.Do(func() { close(s.released) })
}

func (s *Session) onAcquired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == models.StateAcquiring && !s.cancelRequested {
		s.state = models.StateDetecting
		s.logger.Debug("camera acquired, detecting")
	}
}

// claim is the one-shot guard: it succeeds for the first payload of a
// session that is still detecting and was not asked to cancel.
func (s *Session) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed || s.cancelRequested || s.settled || s.state != models.StateDetecting {
		return false
	}
	s.claimed = true
	s.state = models.StateDecoded
	return true
}

func (s *Session) dispatch(ctx context.Context, result models.DecodeResult) error {
	drug, err := s.deps.Dispatcher.Dispatch(ctx, result)
	if err != nil {
		s.logger.Warn("dispatch rejected, session back to idle", zap.Error(err))
		s.notifyError(err)
		s.settle(models.StateIdle, err)
		return err
	}

	s.mu.Lock()
	s.drug = &drug
	s.dispatched = 1
	s.mu.Unlock()

	s.notifySuccess("Drug added from QR code!")
	s.settle(models.StateDecoded, nil)
	return nil
}

func (s *Session) fail(err error) {
	s.logger.Error("scan session failed", zap.Error(err))
	s.notifyError(err)
	s.settle(models.StateFailed, err)
}

func (s *Session) settle(state models.SessionState, err error) {
	s.mu.Lock()
	if s.settled {
		s.mu.Unlock()
		return
	}
	s.settled = true
	s.state = state
	s.err = err
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	close(s.done)
}

func (s *Session) notifySuccess(message string) {
	if s.deps.Notifier != nil {
		s.deps.Notifier.Success(message)
	}
}

func (s *Session) notifyError(err error) {
	if s.deps.Notifier != nil {
		s.deps.Notifier.Error(models.UserMessage(err))
	}
}
