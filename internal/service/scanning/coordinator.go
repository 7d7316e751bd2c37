package scanning

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/mamadbah2/balsam/internal/config"
	"github.com/mamadbah2/balsam/internal/domain/models"
)

// ErrNoSession is returned when no scan session was started yet.
var ErrNoSession = errors.New("no scan session")

// Coordinator owns the station's current scan session. Starting a new scan
// fully cancels the previous one first, so at most one session touches the
// camera at any time.
type Coordinator struct {
	base   context.Context
	cfg    config.Config
	deps   Deps
	logger *zap.Logger

	mu      sync.Mutex
	current *Session
}

// NewCoordinator builds a coordinator whose sessions live as long as base.
func NewCoordinator(base context.Context, cfg config.Config, deps Deps) *Coordinator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Coordinator{
		base:   base,
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.Named("scan"),
	}
}

// Start replaces the current session with a new one of the given kind.
func (c *Coordinator) Start(kind models.CaptureKind, uploads ...Upload) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.Cancel()
	}

	deps := c.deps
	deps.Logger = c.logger
	s := NewSession(c.cfg, deps)
	if err := s.Start(c.base, kind, uploads...); err != nil {
		return nil, err
	}
	c.current = s
	return s, nil
}

// Current returns the latest session.
func (c *Coordinator) Current() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, ErrNoSession
	}
	return c.current, nil
}

// Cancel stops the current session, if any.
func (c *Coordinator) Cancel() (*Session, error) {
	s, err := c.Current()
	if err != nil {
		return nil, err
	}
	s.Cancel()
	return s, nil
}

// Trigger takes a snapshot on the current session.
func (c *Coordinator) Trigger(ctx context.Context) (*Session, error) {
	s, err := c.Current()
	if err != nil {
		return nil, err
	}
	return s, s.Trigger(ctx)
}

// Close cancels the current session. Used on shutdown.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.Cancel()
	}
}
