package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/balsam/internal/config"
	"github.com/mamadbah2/balsam/internal/domain/models"
)

// Inventory is the store refreshed by the scheduler.
type Inventory interface {
	Load(ctx context.Context) error
	Drugs() []models.Drug
}

// Exporter mirrors the inventory somewhere else after a resync.
type Exporter interface {
	ExportEnabled() bool
	Export(ctx context.Context, drugs []models.Drug) error
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron      *cron.Cron
	inventory Inventory
	exporter  Exporter
	cfg       config.Config
	logger    *zap.Logger
}

// NewScheduler creates a new scheduler instance. exporter may be nil.
func NewScheduler(cfg config.Config, inventory Inventory, exporter Exporter, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Standard 5 field cron expressions.
	c := cron.New()

	return &Scheduler{
		cron:      c,
		inventory: inventory,
		exporter:  exporter,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start registers the resync job and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler", zap.String("schedule", s.cfg.Sync.CronSchedule))

	if _, err := s.cron.AddFunc(s.cfg.Sync.CronSchedule, s.Resync); err != nil {
		s.logger.Error("failed to schedule inventory resync", zap.Error(err))
		return err
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running job.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

// Resync reloads the inventory from the backend and exports it when a sheet is configured.
func (s *Scheduler) Resync() {
	s.logger.Info("resyncing inventory")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := s.inventory.Load(ctx); err != nil {
		s.logger.Error("failed to resync inventory", zap.Error(err))
		return
	}

	if s.exporter == nil || !s.exporter.ExportEnabled() {
		return
	}

	if err := s.exporter.Export(ctx, s.inventory.Drugs()); err != nil {
		s.logger.Error("failed to export inventory", zap.Error(err))
	} else {
		s.logger.Info("inventory exported successfully")
	}
}
