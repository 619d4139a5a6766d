// Package scheduler runs the periodic sweeps over active loans: late fee
// accrual and the default threshold check. Both are idempotent, so
// at-least-once execution is safe.
package scheduler

import (
	"context"
	"time"

	"github.com/paylend/loan-service/internal/config"
	"github.com/paylend/loan-service/internal/service"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type Scheduler struct {
	svc  *service.Service
	cfg  *config.Config
	log  *logrus.Logger
	cron *cron.Cron
}

// NewScheduler creates the cron-backed sweep runner.
func NewScheduler(svc *service.Service, cfg *config.Config, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		svc:  svc,
		cfg:  cfg,
		log:  log,
		cron: cron.New(),
	}
}

// Start registers the daily sweep and begins the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.FeeSweepSpec, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Infof("Sweep scheduled: %q", s.cfg.FeeSweepSpec)
	return nil
}

// Stop halts the cron loop, waiting for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	now := time.Now()
	if err := s.svc.SweepLateFees(ctx, now); err != nil {
		s.log.Errorf("Late fee sweep failed: %v", err)
	}
	if err := s.svc.SweepDefaults(ctx, now); err != nil {
		s.log.Errorf("Default sweep failed: %v", err)
	}
}
