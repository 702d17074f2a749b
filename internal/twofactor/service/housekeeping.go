package service

import (
	"context"
	"log/slog"
	"time"
)

// HousekeepingService periodically sweeps expired in-memory state (stale
// enrollment sessions, elapsed lockouts) and, when a trust TTL is
// configured, stale trusted-device rows.
type HousekeepingService struct {
	Enrollment *EnrollmentService
	Factor     *FactorService
	Devices    *DeviceService
	Logger     *slog.Logger
	Interval   time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates the background sweeper. If interval is 0 or
// negative, defaults to 5 minutes.
func NewHousekeepingService(enrollment *EnrollmentService, factor *FactorService, devices *DeviceService, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &HousekeepingService{
		Enrollment: enrollment,
		Factor:     factor,
		Devices:    devices,
		Logger:     logger,
		Interval:   interval,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins the background sweep loop. Non-blocking; call Stop to shut
// down gracefully.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts down the worker, blocking until any in-progress sweep finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep runs each cleanup independently so one failure does not stop the
// others.
func (s *HousekeepingService) sweep() {
	now := time.Now()

	if n := s.Enrollment.SweepExpiredSessions(now); n > 0 {
		s.Logger.Info("expired enrollment sessions discarded", "count", n)
	}
	if n := s.Factor.SweepLockouts(now); n > 0 {
		s.Logger.Debug("elapsed lockouts cleared", "count", n)
	}
	if err := s.Devices.SweepStale(context.Background(), now); err != nil {
		s.Logger.Error("failed to sweep stale trusted devices", "error", err)
	}
}
