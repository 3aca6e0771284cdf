package rotation

import (
	"context"
	"time"

	"github.com/systmms/credops/internal/logging"
)

// DefaultDrainTimeout bounds how long an in-flight cycle may run after the
// scheduler's context is cancelled.
const DefaultDrainTimeout = 30 * time.Second

// Scheduler runs engine cycles on a fixed interval inside a long-lived
// process. CLI one-shot runs call Engine.RunCycle directly instead.
type Scheduler struct {
	engine       *Engine
	interval     time.Duration
	drainTimeout time.Duration
	logger       *logging.Logger
}

// NewScheduler creates a scheduler. drainTimeout <= 0 selects the default.
func NewScheduler(engine *Engine, interval, drainTimeout time.Duration, logger *logging.Logger) *Scheduler {
	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}
	return &Scheduler{
		engine:       engine,
		interval:     interval,
		drainTimeout: drainTimeout,
		logger:       logger,
	}
}

// Run executes one cycle immediately and then on every interval tick until
// ctx is cancelled. A cycle in flight at shutdown is given the drain timeout
// to finish; keys still pending after that are recorded as interrupted
// failures by the engine.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Rotation scheduler started (interval %s)", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Rotation scheduler stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	// Detach from the scheduler context so cancellation drains instead of
	// killing the cycle outright.
	cycleCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-ctx.Done():
			timer := time.NewTimer(s.drainTimeout)
			defer timer.Stop()
			select {
			case <-cycleCtx.Done():
			case <-timer.C:
				s.logger.Warn("Rotation cycle exceeded drain timeout, interrupting")
				cancel()
			}
		case <-cycleCtx.Done():
		}
	}()

	report := s.engine.RunCycle(cycleCtx, false)
	for service, counts := range report.PerService() {
		if counts.Rotated > 0 || counts.Failed > 0 {
			s.logger.Info("Cycle for %s: %d rotated, %d skipped, %d failed",
				service, counts.Rotated, counts.Skipped, counts.Failed)
		}
	}
}
