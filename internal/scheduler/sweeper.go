// Package scheduler runs the periodic maintenance work the engine needs but
// does not drive itself, currently the expired-wait sweep.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSpec sweeps once a minute, the finest standard cron granularity.
const DefaultSpec = "* * * * *"

// Sweeper is the interface the scheduler drives. Satisfied by the engine.
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// Scheduler runs the expired-wait sweep on a cron cadence. Waiting
// executions are inert rows; this loop is the only thing that notices their
// deadlines.
type Scheduler struct {
	sweeper  Sweeper
	schedule cron.Schedule
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Scheduler from a standard 5-field cron spec. An empty spec
// falls back to DefaultSpec.
func New(sweeper Sweeper, spec string, logger *slog.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", spec, err)
	}
	return &Scheduler{
		sweeper:  sweeper,
		schedule: schedule,
		logger:   logger,
	}, nil
}

// Start launches the background sweep loop. An immediate sweep runs first so
// waits that expired while the process was down are picked up at boot.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.loop(loopCtx, done)
	s.logger.Info("sweep scheduler started")
	return nil
}

// loop receives the done channel made by Start so that a concurrent Stop,
// which nils s.done, cannot race the deferred close.
func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.sweep(ctx)

	for {
		now := time.Now()
		timer := time.NewTimer(s.schedule.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	advanced, err := s.sweeper.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("expired sweep failed", slog.String("error", err.Error()))
		return
	}
	if advanced > 0 {
		s.logger.Info("expired sweep advanced executions", slog.Int("count", advanced))
	}
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
