// Package keepalive runs the studio's periodic housekeeping: waking the question-bank
// backend before instructors need it and sweeping expired in-memory sessions.
package keepalive

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Pinger wakes the backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Sweeper drops expired sessions and reports how many were removed.
type Sweeper interface {
	Sweep() int
}

// Config holds cron specs with a seconds field. An empty spec disables the job.
type Config struct {
	PingSchedule  string
	SweepSchedule string
	PingTimeout   time.Duration
}

// Scheduler owns the cron runner and its jobs.
type Scheduler struct {
	cron    *cron.Cron
	pinger  Pinger
	sweeper Sweeper
	timeout time.Duration
	logger  zerolog.Logger

	pings    atomic.Int64
	failures atomic.Int64
}

// New registers the configured jobs. sweeper may be nil when sessions live in Redis.
func New(cfg Config, pinger Pinger, sweeper Sweeper, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		pinger:  pinger,
		sweeper: sweeper,
		timeout: cfg.PingTimeout,
		logger:  logger.With().Str("component", "keepalive").Logger(),
	}
	if s.timeout <= 0 {
		s.timeout = 30 * time.Second
	}

	if cfg.PingSchedule != "" && pinger != nil {
		if _, err := s.cron.AddFunc(cfg.PingSchedule, func() { _ = s.Ping(context.Background()) }); err != nil {
			return nil, fmt.Errorf("ping schedule %q: %w", cfg.PingSchedule, err)
		}
	}
	if cfg.SweepSchedule != "" && sweeper != nil {
		if _, err := s.cron.AddFunc(cfg.SweepSchedule, s.Sweep); err != nil {
			return nil, fmt.Errorf("sweep schedule %q: %w", cfg.SweepSchedule, err)
		}
	}
	return s, nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("jobs", s.Jobs()).Msg("keepalive started")
}

// Stop stops scheduling and waits for running jobs or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.logger.Info().Msg("keepalive stopped")
}

// Ping wakes the backend once. Failures are logged; hosted backends often need a few
// attempts after sleeping.
func (s *Scheduler) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.pings.Add(1)
	start := time.Now()
	if err := s.pinger.Ping(ctx); err != nil {
		s.failures.Add(1)
		s.logger.Warn().Err(err).Dur("took", time.Since(start)).Msg("backend ping failed")
		return err
	}
	s.logger.Debug().Dur("took", time.Since(start)).Msg("backend awake")
	return nil
}

// Sweep removes expired sessions.
func (s *Scheduler) Sweep() {
	if n := s.sweeper.Sweep(); n > 0 {
		s.logger.Info().Int("sessions", n).Msg("expired sessions removed")
	}
}

// Stats reports ping attempts and failures since start.
func (s *Scheduler) Stats() (pings, failures int64) {
	return s.pings.Load(), s.failures.Load()
}
