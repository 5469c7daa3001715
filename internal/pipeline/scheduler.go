package pipeline

import (
	"context"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/Will-Luck/sally-agent/internal/clock"
	"github.com/Will-Luck/sally-agent/internal/logging"
)

// SettingsReader reads runtime settings controlled by the admin API, such
// as the paused flag.
type SettingsReader interface {
	GetSetting(key string) (string, bool)
}

// Scheduler runs the pipeline's sweep cycle at a configurable interval,
// pausable at runtime through a SettingsReader. When a cron.Schedule is
// installed via SetSchedule, it overrides the fixed interval: each wake
// time is computed from the schedule rather than a constant sleep.
type Scheduler struct {
	pipeline *Pipeline
	interval time.Duration
	schedule cron.Schedule
	clock    clock.Clock
	log      *logging.Logger
	settings SettingsReader
	resetCh  chan struct{}
	lastRun  time.Time
}

// NewScheduler builds a Scheduler driving pipeline at the given sweep interval.
func NewScheduler(p *Pipeline, interval time.Duration, clk clock.Clock, log *logging.Logger) *Scheduler {
	return &Scheduler{
		pipeline: p,
		interval: interval,
		clock:    clk,
		log:      log,
		resetCh:  make(chan struct{}, 1),
	}
}

// SetSettingsReader attaches a settings reader for runtime pause checks.
func (s *Scheduler) SetSettingsReader(sr SettingsReader) {
	s.settings = sr
}

// SetSchedule installs a cron.Schedule that overrides the fixed sweep
// interval, and wakes the run loop so it picks up the new wait
// immediately rather than finishing out whatever plain interval it was
// mid-wait on.
func (s *Scheduler) SetSchedule(sched cron.Schedule) {
	s.schedule = sched
	select {
	case s.resetCh <- struct{}{}:
	default:
	}
}

// Run performs an initial sweep immediately, then sweeps on every
// subsequent wake until ctx is cancelled. Each wake is computed fresh: from
// the cron schedule if one is installed, otherwise from the fixed interval.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.isPaused() {
		s.sweep(ctx)
	} else {
		s.log.Info("pipeline paused, skipping initial sweep")
	}

	for {
		select {
		case <-s.clock.After(s.nextWait()):
			if s.isPaused() {
				s.log.Info("pipeline paused, skipping scheduled sweep")
				continue
			}
			s.sweep(ctx)
		case <-s.resetCh:
			s.log.Info("sweep schedule changed, resetting timer")
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		}
	}
}

// nextWait returns how long to sleep before the next sweep: the gap to the
// cron schedule's next instant if one is installed, otherwise the fixed
// interval.
func (s *Scheduler) nextWait() time.Duration {
	if s.schedule == nil {
		return s.interval
	}
	now := s.clock.Now()
	return s.schedule.Next(now).Sub(now)
}

func (s *Scheduler) sweep(ctx context.Context) {
	s.pipeline.Sweep(ctx)
	s.lastRun = s.clock.Now()
}

// SetInterval updates the sweep interval at runtime and wakes the run loop
// to pick it up on the next iteration.
func (s *Scheduler) SetInterval(d time.Duration) {
	s.interval = d
	select {
	case s.resetCh <- struct{}{}:
	default:
	}
}

// LastRun returns when the last sweep completed.
func (s *Scheduler) LastRun() time.Time {
	return s.lastRun
}

func (s *Scheduler) isPaused() bool {
	if s.settings == nil {
		return false
	}
	val, ok := s.settings.GetSetting("paused")
	return ok && val == "true"
}
