package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// SweepFunc is invoked once per slot. slot is the aligned start of the interval.
type SweepFunc func(ctx context.Context, slot time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval        time.Duration
	AlignToInterval bool
	StartupDelay    time.Duration
	// RunOnStart triggers one sweep right after the startup delay instead of
	// waiting for the first slot.
	RunOnStart bool
}

// Scheduler drives periodic alert sweeps.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	if opts.Interval <= 0 {
		return nil, errors.New("scheduler interval must be positive")
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Interval returns the configured sweep period.
func (s *Scheduler) Interval() time.Duration { return s.opts.Interval }

// Run blocks, invoking sweep at each slot until ctx is cancelled. A failing
// sweep is logged and does not stop the loop.
func (s *Scheduler) Run(ctx context.Context, sweep SweepFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	if s.opts.RunOnStart {
		s.execute(ctx, sweep, s.slotStart(s.now()))
	}

	next := s.nextSlot(s.now())
	for {
		delay := next.Sub(s.now())
		if delay < 0 {
			next = s.nextSlot(s.now())
			delay = next.Sub(s.now())
		}

		s.logger.Debug().Time("next_slot", next).Msg("waiting for next sweep")
		if err := sleep(ctx, delay); err != nil {
			return err
		}

		s.execute(ctx, sweep, s.slotStart(next))
		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) execute(ctx context.Context, sweep SweepFunc, slot time.Time) {
	started := s.now()
	s.logger.Info().Time("slot", slot).Msg("starting sweep")
	if err := sweep(ctx, slot); err != nil {
		s.logger.Error().Err(err).Time("slot", slot).Msg("sweep failed")
		return
	}
	s.logger.Info().Time("slot", slot).Dur("elapsed", s.now().Sub(started)).Msg("sweep finished")
}

func (s *Scheduler) nextSlot(now time.Time) time.Time {
	if !s.opts.AlignToInterval {
		return now.Add(s.opts.Interval)
	}
	slot := now.Truncate(s.opts.Interval)
	if !slot.After(now) {
		slot = slot.Add(s.opts.Interval)
	}
	return slot
}

func (s *Scheduler) slotStart(t time.Time) time.Time {
	if !s.opts.AlignToInterval {
		return t
	}
	return t.Truncate(s.opts.Interval)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
