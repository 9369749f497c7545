package tick

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Resolution is the period of the base tick.
const Resolution = time.Millisecond

// Task is called with the time elapsed since its previous call.
type Task interface {
	PeriodicTask(elapsed time.Duration)
}

type TaskFunc func(elapsed time.Duration)

func (f TaskFunc) PeriodicTask(elapsed time.Duration) {
	f(elapsed)
}

type entry struct {
	name    string
	period  time.Duration
	pending time.Duration
	task    Task
}

// Scheduler runs tasks at multiples of Resolution. Tasks run one at a time
// in registration order.
type Scheduler struct {
	mx      sync.Mutex
	log     *slog.Logger
	entries []*entry
	now     time.Duration
}

type Opt func(*Scheduler)

func WithLogger(logger *slog.Logger) Opt {
	return func(s *Scheduler) {
		s.log = logger
	}
}

func New(opts ...Opt) *Scheduler {
	s := &Scheduler{log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Every registers task to run once per period. The period is rounded down
// to the tick resolution.
func (s *Scheduler) Every(name string, period time.Duration, task Task) error {
	period = period.Truncate(Resolution)
	if period <= 0 {
		return fmt.Errorf("task %s: period must be at least %s", name, Resolution)
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	s.entries = append(s.entries, &entry{name: name, period: period, task: task})
	s.log.Debug("periodic task registered", "task", name, "period", period)
	return nil
}

// Advance moves the clock forward by d in tick steps and runs every task
// that comes due.
func (s *Scheduler) Advance(d time.Duration) {
	s.mx.Lock()
	defer s.mx.Unlock()
	for ; d >= Resolution; d -= Resolution {
		s.now += Resolution
		for _, e := range s.entries {
			e.pending += Resolution
			if e.pending >= e.period {
				e.task.PeriodicTask(e.pending)
				e.pending = 0
			}
		}
	}
}

// Now returns the time accumulated by Advance.
func (s *Scheduler) Now() time.Duration {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.now
}

// Run advances the scheduler from a ticker until ctx is done. A late tick
// catches up with the real time elapsed.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(Resolution)
	defer ticker.Stop()
	last := time.Now()
	var carry time.Duration
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C:
			carry += t.Sub(last)
			last = t
			steps := carry.Truncate(Resolution)
			carry -= steps
			s.Advance(steps)
		}
	}
}
