// Package supervisor looks after the host controller the emulator sits
// next to: a watchdog it has to keep feeding over the bus, the reset and
// flash power sequence run on its reset request, and a persistent log of
// those events.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/i2cemu"
)

// Lines drives the reset and power signals of the supervised controller.
type Lines interface {
	CoreReset(asserted bool) error
	PowerReset(asserted bool) error
	FlashPower(on bool) error
	// UpdateRequested reports whether the host holds the update request
	// signal low while a reset request is serviced.
	UpdateRequested() (bool, error)
}

const (
	pulseWidth  = 10 * time.Microsecond
	sampleDelay = 100 * time.Microsecond
	powerSettle = 5 * time.Millisecond
	// the controller restarts about 17ms after its core reset is released
	// and pulses the reset request again
	restartMask = 20 * time.Millisecond
)

type Supervisor struct {
	mx       sync.Mutex
	log      *slog.Logger
	lines    Lines
	events   *EventLog
	watchdog *Watchdog
	sleep    func(ctx context.Context, d time.Duration) error
}

type Opt func(*Supervisor)

func WithLogger(logger *slog.Logger) Opt {
	return func(s *Supervisor) {
		s.log = logger
	}
}

// WithSleep replaces the delay used between reset sequence steps.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Opt {
	return func(s *Supervisor) {
		s.sleep = sleep
	}
}

// New returns a supervisor keeping its event log in store.
func New(lines Lines, store i2cemu.PersistentStore, opts ...Opt) *Supervisor {
	s := &Supervisor{
		log:   slog.Default(),
		lines: lines,
		sleep: sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = NewEventLog(store, s.log)
	s.watchdog = NewWatchdog(s.watchdogExpired)
	return s
}

func (s *Supervisor) Watchdog() *Watchdog {
	return s.watchdog
}

func (s *Supervisor) Events() *EventLog {
	return s.events
}

// Boot records the reset cause of the emulator itself.
func (s *Supervisor) Boot(cause Event) {
	s.log.Info("boot", "cause", cause)
	s.events.Record(cause)
}

// PeriodicTask advances the watchdog and the event timestamp.
func (s *Supervisor) PeriodicTask(elapsed time.Duration) {
	s.watchdog.PeriodicTask(elapsed)
	s.events.PeriodicTask(elapsed)
}

// HostReset services a reset request of the supervised controller: its core
// is held in reset while the flash is power cycled. The detected cause is
// recorded and the watchdog stopped.
func (s *Supervisor) HostReset(ctx context.Context) (Event, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.lines.CoreReset(true); err != nil {
		return 0, fmt.Errorf("could not assert core reset: %w", err)
	}
	s.log.Info("asserted core reset")
	if err := s.sleep(ctx, sampleDelay); err != nil {
		return 0, s.abort(err)
	}
	update, err := s.lines.UpdateRequested()
	if err != nil {
		return 0, s.abort(fmt.Errorf("could not sample update request: %w", err))
	}
	cause := EventBMCResetDetect
	if update {
		cause = EventBMCEnterFUP
	}
	s.log.Info("reset request", "cause", cause)
	s.events.Record(cause)

	steps := []struct {
		msg string
		do  func() error
	}{
		{"flash power off", func() error { return s.lines.FlashPower(false) }},
		{"wait", func() error { return s.sleep(ctx, powerSettle) }},
		{"flash power on", func() error { return s.lines.FlashPower(true) }},
		{"wait", func() error { return s.sleep(ctx, powerSettle) }},
		{"release core reset", func() error { return s.lines.CoreReset(false) }},
	}
	for _, step := range steps {
		s.log.Debug(step.msg)
		if err := step.do(); err != nil {
			return cause, s.abort(fmt.Errorf("%s: %w", step.msg, err))
		}
	}
	if cause == EventBMCResetDetect {
		// swallow the request pulse of the restarting controller
		if err := s.sleep(ctx, restartMask); err != nil {
			return cause, err
		}
	}
	s.watchdog.Stop()
	s.log.Info("host reset done", "cause", cause)
	return cause, nil
}

// abort leaves the controller running after a failed sequence.
func (s *Supervisor) abort(err error) error {
	if ferr := s.lines.FlashPower(true); ferr != nil {
		s.log.Error("could not restore flash power", "err", ferr)
	}
	if rerr := s.lines.CoreReset(false); rerr != nil {
		s.log.Error("could not release core reset", "err", rerr)
	}
	return err
}

func (s *Supervisor) watchdogExpired(cfg byte) {
	s.log.Warn("host watchdog expired", "cfg", fmt.Sprintf("%#02x", cfg))
	s.events.Record(EventBMCWatchdog)
	var err error
	switch {
	case cfg&WatchdogCoreReset != 0:
		s.log.Info("pulsing core reset")
		err = s.pulse(s.lines.CoreReset)
	case cfg&WatchdogPowerReset != 0:
		s.log.Info("pulsing power-on reset")
		err = s.pulse(s.lines.PowerReset)
	}
	if err != nil {
		s.log.Error("could not reset host", "err", err)
	}
}

func (s *Supervisor) pulse(line func(asserted bool) error) error {
	if err := line(true); err != nil {
		return err
	}
	_ = s.sleep(context.Background(), pulseWidth)
	return line(false)
}

func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
