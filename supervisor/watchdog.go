package supervisor

import (
	"encoding/binary"
	"sync"
	"time"
)

const (
	// WatchdogCoreReset makes an expired watchdog pulse the core reset line.
	WatchdogCoreReset = 0x01
	// WatchdogPowerReset makes an expired watchdog pulse the power-on reset
	// line. Core reset wins when both are set.
	WatchdogPowerReset = 0x02

	exponentShift = 4
	// RegistersSize is the length of the register block read over the bus.
	RegistersSize = 5
)

// Timeout returns the watchdog period selected by a config byte: 2^e seconds
// with e in the upper nibble.
func Timeout(cfg byte) time.Duration {
	return time.Duration(1<<(cfg>>exponentShift)) * time.Second
}

// Watchdog supervises the host controller, which must keep writing the
// config register before the timeout runs out.
type Watchdog struct {
	mx        sync.Mutex
	cfg       byte
	remaining time.Duration
	onExpire  func(cfg byte)
}

// NewWatchdog returns a stopped watchdog. onExpire runs outside the
// watchdog lock with the config in effect at expiry.
func NewWatchdog(onExpire func(cfg byte)) *Watchdog {
	return &Watchdog{onExpire: onExpire}
}

// Configure handles a write of the config register. The first write picks
// the config; any later write only re-arms the countdown until the watchdog
// is stopped.
func (w *Watchdog) Configure(cfg byte) {
	w.mx.Lock()
	defer w.mx.Unlock()
	if w.cfg == 0 {
		w.cfg = cfg
	}
	w.remaining = Timeout(w.cfg)
}

func (w *Watchdog) Stop() {
	w.mx.Lock()
	defer w.mx.Unlock()
	w.cfg = 0
	w.remaining = 0
}

// Registers returns the register block: config followed by the remaining
// time in milliseconds, little-endian.
func (w *Watchdog) Registers() [RegistersSize]byte {
	w.mx.Lock()
	defer w.mx.Unlock()
	var regs [RegistersSize]byte
	regs[0] = w.cfg
	binary.LittleEndian.PutUint32(regs[1:], uint32(w.remaining/time.Millisecond))
	return regs
}

func (w *Watchdog) Running() bool {
	w.mx.Lock()
	defer w.mx.Unlock()
	return w.remaining != 0
}

func (w *Watchdog) PeriodicTask(elapsed time.Duration) {
	w.mx.Lock()
	if w.remaining == 0 {
		w.mx.Unlock()
		return
	}
	if w.remaining > elapsed {
		w.remaining -= elapsed
		w.mx.Unlock()
		return
	}
	cfg := w.cfg
	w.cfg = 0
	w.remaining = 0
	w.mx.Unlock()
	if w.onExpire != nil {
		w.onExpire(cfg)
	}
}
