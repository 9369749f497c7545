package slave

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/i2cemu"
)

const (
	// DefaultBaseAddress is the 7-bit address of slot 0.
	DefaultBaseAddress = 0x70
	// DefaultTimeout is how long a transaction may sit without bus activity
	// before the peripheral is restarted.
	DefaultTimeout = 100 * time.Millisecond
	// FillByte is sent to a master reading past the granted buffer.
	FillByte byte = 0xFF
)

var ErrUnalignedAddress = errors.New("base address must be a 7-bit address aligned to 4")

// State of the transaction engine.
type State uint8

const (
	Idle State = iota
	Addressed
	Exchanging
)

func (s State) String() string {
	switch s {
	case Addressed:
		return "addressed"
	case Exchanging:
		return "exchanging"
	default:
		return "idle"
	}
}

// Status is a point-in-time copy of the engine bookkeeping.
type Status struct {
	State            State         `yaml:"state"`
	Slot             int           `yaml:"slot"`
	Direction        Direction     `yaml:"direction"`
	Transferred      int           `yaml:"transferred"`
	Capacity         int           `yaml:"capacity"`
	TimeoutRemaining time.Duration `yaml:"timeout_remaining"`
	Restarts         int           `yaml:"restarts"`
}

// Engine is the slave transaction state machine. Its event methods
// (AddressMatch, Receive, Transmit, Stop, BusError) are what the bus
// peripheral interrupt calls; they run to completion and are serialized
// with PeriodicTask by the engine lock. Device callbacks run under that lock
// and must not block.
type Engine struct {
	mx         sync.Mutex
	registry   *Registry
	peripheral i2cemu.Peripheral
	base       byte
	log        *slog.Logger
	watchdog   busWatchdog

	state       State
	slot        int
	dir         Direction
	transferred int
	buf         []byte
	restarts    int
}

type EngineOpt func(*Engine)

func WithBaseAddress(address byte) EngineOpt {
	return func(e *Engine) {
		e.base = address
	}
}

func WithTimeout(timeout time.Duration) EngineOpt {
	return func(e *Engine) {
		e.watchdog.window = timeout
	}
}

func WithLogger(logger *slog.Logger) EngineOpt {
	return func(e *Engine) {
		e.log = logger
	}
}

// NewEngine seals registry and brings the peripheral up.
func NewEngine(registry *Registry, peripheral i2cemu.Peripheral, opts ...EngineOpt) (*Engine, error) {
	e := &Engine{
		registry:   registry,
		peripheral: peripheral,
		base:       DefaultBaseAddress,
		log:        slog.Default(),
		watchdog:   busWatchdog{window: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.base > 0x7F || e.base&0x03 != 0 {
		return nil, fmt.Errorf("invalid base address %#x: %w", e.base, ErrUnalignedAddress)
	}
	if registry == nil {
		return nil, fmt.Errorf("engine requires a device registry")
	}
	if peripheral == nil {
		return nil, fmt.Errorf("engine requires a bus peripheral")
	}
	if e.watchdog.window <= 0 {
		e.watchdog.window = DefaultTimeout
	}
	registry.Seal()
	e.peripheral.Disable()
	e.peripheral.Enable()
	e.log.Info("i2c slave started", "base", fmt.Sprintf("%#x", e.base), "slots", SlotCount, "timeout", e.watchdog.window)
	return e, nil
}

// BaseAddress returns the 7-bit address of slot 0.
func (e *Engine) BaseAddress() byte {
	return e.base
}

// Matches reports whether a 7-bit address belongs to one of the slots.
func (e *Engine) Matches(address byte) bool {
	return address&^0x03 == e.base
}

// AddressMatch handles a start or repeated start followed by the address
// byte as it appears on the wire (7-bit address and R/W bit). The returned
// Ack is driven in the address acknowledge slot. A repeated start delivers
// the stop phase to the open device even when no byte moved, so devices can
// see WriteStop or ReadStop with a zero count.
func (e *Engine) AddressMatch(wire byte) Ack {
	e.mx.Lock()
	defer e.mx.Unlock()
	if !e.Matches(wire >> 1) {
		return NACK
	}
	if e.state != Idle {
		// repeated start closes the open transaction first
		e.log.Debug("repeated start", "slot", e.slot, "dir", e.dir, "transferred", e.transferred)
		e.deliver(stopPhase(e.dir), e.transferred)
	}
	e.slot = int(wire>>1) & 0x03
	e.dir = Direction(wire & 0x01)
	e.transferred = 0
	e.buf = nil
	e.state = Addressed
	e.watchdog.arm()

	dev := e.registry.Lookup(e.slot)
	if dev == nil {
		return NACK
	}
	buf, ack := dev.Handle(startPhase(e.dir), 0)
	e.buf = buf
	return ack
}

// Receive handles a data byte written by the master and returns the
// acknowledge for it.
func (e *Engine) Receive(b byte) Ack {
	e.mx.Lock()
	defer e.mx.Unlock()
	if e.state == Idle || e.dir != Write {
		return NACK
	}
	e.state = Exchanging
	e.watchdog.arm()
	if e.transferred >= len(e.buf) {
		return NACK
	}
	e.buf[e.transferred] = b
	e.transferred++
	ack := ACK
	if e.transferred >= len(e.buf) {
		if dev := e.registry.Lookup(e.slot); dev != nil {
			e.buf, ack = dev.Handle(WriteBufferFull, e.transferred)
		}
		e.transferred = 0
	}
	return ack
}

// Transmit returns the next byte for a master read. masterNacked reports
// whether the master refused the previously sent byte.
func (e *Engine) Transmit(masterNacked bool) byte {
	e.mx.Lock()
	defer e.mx.Unlock()
	if e.state == Idle || e.dir != Read {
		return FillByte
	}
	e.state = Exchanging
	e.watchdog.arm()
	if masterNacked && e.transferred > 0 {
		// the master is done; keep the device buffer where it is
		return FillByte
	}
	if e.transferred >= len(e.buf) {
		if dev := e.registry.Lookup(e.slot); dev != nil {
			e.buf, _ = dev.Handle(ReadBufferEmpty, e.transferred)
			e.transferred = 0
		}
	}
	if e.transferred >= len(e.buf) {
		return FillByte
	}
	b := e.buf[e.transferred]
	e.transferred++
	return b
}

// Stop handles a stop condition.
func (e *Engine) Stop() {
	e.mx.Lock()
	defer e.mx.Unlock()
	if e.state == Idle {
		return
	}
	e.deliver(stopPhase(e.dir), e.transferred)
	e.reset()
}

// BusError handles a bus collision or an illegal start/stop.
func (e *Engine) BusError() {
	e.mx.Lock()
	defer e.mx.Unlock()
	if e.state == Idle {
		return
	}
	e.log.Debug("bus error", "slot", e.slot, "dir", e.dir, "transferred", e.transferred)
	e.deliver(errorPhase(e.dir), e.transferred)
	e.reset()
}

// PeriodicTask advances the bus timeout. When a transaction has seen no
// activity for the whole timeout window the peripheral is cycled and the
// engine returns to idle without notifying the device.
func (e *Engine) PeriodicTask(elapsed time.Duration) {
	e.mx.Lock()
	defer e.mx.Unlock()
	if !e.watchdog.expire(elapsed) {
		return
	}
	e.log.Warn("i2c timeout, restarting slave peripheral", "slot", e.slot, "dir", e.dir, "state", e.state)
	e.peripheral.Disable()
	e.peripheral.Enable()
	e.restarts++
	e.reset()
}

// Status returns a copy of the engine bookkeeping.
func (e *Engine) Status() Status {
	e.mx.Lock()
	defer e.mx.Unlock()
	return Status{
		State:            e.state,
		Slot:             e.slot,
		Direction:        e.dir,
		Transferred:      e.transferred,
		Capacity:         len(e.buf),
		TimeoutRemaining: e.watchdog.remaining,
		Restarts:         e.restarts,
	}
}

func (e *Engine) deliver(phase Phase, used int) {
	if dev := e.registry.Lookup(e.slot); dev != nil {
		_, _ = dev.Handle(phase, used)
	}
}

func (e *Engine) reset() {
	e.state = Idle
	e.transferred = 0
	e.buf = nil
	e.watchdog.disarm()
}
