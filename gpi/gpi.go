// Package gpi emulates an 8-bit I2C input expander with edge detection and
// a maskable open-drain interrupt output.
//
// A read returns two bytes: the current input levels and the inputs that
// changed since the previous read. Writing one byte replaces the interrupt
// mask. The interrupt line is asserted while signalling is enabled and a
// latched transition is unmasked. Signalling is suspended for the duration
// of every bus transaction.
package gpi

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mklimuk/i2cemu/slave"
)

// Pins samples the eight inputs at once.
type Pins interface {
	Sample() (uint8, error)
}

// InterruptLine drives the active-low interrupt output.
type InterruptLine interface {
	Assert() error
	Release() error
}

// State is a snapshot of the expander registers.
type State struct {
	Current     uint8 `yaml:"current"`
	Transitions uint8 `yaml:"transitions"`
	Mask        uint8 `yaml:"mask"`
	Enabled     bool  `yaml:"enabled"`
	Asserted    bool  `yaml:"asserted"`
}

var _ slave.Device = &Device{}

type Device struct {
	mx       sync.Mutex
	log      *slog.Logger
	pins     Pins
	current  uint8
	previous uint8
	trans    uint8
	mask     uint8
	enabled  bool

	// gen counts latched samples
	gen uint64

	// lineMx serializes line updates. It is taken after mx, never before.
	lineMx   sync.Mutex
	line     InterruptLine
	asserted atomic.Bool

	staging [1]byte
	out     [2]byte
}

type Opt func(*Device)

func WithLogger(logger *slog.Logger) Opt {
	return func(d *Device) {
		d.log = logger
	}
}

// WithMask sets the interrupt mask in effect before the first write.
func WithMask(mask uint8) Opt {
	return func(d *Device) {
		d.mask = mask
	}
}

func New(pins Pins, line InterruptLine, opts ...Opt) *Device {
	d := &Device{
		log:     slog.Default(),
		pins:    pins,
		line:    line,
		enabled: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) Handle(phase slave.Phase, used int) ([]byte, slave.Ack) {
	d.mx.Lock()
	defer d.mx.Unlock()
	switch phase {
	case slave.WriteStart:
		d.disable()
		return d.staging[:], slave.ACK
	case slave.WriteBufferFull:
		d.mask = d.staging[0]
		return d.staging[:], slave.ACK
	case slave.WriteStop:
		if used == 1 {
			d.mask = d.staging[0]
		}
		d.enable()
		return nil, slave.ACK
	case slave.WriteError:
		d.enable()
		return nil, slave.ACK
	case slave.ReadStart, slave.ReadBufferEmpty:
		d.disable()
		d.sample()
		d.out = [2]byte{d.current, d.trans}
		d.trans = 0
		return d.out[:], slave.ACK
	case slave.ReadStop, slave.ReadError:
		d.enable()
		return nil, slave.ACK
	}
	return nil, slave.NACK
}

// PeriodicTask samples the inputs, latches transitions and updates the
// interrupt line. Pin I/O runs outside the device lock.
func (d *Device) PeriodicTask(time.Duration) {
	d.mx.Lock()
	gen := d.gen
	d.mx.Unlock()
	v, err := d.pins.Sample()
	d.mx.Lock()
	switch {
	case err != nil:
		d.log.Warn("could not sample inputs", "err", err)
	case gen == d.gen:
		d.latch(v)
	default:
		// a transaction latched a newer sample meanwhile
	}
	want := d.want()
	// line updates keep the order of the state they were computed from
	d.lineMx.Lock()
	d.mx.Unlock()
	defer d.lineMx.Unlock()
	d.drive(want)
}

// State returns a snapshot without touching the latch.
func (d *Device) State() State {
	d.mx.Lock()
	defer d.mx.Unlock()
	return State{
		Current:     d.current,
		Transitions: d.trans,
		Mask:        d.mask,
		Enabled:     d.enabled,
		Asserted:    d.asserted.Load(),
	}
}

func (d *Device) sample() {
	v, err := d.pins.Sample()
	if err != nil {
		d.log.Warn("could not sample inputs", "err", err)
		return
	}
	d.latch(v)
}

func (d *Device) latch(v uint8) {
	d.trans |= d.previous ^ v
	d.previous = v
	d.current = v
	d.gen++
}

func (d *Device) disable() {
	d.enabled = false
	d.signal()
}

func (d *Device) enable() {
	d.enabled = true
	d.sample()
	d.signal()
}

func (d *Device) want() bool {
	return d.enabled && d.trans&d.mask != 0
}

func (d *Device) signal() {
	d.lineMx.Lock()
	defer d.lineMx.Unlock()
	d.drive(d.want())
}

// drive must be called with lineMx held.
func (d *Device) drive(want bool) {
	if want == d.asserted.Load() {
		return
	}
	var err error
	if want {
		err = d.line.Assert()
	} else {
		err = d.line.Release()
	}
	if err != nil {
		d.log.Warn("could not drive interrupt line", "assert", want, "err", err)
		return
	}
	d.asserted.Store(want)
}
