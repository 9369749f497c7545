// Package adc emulates an 8-channel I2C analog to digital converter.
//
// The command byte written by the master selects the conversion for the
// following reads:
//
//	bit 7     single-ended (1) or differential (0)
//	bits 6-4  input multiplexer
//	bit 3     reference: external 2.5V (1) or VCC (0)
//
// Every read triggers one conversion and returns one byte. In differential
// mode the selected channel is paired with the channel whose top mux bit
// differs, and mux bit 0 picks the polarity of the difference.
package adc

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/mklimuk/i2cemu/slave"
)

// Reference voltage used for a conversion.
type Reference uint8

const (
	RefVCC Reference = iota
	RefExternal
	RefInternal
)

func (r Reference) String() string {
	switch r {
	case RefVCC:
		return "vcc"
	case RefExternal:
		return "external"
	case RefInternal:
		return "internal"
	}
	return fmt.Sprintf("reference(%d)", uint8(r))
}

// Volts returns the nominal voltage of the reference.
func (r Reference) Volts() float64 {
	switch r {
	case RefExternal:
		return 2.5
	case RefInternal:
		return 1.1
	}
	return 3.3
}

const (
	bitSingleEnded = 0x80
	muxShift       = 4
	muxMask        = 0x07
	bitReference   = 0x08
	pairBit        = 0x04
	polarityBit    = 0x01

	// ErrorValue is returned to the master when a conversion fails.
	ErrorValue byte = 0xFF
)

// channels maps mux values onto sampler channels.
var channels = [8]uint8{0, 2, 4, 8, 1, 3, 5, 9}

// Sampler performs a raw conversion of one input.
type Sampler interface {
	Sample(channel uint8, ref Reference) (uint8, error)
}

// Config is the conversion selected by the last command byte.
type Config struct {
	Mux         uint8     `yaml:"mux"`
	Reference   Reference `yaml:"reference"`
	SingleEnded bool      `yaml:"single_ended"`
}

// Decode parses a command byte.
func Decode(cmd byte) Config {
	c := Config{
		Mux:         (cmd >> muxShift) & muxMask,
		SingleEnded: cmd&bitSingleEnded != 0,
		Reference:   RefVCC,
	}
	if cmd&bitReference != 0 {
		c.Reference = RefExternal
	}
	return c
}

// Encode is the inverse of Decode. The internal reference cannot be selected
// over the bus and encodes as VCC.
func (c Config) Encode() byte {
	cmd := (c.Mux & muxMask) << muxShift
	if c.SingleEnded {
		cmd |= bitSingleEnded
	}
	if c.Reference == RefExternal {
		cmd |= bitReference
	}
	return cmd
}

var _ slave.Device = &Device{}

type Device struct {
	mx      sync.Mutex
	log     *slog.Logger
	sampler Sampler
	cfg     Config
	cmd     [1]byte
	out     [1]byte
}

type Opt func(*Device)

func WithLogger(logger *slog.Logger) Opt {
	return func(d *Device) {
		d.log = logger
	}
}

// WithConfig sets the conversion used until the first command byte.
func WithConfig(cfg Config) Opt {
	return func(d *Device) {
		d.cfg = cfg
	}
}

// New returns an ADC converting mux 0 differentially against the external
// reference until told otherwise.
func New(sampler Sampler, opts ...Opt) *Device {
	d := &Device{
		log:     slog.Default(),
		sampler: sampler,
		cfg:     Config{Reference: RefExternal},
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
		return d.cmd[:], slave.ACK
	case slave.WriteBufferFull:
		d.command(used)
		// one command byte per transaction
		return nil, slave.ACK
	case slave.WriteStop, slave.WriteError:
		d.command(used)
		return nil, slave.ACK
	case slave.ReadStart, slave.ReadBufferEmpty:
		d.out[0] = d.convert()
		return d.out[:], slave.ACK
	case slave.ReadStop, slave.ReadError:
		return nil, slave.ACK
	}
	return nil, slave.NACK
}

// Config returns the selected conversion.
func (d *Device) Config() Config {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.cfg
}

func (d *Device) command(used int) {
	if used != 1 {
		return
	}
	d.cfg = Decode(d.cmd[0])
	d.log.Debug("adc configured", "mux", d.cfg.Mux, "single", d.cfg.SingleEnded, "ref", d.cfg.Reference)
}

func (d *Device) convert() byte {
	ch := channels[d.cfg.Mux]
	v, err := d.sampler.Sample(ch, d.cfg.Reference)
	if err != nil {
		d.log.Warn("adc conversion failed", "channel", ch, "err", err)
		return ErrorValue
	}
	if d.cfg.SingleEnded {
		return v
	}
	pair := channels[d.cfg.Mux^pairBit]
	pv, err := d.sampler.Sample(pair, d.cfg.Reference)
	if err != nil {
		d.log.Warn("adc conversion failed", "channel", pair, "err", err)
		return ErrorValue
	}
	if d.cfg.Mux&polarityBit != 0 {
		return pv - v
	}
	return v - pv
}
