// Package sram emulates a 512 byte I2C SRAM with a 9-bit wrapping cursor.
//
// Write: <AddrHi><AddrLo><Data...>; the first two bytes set the cursor and
// the following bytes are stored sequentially, wrapping at the end of the
// array. Read: bytes from the cursor onwards, one page at a time.
package sram

import (
	"log/slog"
	"sync"

	"github.com/mklimuk/i2cemu/slave"
)

const (
	Size = 512
	// PageSize is the longest window handed out for a single read grant.
	PageSize = 128
	mask     = Size - 1
)

type phase uint8

const (
	addressPhase phase = iota
	dataPhase
)

var _ slave.Device = &Device{}

type Device struct {
	mx     sync.Mutex
	log    *slog.Logger
	mem    [Size]byte
	cursor uint16
	phase  phase
	addr   [2]byte
}

type Opt func(*Device)

func WithLogger(logger *slog.Logger) Opt {
	return func(d *Device) {
		d.log = logger
	}
}

func New(opts ...Opt) *Device {
	d := &Device{log: slog.Default()}
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
		d.phase = addressPhase
		return d.addr[:], slave.ACK
	case slave.WriteBufferFull:
		if d.phase == addressPhase {
			d.cursor = (uint16(d.addr[0])<<8 | uint16(d.addr[1])) & mask
			d.phase = dataPhase
		} else {
			d.advance(used)
		}
		return d.window(), slave.ACK
	case slave.WriteStop, slave.WriteError:
		if d.phase == dataPhase {
			d.advance(used)
		}
		d.phase = addressPhase
		return nil, slave.ACK
	case slave.ReadStart:
		return d.window(), slave.ACK
	case slave.ReadBufferEmpty:
		d.advance(used)
		return d.window(), slave.ACK
	case slave.ReadStop, slave.ReadError:
		d.advance(used)
		return nil, slave.ACK
	}
	return nil, slave.NACK
}

// Cursor returns the current 9-bit address.
func (d *Device) Cursor() uint16 {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.cursor
}

// Peek copies the array contents starting at address into p, wrapping. It
// must not run concurrently with a bus transaction writing the array.
func (d *Device) Peek(address uint16, p []byte) {
	d.mx.Lock()
	defer d.mx.Unlock()
	for i := range p {
		p[i] = d.mem[(int(address)+i)&mask]
	}
}

func (d *Device) advance(n int) {
	d.cursor = (d.cursor + uint16(n)) & mask
}

// window hands out the array itself from the cursor up to the wrap point,
// capped at a page.
func (d *Device) window() []byte {
	end := min(Size, int(d.cursor)+PageSize)
	return d.mem[d.cursor:end]
}
