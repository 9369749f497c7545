// Package eeprom emulates a 64KiB I2C EEPROM that maps the emulator's
// persistent store, identification, live memory, program image and the
// host watchdog registers into one address space.
//
// Reads follow the usual EEPROM protocol: write the two address bytes,
// then read with a repeated start. Writes are single bytes and are only
// accepted in writable ranges and only right after the write-enable
// sequence:
//
//	0x8000 <- address[15:8]
//	0x8001 <- address[7:0]
//	0x8002 <- data
//	address <- data
//
// Any other write clears the sequence.
package eeprom

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mklimuk/i2cemu"
	"github.com/mklimuk/i2cemu/slave"
)

// Watchdog is the host watchdog exposed at WatchdogStart.
type Watchdog interface {
	Configure(cfg byte)
	Registers() [WatchdogSize]byte
}

var _ slave.Device = &Device{}

type Device struct {
	mx       sync.Mutex
	log      *slog.Logger
	store    i2cemu.PersistentStore
	info     [InfoSize]byte
	live     io.ReaderAt
	program  io.ReaderAt
	watchdog Watchdog

	cursor    uint16
	armedAddr uint16
	armedData byte

	writeBuf [3]byte
	readBuf  [ReadWindow]byte
}

type Opt func(*Device)

func WithLogger(logger *slog.Logger) Opt {
	return func(d *Device) {
		d.log = logger
	}
}

func WithInfo(fi FirmwareInfo) Opt {
	return func(d *Device) {
		d.info = fi.Bytes()
	}
}

// WithLiveMemory maps r at LiveStart. It is read from the bus context and
// must not block.
func WithLiveMemory(r io.ReaderAt) Opt {
	return func(d *Device) {
		d.live = r
	}
}

// WithProgram maps a program image at ProgramStart.
func WithProgram(r io.ReaderAt) Opt {
	return func(d *Device) {
		d.program = r
	}
}

func WithWatchdog(w Watchdog) Opt {
	return func(d *Device) {
		d.watchdog = w
	}
}

// New returns an EEPROM backed by store, which must hold at least
// PersistentSize bytes.
func New(store i2cemu.PersistentStore, opts ...Opt) *Device {
	d := &Device{
		log:   slog.Default(),
		store: store,
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
		return d.writeBuf[:], slave.ACK
	case slave.WriteBufferFull:
		d.cursor = d.address()
		// byte writes only; the rest of the transaction is refused
		return nil, d.write(d.cursor, d.writeBuf[2])
	case slave.WriteStop:
		if used == 2 {
			d.cursor = d.address()
		}
		return nil, slave.ACK
	case slave.WriteError:
		return nil, slave.ACK
	case slave.ReadStart, slave.ReadBufferEmpty:
		d.cursor += uint16(used)
		return d.window(), slave.ACK
	case slave.ReadStop, slave.ReadError:
		d.cursor += uint16(used)
		return nil, slave.ACK
	}
	return nil, slave.NACK
}

// Cursor returns the address of the next read.
func (d *Device) Cursor() uint16 {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.cursor
}

// Armed returns the pending write-enable address and data.
func (d *Device) Armed() (uint16, byte) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.armedAddr, d.armedData
}

func (d *Device) address() uint16 {
	return uint16(d.writeBuf[0])<<8 | uint16(d.writeBuf[1])
}

func (d *Device) write(addr uint16, data byte) slave.Ack {
	switch addr {
	case EnableAddrHi:
		d.armedAddr = uint16(data) << 8
		return slave.ACK
	case EnableAddrLo:
		d.armedAddr |= uint16(data)
		return slave.ACK
	case EnableData:
		d.armedData = data
		return slave.ACK
	}
	authorized := addr == d.armedAddr && data == d.armedData
	d.armedAddr, d.armedData = 0, 0
	if !authorized {
		d.log.Warn("unauthorized eeprom write", "addr", fmt.Sprintf("%#04x", addr), "data", fmt.Sprintf("%#02x", data))
		return slave.NACK
	}
	switch {
	case addr >= WritableStart && addr <= WritableEnd:
		if _, err := d.store.WriteAt([]byte{data}, int64(addr)); err != nil {
			d.log.Error("could not write persistent store", "addr", fmt.Sprintf("%#04x", addr), "err", err)
			return slave.NACK
		}
	case addr == WatchdogStart && d.watchdog != nil:
		d.watchdog.Configure(data)
	default:
		d.log.Warn("eeprom write to read-only address", "addr", fmt.Sprintf("%#04x", addr))
		return slave.NACK
	}
	d.log.Debug("eeprom write", "addr", fmt.Sprintf("%#04x", addr), "data", fmt.Sprintf("%#02x", data))
	return slave.ACK
}

// window fills the read buffer from the cursor up to the end of the region
// it points into.
func (d *Device) window() []byte {
	addr := int(d.cursor)
	r, mapped, end := resolve(addr)
	n := min(ReadWindow, end-addr)
	buf := d.readBuf[:n]
	for i := range buf {
		buf[i] = FillByte
	}
	if !mapped {
		return buf
	}
	off := addr - r.start
	var err error
	switch r.kind {
	case persistent:
		err = readAt(d.store, buf, off)
	case info:
		copy(buf, d.info[off:])
	case live:
		err = readAt(d.live, buf, off)
	case watchdog:
		if d.watchdog != nil {
			regs := d.watchdog.Registers()
			copy(buf, regs[off:])
		}
	case program:
		err = readAt(d.program, buf, off)
	case enable:
		regs := [EnableSize]byte{byte(d.armedAddr >> 8), byte(d.armedAddr), d.armedData, 0}
		copy(buf, regs[off:])
	}
	if err != nil {
		d.log.Warn("eeprom read failed", "region", r.kind, "addr", fmt.Sprintf("%#04x", addr), "err", err)
	}
	return buf
}

func readAt(r io.ReaderAt, p []byte, off int) error {
	if r == nil {
		return nil
	}
	_, err := r.ReadAt(p, int64(off))
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
