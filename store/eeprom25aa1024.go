package store

import (
	"fmt"
	"sync"
	"time"

	"gobot.io/x/gobot/v2/drivers/spi"

	"github.com/mklimuk/i2cemu"
)

// Microchip 25AA1024 instruction set (datasheet table 3-1).
const (
	cmdRead  = 0x03
	cmdWrite = 0x02
	cmdWREN  = 0x06
	cmdRDSR  = 0x05

	statusWIP = 0x01

	pageSize = 256
	// Capacity25AA1024 is the size of the 1 Mbit part in bytes.
	Capacity25AA1024 = 131072
)

var _ i2cemu.PersistentStore = &EEPROM25AA1024{}

// EEPROM25AA1024 is a persistent store on a 25AA1024 SPI EEPROM reached
// through a Gobot SPI adaptor. The emulated EEPROM image lives at Base.
type EEPROM25AA1024 struct {
	*spi.Driver
	mx   sync.Mutex
	base uint32
	size int
	// ready is how long a page write may take; 6ms max per datasheet
	ready time.Duration
}

type EEPROMOpt func(*EEPROM25AA1024)

// WithWindow maps the store onto size bytes of the chip starting at base.
func WithWindow(base uint32, size int) EEPROMOpt {
	return func(e *EEPROM25AA1024) {
		e.base = base
		e.size = size
	}
}

// NewEEPROM25AA1024 binds the driver to bus and chip-select cs of the adaptor.
// The bus runs in mode 0 at 5MHz unless spiOpts say otherwise.
func NewEEPROM25AA1024(adaptor spi.Connector, bus, cs int, opts []EEPROMOpt, spiOpts ...func(spi.Config)) *EEPROM25AA1024 {
	spiOpts = append([]func(spi.Config){
		spi.WithBusNumber(bus),
		spi.WithChipNumber(cs),
		spi.WithMode(0),
		spi.WithSpeed(5_000_000),
	}, spiOpts...)
	e := &EEPROM25AA1024{
		Driver: spi.NewDriver(adaptor, "EEPROM25AA1024", spiOpts...),
		size:   Capacity25AA1024,
		ready:  10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// spiOps is the subset of the SPI connection the driver needs.
type spiOps interface {
	ReadCommandData(command []byte, data []byte) error
	WriteBytes(data []byte) error
}

func (e *EEPROM25AA1024) ops() (spiOps, error) {
	if e.Driver == nil || e.Driver.Connection() == nil {
		return nil, fmt.Errorf("spi driver not started")
	}
	ops, ok := e.Driver.Connection().(spiOps)
	if !ok {
		return nil, fmt.Errorf("spi connection does not support required operations")
	}
	return ops, nil
}

func (e *EEPROM25AA1024) ReadAt(p []byte, off int64) (int, error) {
	if err := checkRange(off, len(p), e.size); err != nil {
		return 0, err
	}
	e.mx.Lock()
	defer e.mx.Unlock()
	ops, err := e.ops()
	if err != nil {
		return 0, err
	}
	address := e.base + uint32(off)
	// only A16..A0 are decoded
	header := []byte{cmdRead, byte(address >> 16), byte(address >> 8), byte(address)}
	if err := ops.ReadCommandData(header, p); err != nil {
		return 0, fmt.Errorf("could not read eeprom at %#x: %w", address, err)
	}
	return len(p), nil
}

// WriteAt splits p into page writes and polls the status register until
// each internal write cycle completes.
func (e *EEPROM25AA1024) WriteAt(p []byte, off int64) (int, error) {
	if err := checkRange(off, len(p), e.size); err != nil {
		return 0, err
	}
	e.mx.Lock()
	defer e.mx.Unlock()
	ops, err := e.ops()
	if err != nil {
		return 0, err
	}
	address := e.base + uint32(off)
	written := 0
	for written < len(p) {
		space := pageSize - int(address%pageSize)
		chunk := p[written:]
		if len(chunk) > space {
			chunk = chunk[:space]
		}
		if err := e.pageWrite(ops, address, chunk); err != nil {
			return written, err
		}
		written += len(chunk)
		address += uint32(len(chunk))
	}
	return written, nil
}

func (e *EEPROM25AA1024) pageWrite(ops spiOps, address uint32, data []byte) error {
	if err := ops.WriteBytes([]byte{cmdWREN}); err != nil {
		return fmt.Errorf("could not set write enable latch: %w", err)
	}
	tx := append([]byte{cmdWrite, byte(address >> 16), byte(address >> 8), byte(address)}, data...)
	if err := ops.WriteBytes(tx); err != nil {
		return fmt.Errorf("could not write eeprom page at %#x: %w", address, err)
	}
	return e.waitUntilReady(ops)
}

func (e *EEPROM25AA1024) waitUntilReady(ops spiOps) error {
	deadline := time.Now().Add(e.ready)
	status := make([]byte, 1)
	for time.Now().Before(deadline) {
		if err := ops.ReadCommandData([]byte{cmdRDSR}, status); err != nil {
			return fmt.Errorf("could not read eeprom status: %w", err)
		}
		if status[0]&statusWIP == 0 {
			return nil
		}
		time.Sleep(500 * time.Microsecond)
	}
	return fmt.Errorf("timeout waiting for write completion")
}
