package client

import (
	"context"
	"fmt"

	"github.com/mklimuk/i2cemu"
	"github.com/mklimuk/i2cemu/eeprom"
)

// EEPROM reads and writes the emulated EEPROM.
type EEPROM struct {
	transport i2cemu.I2CBus
	address   byte
}

func NewEEPROM(trans i2cemu.I2CBus, opts ...ConfigOption) *EEPROM {
	c := newConfig(EEPROMDefaultAddress, opts)
	return &EEPROM{transport: trans, address: c.Address}
}

// Read returns n bytes starting at addr.
func (e *EEPROM) Read(ctx context.Context, addr uint16, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := writeRead(ctx, e.transport, e.address, []byte{byte(addr >> 8), byte(addr)}, buf); err != nil {
		return nil, fmt.Errorf("eeprom: could not read %d bytes at %#04x: %w", n, addr, err)
	}
	return buf, nil
}

// WriteByte writes a single byte without the write-enable sequence, which
// only the write-enable registers accept.
func (e *EEPROM) WriteByte(ctx context.Context, addr uint16, data byte) error {
	err := e.transport.WriteToAddr(ctx, e.address, []byte{byte(addr >> 8), byte(addr), data})
	if err != nil {
		return fmt.Errorf("eeprom: could not write %#04x: %w", addr, err)
	}
	return nil
}

// Write runs the write-enable sequence and writes data at addr.
func (e *EEPROM) Write(ctx context.Context, addr uint16, data byte) error {
	seq := []struct {
		addr uint16
		data byte
	}{
		{eeprom.EnableAddrHi, byte(addr >> 8)},
		{eeprom.EnableAddrLo, byte(addr)},
		{eeprom.EnableData, data},
		{addr, data},
	}
	for _, s := range seq {
		if err := e.WriteByte(ctx, s.addr, s.data); err != nil {
			return err
		}
	}
	return nil
}

// ConfigureWatchdog arms the host watchdog.
func (e *EEPROM) ConfigureWatchdog(ctx context.Context, cfg byte) error {
	return e.Write(ctx, eeprom.WatchdogStart, cfg)
}

// Info reads the firmware identification block.
func (e *EEPROM) Info(ctx context.Context) ([]byte, error) {
	return e.Read(ctx, eeprom.InfoStart, eeprom.InfoSize)
}
