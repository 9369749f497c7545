package client

import (
	"context"
	"fmt"

	"github.com/mklimuk/i2cemu"
)

// SRAM reads and writes the emulated SRAM.
type SRAM struct {
	transport i2cemu.I2CBus
	address   byte
}

func NewSRAM(trans i2cemu.I2CBus, opts ...ConfigOption) *SRAM {
	c := newConfig(SRAMDefaultAddress, opts)
	return &SRAM{transport: trans, address: c.Address}
}

func (s *SRAM) Write(ctx context.Context, addr uint16, data []byte) error {
	buf := append([]byte{byte(addr >> 8), byte(addr)}, data...)
	if err := s.transport.WriteToAddr(ctx, s.address, buf); err != nil {
		return fmt.Errorf("sram: could not write %d bytes at %#03x: %w", len(data), addr, err)
	}
	return nil
}

func (s *SRAM) Read(ctx context.Context, addr uint16, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := writeRead(ctx, s.transport, s.address, []byte{byte(addr >> 8), byte(addr)}, buf); err != nil {
		return nil, fmt.Errorf("sram: could not read %d bytes at %#03x: %w", n, addr, err)
	}
	return buf, nil
}
