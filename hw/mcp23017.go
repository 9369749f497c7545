package hw

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mklimuk/i2cemu"
	"github.com/mklimuk/i2cemu/gpi"
)

const DefaultMCP23017Address = 0x20

// Port A registers with IOCON.BANK = 0.
const (
	regIODIRA = 0x00
	regIPOLA  = 0x02
	regGPPUA  = 0x0C
	regGPIOA  = 0x12
)

var _ gpi.Pins = &MCP23017Pins{}

// MCP23017Pins samples the eight GPI inputs from port A of an MCP23017
// expander on a host I2C bus.
type MCP23017Pins struct {
	mx         sync.Mutex
	transport  i2cemu.I2CBus
	address    byte
	retryLimit int
	timeout    time.Duration
}

func NewMCP23017Pins(bus i2cemu.I2CBus, address byte) *MCP23017Pins {
	return &MCP23017Pins{
		transport:  bus,
		address:    address,
		retryLimit: 3,
		timeout:    20 * time.Millisecond,
	}
}

// Init turns port A into non-inverted inputs with pull-ups on the pins set
// in pullUps.
func (m *MCP23017Pins) Init(ctx context.Context, pullUps byte) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	for _, w := range [][2]byte{
		{regIODIRA, 0xFF},
		{regIPOLA, 0x00},
		{regGPPUA, pullUps},
	} {
		if err := m.retry(ctx, func() error {
			return m.transport.WriteToAddr(ctx, m.address, w[:])
		}); err != nil {
			return fmt.Errorf("could not write register %#02x: %w", w[0], err)
		}
	}
	return nil
}

// Sample reads the port A levels.
func (m *MCP23017Pins) Sample() (uint8, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	resp := make([]byte, 1)
	err := m.retry(ctx, func() error {
		if wr, ok := m.transport.(i2cemu.WriteReader); ok {
			return wr.WriteReadAddr(ctx, m.address, []byte{regGPIOA}, resp)
		}
		if err := m.transport.WriteToAddr(ctx, m.address, []byte{regGPIOA}); err != nil {
			return err
		}
		return m.transport.ReadFromAddr(ctx, m.address, resp)
	})
	if err != nil {
		return 0, fmt.Errorf("could not read gpio A: %w", err)
	}
	return resp[0], nil
}

// retry repeats op while the bus reports busy, releasing it in between.
func (m *MCP23017Pins) retry(ctx context.Context, op func() error) error {
	var err error
	for i := m.retryLimit; i > 0; i-- {
		err = op()
		if err == nil || !errors.Is(err, i2cemu.ErrBusBusy) {
			return err
		}
		if rerr := m.transport.Release(ctx); rerr != nil {
			return fmt.Errorf("could not release bus: %w", rerr)
		}
	}
	return err
}
