package client

import (
	"context"
	"fmt"

	"github.com/mklimuk/i2cemu"
)

// GPI reads the emulated input expander.
type GPI struct {
	transport i2cemu.I2CBus
	address   byte
}

func NewGPI(trans i2cemu.I2CBus, opts ...ConfigOption) *GPI {
	c := newConfig(GPIDefaultAddress, opts)
	return &GPI{transport: trans, address: c.Address}
}

// Read returns the input levels and the inputs that changed since the
// previous read.
func (g *GPI) Read(ctx context.Context) (current uint8, transitions uint8, err error) {
	resp := make([]byte, 2)
	if err := g.transport.ReadFromAddr(ctx, g.address, resp); err != nil {
		return 0, 0, fmt.Errorf("gpi: could not read inputs: %w", err)
	}
	return resp[0], resp[1], nil
}

// SetMask selects the inputs whose transitions assert the interrupt line.
func (g *GPI) SetMask(ctx context.Context, mask uint8) error {
	if err := g.transport.WriteToAddr(ctx, g.address, []byte{mask}); err != nil {
		return fmt.Errorf("gpi: could not write mask: %w", err)
	}
	return nil
}
