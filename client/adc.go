package client

import (
	"context"
	"fmt"

	"github.com/mklimuk/i2cemu"
	"github.com/mklimuk/i2cemu/adc"
)

// ADC selects and reads conversions of the emulated converter.
type ADC struct {
	transport i2cemu.I2CBus
	address   byte
}

func NewADC(trans i2cemu.I2CBus, opts ...ConfigOption) *ADC {
	c := newConfig(ADCDefaultAddress, opts)
	return &ADC{transport: trans, address: c.Address}
}

// Configure selects the conversion performed by the following reads.
func (a *ADC) Configure(ctx context.Context, cfg adc.Config) error {
	if err := a.transport.WriteToAddr(ctx, a.address, []byte{cfg.Encode()}); err != nil {
		return fmt.Errorf("adc: could not write command: %w", err)
	}
	return nil
}

// Read triggers a conversion and returns its result.
func (a *ADC) Read(ctx context.Context) (byte, error) {
	resp := make([]byte, 1)
	if err := a.transport.ReadFromAddr(ctx, a.address, resp); err != nil {
		return 0, fmt.Errorf("adc: could not read conversion: %w", err)
	}
	return resp[0], nil
}

func (a *ADC) Convert(ctx context.Context, cfg adc.Config) (byte, error) {
	if err := a.Configure(ctx, cfg); err != nil {
		return 0, err
	}
	return a.Read(ctx)
}
