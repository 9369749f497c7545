package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/mklimuk/i2cemu"
)

// Default 7-bit addresses with the emulator at its default base address.
const (
	EEPROMDefaultAddress = 0x70
	ADCDefaultAddress    = 0x71
	GPIDefaultAddress    = 0x72
	SRAMDefaultAddress   = 0x73
)

// ErrAbsent is returned for a device the emulator was configured without.
var ErrAbsent = errors.New("device not present")

// Slots places each device at base+slot. A negative slot leaves it out.
type Slots struct {
	EEPROM int
	ADC    int
	GPI    int
	SRAM   int
}

var DefaultSlots = Slots{EEPROM: 0, ADC: 1, GPI: 2, SRAM: 3}

// Has reports whether the named device (eeprom, adc, gpi or sram) has a slot.
func (s Slots) Has(device string) bool {
	switch device {
	case "eeprom":
		return s.EEPROM >= 0
	case "adc":
		return s.ADC >= 0
	case "gpi":
		return s.GPI >= 0
	case "sram":
		return s.SRAM >= 0
	}
	return false
}

// Devices are the drivers of one emulator. Absent devices are nil.
type Devices struct {
	EEPROM *EEPROM
	ADC    *ADC
	GPI    *GPI
	SRAM   *SRAM
}

func NewDevices(trans i2cemu.I2CBus, base byte, slots Slots) Devices {
	var d Devices
	if slots.EEPROM >= 0 {
		d.EEPROM = NewEEPROM(trans, WithAddress(base+byte(slots.EEPROM)))
	}
	if slots.ADC >= 0 {
		d.ADC = NewADC(trans, WithAddress(base+byte(slots.ADC)))
	}
	if slots.GPI >= 0 {
		d.GPI = NewGPI(trans, WithAddress(base+byte(slots.GPI)))
	}
	if slots.SRAM >= 0 {
		d.SRAM = NewSRAM(trans, WithAddress(base+byte(slots.SRAM)))
	}
	return d
}

// Absent wraps ErrAbsent with the device name.
func Absent(device string) error {
	return fmt.Errorf("%s: %w", device, ErrAbsent)
}

type Config struct {
	Address byte
}

type ConfigOption func(*Config)

func WithAddress(address byte) ConfigOption {
	return func(c *Config) {
		c.Address = address
	}
}

func newConfig(address byte, opts []ConfigOption) *Config {
	c := &Config{Address: address}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// writeRead reads after writing w, in one transaction when the transport
// supports repeated starts and as a write followed by a read otherwise.
func writeRead(ctx context.Context, trans i2cemu.I2CBus, address byte, w, r []byte) error {
	if wr, ok := trans.(i2cemu.WriteReader); ok {
		return wr.WriteReadAddr(ctx, address, w, r)
	}
	if err := trans.WriteToAddr(ctx, address, w); err != nil {
		return err
	}
	if err := trans.ReadFromAddr(ctx, address, r); err != nil {
		return fmt.Errorf("could not read: %w", err)
	}
	return nil
}
