package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/i2cemu"
	"github.com/mklimuk/i2cemu/adapter"
	"github.com/mklimuk/i2cemu/client"
	"github.com/mklimuk/i2cemu/config"
	"github.com/mklimuk/i2cemu/i2c"
)

// Host side transports of the device commands.
const (
	adapterEmulator = "emulator"
	adapterMCP2221  = "mcp2221"
	adapterLinux    = "linux"
)

var busFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "adapter",
		Aliases: []string{"a"},
		Usage:   "transport: emulator (in process), mcp2221 (USB) or linux (i2c-dev through periph)",
		Value:   adapterEmulator,
	},
	&cli.StringFlag{
		Name:  "bus",
		Usage: "linux i2c bus name or number; empty picks the first one",
	},
	&cli.IntFlag{
		Name:  "base",
		Usage: "base address of the emulator on the bus",
		Value: 0x70,
	},
	&cli.BoolFlag{
		Name:  "dump",
		Usage: "dump adapter reports",
	},
}

// openBus returns the transport picked by the flags and a func releasing it.
// The emulator transport runs a virtual board in process, ticking in the
// background until released.
func openBus(c *cli.Context) (i2cemu.I2CBus, func(), error) {
	switch c.String("adapter") {
	case adapterMCP2221:
		return adapter.NewMCP2221(adapter.WithDump(c.Bool("dump"))), func() {}, nil
	case adapterLinux:
		bus, err := i2c.NewGenericBus(c.String("bus"))
		if err != nil {
			return nil, nil, err
		}
		return bus, func() { _ = bus.Close() }, nil
	case adapterEmulator:
		cfg, err := loadConfig(c)
		if err != nil {
			return nil, nil, err
		}
		r, err := newRig(hardwareVirtual, cfg)
		if err != nil {
			return nil, nil, err
		}
		emu, err := newEmulator(cfg, r)
		if err != nil {
			r.Close()
			return nil, nil, err
		}
		ctx, cancel := context.WithCancel(c.Context)
		done := make(chan error, 1)
		go func() { done <- emu.Run(ctx) }()
		return emu.Master(), func() {
			cancel()
			<-done
			r.Close()
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown adapter %q", c.String("adapter"))
}

// deviceSlots is the device layout of the emulator, taken from the
// configuration file or the defaults.
func deviceSlots(c *cli.Context) (client.Slots, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return client.Slots{}, err
	}
	return client.Slots(cfg.Slots), nil
}

// baseAddress is the emulator base on the selected transport.
func baseAddress(c *cli.Context) (byte, error) {
	if c.String("adapter") == adapterEmulator && !c.IsSet("base") {
		cfg, err := loadConfig(c)
		if err != nil {
			return 0, err
		}
		return cfg.Bus.BaseAddress, nil
	}
	base := c.Int("base")
	if base < 0 || base > 0x7F || base&0x03 != 0 {
		return 0, fmt.Errorf("base address %#x is not a 7-bit address aligned to 4: %w", base, config.ErrInvalid)
	}
	return byte(base), nil
}
