package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/i2cemu/adc"
	"github.com/mklimuk/i2cemu/client"
	"github.com/mklimuk/i2cemu/cmd/i2cemu/console"
)

const commandTimeout = 5 * time.Second

// withDevice opens the transport and calls fn with the drivers of the
// emulator. It fails when device is left out of the slot layout.
func withDevice(c *cli.Context, device string, fn func(ctx context.Context, dev client.Devices) error) error {
	base, err := baseAddress(c)
	if err != nil {
		return console.Fail("invalid base address", err)
	}
	slots, err := deviceSlots(c)
	if err != nil {
		return console.Fail("configuration error", err)
	}
	if !slots.Has(device) {
		return console.Fail("invalid command", client.Absent(device))
	}
	bus, release, err := openBus(c)
	if err != nil {
		return console.Fail("adapter initialization error", err)
	}
	defer release()
	ctx, cancel := context.WithTimeout(c.Context, commandTimeout)
	defer cancel()
	if err := fn(ctx, client.NewDevices(bus, base, slots)); err != nil {
		var exit cli.ExitCoder
		if errors.As(err, &exit) {
			return err
		}
		return console.Fail("transfer failed", err)
	}
	return nil
}

func argNum(c *cli.Context, i int, limit int) (int, error) {
	if c.NArg() <= i {
		return 0, fmt.Errorf("missing argument %d", i+1)
	}
	return parseNum(c.Args().Get(i), limit)
}

var eepromCmd = cli.Command{
	Name:  "eeprom",
	Usage: "emulated EEPROM at the base address",
	Subcommands: cli.Commands{
		{
			Name:      "read",
			ArgsUsage: "ADDR [N]",
			Flags:     busFlags,
			Action: func(c *cli.Context) error {
				addr, n, err := addrCount(c.Args().Slice(), 0xFFFF)
				if err != nil {
					return console.Fail("transfer failed", err)
				}
				return withDevice(c, "eeprom", func(ctx context.Context, dev client.Devices) error {
					data, err := dev.EEPROM.Read(ctx, uint16(addr), n)
					if err != nil {
						return err
					}
					console.Dump(addr, data)
					return nil
				})
			},
		},
		{
			Name:      "write",
			ArgsUsage: "ADDR BYTE",
			Flags: append([]cli.Flag{
				&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
			}, busFlags...),
			Action: func(c *cli.Context) error {
				addr, err := argNum(c, 0, 0xFFFF)
				if err != nil {
					return console.Fail("transfer failed", err)
				}
				v, err := argNum(c, 1, 0xFF)
				if err != nil {
					return console.Fail("transfer failed", err)
				}
				if !c.Bool("yes") {
					ok, err := console.Confirm(fmt.Sprintf("write %#02x at %#04x?", v, addr))
					if err != nil || !ok {
						return nil
					}
				}
				return withDevice(c, "eeprom", func(ctx context.Context, dev client.Devices) error {
					return dev.EEPROM.Write(ctx, uint16(addr), byte(v))
				})
			},
		},
		{
			Name:  "info",
			Flags: busFlags,
			Action: func(c *cli.Context) error {
				return withDevice(c, "eeprom", func(ctx context.Context, dev client.Devices) error {
					info, err := dev.EEPROM.Info(ctx)
					if err != nil {
						return err
					}
					console.Dump(0x100, info)
					return nil
				})
			},
		},
		{
			Name:      "watchdog",
			Usage:     "arm or touch the host watchdog",
			ArgsUsage: "CFG",
			Flags:     busFlags,
			Action: func(c *cli.Context) error {
				cfg, err := argNum(c, 0, 0xFF)
				if err != nil {
					return console.Fail("transfer failed", err)
				}
				return withDevice(c, "eeprom", func(ctx context.Context, dev client.Devices) error {
					return dev.EEPROM.ConfigureWatchdog(ctx, byte(cfg))
				})
			},
		},
	},
}

var adcCmd = cli.Command{
	Name:      "adc",
	Usage:     "convert an emulated ADC channel",
	ArgsUsage: "MUX",
	Flags: append([]cli.Flag{
		&cli.BoolFlag{Name: "diff", Usage: "differential conversion"},
		&cli.StringFlag{Name: "ref", Usage: "reference: vcc, external or internal", Value: "external"},
	}, busFlags...),
	Action: func(c *cli.Context) error {
		mux, err := argNum(c, 0, 7)
		if err != nil {
			return console.Fail("transfer failed", err)
		}
		cfg := adc.Config{Mux: uint8(mux), SingleEnded: !c.Bool("diff")}
		switch c.String("ref") {
		case "vcc":
			cfg.Reference = adc.RefVCC
		case "external":
			cfg.Reference = adc.RefExternal
		case "internal":
			cfg.Reference = adc.RefInternal
		default:
			return console.Exit(1, "unknown reference %q", c.String("ref"))
		}
		return withDevice(c, "adc", func(ctx context.Context, dev client.Devices) error {
			v, err := dev.ADC.Convert(ctx, cfg)
			if err != nil {
				return err
			}
			volts := float64(v) / 255 * cfg.Reference.Volts()
			console.PInfof(console.PictoGauge, "%s %s", console.White(fmt.Sprintf("%#02x", v)), fmt.Sprintf("(%.3fV)", volts))
			return nil
		})
	},
}

var gpiCmd = cli.Command{
	Name:  "gpi",
	Usage: "emulated input expander",
	Subcommands: cli.Commands{
		{
			Name:  "read",
			Flags: busFlags,
			Action: func(c *cli.Context) error {
				return withDevice(c, "gpi", func(ctx context.Context, dev client.Devices) error {
					cur, trans, err := dev.GPI.Read(ctx)
					if err != nil {
						return err
					}
					console.PInfof(console.PictoPin, "inputs %s transitions %s", console.White(fmt.Sprintf("%08b", cur)), console.Yellow(fmt.Sprintf("%08b", trans)))
					return nil
				})
			},
		},
		{
			Name:      "mask",
			ArgsUsage: "MASK",
			Flags:     busFlags,
			Action: func(c *cli.Context) error {
				mask, err := argNum(c, 0, 0xFF)
				if err != nil {
					return console.Fail("transfer failed", err)
				}
				return withDevice(c, "gpi", func(ctx context.Context, dev client.Devices) error {
					return dev.GPI.SetMask(ctx, byte(mask))
				})
			},
		},
	},
}

var sramCmd = cli.Command{
	Name:  "sram",
	Usage: "emulated 512 byte SRAM",
	Subcommands: cli.Commands{
		{
			Name:      "read",
			ArgsUsage: "ADDR [N]",
			Flags:     busFlags,
			Action: func(c *cli.Context) error {
				addr, n, err := addrCount(c.Args().Slice(), 0x1FF)
				if err != nil {
					return console.Fail("transfer failed", err)
				}
				return withDevice(c, "sram", func(ctx context.Context, dev client.Devices) error {
					data, err := dev.SRAM.Read(ctx, uint16(addr), n)
					if err != nil {
						return err
					}
					console.Dump(addr, data)
					return nil
				})
			},
		},
		{
			Name:      "write",
			ArgsUsage: "ADDR HEX",
			Flags:     busFlags,
			Action: func(c *cli.Context) error {
				addr, err := argNum(c, 0, 0x1FF)
				if err != nil {
					return console.Fail("transfer failed", err)
				}
				data, err := hex.DecodeString(c.Args().Get(1))
				if err != nil || len(data) == 0 {
					return console.Exit(1, "could not decode data: %v", err)
				}
				return withDevice(c, "sram", func(ctx context.Context, dev client.Devices) error {
					return dev.SRAM.Write(ctx, uint16(addr), data)
				})
			},
		},
	},
}
