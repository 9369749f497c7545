package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/i2cemu/cmd/i2cemu/console"
	"github.com/mklimuk/i2cemu/script"
)

var scriptCmd = cli.Command{
	Name:      "script",
	Usage:     "run a Lua bus script",
	ArgsUsage: "FILE",
	Flags:     busFlags,
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(1, "expected 1 argument, got %d", c.NArg())
		}
		base, err := baseAddress(c)
		if err != nil {
			return console.Fail("invalid base address", err)
		}
		slots, err := deviceSlots(c)
		if err != nil {
			return console.Fail("configuration error", err)
		}
		bus, release, err := openBus(c)
		if err != nil {
			return console.Fail("adapter initialization error", err)
		}
		defer release()
		runner := script.New(bus,
			script.WithBaseAddress(base),
			script.WithSlots(slots),
			script.WithOutput(console.Output()),
		)
		if err := runner.RunFile(c.Context, c.Args().First()); err != nil {
			return console.Fail("script error", err)
		}
		return nil
	},
}
