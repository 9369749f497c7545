package main

import (
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/i2cemu/adapter"
	"github.com/mklimuk/i2cemu/cmd/i2cemu/console"
)

var mcp2221Flags = []cli.Flag{
	&cli.IntFlag{Name: "index", Usage: "adapter index from usb detect; -1 expects a single adapter", Value: -1},
	&cli.BoolFlag{Name: "dump", Usage: "dump adapter reports"},
}

func newMCP2221(c *cli.Context) *adapter.MCP2221 {
	return adapter.NewMCP2221(adapter.WithIndex(c.Int("index")), adapter.WithDump(c.Bool("dump")))
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	defer func() { _ = enc.Close() }()
	if err := enc.Encode(v); err != nil {
		return console.Fail("encoding error", err)
	}
	return nil
}

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "MCP2221 USB to I2C adapter",
	Subcommands: cli.Commands{
		&mcp2221StatusCmd,
		&mcp2221ReleaseCmd,
		&mcp2221InterruptCmd,
	},
}

var mcp2221StatusCmd = cli.Command{
	Name:  "status",
	Flags: mcp2221Flags,
	Action: func(c *cli.Context) error {
		status, err := newMCP2221(c).Status(c.Context)
		if err != nil {
			return console.Fail("adapter communication error", err)
		}
		return printYAML(status)
	},
}

var mcp2221ReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel a stuck transfer",
	Flags: mcp2221Flags,
	Action: func(c *cli.Context) error {
		status, err := newMCP2221(c).ReleaseBus(c.Context)
		if err != nil {
			return console.Fail("adapter communication error", err)
		}
		return printYAML(status)
	},
}

// mcp2221InterruptCmd samples the emulator INT# line wired to the adapter
// GP1, after switching GP1 to a plain input.
var mcp2221InterruptCmd = cli.Command{
	Name:  "interrupt",
	Usage: "read the GPI interrupt line on GP1",
	Flags: mcp2221Flags,
	Action: func(c *cli.Context) error {
		a := newMCP2221(c)
		params, err := a.GetGPIOParameters(c.Context)
		if err != nil {
			return console.Fail("adapter communication error", err)
		}
		if params.GPIO1Mode != adapter.GPIOModeIn || params.GPIO1Designation != adapter.GPIOOperation {
			params.GPIO1Mode = adapter.GPIOModeIn
			params.GPIO1Designation = adapter.GPIOOperation
			if err := a.SetGPIOParameters(c.Context, params); err != nil {
				return console.Fail("could not configure GP1", err)
			}
		}
		values, err := a.ReadGPIO(c.Context)
		if err != nil {
			return console.Fail("adapter communication error", err)
		}
		if values.GPIO1Value == 0 {
			console.PInfof(console.PictoBell, "interrupt %s", console.Yellow("asserted"))
		} else {
			console.PInfof(console.PictoBell, "interrupt %s", console.Green("released"))
		}
		return printYAML(values)
	},
}
