package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/drivers/i2c"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"periph.io/x/conn/v3/gpio"

	"github.com/mklimuk/i2cemu/config"
	"github.com/mklimuk/i2cemu/eeprom"
	"github.com/mklimuk/i2cemu/emulator"
	"github.com/mklimuk/i2cemu/hw"
	hosti2c "github.com/mklimuk/i2cemu/i2c"
	"github.com/mklimuk/i2cemu/store"
)

// Hardware backends of the run command.
const (
	hardwareVirtual = "virtual"
	hardwarePeriph  = "periph"
	hardwareGobot   = "gobot"
)

var hardwareFlag = &cli.StringFlag{
	Name:    "hardware",
	Aliases: []string{"hw"},
	Usage:   "board backend: virtual, periph (GPIO through periph.io) or gobot (NanoPi through Gobot)",
	Value:   hardwareVirtual,
}

func loadConfig(c *cli.Context) (config.Config, error) {
	path := c.String("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// rig is a board together with what it takes to run and tear it down.
type rig struct {
	board   emulator.Board
	virtual *hw.Virtual
	// resetRequest is watched for host reset requests when set
	resetRequest gpio.PinIn
	closers      []func() error
	adaptor      *nanopi.NeoAdaptor
}

// neo connects the NanoPi adaptor on first use.
func (r *rig) neo() (*nanopi.NeoAdaptor, error) {
	if r.adaptor != nil {
		return r.adaptor, nil
	}
	adaptor := nanopi.NewNeoAdaptor()
	if err := adaptor.Connect(); err != nil {
		return nil, fmt.Errorf("adaptor connect error: %w", err)
	}
	r.closers = append(r.closers, adaptor.Finalize)
	r.adaptor = adaptor
	return adaptor, nil
}

func (r *rig) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			slog.Warn("could not release board resource", "err", err)
		}
	}
}

// newRig builds the board for the selected hardware. The slave peripheral
// is always the virtual one: the bus is served in process.
func newRig(hardware string, cfg config.Config) (*rig, error) {
	r := &rig{virtual: hw.NewVirtual(slog.Default())}
	r.board = emulator.Board{
		Peripheral: r.virtual,
		Sampler:    r.virtual,
		Pins:       r.virtual.Pins(),
		Interrupt:  r.virtual,
		Lines:      r.virtual,
	}
	var err error
	switch hardware {
	case hardwareVirtual:
	case hardwarePeriph:
		err = r.periph(cfg)
	case hardwareGobot:
		err = r.gobot(cfg)
	default:
		err = fmt.Errorf("unknown hardware %q", hardware)
	}
	if err == nil {
		err = r.storage(cfg)
	}
	if err == nil {
		err = r.program(cfg)
	}
	if err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *rig) periph(cfg config.Config) error {
	if err := hw.Init(); err != nil {
		return err
	}
	if len(cfg.Pins.Inputs) > 0 {
		pins := make([]gpio.PinIn, 0, len(cfg.Pins.Inputs))
		for _, name := range cfg.Pins.Inputs {
			p, err := hw.Pin(name)
			if err != nil {
				return err
			}
			pins = append(pins, p)
		}
		bank, err := hw.NewPinBank(pins...)
		if err != nil {
			return err
		}
		r.board.Pins = bank
	}
	if cfg.Pins.Expander != nil {
		if err := r.expander(*cfg.Pins.Expander); err != nil {
			return err
		}
	}
	if cfg.Pins.Interrupt != "" {
		line, err := openDrain(cfg.Pins.Interrupt)
		if err != nil {
			return err
		}
		r.board.Interrupt = line
	}
	if cfg.Pins.CoreReset != "" {
		lines := &hw.PinLines{}
		var err error
		if lines.Core, err = openDrain(cfg.Pins.CoreReset); err != nil {
			return err
		}
		if lines.Power, err = openDrain(cfg.Pins.PowerReset); err != nil {
			return err
		}
		if lines.Flash, err = openDrain(cfg.Pins.FlashPower); err != nil {
			return err
		}
		if lines.Update, err = hw.Pin(cfg.Pins.Update); err != nil {
			return err
		}
		r.board.Lines = lines
	}
	if cfg.Pins.ResetRequest != "" {
		p, err := hw.Pin(cfg.Pins.ResetRequest)
		if err != nil {
			return err
		}
		r.resetRequest = p
	}
	if len(cfg.ADC.Channels) > 0 {
		adaptor, err := r.neo()
		if err != nil {
			return err
		}
		return r.analog(cfg, adaptor)
	}
	return nil
}

func openDrain(name string) (*hw.OpenDrainLine, error) {
	p, err := hw.Pin(name)
	if err != nil {
		return nil, err
	}
	return hw.NewOpenDrainLine(p)
}

// expander samples the inputs from an MCP23017 on a host I2C bus.
func (r *rig) expander(e config.Expander) error {
	bus, err := hosti2c.NewGenericBus(e.Bus)
	if err != nil {
		return err
	}
	r.closers = append(r.closers, bus.Close)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pins := hw.NewMCP23017Pins(bus, e.Address)
	if err := pins.Init(ctx, e.PullUps); err != nil {
		return fmt.Errorf("could not init expander %#02x: %w", e.Address, err)
	}
	r.board.Pins = pins
	return nil
}

func (r *rig) gobot(cfg config.Config) error {
	adaptor, err := r.neo()
	if err != nil {
		return err
	}
	if len(cfg.Pins.Inputs) > 0 {
		pins, err := hw.NewDigitalPins(adaptor, cfg.Pins.Inputs...)
		if err != nil {
			return err
		}
		r.board.Pins = pins
	}
	if cfg.Pins.Interrupt != "" {
		line := hw.NewDigitalLine(adaptor, cfg.Pins.Interrupt)
		if err := line.Release(); err != nil {
			return fmt.Errorf("could not release interrupt line: %w", err)
		}
		r.board.Interrupt = line
	}
	if len(cfg.ADC.Channels) > 0 {
		return r.analog(cfg, adaptor)
	}
	return nil
}

// analog samples the ADC channels through an ADS1115 on the adaptor's I2C
// bus.
func (r *rig) analog(cfg config.Config, adaptor i2c.Connector) error {
	ads := i2c.NewADS1115Driver(adaptor)
	if err := ads.Start(); err != nil {
		return fmt.Errorf("could not start ADS1115: %w", err)
	}
	r.closers = append(r.closers, ads.Halt)
	r.board.Sampler = hw.NewAnalogInputs(ads, cfg.ADC.Channels, hw.WithResolution(cfg.ADC.Resolution))
	return nil
}

func (r *rig) storage(cfg config.Config) error {
	switch cfg.Storage.Backend {
	case config.StorageFile:
		f, err := store.OpenFile(cfg.Storage.Path, persistentSize)
		if err != nil {
			return err
		}
		r.closers = append(r.closers, f.Close)
		r.board.Store = f
	case config.StorageSPI:
		adaptor, err := r.neo()
		if err != nil {
			return err
		}
		ee := store.NewEEPROM25AA1024(adaptor, cfg.Storage.SPIBus, cfg.Storage.SPIChip,
			[]store.EEPROMOpt{store.WithWindow(cfg.Storage.SPIBase, persistentSize)})
		if err := ee.Start(); err != nil {
			return fmt.Errorf("SPI device start error: %w", err)
		}
		r.closers = append(r.closers, ee.Halt)
		r.board.Store = ee
	default:
		r.board.Store = store.NewMem(persistentSize)
	}
	return nil
}

func (r *rig) program(cfg config.Config) error {
	if cfg.Program == "" {
		return nil
	}
	f, err := os.Open(cfg.Program)
	if err != nil {
		return fmt.Errorf("could not open program image: %w", err)
	}
	r.closers = append(r.closers, f.Close)
	r.board.Program = f
	return nil
}

// newEmulator starts an emulator on the rig.
func newEmulator(cfg config.Config, r *rig) (*emulator.Emulator, error) {
	info := cfg.FirmwareInfo(buildDate(), buildTime())
	return emulator.New(cfg, r.board, emulator.WithInfo(info))
}

func buildDate() string {
	if t, err := time.Parse(time.RFC3339, date); err == nil {
		return t.Format("Jan 02 2006")
	}
	return date
}

func buildTime() string {
	if t, err := time.Parse(time.RFC3339, date); err == nil {
		return t.Format(time.TimeOnly)
	}
	return ""
}

const persistentSize = eeprom.PersistentSize
