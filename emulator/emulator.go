package emulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mklimuk/i2cemu"
	"github.com/mklimuk/i2cemu/adc"
	"github.com/mklimuk/i2cemu/client"
	"github.com/mklimuk/i2cemu/config"
	"github.com/mklimuk/i2cemu/eeprom"
	"github.com/mklimuk/i2cemu/gpi"
	"github.com/mklimuk/i2cemu/sim"
	"github.com/mklimuk/i2cemu/slave"
	"github.com/mklimuk/i2cemu/sram"
	"github.com/mklimuk/i2cemu/supervisor"
	"github.com/mklimuk/i2cemu/tick"
)

// Board is the hardware the emulator runs on. Lines may be nil, which
// leaves the host supervisor out.
type Board struct {
	Peripheral i2cemu.Peripheral
	Sampler    adc.Sampler
	Pins       gpi.Pins
	Interrupt  gpi.InterruptLine
	Lines      supervisor.Lines
	Store      i2cemu.PersistentStore
	Program    io.ReaderAt
}

func (b Board) validate() error {
	var errs []error
	if b.Peripheral == nil {
		errs = append(errs, errors.New("bus peripheral missing"))
	}
	if b.Sampler == nil {
		errs = append(errs, errors.New("adc sampler missing"))
	}
	if b.Pins == nil || b.Interrupt == nil {
		errs = append(errs, errors.New("gpi pins missing"))
	}
	if b.Store == nil {
		errs = append(errs, errors.New("persistent store missing"))
	}
	return errors.Join(errs...)
}

type Emulator struct {
	log        *slog.Logger
	cfg        config.Config
	info       eeprom.FirmwareInfo
	boot       supervisor.Event
	engine     *slave.Engine
	eeprom     *eeprom.Device
	adc        *adc.Device
	gpi        *gpi.Device
	sram       *sram.Device
	supervisor *supervisor.Supervisor
	scheduler  *tick.Scheduler
	master     *sim.Master
}

type Opt func(*Emulator)

func WithLogger(logger *slog.Logger) Opt {
	return func(e *Emulator) {
		e.log = logger
	}
}

// WithInfo replaces the identification block built from the config.
func WithInfo(info eeprom.FirmwareInfo) Opt {
	return func(e *Emulator) {
		e.info = info
	}
}

// WithBootCause sets the reset cause recorded at startup.
func WithBootCause(cause supervisor.Event) Opt {
	return func(e *Emulator) {
		e.boot = cause
	}
}

// New builds the devices, registers them in their slots and starts the
// slave engine.
func New(cfg config.Config, board Board, opts ...Opt) (*Emulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := board.validate(); err != nil {
		return nil, fmt.Errorf("incomplete board: %w", err)
	}
	e := &Emulator{
		log:  slog.Default(),
		cfg:  cfg,
		info: cfg.FirmwareInfo("", ""),
		boot: supervisor.EventMicroPowerOn,
	}
	for _, opt := range opts {
		opt(e)
	}
	if board.Lines != nil && cfg.Supervisor.Enabled {
		e.supervisor = supervisor.New(board.Lines, board.Store, supervisor.WithLogger(e.log))
	}

	eeOpts := []eeprom.Opt{
		eeprom.WithLogger(e.log),
		eeprom.WithInfo(e.info),
		eeprom.WithLiveMemory(liveMemory{e}),
	}
	if board.Program != nil {
		eeOpts = append(eeOpts, eeprom.WithProgram(board.Program))
	}
	if e.supervisor != nil {
		eeOpts = append(eeOpts, eeprom.WithWatchdog(e.supervisor.Watchdog()))
	}
	e.eeprom = eeprom.New(board.Store, eeOpts...)
	e.adc = adc.New(board.Sampler, adc.WithLogger(e.log))
	e.gpi = gpi.New(board.Pins, board.Interrupt, gpi.WithLogger(e.log), gpi.WithMask(cfg.GPI.Mask))
	e.sram = sram.New(sram.WithLogger(e.log))

	reg := slave.NewRegistry()
	for _, d := range []struct {
		name string
		slot int
		dev  slave.Device
	}{
		{"eeprom", cfg.Slots.EEPROM, e.eeprom},
		{"adc", cfg.Slots.ADC, e.adc},
		{"gpi", cfg.Slots.GPI, e.gpi},
		{"sram", cfg.Slots.SRAM, e.sram},
	} {
		if d.slot < 0 {
			continue
		}
		if err := reg.Register(d.slot, d.dev); err != nil {
			return nil, fmt.Errorf("could not register %s: %w", d.name, err)
		}
		e.log.Info("device registered", "device", d.name, "slot", d.slot, "address", fmt.Sprintf("%#x", cfg.Bus.BaseAddress+byte(d.slot)))
	}

	var err error
	e.engine, err = slave.NewEngine(reg, board.Peripheral,
		slave.WithBaseAddress(cfg.Bus.BaseAddress),
		slave.WithTimeout(cfg.Bus.Timeout),
		slave.WithLogger(e.log),
	)
	if err != nil {
		return nil, err
	}
	e.master = sim.NewMaster(e.engine)

	e.scheduler = tick.New(tick.WithLogger(e.log))
	tasks := []struct {
		name   string
		period time.Duration
		task   tick.Task
	}{
		{"gpi", cfg.Tick.Inputs, e.gpi},
		{"bus watchdog", cfg.Tick.Housekeeping, e.engine},
	}
	if e.supervisor != nil {
		tasks = append(tasks, struct {
			name   string
			period time.Duration
			task   tick.Task
		}{"supervisor", cfg.Tick.Housekeeping, e.supervisor})
	}
	for _, t := range tasks {
		if err := e.scheduler.Every(t.name, t.period, t.task); err != nil {
			return nil, err
		}
	}

	if e.supervisor != nil {
		e.supervisor.Boot(e.boot)
	}
	return e, nil
}

// Run drives the periodic tasks, and any extra tasks given, until ctx is
// done or one of them fails.
func (e *Emulator) Run(ctx context.Context, tasks ...func(ctx context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.scheduler.Run(ctx)
	})
	for _, task := range tasks {
		g.Go(func() error {
			return task(ctx)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Advance runs the periodic tasks for d of simulated time.
func (e *Emulator) Advance(d time.Duration) {
	e.scheduler.Advance(d)
}

// HostReset services a reset request of the supervised controller.
func (e *Emulator) HostReset(ctx context.Context) (supervisor.Event, error) {
	if e.supervisor == nil {
		return 0, errors.New("host supervisor disabled")
	}
	return e.supervisor.HostReset(ctx)
}

// Master is a bus master wired into the engine.
func (e *Emulator) Master() *sim.Master {
	return e.master
}

// Clients returns host drivers on the loopback master, addressed by the
// configured slots.
func (e *Emulator) Clients() client.Devices {
	return client.NewDevices(e.master, e.cfg.Bus.BaseAddress, client.Slots(e.cfg.Slots))
}

func (e *Emulator) Engine() *slave.Engine {
	return e.engine
}

func (e *Emulator) GPI() *gpi.Device {
	return e.gpi
}

func (e *Emulator) ADC() *adc.Device {
	return e.adc
}

func (e *Emulator) SRAM() *sram.Device {
	return e.sram
}

func (e *Emulator) EEPROM() *eeprom.Device {
	return e.eeprom
}

// Supervisor is nil when the board has no reset lines.
func (e *Emulator) Supervisor() *supervisor.Supervisor {
	return e.supervisor
}
