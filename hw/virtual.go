package hw

import (
	"log/slog"
	"sync"

	"github.com/mklimuk/i2cemu"
	"github.com/mklimuk/i2cemu/adc"
	"github.com/mklimuk/i2cemu/gpi"
	"github.com/mklimuk/i2cemu/supervisor"
)

var (
	_ adc.Sampler       = &Virtual{}
	_ gpi.Pins          = virtualPins{}
	_ gpi.InterruptLine = &Virtual{}
	_ supervisor.Lines  = &Virtual{}
	_ i2cemu.Peripheral = &Virtual{}
)

// VirtualState is what the virtual board shows on its pins.
type VirtualState struct {
	Analog     [10]uint8 `yaml:"analog"`
	Inputs     uint8     `yaml:"inputs"`
	Interrupt  bool      `yaml:"interrupt"`
	CoreReset  bool      `yaml:"core_reset"`
	PowerReset bool      `yaml:"power_reset"`
	FlashPower bool      `yaml:"flash_power"`
	Update     bool      `yaml:"update"`
	BusEnabled bool      `yaml:"bus_enabled"`
	BusCycles  int       `yaml:"bus_cycles"`
}

// Virtual is a board without hardware: analog channels and inputs are set
// by hand and outputs are only recorded.
type Virtual struct {
	mx    sync.Mutex
	log   *slog.Logger
	state VirtualState
}

func NewVirtual(logger *slog.Logger) *Virtual {
	if logger == nil {
		logger = slog.Default()
	}
	return &Virtual{log: logger, state: VirtualState{FlashPower: true}}
}

func (v *Virtual) SetAnalog(channel uint8, value uint8) {
	v.mx.Lock()
	defer v.mx.Unlock()
	if int(channel) < len(v.state.Analog) {
		v.state.Analog[channel] = value
	}
}

func (v *Virtual) SetInputs(value uint8) {
	v.mx.Lock()
	defer v.mx.Unlock()
	v.state.Inputs = value
}

// SetUpdate holds or releases the update request signal.
func (v *Virtual) SetUpdate(requested bool) {
	v.mx.Lock()
	defer v.mx.Unlock()
	v.state.Update = requested
}

func (v *Virtual) State() VirtualState {
	v.mx.Lock()
	defer v.mx.Unlock()
	return v.state
}

// Sample ignores the reference; virtual channels hold converted values.
func (v *Virtual) Sample(channel uint8, _ adc.Reference) (uint8, error) {
	v.mx.Lock()
	defer v.mx.Unlock()
	if int(channel) >= len(v.state.Analog) {
		return 0, nil
	}
	return v.state.Analog[channel], nil
}

// Pins returns the digital inputs of the board.
func (v *Virtual) Pins() gpi.Pins {
	return virtualPins{v}
}

type virtualPins struct {
	v *Virtual
}

func (p virtualPins) Sample() (uint8, error) {
	p.v.mx.Lock()
	defer p.v.mx.Unlock()
	return p.v.state.Inputs, nil
}

func (v *Virtual) Assert() error {
	v.set(&v.state.Interrupt, true, "interrupt")
	return nil
}

func (v *Virtual) Release() error {
	v.set(&v.state.Interrupt, false, "interrupt")
	return nil
}

func (v *Virtual) CoreReset(asserted bool) error {
	v.set(&v.state.CoreReset, asserted, "core reset")
	return nil
}

func (v *Virtual) PowerReset(asserted bool) error {
	v.set(&v.state.PowerReset, asserted, "power reset")
	return nil
}

func (v *Virtual) FlashPower(on bool) error {
	v.set(&v.state.FlashPower, on, "flash power")
	return nil
}

func (v *Virtual) UpdateRequested() (bool, error) {
	v.mx.Lock()
	defer v.mx.Unlock()
	return v.state.Update, nil
}

func (v *Virtual) Disable() {
	v.set(&v.state.BusEnabled, false, "bus")
}

func (v *Virtual) Enable() {
	v.mx.Lock()
	v.state.BusCycles++
	v.mx.Unlock()
	v.set(&v.state.BusEnabled, true, "bus")
}

func (v *Virtual) set(field *bool, value bool, name string) {
	v.mx.Lock()
	defer v.mx.Unlock()
	if *field != value {
		v.log.Debug("virtual line", "line", name, "value", value)
	}
	*field = value
}
