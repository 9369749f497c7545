package hw

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/mklimuk/i2cemu/gpi"
	"github.com/mklimuk/i2cemu/supervisor"
)

var (
	_ gpi.Pins          = &PinBank{}
	_ gpi.InterruptLine = &OpenDrainLine{}
	_ supervisor.Lines  = &PinLines{}
)

var initOnce = sync.OnceValue(func() error {
	_, err := host.Init()
	return err
})

// Init loads the periph host drivers once.
func Init() error {
	if err := initOnce(); err != nil {
		return fmt.Errorf("could not init host: %w", err)
	}
	return nil
}

// Pin looks a GPIO line up by name.
func Pin(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("unknown gpio %q", name)
	}
	return p, nil
}

// PinBank samples up to eight inputs as one byte, pins[i] giving bit i.
type PinBank struct {
	pins []gpio.PinIn
}

func NewPinBank(pins ...gpio.PinIn) (*PinBank, error) {
	if len(pins) > 8 {
		return nil, fmt.Errorf("pin bank holds at most 8 pins, got %d", len(pins))
	}
	for _, p := range pins {
		if err := p.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("could not configure %s as input: %w", p, err)
		}
	}
	return &PinBank{pins: pins}, nil
}

func (b *PinBank) Sample() (uint8, error) {
	var v uint8
	for i, p := range b.pins {
		if p.Read() == gpio.High {
			v |= 1 << i
		}
	}
	return v, nil
}

// OpenDrainLine drives an active-low line with an external pull-up: low
// when asserted, floating otherwise.
type OpenDrainLine struct {
	pin gpio.PinIO
}

func NewOpenDrainLine(pin gpio.PinIO) (*OpenDrainLine, error) {
	l := &OpenDrainLine{pin: pin}
	if err := l.Release(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *OpenDrainLine) Assert() error {
	if err := l.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("could not drive %s low: %w", l.pin, err)
	}
	return nil
}

func (l *OpenDrainLine) Release() error {
	if err := l.pin.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return fmt.Errorf("could not release %s: %w", l.pin, err)
	}
	return nil
}

// Set asserts or releases the line.
func (l *OpenDrainLine) Set(asserted bool) error {
	if asserted {
		return l.Assert()
	}
	return l.Release()
}

// PinLines drives the reset and power lines of the supervised controller.
// Every line is active low and open drain; Update is an input.
type PinLines struct {
	Core   *OpenDrainLine
	Power  *OpenDrainLine
	Flash  *OpenDrainLine
	Update gpio.PinIn
}

func (p *PinLines) CoreReset(asserted bool) error {
	return p.Core.Set(asserted)
}

func (p *PinLines) PowerReset(asserted bool) error {
	return p.Power.Set(asserted)
}

// FlashPower switches the flash supply; the enable is pulled up, so off
// means driving it low.
func (p *PinLines) FlashPower(on bool) error {
	return p.Flash.Set(!on)
}

func (p *PinLines) UpdateRequested() (bool, error) {
	return p.Update.Read() == gpio.Low, nil
}

// WatchResetRequest calls fn on every falling edge of pin until ctx is done.
func WatchResetRequest(ctx context.Context, pin gpio.PinIn, fn func(ctx context.Context)) error {
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return fmt.Errorf("could not watch %s: %w", pin, err)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if pin.WaitForEdge(100 * time.Millisecond) {
			slog.Debug("reset request", "pin", pin.String())
			fn(ctx)
		}
	}
}
