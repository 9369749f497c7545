package hw

import (
	"fmt"
	"sync"

	"gobot.io/x/gobot/v2/drivers/gpio"

	"github.com/mklimuk/i2cemu/adc"
	"github.com/mklimuk/i2cemu/gpi"
)

var (
	_ adc.Sampler = &AnalogInputs{}
	_ gpi.Pins    = &DigitalPins{}
)

// AnalogReader is what Gobot analog drivers and adaptors provide.
type AnalogReader interface {
	AnalogRead(pin string) (value int, err error)
}

// AnalogInputs samples ADC channels through a Gobot analog reader and
// rescales the raw reading to 8 bits of the requested reference.
type AnalogInputs struct {
	mx         sync.Mutex
	reader     AnalogReader
	pins       map[uint8]string
	resolution int
	fullScale  float64
}

type AnalogOpt func(*AnalogInputs)

// WithResolution sets the bit width of raw readings.
func WithResolution(bits int) AnalogOpt {
	return func(a *AnalogInputs) {
		a.resolution = bits
	}
}

// WithFullScale sets the voltage of a full scale raw reading.
func WithFullScale(volts float64) AnalogOpt {
	return func(a *AnalogInputs) {
		a.fullScale = volts
	}
}

// NewAnalogInputs maps sampler channels onto reader pin names.
func NewAnalogInputs(reader AnalogReader, pins map[uint8]string, opts ...AnalogOpt) *AnalogInputs {
	a := &AnalogInputs{
		reader:     reader,
		pins:       pins,
		resolution: 8,
		fullScale:  adc.RefVCC.Volts(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *AnalogInputs) Sample(channel uint8, ref adc.Reference) (uint8, error) {
	a.mx.Lock()
	defer a.mx.Unlock()
	pin, ok := a.pins[channel]
	if !ok {
		return 0, fmt.Errorf("no input for channel %d", channel)
	}
	raw, err := a.reader.AnalogRead(pin)
	if err != nil {
		return 0, fmt.Errorf("could not read analog pin %s: %w", pin, err)
	}
	return scale(raw, a.resolution, a.fullScale, ref.Volts()), nil
}

func scale(raw int, bits int, fullScale, ref float64) uint8 {
	top := float64(int(1)<<bits - 1)
	v := float64(raw) / top * fullScale / ref * 255
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}

// DigitalPins samples eight inputs through a Gobot digital reader.
type DigitalPins struct {
	reader gpio.DigitalReader
	pins   []string
}

func NewDigitalPins(reader gpio.DigitalReader, pins ...string) (*DigitalPins, error) {
	if len(pins) > 8 {
		return nil, fmt.Errorf("at most 8 input pins, got %d", len(pins))
	}
	return &DigitalPins{reader: reader, pins: pins}, nil
}

func (d *DigitalPins) Sample() (uint8, error) {
	var v uint8
	for i, pin := range d.pins {
		level, err := d.reader.DigitalRead(pin)
		if err != nil {
			return 0, fmt.Errorf("could not read pin %s: %w", pin, err)
		}
		if level != 0 {
			v |= 1 << i
		}
	}
	return v, nil
}

// DigitalLine drives an active-low interrupt line through a Gobot digital
// writer. It drives the level actively, so it needs no pull-up.
type DigitalLine struct {
	writer gpio.DigitalWriter
	pin    string
}

var _ gpi.InterruptLine = &DigitalLine{}

func NewDigitalLine(writer gpio.DigitalWriter, pin string) *DigitalLine {
	return &DigitalLine{writer: writer, pin: pin}
}

func (l *DigitalLine) Assert() error {
	return l.writer.DigitalWrite(l.pin, 0)
}

func (l *DigitalLine) Release() error {
	return l.writer.DigitalWrite(l.pin, 1)
}
