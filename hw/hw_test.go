package hw

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/mklimuk/i2cemu/adc"
)

func TestPinBank(t *testing.T) {
	pins := make([]gpio.PinIn, 8)
	raw := make([]*gpiotest.Pin, 8)
	for i := range pins {
		raw[i] = &gpiotest.Pin{N: "GPIO", Num: i}
		pins[i] = raw[i]
	}
	bank, err := NewPinBank(pins...)
	require.NoError(t, err)

	raw[0].L = gpio.High
	raw[7].L = gpio.High
	v, err := bank.Sample()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x81), v)

	_, err = NewPinBank(append(pins, &gpiotest.Pin{})...)
	assert.Error(t, err)
}

func TestOpenDrainLine(t *testing.T) {
	p := &gpiotest.Pin{N: "INT", L: gpio.High}
	l, err := NewOpenDrainLine(p)
	require.NoError(t, err)
	require.NoError(t, l.Assert())
	assert.Equal(t, gpio.Low, p.Read())
	require.NoError(t, l.Release())
	assert.Equal(t, gpio.PullNoChange, p.Pull())
}

func TestPinLines(t *testing.T) {
	flash := &gpiotest.Pin{N: "FLASH", L: gpio.High}
	update := &gpiotest.Pin{N: "UPDATE", L: gpio.High}
	fl, err := NewOpenDrainLine(flash)
	require.NoError(t, err)
	lines := &PinLines{Flash: fl, Update: update}

	require.NoError(t, lines.FlashPower(false))
	assert.Equal(t, gpio.Low, flash.Read())

	req, err := lines.UpdateRequested()
	require.NoError(t, err)
	assert.False(t, req)
	update.L = gpio.Low
	req, err = lines.UpdateRequested()
	require.NoError(t, err)
	assert.True(t, req)
}

type analogStub map[string]int

func (a analogStub) AnalogRead(pin string) (int, error) {
	v, ok := a[pin]
	if !ok {
		return 0, errors.New("no such pin")
	}
	return v, nil
}

func TestAnalogInputs(t *testing.T) {
	reader := analogStub{"A0": 1023, "A1": 0, "A2": 512}
	in := NewAnalogInputs(reader, map[uint8]string{0: "A0", 1: "A1", 2: "A2", 3: "A3"},
		WithResolution(10), WithFullScale(3.3))

	tests := []struct {
		channel uint8
		ref     adc.Reference
		want    uint8
	}{
		{0, adc.RefVCC, 255},
		{1, adc.RefVCC, 0},
		{2, adc.RefVCC, 128},
		// a lower reference saturates sooner
		{2, adc.RefExternal, 168},
		{2, adc.RefInternal, 255},
	}
	for _, tc := range tests {
		v, err := in.Sample(tc.channel, tc.ref)
		require.NoError(t, err)
		assert.Equal(t, tc.want, v, "channel %d ref %s", tc.channel, tc.ref)
	}
	_, err := in.Sample(3, adc.RefVCC)
	assert.Error(t, err)
	_, err = in.Sample(9, adc.RefVCC)
	assert.Error(t, err)
}

type digitalStub map[string]int

func (d digitalStub) DigitalRead(pin string) (int, error) {
	return d[pin], nil
}

func (d digitalStub) DigitalWrite(pin string, val byte) error {
	d[pin] = int(val)
	return nil
}

func TestDigitalPins(t *testing.T) {
	reader := digitalStub{"7": 1, "11": 0, "13": 1}
	pins, err := NewDigitalPins(reader, "7", "11", "13")
	require.NoError(t, err)
	v, err := pins.Sample()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x05), v)

	line := NewDigitalLine(reader, "15")
	require.NoError(t, line.Assert())
	assert.Equal(t, 0, reader["15"])
	require.NoError(t, line.Release())
	assert.Equal(t, 1, reader["15"])
}

func TestVirtual(t *testing.T) {
	v := NewVirtual(nil)
	v.SetAnalog(3, 42)
	s, err := v.Sample(3, adc.RefVCC)
	require.NoError(t, err)
	assert.Equal(t, uint8(42), s)

	v.SetInputs(0x0F)
	in, err := v.Pins().Sample()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x0F), in)

	v.Disable()
	v.Enable()
	require.NoError(t, v.Assert())
	st := v.State()
	assert.True(t, st.Interrupt)
	assert.True(t, st.BusEnabled)
	assert.Equal(t, 1, st.BusCycles)
	assert.True(t, st.FlashPower)
}
