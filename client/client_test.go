package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/i2cemu"
	"github.com/mklimuk/i2cemu/adc"
	"github.com/mklimuk/i2cemu/eeprom"
	"github.com/mklimuk/i2cemu/gpi"
	"github.com/mklimuk/i2cemu/sim"
	"github.com/mklimuk/i2cemu/slave"
	"github.com/mklimuk/i2cemu/sram"
	"github.com/mklimuk/i2cemu/store"
)

type fixture struct {
	master  *sim.Master
	sampler *adc.MockSampler
	pins    *gpi.MockPins
	gpi     *gpi.Device
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sampler: adc.NewMockSampler(map[uint8]uint8{0: 200, 1: 50, 2: 7}),
		pins:    &gpi.MockPins{},
	}
	f.gpi = gpi.New(f.pins, &gpi.MockLine{})
	reg := slave.NewRegistry()
	require.NoError(t, reg.Register(0, eeprom.New(store.NewMem(eeprom.PersistentSize))))
	require.NoError(t, reg.Register(1, adc.New(f.sampler)))
	require.NoError(t, reg.Register(2, f.gpi))
	require.NoError(t, reg.Register(3, sram.New()))
	e, err := slave.NewEngine(reg, slave.NewMockPeripheral())
	require.NoError(t, err)
	f.master = sim.NewMaster(e)
	return f
}

// plainBus hides the repeated start support of the wrapped bus.
type plainBus struct {
	i2cemu.I2CBus
}

func TestEEPROM(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, bus := range []i2cemu.I2CBus{f.master, plainBus{f.master}} {
		ee := NewEEPROM(bus)
		require.NoError(t, ee.Write(ctx, 0x0040, 0x5A))
		got, err := ee.Read(ctx, 0x0040, 1)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x5A}, got)

		err = ee.WriteByte(ctx, 0x0041, 0x01)
		assert.ErrorIs(t, err, i2cemu.ErrNack)
	}
}

func TestEEPROM_Info(t *testing.T) {
	f := newFixture(t)
	info, err := NewEEPROM(f.master).Info(context.Background())
	require.NoError(t, err)
	assert.Len(t, info, eeprom.InfoSize)
}

func TestADC(t *testing.T) {
	ctx := context.Background()
	a := NewADC(newFixture(t).master)
	v, err := a.Convert(ctx, adc.Config{Mux: 1, SingleEnded: true})
	require.NoError(t, err)
	assert.Equal(t, byte(7), v)

	v, err = a.Convert(ctx, adc.Config{Mux: 0})
	require.NoError(t, err)
	assert.Equal(t, byte(150), v)
}

func TestGPI(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	g := NewGPI(f.master)
	require.NoError(t, g.SetMask(ctx, 0x0F))
	assert.Equal(t, uint8(0x0F), f.gpi.State().Mask)

	f.pins.Set(0x81)
	f.gpi.PeriodicTask(0)
	cur, trans, err := g.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x81), cur)
	assert.Equal(t, uint8(0x81), trans)

	_, trans, err = g.Read(ctx)
	require.NoError(t, err)
	assert.Zero(t, trans)
}

func TestSRAM(t *testing.T) {
	ctx := context.Background()
	s := NewSRAM(newFixture(t).master)
	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i * 7)
	}
	require.NoError(t, s.Write(ctx, 0x0180, data))
	got, err := s.Read(ctx, 0x0180, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// the array wraps at 512
	got, err = s.Read(ctx, 0x0000, 4)
	require.NoError(t, err)
	assert.Equal(t, data[128:132], got)
}

func TestWithAddress(t *testing.T) {
	g := NewGPI(newFixture(t).master, WithAddress(0x10))
	_, _, err := g.Read(context.Background())
	assert.ErrorIs(t, err, i2cemu.ErrNack)
}

func TestNewDevices(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name  string
		slots Slots
		adc   byte
	}{
		{"default", DefaultSlots, ADCDefaultAddress},
		{"adc in slot 3", Slots{EEPROM: 0, ADC: 3, GPI: -1, SRAM: -1}, 0x73},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDevices(f.master, 0x70, tc.slots)
			require.NotNil(t, d.ADC)
			assert.Equal(t, tc.adc, d.ADC.address)
			assert.Equal(t, tc.slots.GPI < 0, d.GPI == nil)
			assert.Equal(t, tc.slots.SRAM < 0, d.SRAM == nil)
		})
	}
	assert.ErrorIs(t, Absent("gpi"), ErrAbsent)
	assert.True(t, DefaultSlots.Has("sram"))
	assert.False(t, Slots{EEPROM: 0, ADC: 1, GPI: -1, SRAM: 2}.Has("gpi"))
	assert.False(t, DefaultSlots.Has("flash"))
}
