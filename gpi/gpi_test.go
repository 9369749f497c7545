package gpi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/i2cemu/slave"
)

func read(t *testing.T, d *Device) (uint8, uint8) {
	t.Helper()
	buf, ack := d.Handle(slave.ReadStart, 0)
	require.Equal(t, slave.ACK, ack)
	require.Len(t, buf, 2)
	cur, trans := buf[0], buf[1]
	d.Handle(slave.ReadStop, 2)
	return cur, trans
}

func setMask(t *testing.T, d *Device, mask uint8) {
	t.Helper()
	buf, ack := d.Handle(slave.WriteStart, 0)
	require.Equal(t, slave.ACK, ack)
	require.Len(t, buf, 1)
	buf[0] = mask
	_, ack = d.Handle(slave.WriteBufferFull, 1)
	assert.Equal(t, slave.ACK, ack)
	d.Handle(slave.WriteStop, 0)
}

func TestGPI_LatchAccumulates(t *testing.T) {
	pins := &MockPins{}
	d := New(pins, &MockLine{})
	tick := time.Millisecond

	seq := []uint8{0x01, 0x03, 0x02, 0x12}
	var want uint8
	prev := uint8(0)
	for _, v := range seq {
		pins.Set(v)
		d.PeriodicTask(tick)
		want |= prev ^ v
		prev = v
	}
	cur, trans := read(t, d)
	assert.Equal(t, uint8(0x12), cur)
	assert.Equal(t, want, trans)
	assert.Equal(t, uint8(0x13), trans)

	// cleared on read
	d.PeriodicTask(tick)
	cur, trans = read(t, d)
	assert.Equal(t, uint8(0x12), cur)
	assert.Zero(t, trans)
}

func TestGPI_Interrupt(t *testing.T) {
	tests := []struct {
		name   string
		mask   uint8
		input  uint8
		assert bool
	}{
		{"masked out", 0x0F, 0x10, false},
		{"unmasked", 0x0F, 0x04, true},
		{"no mask", 0x00, 0xFF, false},
		{"no change", 0xFF, 0x00, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pins := &MockPins{}
			line := &MockLine{}
			d := New(pins, line)
			setMask(t, d, tc.mask)
			assert.Equal(t, tc.mask, d.State().Mask)

			pins.Set(tc.input)
			d.PeriodicTask(time.Millisecond)
			assert.Equal(t, tc.assert, line.Asserted())
			assert.Equal(t, tc.assert, d.State().Asserted)
		})
	}
}

func TestGPI_ReadSuspendsSignalling(t *testing.T) {
	pins := &MockPins{}
	line := &MockLine{}
	d := New(pins, line, WithMask(0xFF))
	pins.Set(0x01)
	d.PeriodicTask(time.Millisecond)
	require.True(t, line.Asserted())

	buf, _ := d.Handle(slave.ReadStart, 0)
	assert.False(t, line.Asserted())
	assert.False(t, d.State().Enabled)
	assert.Equal(t, []byte{0x01, 0x01}, buf)

	// the latch was cleared by the read, so the line stays released
	pins.Set(0x01)
	d.Handle(slave.ReadStop, 2)
	assert.True(t, d.State().Enabled)
	assert.False(t, line.Asserted())

	// an edge during the next transaction is reported once it ends
	d.Handle(slave.WriteStart, 0)
	pins.Set(0x00)
	d.PeriodicTask(time.Millisecond)
	assert.False(t, line.Asserted())
	d.Handle(slave.WriteStop, 0)
	assert.True(t, line.Asserted())
	assert.Equal(t, 2, line.Edges)
}

func TestGPI_WriteErrorKeepsMask(t *testing.T) {
	d := New(&MockPins{}, &MockLine{}, WithMask(0x0F))
	buf, _ := d.Handle(slave.WriteStart, 0)
	buf[0] = 0xF0
	d.Handle(slave.WriteError, 1)
	st := d.State()
	assert.Equal(t, uint8(0x0F), st.Mask)
	assert.True(t, st.Enabled)
}

// slowPins blocks the first sample until release is closed.
func slowPins(value uint8) (*MockPins, chan struct{}, chan struct{}) {
	entered := make(chan struct{})
	release := make(chan struct{})
	pins := &MockPins{}
	first := true
	pins.SampleBehavior = func() (uint8, error) {
		if first {
			first = false
			close(entered)
			<-release
			return value, nil
		}
		return pins.Value, nil
	}
	return pins, entered, release
}

func TestGPI_SlowSampleDoesNotBlockBus(t *testing.T) {
	pins, entered, release := slowPins(0)
	pins.Value = 0x01
	d := New(pins, &MockLine{})
	ticked := make(chan struct{})
	go func() {
		d.PeriodicTask(time.Millisecond)
		close(ticked)
	}()
	<-entered

	handled := make(chan struct{})
	go func() {
		d.Handle(slave.WriteStart, 0)
		d.Handle(slave.WriteError, 0)
		close(handled)
	}()
	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("transaction waited for the periodic sample")
	}
	close(release)
	<-ticked
}

func TestGPI_StaleSampleDiscarded(t *testing.T) {
	pins, entered, release := slowPins(0x00)
	pins.Value = 0x01
	d := New(pins, &MockLine{})
	ticked := make(chan struct{})
	go func() {
		d.PeriodicTask(time.Millisecond)
		close(ticked)
	}()
	<-entered

	// the pins went high while the periodic sample was in flight
	cur, trans := read(t, d)
	assert.Equal(t, uint8(0x01), cur)
	assert.Equal(t, uint8(0x01), trans)

	close(release)
	<-ticked
	st := d.State()
	assert.Equal(t, uint8(0x01), st.Current)
	assert.Zero(t, st.Transitions)
}
