package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/i2cemu"
	"github.com/mklimuk/i2cemu/slave"
)

type event struct {
	name string
	b    byte
}

// targetRecorder logs bus events and acknowledges up to limit data bytes.
type targetRecorder struct {
	events []event
	limit  int
	data   byte
}

func (r *targetRecorder) AddressMatch(wire byte) slave.Ack {
	r.events = append(r.events, event{"addr", wire})
	if wire>>1 != 0x70 {
		return slave.NACK
	}
	return slave.ACK
}

func (r *targetRecorder) Receive(b byte) slave.Ack {
	r.events = append(r.events, event{"rx", b})
	r.limit--
	if r.limit < 0 {
		return slave.NACK
	}
	return slave.ACK
}

func (r *targetRecorder) Transmit(masterNacked bool) byte {
	var b byte
	if masterNacked {
		b = 1
	}
	r.events = append(r.events, event{"tx", b})
	r.data++
	return r.data
}

func (r *targetRecorder) Stop() {
	r.events = append(r.events, event{"stop", 0})
}

func (r *targetRecorder) BusError() {
	r.events = append(r.events, event{"error", 0})
}

func TestMaster_Write(t *testing.T) {
	tgt := &targetRecorder{limit: 8}
	m := NewMaster(tgt)
	require.NoError(t, m.WriteToAddr(context.Background(), 0x70, []byte{0x01, 0x02}))
	assert.Equal(t, []event{{"addr", 0xE0}, {"rx", 0x01}, {"rx", 0x02}, {"stop", 0}}, tgt.events)
}

func TestMaster_WriteNack(t *testing.T) {
	tgt := &targetRecorder{limit: 1}
	m := NewMaster(tgt)
	err := m.WriteToAddr(context.Background(), 0x70, []byte{0x01, 0x02, 0x03})
	assert.ErrorIs(t, err, i2cemu.ErrNack)
	// the master gives up after the refused byte
	assert.Equal(t, []event{{"addr", 0xE0}, {"rx", 0x01}, {"rx", 0x02}, {"stop", 0}}, tgt.events)

	tgt.events = nil
	err = m.ReadFromAddr(context.Background(), 0x50, make([]byte, 1))
	assert.ErrorIs(t, err, i2cemu.ErrNack)
	assert.Equal(t, []event{{"addr", 0xA1}, {"stop", 0}}, tgt.events)
}

func TestMaster_WriteRead(t *testing.T) {
	tgt := &targetRecorder{limit: 8}
	m := NewMaster(tgt)
	buf := make([]byte, 3)
	require.NoError(t, m.WriteReadAddr(context.Background(), 0x70, []byte{0x10}, buf))
	assert.Equal(t, []byte{1, 2, 3}, buf)
	assert.Equal(t, []event{
		{"addr", 0xE0}, {"rx", 0x10},
		// repeated start without a stop in between
		{"addr", 0xE1}, {"tx", 0}, {"tx", 0}, {"tx", 0},
		{"stop", 0},
	}, tgt.events)
}

func TestMaster_ByteLevel(t *testing.T) {
	tgt := &targetRecorder{}
	m := NewMaster(tgt)
	_, err := m.ReadByte(true)
	assert.ErrorIs(t, err, ErrNoStart)
	assert.ErrorIs(t, m.WriteByte(0xE1), ErrNoStart)

	require.NoError(t, m.Start())
	require.NoError(t, m.WriteByte(0xE1))
	_, err = m.ReadByte(false)
	require.NoError(t, err)
	// reading on after refusing a byte tells the target so
	_, err = m.ReadByte(false)
	require.NoError(t, err)
	require.NoError(t, m.Stop())
	assert.Equal(t, []event{{"addr", 0xE1}, {"tx", 0}, {"tx", 1}, {"stop", 0}}, tgt.events)
}

func TestMaster_Canceled(t *testing.T) {
	tgt := &targetRecorder{}
	m := NewMaster(tgt)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.WriteToAddr(ctx, 0x70, []byte{1}), context.Canceled)
	assert.Empty(t, tgt.events)
}

func TestMaster_Abort(t *testing.T) {
	tgt := &targetRecorder{}
	m := NewMaster(tgt)
	require.NoError(t, m.Start())
	require.NoError(t, m.WriteByte(0xE0))
	m.Abort()
	assert.ErrorIs(t, m.WriteByte(0x00), ErrNoStart)
	assert.Equal(t, []event{{"addr", 0xE0}, {"error", 0}}, tgt.events)
}
