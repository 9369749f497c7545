package adc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/i2cemu/slave"
)

func command(t *testing.T, d *Device, cmd byte) {
	t.Helper()
	buf, ack := d.Handle(slave.WriteStart, 0)
	require.Equal(t, slave.ACK, ack)
	require.Len(t, buf, 1)
	buf[0] = cmd
	buf, ack = d.Handle(slave.WriteBufferFull, 1)
	assert.Equal(t, slave.ACK, ack)
	assert.Empty(t, buf)
	d.Handle(slave.WriteStop, 0)
}

func convert(t *testing.T, d *Device) byte {
	t.Helper()
	buf, ack := d.Handle(slave.ReadStart, 0)
	require.Equal(t, slave.ACK, ack)
	require.Len(t, buf, 1)
	v := buf[0]
	d.Handle(slave.ReadStop, 1)
	return v
}

func TestDecode(t *testing.T) {
	tests := []struct {
		cmd byte
		cfg Config
	}{
		{0x00, Config{Mux: 0, Reference: RefVCC}},
		{0x80, Config{Mux: 0, Reference: RefVCC, SingleEnded: true}},
		{0xB8, Config{Mux: 3, Reference: RefExternal, SingleEnded: true}},
		{0x70, Config{Mux: 7, Reference: RefVCC}},
		{0x4F, Config{Mux: 4, Reference: RefExternal}},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.cfg, Decode(tc.cmd), "cmd %#x", tc.cmd)
		assert.Equal(t, tc.cmd&0xF8, tc.cfg.Encode())
	}
}

func TestADC_ReadAfterWrite(t *testing.T) {
	s := NewMockSampler(map[uint8]uint8{0: 10, 1: 11, 2: 12, 3: 13, 4: 14, 5: 15, 8: 18, 9: 19})
	d := New(s)
	for mux := uint8(0); mux < 8; mux++ {
		command(t, d, 0x80|mux<<4|0x08)
		assert.Equal(t, Config{Mux: mux, Reference: RefExternal, SingleEnded: true}, d.Config())
		assert.Equal(t, channels[mux]+10, convert(t, d))
		// the configuration sticks until the next command
		assert.Equal(t, channels[mux]+10, convert(t, d))
	}
}

func TestADC_WriteNeverConverts(t *testing.T) {
	s := NewMockSampler(nil)
	d := New(s)
	command(t, d, 0x90)
	assert.Empty(t, s.Calls)
}

func TestADC_Differential(t *testing.T) {
	// one distinct level per sampler channel
	levels := map[uint8]uint8{0: 100, 2: 90, 4: 80, 8: 70, 1: 40, 3: 20, 5: 10, 9: 5}
	tests := []struct {
		mux   uint8
		calls []uint8
		exp   byte
	}{
		{0, []uint8{0, 1}, 60},   // 100 - 40
		{1, []uint8{2, 3}, 0xBA}, // 20 - 90
		{2, []uint8{4, 5}, 70},   // 80 - 10
		{3, []uint8{8, 9}, 0xBF}, // 5 - 70
		{4, []uint8{1, 0}, 0xC4}, // 40 - 100
		{5, []uint8{3, 2}, 70},   // 90 - 20
		{6, []uint8{5, 4}, 0xBA}, // 10 - 80
		{7, []uint8{9, 8}, 65},   // 70 - 5
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("mux %d", tc.mux), func(t *testing.T) {
			s := NewMockSampler(levels)
			d := New(s)
			command(t, d, tc.mux<<muxShift)
			assert.Equal(t, tc.exp, convert(t, d))
			assert.Equal(t, tc.calls, s.Calls)
		})
	}
}

func TestADC_DifferentialPairsNegate(t *testing.T) {
	s := NewMockSampler(map[uint8]uint8{0: 100, 2: 90, 4: 80, 8: 70, 1: 40, 3: 20, 5: 10, 9: 5})
	d := New(s)
	for mux := uint8(0); mux < 4; mux++ {
		command(t, d, mux<<muxShift)
		a := convert(t, d)
		command(t, d, (mux|pairBit)<<muxShift)
		b := convert(t, d)
		assert.Equal(t, byte(0), a+b, "mux %d and %d", mux, mux|pairBit)
		assert.NotEqual(t, a, b, "mux %d and %d", mux, mux|pairBit)
	}
}

func TestADC_Defaults(t *testing.T) {
	s := NewMockSampler(map[uint8]uint8{0: 5, 1: 3})
	var refs []Reference
	s.SampleBehavior = func(channel uint8, ref Reference) (uint8, error) {
		refs = append(refs, ref)
		return s.Values[channel], nil
	}
	d := New(s)
	assert.Equal(t, byte(2), convert(t, d))
	assert.Equal(t, []Reference{RefExternal, RefExternal}, refs)
}

func TestADC_SamplerError(t *testing.T) {
	s := NewMockSampler(nil)
	s.SampleBehavior = func(channel uint8, ref Reference) (uint8, error) {
		return 0, errors.New("adc busy")
	}
	d := New(s)
	assert.Equal(t, ErrorValue, convert(t, d))
}

func TestADC_EachReadConverts(t *testing.T) {
	n := uint8(0)
	s := NewMockSampler(nil)
	s.SampleBehavior = func(channel uint8, ref Reference) (uint8, error) {
		n++
		return n, nil
	}
	d := New(s, WithConfig(Config{SingleEnded: true}))
	buf, _ := d.Handle(slave.ReadStart, 0)
	assert.Equal(t, byte(1), buf[0])
	buf, _ = d.Handle(slave.ReadBufferEmpty, 1)
	assert.Equal(t, byte(2), buf[0])
	d.Handle(slave.ReadStop, 1)
}

func TestADC_ShortWriteKeepsConfig(t *testing.T) {
	d := New(NewMockSampler(nil), WithConfig(Config{Mux: 2, SingleEnded: true}))
	d.Handle(slave.WriteStart, 0)
	d.Handle(slave.WriteStop, 0)
	assert.Equal(t, Config{Mux: 2, SingleEnded: true}, d.Config())
}
