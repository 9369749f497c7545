package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/i2cemu/client"
	"github.com/mklimuk/i2cemu/config"
)

func newTestShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()
	return newTestShellWith(t, config.Default())
}

func newTestShellWith(t *testing.T, cfg config.Config) (*shell, *bytes.Buffer) {
	t.Helper()
	r, err := newRig(hardwareVirtual, cfg)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	emu, err := newEmulator(cfg, r)
	require.NoError(t, err)
	out := &bytes.Buffer{}
	return newShell(emu, r.virtual, out), out
}

func TestShell_Commands(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{"eeprom", []string{"eeprom write 0x38 0x12", "eeprom read 0x38 2"}, "0038  12 ff\n"},
		{"adc", []string{"adc set 2 0x80", "adc read 1"}, "0x80 (128)\n"},
		{"sram", []string{"sram write 0x1fe a1b2c3", "sram read 0x1fe 3"}, "01fe  a1 b2 c3\n"},
		{"sram wrap", []string{"sram write 0x1ff 0102", "sram read 0 1"}, "0000  02\n"},
		{"comment", []string{"# nothing", ""}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sh, out := newTestShell(t)
			for _, line := range tc.lines {
				require.NoError(t, sh.exec(context.Background(), line))
			}
			assert.Equal(t, tc.want, out.String())
		})
	}
}

func TestShell_Slots(t *testing.T) {
	cfg := config.Default()
	cfg.Slots = config.Slots{EEPROM: 1, ADC: 0, GPI: 2, SRAM: -1}
	sh, out := newTestShellWith(t, cfg)
	ctx := context.Background()

	require.NoError(t, sh.exec(ctx, "adc set 2 0x80"))
	require.NoError(t, sh.exec(ctx, "adc read 1"))
	require.NoError(t, sh.exec(ctx, "eeprom write 0x38 0x12"))
	require.NoError(t, sh.exec(ctx, "eeprom read 0x38 1"))
	assert.Equal(t, "0x80 (128)\n0038  12\n", out.String())

	assert.ErrorIs(t, sh.exec(ctx, "sram read 0"), client.ErrAbsent)
}

func TestShell_GPI(t *testing.T) {
	sh, out := newTestShell(t)
	ctx := context.Background()
	require.NoError(t, sh.exec(ctx, "gpi set 0b101"))
	sh.emu.Advance(2 * time.Millisecond)
	require.NoError(t, sh.exec(ctx, "gpi read"))
	assert.Equal(t, "inputs 00000101 transitions 00000101\n", out.String())
}

func TestShell_Reset(t *testing.T) {
	sh, out := newTestShell(t)
	require.NoError(t, sh.exec(context.Background(), "reset update"))
	assert.Contains(t, out.String(), "host reset: bmc-enter-fup")
	assert.False(t, sh.virtual.State().Update)

	out.Reset()
	require.NoError(t, sh.exec(context.Background(), "events"))
	assert.Contains(t, out.String(), "power-on")
}

func TestShell_Errors(t *testing.T) {
	tests := []struct {
		line string
		msg  string
	}{
		{"frobnicate", "unknown command"},
		{"eeprom", "missing subcommand"},
		{"eeprom write 0x10 1", "NACK"},
		{"eeprom read 0x10000", "out of range"},
		{"adc read 8", "out of range"},
		{"sram write 0 zz", "could not decode"},
		{"gpi mask", "usage"},
	}
	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			sh, _ := newTestShell(t)
			err := sh.exec(context.Background(), tc.line)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestShell_Status(t *testing.T) {
	sh, out := newTestShell(t)
	require.NoError(t, sh.exec(context.Background(), "status"))
	assert.Contains(t, out.String(), "engine:")
	assert.Contains(t, out.String(), "board:")
}

func TestBatch(t *testing.T) {
	sh, out := newTestShell(t)
	in := strings.NewReader("sram write 0 ff\nbogus\nsram read 0 1\nquit\nsram read 0 1\n")
	err := batch(context.Background(), sh, in)
	assert.ErrorIs(t, err, errQuit)
	assert.Equal(t, 1, strings.Count(out.String(), "0000  ff"))
	assert.Contains(t, out.String(), "unknown command")
}

func TestParseNum(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"0x38", 0x38, true},
		{"0b101", 5, true},
		{"010", 8, true},
		{"255", 255, true},
		{"256", 0, false},
		{"-1", 0, false},
		{"x", 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			v, err := parseNum(tc.in, 0xFF)
			if !tc.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, v)
		})
	}
}
