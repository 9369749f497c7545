package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, byte(0x70), cfg.Bus.BaseAddress)
	assert.Equal(t, 100*time.Millisecond, cfg.Bus.Timeout)
	assert.Equal(t, Slots{EEPROM: 0, ADC: 1, GPI: 2, SRAM: 3}, cfg.Slots)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emu.yaml")
	err := os.WriteFile(path, []byte(`
bus:
  base_address: 0x40
  timeout: 250ms
slots:
  eeprom: 3
  sram: 0
storage:
  backend: file
  path: /var/lib/i2cemu/eeprom.bin
pins:
  inputs: [GPIO5, GPIO6, GPIO12, GPIO13, GPIO16, GPIO19, GPIO20, GPIO21]
  interrupt: GPIO26
`), 0o644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, byte(0x40), cfg.Bus.BaseAddress)
	assert.Equal(t, 250*time.Millisecond, cfg.Bus.Timeout)
	assert.Equal(t, Slots{EEPROM: 3, ADC: 1, GPI: 2, SRAM: 0}, cfg.Slots)
	assert.Equal(t, StorageFile, cfg.Storage.Backend)
	assert.Len(t, cfg.Pins.Inputs, 8)
	// untouched sections keep their defaults
	assert.Equal(t, 10*time.Millisecond, cfg.Tick.Housekeeping)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"unaligned base", func(c *Config) { c.Bus.BaseAddress = 0x71 }},
		{"10-bit base", func(c *Config) { c.Bus.BaseAddress = 0x80 }},
		{"no timeout", func(c *Config) { c.Bus.Timeout = 0 }},
		{"shared slot", func(c *Config) { c.Slots.SRAM = 0 }},
		{"slot out of range", func(c *Config) { c.Slots.ADC = 4 }},
		{"sub-ms tick", func(c *Config) { c.Tick.Inputs = time.Microsecond }},
		{"file without path", func(c *Config) { c.Storage.Backend = StorageFile }},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "flash" }},
		{"adc resolution", func(c *Config) { c.ADC.Resolution = 24 }},
		{"input pins", func(c *Config) { c.Pins.Inputs = []string{"GPIO1"} }},
		{"expander address", func(c *Config) { c.Pins.Expander = &Expander{Address: 0x70} }},
		{"pins and expander", func(c *Config) {
			c.Pins.Inputs = []string{"1", "2", "3", "4", "5", "6", "7", "8"}
			c.Pins.Expander = &Expander{Address: 0x20}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}

	cfg := Default()
	cfg.Slots.ADC = -1
	cfg.Slots.SRAM = 1
	assert.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Pins.Expander = &Expander{Bus: "1", Address: 0x21}
	assert.NoError(t, cfg.Validate())
}
