package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/i2cemu/eeprom"
)

var ErrInvalid = errors.New("invalid configuration")

// Storage backends for the persistent store.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageSPI    = "spi"
)

type Config struct {
	Bus        Bus        `yaml:"bus"`
	Slots      Slots      `yaml:"slots"`
	Tick       Tick       `yaml:"tick"`
	Storage    Storage    `yaml:"storage"`
	Info       Info       `yaml:"info"`
	ADC        ADC        `yaml:"adc"`
	GPI        GPI        `yaml:"gpi"`
	Pins       Pins       `yaml:"pins"`
	Program    string     `yaml:"program"`
	Supervisor Supervisor `yaml:"supervisor"`
}

type Bus struct {
	// BaseAddress is the 7-bit address of slot 0, aligned to 4.
	BaseAddress byte          `yaml:"base_address"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Slots assigns a slot to every device; -1 leaves a device out.
type Slots struct {
	EEPROM int `yaml:"eeprom"`
	ADC    int `yaml:"adc"`
	GPI    int `yaml:"gpi"`
	SRAM   int `yaml:"sram"`
}

type Tick struct {
	Inputs       time.Duration `yaml:"inputs"`
	Housekeeping time.Duration `yaml:"housekeeping"`
}

type Storage struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	SPIBus  int    `yaml:"spi_bus"`
	SPIChip int    `yaml:"spi_chip"`
	// SPIBase is where the image starts on the SPI EEPROM.
	SPIBase uint32 `yaml:"spi_base"`
}

type Info struct {
	Header   string `yaml:"header"`
	Version  uint16 `yaml:"version"`
	DebugPin byte   `yaml:"debug_pin"`
}

type ADC struct {
	// Channels maps sampler channels to input pin names.
	Channels map[uint8]string `yaml:"channels"`
	// Resolution is the bit width of the raw samples, scaled to 8 bits.
	Resolution int `yaml:"resolution"`
}

type GPI struct {
	Mask uint8 `yaml:"mask"`
}

// Pins names the GPIO lines used by the hardware backends.
type Pins struct {
	Inputs     []string `yaml:"inputs"`
	Interrupt  string   `yaml:"interrupt"`
	CoreReset  string   `yaml:"core_reset"`
	PowerReset string   `yaml:"power_reset"`
	FlashPower string   `yaml:"flash_power"`
	Update     string   `yaml:"update"`
	// ResetRequest is watched for host reset requests.
	ResetRequest string `yaml:"reset_request"`
	// Expander samples the inputs from an MCP23017 instead of GPIO pins.
	Expander *Expander `yaml:"expander,omitempty"`
}

// Expander is an MCP23017 on a host I2C bus whose port A carries the inputs.
type Expander struct {
	Bus     string `yaml:"bus"`
	Address uint8  `yaml:"address"`
	PullUps uint8  `yaml:"pull_ups"`
}

type Supervisor struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the stock layout: EEPROM, ADC, GPI and SRAM at 0x70..0x73.
func Default() Config {
	return Config{
		Bus: Bus{
			BaseAddress: 0x70,
			Timeout:     100 * time.Millisecond,
		},
		Slots: Slots{EEPROM: 0, ADC: 1, GPI: 2, SRAM: 3},
		Tick: Tick{
			Inputs:       time.Millisecond,
			Housekeeping: 10 * time.Millisecond,
		},
		Storage: Storage{Backend: StorageMemory},
		Info: Info{
			Header:  "i2cemu",
			Version: 0x0004,
		},
		ADC:        ADC{Resolution: 8},
		Supervisor: Supervisor{Enabled: true},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("could not read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Bus.BaseAddress > 0x7F || c.Bus.BaseAddress&0x03 != 0 {
		return fmt.Errorf("base address %#x is not a 7-bit address aligned to 4: %w", c.Bus.BaseAddress, ErrInvalid)
	}
	if c.Bus.Timeout <= 0 {
		return fmt.Errorf("bus timeout must be positive: %w", ErrInvalid)
	}
	seen := map[int]string{}
	for _, s := range []struct {
		name string
		slot int
	}{
		{"eeprom", c.Slots.EEPROM},
		{"adc", c.Slots.ADC},
		{"gpi", c.Slots.GPI},
		{"sram", c.Slots.SRAM},
	} {
		if s.slot < 0 {
			continue
		}
		if s.slot > 3 {
			return fmt.Errorf("%s slot %d out of range: %w", s.name, s.slot, ErrInvalid)
		}
		if other, ok := seen[s.slot]; ok {
			return fmt.Errorf("%s and %s share slot %d: %w", other, s.name, s.slot, ErrInvalid)
		}
		seen[s.slot] = s.name
	}
	if c.Tick.Inputs < time.Millisecond || c.Tick.Housekeeping < time.Millisecond {
		return fmt.Errorf("tick periods must be at least 1ms: %w", ErrInvalid)
	}
	switch c.Storage.Backend {
	case StorageMemory, StorageSPI:
	case StorageFile:
		if c.Storage.Path == "" {
			return fmt.Errorf("file storage needs a path: %w", ErrInvalid)
		}
	default:
		return fmt.Errorf("unknown storage backend %q: %w", c.Storage.Backend, ErrInvalid)
	}
	if c.ADC.Resolution < 8 || c.ADC.Resolution > 16 {
		return fmt.Errorf("adc resolution %d outside 8..16 bits: %w", c.ADC.Resolution, ErrInvalid)
	}
	if n := len(c.Pins.Inputs); n != 0 && n != 8 {
		return fmt.Errorf("gpi needs 8 input pins, got %d: %w", n, ErrInvalid)
	}
	if e := c.Pins.Expander; e != nil {
		if len(c.Pins.Inputs) > 0 {
			return fmt.Errorf("inputs come from either pins or an expander: %w", ErrInvalid)
		}
		if e.Address < 0x20 || e.Address > 0x27 {
			return fmt.Errorf("expander address %#02x outside 0x20..0x27: %w", e.Address, ErrInvalid)
		}
	}
	return nil
}

// FirmwareInfo is the identification block the EEPROM serves.
func (c Config) FirmwareInfo(date, clock string) eeprom.FirmwareInfo {
	return eeprom.FirmwareInfo{
		Header:      c.Info.Header,
		Date:        date,
		Time:        clock,
		Version:     c.Info.Version,
		BaseAddress: c.Bus.BaseAddress,
		DebugPin:    c.Info.DebugPin,
	}
}
