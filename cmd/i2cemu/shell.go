package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/i2cemu/adc"
	"github.com/mklimuk/i2cemu/client"
	"github.com/mklimuk/i2cemu/emulator"
	"github.com/mklimuk/i2cemu/gpi"
	"github.com/mklimuk/i2cemu/hw"
	"github.com/mklimuk/i2cemu/slave"
)

var errQuit = errors.New("quit")

const shellHelp = `commands:
  eeprom read ADDR [N]      eeprom write ADDR BYTE
  eeprom watchdog CFG       eeprom info
  adc read MUX [diff]       adc set CHANNEL VALUE
  gpi read                  gpi mask MASK         gpi set VALUE
  sram read ADDR [N]        sram write ADDR HEX
  reset [update]            events
  status                    help                  quit
numbers take 0x, 0b and 0 prefixes`

// shell drives an emulator from text commands through its loopback master,
// as a host on the bus would.
type shell struct {
	emu     *emulator.Emulator
	virtual *hw.Virtual
	out     io.Writer
	dev     client.Devices
}

func newShell(emu *emulator.Emulator, virtual *hw.Virtual, out io.Writer) *shell {
	return &shell{
		emu:     emu,
		virtual: virtual,
		out:     out,
		dev:     emu.Clients(),
	}
}

// exec runs one command line. It returns errQuit when the shell should end.
func (s *shell) exec(ctx context.Context, line string) error {
	args := strings.Fields(line)
	if len(args) == 0 || strings.HasPrefix(args[0], "#") {
		return nil
	}
	switch args[0] {
	case "quit", "exit":
		return errQuit
	case "help":
		s.printf("%s\n", shellHelp)
		return nil
	case "status":
		return s.status()
	case "events":
		return s.events()
	case "reset":
		return s.reset(ctx, args[1:])
	case "eeprom":
		if s.dev.EEPROM == nil {
			return client.Absent("eeprom")
		}
		return s.eepromCmd(ctx, args[1:])
	case "adc":
		if s.dev.ADC == nil {
			return client.Absent("adc")
		}
		return s.adcCmd(ctx, args[1:])
	case "gpi":
		if s.dev.GPI == nil {
			return client.Absent("gpi")
		}
		return s.gpiCmd(ctx, args[1:])
	case "sram":
		if s.dev.SRAM == nil {
			return client.Absent("sram")
		}
		return s.sramCmd(ctx, args[1:])
	}
	return fmt.Errorf("unknown command %q, try help", args[0])
}

func (s *shell) eepromCmd(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("eeprom: missing subcommand")
	}
	switch args[0] {
	case "read":
		addr, n, err := addrCount(args[1:], 0xFFFF)
		if err != nil {
			return err
		}
		data, err := s.dev.EEPROM.Read(ctx, uint16(addr), n)
		if err != nil {
			return err
		}
		s.dump(addr, data)
	case "write":
		if len(args) != 3 {
			return errors.New("usage: eeprom write ADDR BYTE")
		}
		addr, err := parseNum(args[1], 0xFFFF)
		if err != nil {
			return err
		}
		v, err := parseNum(args[2], 0xFF)
		if err != nil {
			return err
		}
		return s.dev.EEPROM.Write(ctx, uint16(addr), byte(v))
	case "watchdog":
		if len(args) != 2 {
			return errors.New("usage: eeprom watchdog CFG")
		}
		v, err := parseNum(args[1], 0xFF)
		if err != nil {
			return err
		}
		return s.dev.EEPROM.ConfigureWatchdog(ctx, byte(v))
	case "info":
		info, err := s.dev.EEPROM.Info(ctx)
		if err != nil {
			return err
		}
		s.dump(0x100, info)
	default:
		return fmt.Errorf("eeprom: unknown subcommand %q", args[0])
	}
	return nil
}

func (s *shell) adcCmd(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("adc: missing subcommand")
	}
	switch args[0] {
	case "read":
		if len(args) < 2 {
			return errors.New("usage: adc read MUX [diff]")
		}
		mux, err := parseNum(args[1], 7)
		if err != nil {
			return err
		}
		cfg := adc.Config{Mux: uint8(mux), SingleEnded: true, Reference: adc.RefExternal}
		if len(args) > 2 && args[2] == "diff" {
			cfg.SingleEnded = false
		}
		v, err := s.dev.ADC.Convert(ctx, cfg)
		if err != nil {
			return err
		}
		s.printf("%#02x (%d)\n", v, v)
	case "set":
		if s.virtual == nil {
			return errors.New("analog inputs are only settable on the virtual board")
		}
		if len(args) != 3 {
			return errors.New("usage: adc set CHANNEL VALUE")
		}
		ch, err := parseNum(args[1], 9)
		if err != nil {
			return err
		}
		v, err := parseNum(args[2], 0xFF)
		if err != nil {
			return err
		}
		s.virtual.SetAnalog(uint8(ch), uint8(v))
	default:
		return fmt.Errorf("adc: unknown subcommand %q", args[0])
	}
	return nil
}

func (s *shell) gpiCmd(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("gpi: missing subcommand")
	}
	switch args[0] {
	case "read":
		cur, trans, err := s.dev.GPI.Read(ctx)
		if err != nil {
			return err
		}
		s.printf("inputs %08b transitions %08b\n", cur, trans)
	case "mask":
		if len(args) != 2 {
			return errors.New("usage: gpi mask MASK")
		}
		v, err := parseNum(args[1], 0xFF)
		if err != nil {
			return err
		}
		return s.dev.GPI.SetMask(ctx, byte(v))
	case "set":
		if s.virtual == nil {
			return errors.New("inputs are only settable on the virtual board")
		}
		if len(args) != 2 {
			return errors.New("usage: gpi set VALUE")
		}
		v, err := parseNum(args[1], 0xFF)
		if err != nil {
			return err
		}
		s.virtual.SetInputs(uint8(v))
	default:
		return fmt.Errorf("gpi: unknown subcommand %q", args[0])
	}
	return nil
}

func (s *shell) sramCmd(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("sram: missing subcommand")
	}
	switch args[0] {
	case "read":
		addr, n, err := addrCount(args[1:], 0x1FF)
		if err != nil {
			return err
		}
		data, err := s.dev.SRAM.Read(ctx, uint16(addr), n)
		if err != nil {
			return err
		}
		s.dump(addr, data)
	case "write":
		if len(args) != 3 {
			return errors.New("usage: sram write ADDR HEX")
		}
		addr, err := parseNum(args[1], 0x1FF)
		if err != nil {
			return err
		}
		data, err := hex.DecodeString(args[2])
		if err != nil {
			return fmt.Errorf("could not decode data: %w", err)
		}
		return s.dev.SRAM.Write(ctx, uint16(addr), data)
	default:
		return fmt.Errorf("sram: unknown subcommand %q", args[0])
	}
	return nil
}

func (s *shell) reset(ctx context.Context, args []string) error {
	update := len(args) > 0 && args[0] == "update"
	if s.virtual != nil {
		s.virtual.SetUpdate(update)
		defer s.virtual.SetUpdate(false)
	}
	cause, err := s.emu.HostReset(ctx)
	if err != nil {
		return err
	}
	s.printf("host reset: %s\n", cause)
	return nil
}

func (s *shell) events() error {
	sup := s.emu.Supervisor()
	if sup == nil {
		return errors.New("host supervisor disabled")
	}
	recs, err := sup.Events().Records()
	if err != nil {
		return err
	}
	for i, r := range recs {
		s.printf("%2d  %-40s log %d\n", i, r.Events, r.Log)
	}
	stamp, elapsed := sup.Events().Stamp()
	s.printf("now log %d (%s since last record)\n", stamp, elapsed)
	return nil
}

type statusReport struct {
	Engine slave.Status     `yaml:"engine"`
	GPI    gpi.State        `yaml:"gpi"`
	ADC    adc.Config       `yaml:"adc"`
	SRAM   uint16           `yaml:"sram_cursor"`
	EEPROM uint16           `yaml:"eeprom_cursor"`
	Board  *hw.VirtualState `yaml:"board,omitempty"`
}

func (s *shell) status() error {
	rep := statusReport{
		Engine: s.emu.Engine().Status(),
		GPI:    s.emu.GPI().State(),
		ADC:    s.emu.ADC().Config(),
		SRAM:   s.emu.SRAM().Cursor(),
		EEPROM: s.emu.EEPROM().Cursor(),
	}
	if s.virtual != nil {
		st := s.virtual.State()
		rep.Board = &st
	}
	enc := yaml.NewEncoder(s.out)
	defer func() { _ = enc.Close() }()
	return enc.Encode(rep)
}

func (s *shell) dump(base int, data []byte) {
	for i := 0; i < len(data); i += 16 {
		s.printf("%04x  % x\n", base+i, data[i:min(i+16, len(data))])
	}
}

func (s *shell) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}

func addrCount(args []string, maxAddr int) (int, int, error) {
	if len(args) == 0 {
		return 0, 0, errors.New("missing address")
	}
	addr, err := parseNum(args[0], maxAddr)
	if err != nil {
		return 0, 0, err
	}
	n := 16
	if len(args) > 1 {
		if n, err = parseNum(args[1], 256); err != nil {
			return 0, 0, err
		}
	}
	if n == 0 {
		return 0, 0, errors.New("count must be positive")
	}
	return addr, n, nil
}

func parseNum(s string, limit int) (int, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if int(v) > limit {
		return 0, fmt.Errorf("%s out of range (max %#x)", s, limit)
	}
	return int(v), nil
}
