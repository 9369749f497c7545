// Package script runs Lua scripts against an I2C bus. Scripts see a raw
// "i2c" table and one table per emulated device:
//
//	i2c.write(addr, {bytes})        i2c.read(addr, n) -> {bytes}
//	i2c.transfer(addr, {bytes}, n)  -> {bytes}
//	eeprom.read(addr, n)            eeprom.write(addr, byte)
//	eeprom.watchdog(cfg)            eeprom.info() -> {bytes}
//	adc.convert(mux, single, ref)   adc.read()
//	gpi.read() -> current, trans    gpi.mask(mask)
//	sram.write(addr, {bytes})       sram.read(addr, n) -> {bytes}
//	sleep(ms)                       log(...)
//
// Bus failures raise Lua errors.
package script

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/mklimuk/i2cemu"
	"github.com/mklimuk/i2cemu/client"
)

// Runner executes scripts. A Runner is not safe for concurrent use.
type Runner struct {
	bus   i2cemu.I2CBus
	log   *slog.Logger
	out   io.Writer
	base  byte
	slots client.Slots
	sleep func(ctx context.Context, d time.Duration) error
	dev   client.Devices
}

type Opt func(*Runner)

func WithLogger(logger *slog.Logger) Opt {
	return func(r *Runner) {
		r.log = logger
	}
}

// WithOutput redirects print.
func WithOutput(w io.Writer) Opt {
	return func(r *Runner) {
		r.out = w
	}
}

// WithBaseAddress sets the emulator base address the slots count from.
func WithBaseAddress(address byte) Opt {
	return func(r *Runner) {
		r.base = address
	}
}

// WithSlots sets the device layout. Scripts calling an absent device fail.
func WithSlots(slots client.Slots) Opt {
	return func(r *Runner) {
		r.slots = slots
	}
}

// WithSleep replaces the real time sleep, e.g. to advance a simulated clock.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Opt {
	return func(r *Runner) {
		r.sleep = sleep
	}
}

func New(bus i2cemu.I2CBus, opts ...Opt) *Runner {
	r := &Runner{
		bus:   bus,
		log:   slog.Default(),
		out:   os.Stdout,
		base:  client.EEPROMDefaultAddress,
		slots: client.DefaultSlots,
		sleep: sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.dev = client.NewDevices(bus, r.base, r.slots)
	return r
}

// Run executes source; name is used in error messages.
func (r *Runner) Run(ctx context.Context, name, source string) error {
	L := r.state(ctx)
	defer L.Close()
	fn, err := L.Load(strings.NewReader(source), name)
	if err != nil {
		return fmt.Errorf("could not load script %s: %w", name, err)
	}
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return fmt.Errorf("script %s failed: %w", name, err)
	}
	return nil
}

// RunFile executes the script at path.
func (r *Runner) RunFile(ctx context.Context, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read script: %w", err)
	}
	return r.Run(ctx, path, string(src))
}

func (r *Runner) state(ctx context.Context) *lua.LState {
	L := lua.NewState()
	L.SetContext(ctx)
	L.SetGlobal("print", L.NewFunction(r.print))
	L.SetGlobal("log", L.NewFunction(r.logf))
	L.SetGlobal("sleep", L.NewFunction(r.luaSleep))
	r.module(L, "i2c", true, map[string]lua.LGFunction{
		"write":    r.i2cWrite,
		"read":     r.i2cRead,
		"transfer": r.i2cTransfer,
	})
	r.module(L, "eeprom", r.dev.EEPROM != nil, map[string]lua.LGFunction{
		"read":     r.eepromRead,
		"write":    r.eepromWrite,
		"watchdog": r.eepromWatchdog,
		"info":     r.eepromInfo,
	})
	r.module(L, "adc", r.dev.ADC != nil, map[string]lua.LGFunction{
		"convert": r.adcConvert,
		"read":    r.adcRead,
	})
	r.module(L, "gpi", r.dev.GPI != nil, map[string]lua.LGFunction{
		"read": r.gpiRead,
		"mask": r.gpiMask,
	})
	r.module(L, "sram", r.dev.SRAM != nil, map[string]lua.LGFunction{
		"read":  r.sramRead,
		"write": r.sramWrite,
	})
	return L
}

// module installs funcs as a global table. The functions of an absent
// device raise an error instead.
func (r *Runner) module(L *lua.LState, name string, present bool, funcs map[string]lua.LGFunction) {
	if !present {
		for fn := range funcs {
			funcs[fn] = func(L *lua.LState) int {
				L.RaiseError("%v", client.Absent(name))
				return 0
			}
		}
	}
	L.SetGlobal(name, L.SetFuncs(L.NewTable(), funcs))
}

func (r *Runner) print(L *lua.LState) int {
	_, _ = fmt.Fprintln(r.out, joinArgs(L))
	return 0
}

func (r *Runner) logf(L *lua.LState) int {
	r.log.Info(joinArgs(L), "source", "script")
	return 0
}

func (r *Runner) luaSleep(L *lua.LState) int {
	ms := L.CheckInt(1)
	if err := r.sleep(L.Context(), time.Duration(ms)*time.Millisecond); err != nil {
		L.RaiseError("sleep: %v", err)
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func joinArgs(L *lua.LState) string {
	parts := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	return strings.Join(parts, "\t")
}
