package script

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/mklimuk/i2cemu"
	"github.com/mklimuk/i2cemu/adc"
)

func (r *Runner) i2cWrite(L *lua.LState) int {
	addr := checkByte(L, 1)
	data := checkBytes(L, 2)
	if err := r.bus.WriteToAddr(L.Context(), addr, data); err != nil {
		L.RaiseError("i2c write %#02x: %v", addr, err)
	}
	return 0
}

func (r *Runner) i2cRead(L *lua.LState) int {
	addr := checkByte(L, 1)
	buf := make([]byte, checkCount(L, 2))
	if err := r.bus.ReadFromAddr(L.Context(), addr, buf); err != nil {
		L.RaiseError("i2c read %#02x: %v", addr, err)
	}
	L.Push(toTable(L, buf))
	return 1
}

func (r *Runner) i2cTransfer(L *lua.LState) int {
	addr := checkByte(L, 1)
	w := checkBytes(L, 2)
	buf := make([]byte, checkCount(L, 3))
	var err error
	if wr, ok := r.bus.(i2cemu.WriteReader); ok {
		err = wr.WriteReadAddr(L.Context(), addr, w, buf)
	} else if err = r.bus.WriteToAddr(L.Context(), addr, w); err == nil {
		err = r.bus.ReadFromAddr(L.Context(), addr, buf)
	}
	if err != nil {
		L.RaiseError("i2c transfer %#02x: %v", addr, err)
	}
	L.Push(toTable(L, buf))
	return 1
}

func (r *Runner) eepromRead(L *lua.LState) int {
	addr := checkWord(L, 1)
	data, err := r.dev.EEPROM.Read(L.Context(), addr, checkCount(L, 2))
	if err != nil {
		L.RaiseError("%v", err)
	}
	L.Push(toTable(L, data))
	return 1
}

func (r *Runner) eepromWrite(L *lua.LState) int {
	if err := r.dev.EEPROM.Write(L.Context(), checkWord(L, 1), checkByte(L, 2)); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func (r *Runner) eepromWatchdog(L *lua.LState) int {
	if err := r.dev.EEPROM.ConfigureWatchdog(L.Context(), checkByte(L, 1)); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func (r *Runner) eepromInfo(L *lua.LState) int {
	info, err := r.dev.EEPROM.Info(L.Context())
	if err != nil {
		L.RaiseError("%v", err)
	}
	L.Push(toTable(L, info))
	return 1
}

func (r *Runner) adcConvert(L *lua.LState) int {
	mux := L.CheckInt(1)
	if mux < 0 || mux > 7 {
		L.ArgError(1, "mux must be within 0..7")
	}
	cfg := adc.Config{
		Mux:         uint8(mux),
		SingleEnded: L.OptBool(2, true),
		Reference:   adc.Reference(L.OptInt(3, int(adc.RefExternal))),
	}
	v, err := r.dev.ADC.Convert(L.Context(), cfg)
	if err != nil {
		L.RaiseError("%v", err)
	}
	L.Push(lua.LNumber(v))
	return 1
}

func (r *Runner) adcRead(L *lua.LState) int {
	v, err := r.dev.ADC.Read(L.Context())
	if err != nil {
		L.RaiseError("%v", err)
	}
	L.Push(lua.LNumber(v))
	return 1
}

func (r *Runner) gpiRead(L *lua.LState) int {
	current, trans, err := r.dev.GPI.Read(L.Context())
	if err != nil {
		L.RaiseError("%v", err)
	}
	L.Push(lua.LNumber(current))
	L.Push(lua.LNumber(trans))
	return 2
}

func (r *Runner) gpiMask(L *lua.LState) int {
	if err := r.dev.GPI.SetMask(L.Context(), checkByte(L, 1)); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func (r *Runner) sramWrite(L *lua.LState) int {
	if err := r.dev.SRAM.Write(L.Context(), checkWord(L, 1), checkBytes(L, 2)); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func (r *Runner) sramRead(L *lua.LState) int {
	data, err := r.dev.SRAM.Read(L.Context(), checkWord(L, 1), checkCount(L, 2))
	if err != nil {
		L.RaiseError("%v", err)
	}
	L.Push(toTable(L, data))
	return 1
}

func checkByte(L *lua.LState, n int) byte {
	v := L.CheckInt(n)
	if v < 0 || v > 0xFF {
		L.ArgError(n, "byte value out of range")
	}
	return byte(v)
}

func checkWord(L *lua.LState, n int) uint16 {
	v := L.CheckInt(n)
	if v < 0 || v > 0xFFFF {
		L.ArgError(n, "address out of range")
	}
	return uint16(v)
}

func checkCount(L *lua.LState, n int) int {
	v := L.CheckInt(n)
	if v < 1 || v > 1024 {
		L.ArgError(n, "count must be within 1..1024")
	}
	return v
}

// checkBytes accepts an array of byte values or a string.
func checkBytes(L *lua.LState, n int) []byte {
	switch v := L.CheckAny(n).(type) {
	case lua.LString:
		return []byte(v)
	case *lua.LTable:
		res := make([]byte, 0, v.Len())
		for i := 1; i <= v.Len(); i++ {
			num, ok := v.RawGetInt(i).(lua.LNumber)
			if !ok || num < 0 || num > 0xFF {
				L.ArgError(n, "table must hold byte values")
			}
			res = append(res, byte(num))
		}
		return res
	default:
		L.ArgError(n, "expected a table of bytes or a string")
	}
	return nil
}

func toTable(L *lua.LState, data []byte) *lua.LTable {
	t := L.CreateTable(len(data), 0)
	for _, b := range data {
		t.Append(lua.LNumber(b))
	}
	return t
}
