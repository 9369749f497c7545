package emulator

import (
	"io"

	"github.com/mklimuk/i2cemu/eeprom"
	"github.com/mklimuk/i2cemu/sram"
)

// Live memory layout, relative to eeprom.LiveStart. Everything not listed
// reads as zero.
const (
	LiveSRAM     = 0x000
	LiveGPI      = 0x200
	LiveADC      = 0x210
	LiveWatchdog = 0x220
	LiveEvents   = 0x230
)

// liveMemory renders device state for the EEPROM live window. It runs in
// the bus context with the engine locked, so it only reads device state
// and never calls back into the engine or the EEPROM.
type liveMemory struct {
	e *Emulator
}

func (m liveMemory) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= eeprom.LiveSize {
		return 0, io.EOF
	}
	img := m.snapshot()
	n := copy(p, img[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m liveMemory) snapshot() []byte {
	img := make([]byte, eeprom.LiveSize)
	m.e.sram.Peek(0, img[LiveSRAM:LiveSRAM+sram.Size])

	st := m.e.gpi.State()
	copy(img[LiveGPI:], []byte{st.Current, st.Transitions, st.Mask, flag(st.Enabled), flag(st.Asserted)})

	img[LiveADC] = m.e.adc.Config().Encode()

	if s := m.e.supervisor; s != nil {
		regs := s.Watchdog().Registers()
		copy(img[LiveWatchdog:], regs[:])
		stamp, _ := s.Events().Stamp()
		img[LiveEvents] = stamp
	}
	return img
}

func flag(b bool) byte {
	if b {
		return 1
	}
	return 0
}
