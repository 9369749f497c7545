package eeprom

import "encoding/binary"

// Address map of the emulated 64KiB EEPROM. Unmapped addresses read as
// FillByte.
const (
	PersistentStart = 0x0000
	PersistentSize  = 0x0100
	// bytes below WritableStart are factory data
	WritableStart = 0x0038
	WritableEnd   = 0x007F

	InfoStart = 0x0100
	InfoSize  = 0x40

	LiveStart = 0x1000
	LiveSize  = 0x0500

	WatchdogStart = 0x3000
	WatchdogSize  = 5

	ProgramStart = 0x4000
	ProgramSize  = 0x4000

	EnableStart = 0x8000
	EnableSize  = 4

	// write-enable registers
	EnableAddrHi = 0x8000
	EnableAddrLo = 0x8001
	EnableData   = 0x8002

	FillByte byte = 0xEE
	// ReadWindow is the longest read grant.
	ReadWindow = 16
	addressEnd = 0x10000
)

// FirmwareInfo is the identification block readable at InfoStart.
type FirmwareInfo struct {
	Header      string `yaml:"header"`
	Date        string `yaml:"date"`
	Time        string `yaml:"time"`
	Version     uint16 `yaml:"version"`
	BaseAddress byte   `yaml:"base_address"`
	DebugPin    byte   `yaml:"debug_pin"`
}

// Bytes lays the block out as 16 byte header, date and time strings (NUL
// padded), the version little-endian, the bus base address and the debug
// pin. The rest is zero.
func (fi FirmwareInfo) Bytes() [InfoSize]byte {
	var b [InfoSize]byte
	copy(b[0x00:0x0F], fi.Header)
	copy(b[0x10:0x1F], fi.Date)
	copy(b[0x20:0x2F], fi.Time)
	binary.LittleEndian.PutUint16(b[0x30:], fi.Version)
	b[0x32] = fi.BaseAddress
	b[0x33] = fi.DebugPin
	return b
}

type regionKind uint8

const (
	persistent regionKind = iota
	info
	live
	watchdog
	program
	enable
)

func (k regionKind) String() string {
	switch k {
	case persistent:
		return "persistent"
	case info:
		return "info"
	case live:
		return "live"
	case watchdog:
		return "watchdog"
	case program:
		return "program"
	case enable:
		return "write-enable"
	}
	return "reserved"
}

type region struct {
	start int
	size  int
	kind  regionKind
}

func (r region) end() int {
	return r.start + r.size
}

func (r region) contains(addr int) bool {
	return addr >= r.start && addr < r.end()
}

// regions is sorted by start address.
var regions = []region{
	{PersistentStart, PersistentSize, persistent},
	{InfoStart, InfoSize, info},
	{LiveStart, LiveSize, live},
	{WatchdogStart, WatchdogSize, watchdog},
	{ProgramStart, ProgramSize, program},
	{EnableStart, EnableSize, enable},
}

// resolve returns the region holding addr, or ok=false and the start of the
// next region when addr is unmapped.
func resolve(addr int) (r region, ok bool, next int) {
	for _, r := range regions {
		if r.contains(addr) {
			return r, true, r.end()
		}
		if r.start > addr {
			return region{}, false, r.start
		}
	}
	return region{}, false, addressEnd
}
