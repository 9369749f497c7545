package eeprom

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/i2cemu/slave"
	"github.com/mklimuk/i2cemu/store"
)

// write drives a complete write transaction and returns the acknowledge of
// every byte after the address byte.
func write(t *testing.T, d *Device, data ...byte) []slave.Ack {
	t.Helper()
	buf, ack := d.Handle(slave.WriteStart, 0)
	require.Equal(t, slave.ACK, ack)
	var acks []slave.Ack
	used := 0
	for _, b := range data {
		if used >= len(buf) {
			acks = append(acks, slave.NACK)
			continue
		}
		buf[used] = b
		used++
		ack := slave.ACK
		if used == len(buf) {
			buf, ack = d.Handle(slave.WriteBufferFull, used)
			used = 0
		}
		acks = append(acks, ack)
	}
	d.Handle(slave.WriteStop, used)
	return acks
}

func writeByte(t *testing.T, d *Device, addr uint16, data byte) slave.Ack {
	t.Helper()
	acks := write(t, d, byte(addr>>8), byte(addr), data)
	return acks[2]
}

func armEnable(t *testing.T, d *Device, addr uint16, data byte) {
	t.Helper()
	require.Equal(t, slave.ACK, writeByte(t, d, EnableAddrHi, byte(addr>>8)))
	require.Equal(t, slave.ACK, writeByte(t, d, EnableAddrLo, byte(addr)))
	require.Equal(t, slave.ACK, writeByte(t, d, EnableData, data))
}

func read(t *testing.T, d *Device, addr uint16, n int) []byte {
	t.Helper()
	write(t, d, byte(addr>>8), byte(addr))
	buf, ack := d.Handle(slave.ReadStart, 0)
	require.Equal(t, slave.ACK, ack)
	var res []byte
	used := 0
	for len(res) < n {
		if used == len(buf) {
			buf, _ = d.Handle(slave.ReadBufferEmpty, used)
			used = 0
			require.NotEmpty(t, buf)
		}
		res = append(res, buf[used])
		used++
	}
	d.Handle(slave.ReadStop, used)
	return res
}

type watchdogStub struct {
	cfg  []byte
	regs [WatchdogSize]byte
}

func (w *watchdogStub) Configure(cfg byte) { w.cfg = append(w.cfg, cfg) }

func (w *watchdogStub) Registers() [WatchdogSize]byte { return w.regs }

func TestEEPROM_HandshakeWrite(t *testing.T) {
	mem := store.NewMem(PersistentSize)
	d := New(mem)

	armEnable(t, d, 0x0038, 0x12)
	assert.Equal(t, slave.ACK, writeByte(t, d, 0x0038, 0x12))
	assert.Equal(t, []byte{0x12}, read(t, d, 0x0038, 1))

	addr, data := d.Armed()
	assert.Zero(t, addr)
	assert.Zero(t, data)
}

func TestEEPROM_HandshakeRejected(t *testing.T) {
	tests := []struct {
		name      string
		arm       uint16
		armed     byte
		intervene uint16
		addr      uint16
		data      byte
	}{
		{"no handshake", 0, 0, 0, 0x0040, 0x01},
		{"other address", 0x0041, 0x01, 0, 0x0040, 0x01},
		{"other data", 0x0040, 0x02, 0, 0x0040, 0x01},
		{"unrelated write in between", 0x0040, 0x01, 0x0050, 0x0040, 0x01},
		{"read-only persistent", 0x0010, 0x01, 0, 0x0010, 0x01},
		{"event log", 0x0090, 0x01, 0, 0x0090, 0x01},
		{"program", 0x4000, 0x01, 0, 0x4000, 0x01},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mem := store.NewMem(PersistentSize)
			d := New(mem)
			if tc.arm != 0 {
				armEnable(t, d, tc.arm, tc.armed)
			}
			if tc.intervene != 0 {
				assert.Equal(t, slave.NACK, writeByte(t, d, tc.intervene, tc.data))
			}
			assert.Equal(t, slave.NACK, writeByte(t, d, tc.addr, tc.data))
			// rejection clears the handshake, so a retry is rejected too
			assert.Equal(t, slave.NACK, writeByte(t, d, tc.addr, tc.data))
			addr, data := d.Armed()
			assert.Zero(t, addr)
			assert.Zero(t, data)

			got := make([]byte, 1)
			_, err := mem.ReadAt(got, int64(tc.addr)&0xFF)
			require.NoError(t, err)
			assert.Equal(t, store.Erased, got[0])
		})
	}
}

func TestEEPROM_HandshakeSurvivesEnableWrites(t *testing.T) {
	mem := store.NewMem(PersistentSize)
	d := New(mem)
	armEnable(t, d, 0x0040, 0x5A)
	// rewriting an enable register and moving the cursor keep the arm
	require.Equal(t, slave.ACK, writeByte(t, d, EnableData, 0x5A))
	read(t, d, 0x0100, 1)
	addr, data := d.Armed()
	assert.Equal(t, uint16(0x0040), addr)
	assert.Equal(t, byte(0x5A), data)

	assert.Equal(t, slave.ACK, writeByte(t, d, 0x0040, 0x5A))
	got := make([]byte, 1)
	_, err := mem.ReadAt(got, 0x40)
	require.NoError(t, err)
	assert.Equal(t, byte(0x5A), got[0])
}

func TestEEPROM_HandshakeSingleUse(t *testing.T) {
	d := New(store.NewMem(PersistentSize))
	armEnable(t, d, 0x0050, 0xAA)
	assert.Equal(t, slave.ACK, writeByte(t, d, 0x0050, 0xAA))
	assert.Equal(t, slave.NACK, writeByte(t, d, 0x0050, 0xAA))
}

func TestEEPROM_ExtraBytesRefused(t *testing.T) {
	d := New(store.NewMem(PersistentSize))
	armEnable(t, d, 0x0060, 0x01)
	acks := write(t, d, 0x00, 0x60, 0x01, 0x02, 0x03)
	assert.Equal(t, []slave.Ack{slave.ACK, slave.ACK, slave.ACK, slave.NACK, slave.NACK}, acks)
	assert.Equal(t, []byte{0x01, store.Erased}, read(t, d, 0x0060, 2))
}

func TestEEPROM_EnableRegisters(t *testing.T) {
	d := New(store.NewMem(PersistentSize))
	armEnable(t, d, 0x1234, 0x56)
	assert.Equal(t, []byte{0x12, 0x34, 0x56, 0x00}, read(t, d, EnableStart, 4))
	assert.Equal(t, []byte{0x34, 0x56}, read(t, d, EnableAddrLo, 2))
}

func TestEEPROM_Watchdog(t *testing.T) {
	w := &watchdogStub{regs: [WatchdogSize]byte{0x21, 0xA0, 0x0F, 0x00, 0x00}}
	d := New(store.NewMem(PersistentSize), WithWatchdog(w))

	assert.Equal(t, slave.NACK, writeByte(t, d, WatchdogStart, 0x21))
	assert.Empty(t, w.cfg)

	armEnable(t, d, WatchdogStart, 0x21)
	assert.Equal(t, slave.ACK, writeByte(t, d, WatchdogStart, 0x21))
	assert.Equal(t, []byte{0x21}, w.cfg)

	assert.Equal(t, w.regs[:], read(t, d, WatchdogStart, WatchdogSize))
	assert.Equal(t, []byte{0xA0, 0x0F}, read(t, d, WatchdogStart+1, 2))
	// the other registers are read-only
	armEnable(t, d, WatchdogStart+1, 0x00)
	assert.Equal(t, slave.NACK, writeByte(t, d, WatchdogStart+1, 0x00))
}

func TestEEPROM_Regions(t *testing.T) {
	mem := store.NewMem(PersistentSize)
	_, err := mem.WriteAt([]byte{0xDE, 0xAD}, 0xFE)
	require.NoError(t, err)
	live := bytes.Repeat([]byte{0x5A}, LiveSize)
	program := make([]byte, ProgramSize)
	for i := range program {
		program[i] = byte(i)
	}
	fi := FirmwareInfo{Header: "i2cemu", Version: 0x0004, BaseAddress: 0x70}
	d := New(mem,
		WithInfo(fi),
		WithLiveMemory(bytes.NewReader(live)),
		WithProgram(bytes.NewReader(program)),
	)
	info := fi.Bytes()

	tests := []struct {
		name string
		addr uint16
		want []byte
	}{
		{"persistent into info", 0x00FE, append([]byte{0xDE, 0xAD}, info[:4]...)},
		{"info", 0x0100, info[:8]},
		{"info version", 0x0130, []byte{0x04, 0x00, 0x70}},
		{"info into reserved", 0x013E, []byte{0x00, 0x00, FillByte, FillByte}},
		{"reserved", 0x0200, bytes.Repeat([]byte{FillByte}, 20)},
		{"reserved into live", 0x0FFE, []byte{FillByte, FillByte, 0x5A, 0x5A}},
		{"live", 0x14F0, bytes.Repeat([]byte{0x5A}, 16)},
		{"live end", 0x14FF, []byte{0x5A, FillByte}},
		{"program", 0x4010, []byte{0x10, 0x11, 0x12}},
		{"program end", 0x7FFF, []byte{0xFF, 0x00, 0x00, 0x00}},
		{"top wraps to persistent", 0xFFFE, []byte{FillByte, FillByte, store.Erased}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, read(t, d, tc.addr, len(tc.want)))
		})
	}
}

func TestEEPROM_Cursor(t *testing.T) {
	d := New(store.NewMem(PersistentSize))
	write(t, d, 0x40, 0x00)
	assert.Equal(t, uint16(0x4000), d.Cursor())

	// a stop after one address byte keeps the cursor
	write(t, d, 0x12)
	assert.Equal(t, uint16(0x4000), d.Cursor())

	read(t, d, 0x4000, 20)
	assert.Equal(t, uint16(0x4014), d.Cursor())

	// sequential reads continue where the last one stopped
	buf, _ := d.Handle(slave.ReadStart, 0)
	require.NotEmpty(t, buf)
	d.Handle(slave.ReadStop, 3)
	assert.Equal(t, uint16(0x4017), d.Cursor())

	// a byte write moves the cursor to its address even when refused
	writeByte(t, d, 0x0070, 0x00)
	assert.Equal(t, uint16(0x0070), d.Cursor())
}

func TestEEPROM_ReadWindow(t *testing.T) {
	d := New(store.NewMem(PersistentSize))
	write(t, d, 0x00, 0x00)
	buf, _ := d.Handle(slave.ReadStart, 0)
	assert.Len(t, buf, ReadWindow)
	d.Handle(slave.ReadStop, 0)
}

func TestFirmwareInfo_Bytes(t *testing.T) {
	fi := FirmwareInfo{
		Header:      "Nuvoton_RunBMC",
		Date:        "Jan 28 2019",
		Time:        "18:43:01",
		Version:     0x0102,
		BaseAddress: 0x70,
		DebugPin:    3,
	}
	b := fi.Bytes()
	assert.Equal(t, "Nuvoton_RunBMC", string(bytes.TrimRight(b[0x00:0x10], "\x00")))
	assert.Equal(t, "Jan 28 2019", string(bytes.TrimRight(b[0x10:0x20], "\x00")))
	assert.Equal(t, "18:43:01", string(bytes.TrimRight(b[0x20:0x30], "\x00")))
	assert.Equal(t, []byte{0x02, 0x01, 0x70, 0x03}, b[0x30:0x34])
}
