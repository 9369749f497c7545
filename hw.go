package i2cemu

import "io"

// PersistentStore is the non-volatile byte store backing the emulated EEPROM
// and the event log. Offsets are absolute within the store.
type PersistentStore interface {
	io.ReaderAt
	io.WriterAt
}

// Peripheral is the hardware bus interface the slave engine sits on. A
// disable/enable cycle clears any state the peripheral is holding.
type Peripheral interface {
	Disable()
	Enable()
}
