package i2cemu

import (
	"context"
	"errors"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

// ErrNack is returned by host-side transports when the addressed device
// refused the address or a data byte.
var ErrNack = errors.New("NACK received")

type BusReader interface {
	Read(ctx context.Context, buffer []byte) error
}

type BusWriter interface {
	Write(ctx context.Context, buffer []byte) error
}

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// WriteReader issues a write followed by a repeated start and a read, without
// a stop in between. Devices that latch an address on write (EEPROM, SRAM)
// are read this way.
type WriteReader interface {
	WriteReadAddr(ctx context.Context, address byte, w []byte, r []byte) error
}

type I2CBus interface {
	AddressableReader
	AddressableWriter
}

type I2CDevice interface {
	BusReader
	BusWriter
}
