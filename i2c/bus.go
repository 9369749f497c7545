package i2c

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/mklimuk/i2cemu"
)

var (
	_ i2cemu.I2CBus      = &GenericBus{}
	_ i2cemu.WriteReader = &GenericBus{}
)

// GenericBus is an I2C bus opened through the periph host drivers.
type GenericBus struct {
	mx  sync.Mutex
	bus i2c.BusCloser
}

// NewGenericBus opens dev, or the first bus found when dev is empty.
func NewGenericBus(dev string) (*GenericBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("periph driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	return &GenericBus{
		bus: bus,
	}, nil
}

func (b *GenericBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	return b.tx(address, nil, buffer, "could not read from i2c bus %x: %w")
}

func (b *GenericBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	return b.tx(address, buffer, nil, "could not write to i2c bus %x: %w")
}

// WriteReadAddr writes w and reads r in one transaction with a repeated
// start in between.
func (b *GenericBus) WriteReadAddr(ctx context.Context, address byte, w []byte, r []byte) error {
	return b.tx(address, w, r, "could not write-read i2c bus %x: %w")
}

func (b *GenericBus) tx(address byte, w, r []byte, format string) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if err := b.bus.Tx(uint16(address), w, r); err != nil {
		return fmt.Errorf(format, address, err)
	}
	return nil
}

func (b *GenericBus) Release(ctx context.Context) error {
	return nil
}

func (b *GenericBus) Close() error {
	return b.bus.Close()
}
