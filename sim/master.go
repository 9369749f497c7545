package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mklimuk/i2cemu"
	"github.com/mklimuk/i2cemu/slave"
)

var (
	_ i2cemu.I2CBus      = &Master{}
	_ i2cemu.WriteReader = &Master{}
)

// ErrNoStart is returned for a byte sent outside a transaction.
var ErrNoStart = errors.New("no start condition")

// Target receives the bus events a slave peripheral would raise.
type Target interface {
	AddressMatch(wire byte) slave.Ack
	Receive(b byte) slave.Ack
	Transmit(masterNacked bool) byte
	Stop()
	BusError()
}

// Master drives a Target byte by byte. Transactions are serialized; the
// byte level methods are meant for a single caller composing its own
// transaction.
type Master struct {
	mx     sync.Mutex
	target Target

	started   bool
	addressed bool
	nacked    bool
}

func NewMaster(target Target) *Master {
	return &Master{target: target}
}

// Start issues a start, or a repeated start inside a transaction.
func (m *Master) Start() error {
	m.started = true
	m.addressed = false
	m.nacked = false
	return nil
}

// Stop issues a stop condition.
func (m *Master) Stop() error {
	m.target.Stop()
	m.started = false
	m.addressed = false
	return nil
}

// WriteByte sends the address byte right after a start, a data byte
// otherwise. A refused byte returns ErrNack.
func (m *Master) WriteByte(b byte) error {
	if !m.started {
		return ErrNoStart
	}
	var ack slave.Ack
	if !m.addressed {
		ack = m.target.AddressMatch(b)
		m.addressed = true
	} else {
		ack = m.target.Receive(b)
	}
	if ack == slave.NACK {
		return i2cemu.ErrNack
	}
	return nil
}

// ReadByte clocks in one byte and acknowledges it when ack is set.
func (m *Master) ReadByte(ack bool) (byte, error) {
	if !m.started || !m.addressed {
		return 0, ErrNoStart
	}
	b := m.target.Transmit(m.nacked)
	m.nacked = !ack
	return b, nil
}

// Abort raises a bus error and leaves the transaction.
func (m *Master) Abort() {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.target.BusError()
	m.started = false
	m.addressed = false
}

func (m *Master) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	return m.transaction(ctx, func() error {
		return m.read(address, buffer)
	})
}

func (m *Master) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	return m.transaction(ctx, func() error {
		return m.write(address, buffer)
	})
}

// WriteReadAddr writes w, then reads r after a repeated start.
func (m *Master) WriteReadAddr(ctx context.Context, address byte, w []byte, r []byte) error {
	return m.transaction(ctx, func() error {
		if err := m.write(address, w); err != nil {
			return err
		}
		return m.read(address, r)
	})
}

func (m *Master) Release(ctx context.Context) error {
	return nil
}

func (m *Master) transaction(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	err := fn()
	_ = m.Stop()
	return err
}

func (m *Master) write(address byte, buffer []byte) error {
	_ = m.Start()
	if err := m.WriteByte(address << 1); err != nil {
		return fmt.Errorf("address %#x not acknowledged: %w", address, err)
	}
	for i, b := range buffer {
		if err := m.WriteByte(b); err != nil {
			return fmt.Errorf("byte %d to %#x not acknowledged: %w", i, address, err)
		}
	}
	return nil
}

func (m *Master) read(address byte, buffer []byte) error {
	_ = m.Start()
	if err := m.WriteByte(address<<1 | 1); err != nil {
		return fmt.Errorf("address %#x not acknowledged: %w", address, err)
	}
	for i := range buffer {
		b, err := m.ReadByte(i < len(buffer)-1)
		if err != nil {
			return err
		}
		buffer[i] = b
	}
	return nil
}
