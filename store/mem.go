package store

import (
	"sync"

	"github.com/mklimuk/i2cemu"
)

var _ i2cemu.PersistentStore = &Mem{}

// Mem is a volatile store; it starts erased.
type Mem struct {
	mx   sync.Mutex
	data []byte
}

func NewMem(size int) *Mem {
	m := &Mem{data: make([]byte, size)}
	erase(m.data)
	return m
}

func (m *Mem) ReadAt(p []byte, off int64) (int, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if err := checkRange(off, len(p), len(m.data)); err != nil {
		return 0, err
	}
	return copy(p, m.data[off:]), nil
}

func (m *Mem) WriteAt(p []byte, off int64) (int, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if err := checkRange(off, len(p), len(m.data)); err != nil {
		return 0, err
	}
	return copy(m.data[off:], p), nil
}

func (m *Mem) Size() int {
	return len(m.data)
}
