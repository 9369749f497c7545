package store

import (
	"errors"
	"fmt"
)

// Erased is the value of a never-written EEPROM cell.
const Erased byte = 0xFF

var ErrOutOfRange = errors.New("access out of store range")

func checkRange(off int64, n int, size int) error {
	if off < 0 || off+int64(n) > int64(size) {
		return fmt.Errorf("offset %#x length %d (size %#x): %w", off, n, size, ErrOutOfRange)
	}
	return nil
}

func erase(buf []byte) {
	for i := range buf {
		buf[i] = Erased
	}
}
