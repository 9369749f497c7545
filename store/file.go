package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mklimuk/i2cemu"
)

var _ i2cemu.PersistentStore = &File{}

// File keeps the store image in memory and writes every change through to
// a file, so the emulated EEPROM survives restarts.
type File struct {
	mx    sync.Mutex
	f     *os.File
	cache []byte
}

// OpenFile opens the image at path, creating an erased image of size bytes
// when it does not exist. An existing image shorter than size is padded.
func OpenFile(path string, size int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not open store image: %w", err)
	}
	s := &File{f: f, cache: make([]byte, size)}
	erase(s.cache)
	n, err := f.ReadAt(s.cache, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		_ = f.Close()
		return nil, fmt.Errorf("could not read store image: %w", err)
	}
	if n < size {
		// image is new or short; persist the erased tail
		if _, err := f.WriteAt(s.cache[n:], int64(n)); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("could not initialize store image: %w", err)
		}
	}
	return s, nil
}

func (s *File) ReadAt(p []byte, off int64) (int, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := checkRange(off, len(p), len(s.cache)); err != nil {
		return 0, err
	}
	return copy(p, s.cache[off:]), nil
}

func (s *File) WriteAt(p []byte, off int64) (int, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := checkRange(off, len(p), len(s.cache)); err != nil {
		return 0, err
	}
	n, err := s.f.WriteAt(p, off)
	if err != nil {
		return n, fmt.Errorf("could not write store image: %w", err)
	}
	copy(s.cache[off:], p)
	return n, nil
}

func (s *File) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.f.Close()
}
