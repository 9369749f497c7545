package supervisor

import (
	"fmt"
	"sync"
)

var _ Lines = &MockLines{}

// MockLines records every line change as a string such as "core=1".
type MockLines struct {
	mx                      sync.Mutex
	Trace                   []string
	Update                  bool
	UpdateRequestedBehavior func() (bool, error)
	FlashPowerBehavior      func(on bool) error
}

func (m *MockLines) record(line string, v bool) {
	m.mx.Lock()
	defer m.mx.Unlock()
	n := 0
	if v {
		n = 1
	}
	m.Trace = append(m.Trace, fmt.Sprintf("%s=%d", line, n))
}

func (m *MockLines) CoreReset(asserted bool) error {
	m.record("core", asserted)
	return nil
}

func (m *MockLines) PowerReset(asserted bool) error {
	m.record("power", asserted)
	return nil
}

func (m *MockLines) FlashPower(on bool) error {
	m.record("flash", on)
	if m.FlashPowerBehavior != nil {
		return m.FlashPowerBehavior(on)
	}
	return nil
}

func (m *MockLines) UpdateRequested() (bool, error) {
	if m.UpdateRequestedBehavior != nil {
		return m.UpdateRequestedBehavior()
	}
	return m.Update, nil
}

func (m *MockLines) Lines() []string {
	m.mx.Lock()
	defer m.mx.Unlock()
	return append([]string(nil), m.Trace...)
}
