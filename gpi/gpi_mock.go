package gpi

import "sync"

var (
	_ Pins          = &MockPins{}
	_ InterruptLine = &MockLine{}
)

// MockPins returns Value or the result of SampleBehavior when set.
type MockPins struct {
	mx             sync.Mutex
	Value          uint8
	SampleBehavior func() (uint8, error)
}

func (m *MockPins) Sample() (uint8, error) {
	m.mx.Lock()
	behavior, v := m.SampleBehavior, m.Value
	m.mx.Unlock()
	if behavior != nil {
		return behavior()
	}
	return v, nil
}

func (m *MockPins) Set(v uint8) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.Value = v
}

// MockLine records the level of the interrupt output.
type MockLine struct {
	mx       sync.Mutex
	asserted bool
	Edges    int
}

func (m *MockLine) Assert() error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if !m.asserted {
		m.Edges++
	}
	m.asserted = true
	return nil
}

func (m *MockLine) Release() error {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.asserted = false
	return nil
}

func (m *MockLine) Asserted() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.asserted
}
