package slave

import "sync"

// MockPeripheral counts disable/enable cycles without touching hardware.
type MockPeripheral struct {
	mx       sync.Mutex
	disables int
	enables  int
	enabled  bool
}

func NewMockPeripheral() *MockPeripheral {
	return &MockPeripheral{}
}

func (m *MockPeripheral) Disable() {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.disables++
	m.enabled = false
}

func (m *MockPeripheral) Enable() {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.enables++
	m.enabled = true
}

// Cycles returns how many disable/enable cycles completed.
func (m *MockPeripheral) Cycles() int {
	m.mx.Lock()
	defer m.mx.Unlock()
	return min(m.disables, m.enables)
}

func (m *MockPeripheral) Enabled() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.enabled
}
