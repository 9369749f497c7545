package adc

import "sync"

var _ Sampler = &MockSampler{}

// MockSampler answers conversions from a per-channel value table or from
// SampleBehavior when set.
type MockSampler struct {
	mx             sync.Mutex
	Values         map[uint8]uint8
	SampleBehavior func(channel uint8, ref Reference) (uint8, error)
	Calls          []uint8
}

func NewMockSampler(values map[uint8]uint8) *MockSampler {
	if values == nil {
		values = map[uint8]uint8{}
	}
	return &MockSampler{Values: values}
}

func (m *MockSampler) Sample(channel uint8, ref Reference) (uint8, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.Calls = append(m.Calls, channel)
	if m.SampleBehavior != nil {
		return m.SampleBehavior(channel, ref)
	}
	return m.Values[channel], nil
}

// Set changes the value of a channel.
func (m *MockSampler) Set(channel, value uint8) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.Values[channel] = value
}
