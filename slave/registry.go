package slave

import (
	"errors"
	"fmt"
)

// SlotCount is the number of devices one engine emulates. The slot is
// selected by the two low bits of the 7-bit bus address.
const SlotCount = 4

var (
	ErrSlotOutOfRange = fmt.Errorf("device slot out of range [0,%d)", SlotCount)
	ErrSlotTaken      = errors.New("device slot already registered")
	ErrRegistrySealed = errors.New("device registry is sealed")
)

// Registry maps device slots to their implementations. It is populated at
// startup and sealed when an engine takes it over; lookups never change
// afterwards.
type Registry struct {
	slots  [SlotCount]Device
	sealed bool
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register puts d into slot.
func (r *Registry) Register(slot int, d Device) error {
	if r.sealed {
		return ErrRegistrySealed
	}
	if slot < 0 || slot >= SlotCount {
		return fmt.Errorf("could not register slot %d: %w", slot, ErrSlotOutOfRange)
	}
	if d == nil {
		return fmt.Errorf("could not register slot %d: nil device", slot)
	}
	if r.slots[slot] != nil {
		return fmt.Errorf("could not register slot %d: %w", slot, ErrSlotTaken)
	}
	r.slots[slot] = d
	return nil
}

// Seal makes the registry read-only.
func (r *Registry) Seal() {
	r.sealed = true
}

func (r *Registry) Sealed() bool {
	return r.sealed
}

// Lookup returns the device in slot or nil if the slot is empty.
func (r *Registry) Lookup(slot int) Device {
	if slot < 0 || slot >= SlotCount {
		return nil
	}
	return r.slots[slot]
}
