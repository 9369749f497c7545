package slave

// Device is the contract every emulated chip implements.
//
// Handle is called from the engine context for each phase of a transaction.
// used is the number of bytes moved through the previously granted buffer
// (zero on start phases). On start and buffer boundary phases the returned
// slice is the new buffer grant and its length the capacity; an empty slice
// refuses further bytes (writes are NACKed, reads return the fill byte). The
// slice is borrowed by the engine only until the next Handle call. The
// returned Ack is used on start phases and on WriteBufferFull and ignored
// otherwise.
type Device interface {
	Handle(phase Phase, used int) ([]byte, Ack)
}

// DeviceFunc adapts an ordinary function to the Device interface.
type DeviceFunc func(phase Phase, used int) ([]byte, Ack)

func (f DeviceFunc) Handle(phase Phase, used int) ([]byte, Ack) {
	return f(phase, used)
}
