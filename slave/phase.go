package slave

import "fmt"

// Direction of a bus transaction as seen from the master.
type Direction uint8

const (
	Write Direction = iota
	Read
)

func (d Direction) String() string {
	if d == Read {
		return "read"
	}
	return "write"
}

// Phase is one of the eight events a Device receives during a transaction.
type Phase uint8

const (
	// WriteStart opens a write transaction. The device must grant its staging
	// buffer, or grant nothing and NACK to refuse the transaction.
	WriteStart Phase = iota
	// WriteBufferFull fires when the granted buffer has been filled, before
	// the last byte is acknowledged. The returned Ack applies to that byte.
	WriteBufferFull
	// WriteStop closes a write on stop or repeated start.
	WriteStop
	// WriteError closes a write on a bus error; staged bytes are not trusted.
	WriteError
	// ReadStart opens a read transaction. The device may defer granting a
	// buffer until ReadBufferEmpty.
	ReadStart
	// ReadBufferEmpty fires when the granted buffer has been sent in full.
	ReadBufferEmpty
	// ReadStop closes a read on stop or repeated start.
	ReadStop
	// ReadError closes a read on a bus error.
	ReadError
)

var phaseNames = [...]string{
	WriteStart:      "write-start",
	WriteBufferFull: "write-buffer-full",
	WriteStop:       "write-stop",
	WriteError:      "write-error",
	ReadStart:       "read-start",
	ReadBufferEmpty: "read-buffer-empty",
	ReadStop:        "read-stop",
	ReadError:       "read-error",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// Direction returns the transaction direction the phase belongs to.
func (p Phase) Direction() Direction {
	if p >= ReadStart {
		return Read
	}
	return Write
}

func startPhase(d Direction) Phase {
	if d == Read {
		return ReadStart
	}
	return WriteStart
}

func stopPhase(d Direction) Phase {
	if d == Read {
		return ReadStop
	}
	return WriteStop
}

func errorPhase(d Direction) Phase {
	if d == Read {
		return ReadError
	}
	return WriteError
}

// Ack is the acknowledge bit driven on the bus. Its numeric value matches
// the level of the acknowledge bit (0 acknowledges).
type Ack uint8

const (
	ACK Ack = iota
	NACK
)

func (a Ack) String() string {
	if a == NACK {
		return "NACK"
	}
	return "ACK"
}
