// internal/fieldbus/master.go
package fieldbus

import "time"

// ALState is the application-layer state of the slave as reported by the bus.
type ALState uint8

const (
	StateNone   ALState = 0x00
	StateInit   ALState = 0x01
	StatePreOp  ALState = 0x02
	StateBoot   ALState = 0x03
	StateSafeOp ALState = 0x04
	StateOp     ALState = 0x08

	// StateErrorFlag is OR'ed into the state when the slave latched an AL error.
	StateErrorFlag ALState = 0x10
)

func (s ALState) String() string {
	var name string
	switch s &^ StateErrorFlag {
	case StateNone:
		name = "NONE"
	case StateInit:
		name = "INIT"
	case StatePreOp:
		name = "PRE-OP"
	case StateBoot:
		name = "BOOT"
	case StateSafeOp:
		name = "SAFE-OP"
	case StateOp:
		name = "OP"
	default:
		name = "UNKNOWN"
	}
	if s&StateErrorFlag != 0 {
		name += "+ERR"
	}
	return name
}

// Master abstracts the fieldbus transport capability the drive depends on.
// Object access is acyclic (mailbox); Exchange is the cyclic process-data
// round trip. The segment is expected to hold exactly one amplifier, so no
// call takes a slave position.
type Master interface {
	Open(ifname string) error
	Close() error

	// Slaves returns the number of devices discovered on the segment.
	Slaves() (int, error)

	ReadObject(index uint16, sub uint8, size int) ([]byte, error)
	WriteObject(index uint16, sub uint8, data []byte) error

	HasDistributedClock() bool
	ConfigureDistributedClock(period time.Duration) error

	// ConfigureProcessImage sizes the cyclic frame in bytes.
	ConfigureProcessImage(outSize, inSize int) error

	RequestState(s ALState) error
	State() (ALState, error)

	// Exchange sends out and fills in with one cyclic frame. It must return
	// within the transport's round-trip timeout.
	Exchange(out, in []byte) (wkc int, err error)
	ExpectedWKC() int
}
