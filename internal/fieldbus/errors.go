// internal/fieldbus/errors.go
package fieldbus

import "fmt"

// Error codes published in the status block. 0 means no error and 1 is
// reserved for errors that carry no code.
const (
	CodeInterface uint16 = 10
	CodeTopology  uint16 = 11
	CodeMapping   uint16 = 12
	CodeState     uint16 = 13
	CodeLinkFault uint16 = 20
)

// InterfaceError means the network device could not be opened. Fatal.
type InterfaceError struct {
	Interface string
	Err       error
}

func (e *InterfaceError) Error() string {
	return fmt.Sprintf("fieldbus: cannot open interface %q: %v", e.Interface, e.Err)
}

func (e *InterfaceError) Unwrap() error { return e.Err }
func (e *InterfaceError) Code() uint16  { return CodeInterface }

// TopologyError means discovery did not find exactly one amplifier. Fatal.
type TopologyError struct {
	Found int
	Err   error
}

func (e *TopologyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fieldbus: slave discovery failed: %v", e.Err)
	}
	if e.Found == 0 {
		return "fieldbus: no slaves found"
	}
	return fmt.Sprintf("fieldbus: expected exactly 1 slave, found %d", e.Found)
}

func (e *TopologyError) Unwrap() error { return e.Err }
func (e *TopologyError) Code() uint16  { return CodeTopology }

// MappingError means the device rejected a process-data assignment step.
type MappingError struct {
	Index uint16
	Sub   uint8
	Err   error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("fieldbus: pdo mapping rejected at 0x%04X:%02X: %v", e.Index, e.Sub, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }
func (e *MappingError) Code() uint16  { return CodeMapping }

// StateError means the bus state machine did not reach the requested state.
type StateError struct {
	Want ALState
	Got  ALState
	Err  error
}

func (e *StateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fieldbus: transition to %s failed (state %s): %v", e.Want, e.Got, e.Err)
	}
	return fmt.Sprintf("fieldbus: transition to %s timed out (state %s)", e.Want, e.Got)
}

func (e *StateError) Unwrap() error { return e.Err }
func (e *StateError) Code() uint16  { return CodeState }

// LinkFault is a steady-state loss of the cyclic link. It triggers recovery
// and is never returned to command callers.
type LinkFault struct {
	Written      uint16
	Read         uint16
	MissedFrames int
}

func (e *LinkFault) Error() string {
	if e.MissedFrames > 0 {
		return fmt.Sprintf("fieldbus: link fault: %d consecutive frames missed", e.MissedFrames)
	}
	return fmt.Sprintf("fieldbus: link fault: control word wrote 0x%04X read 0x%04X", e.Written, e.Read)
}

func (e *LinkFault) Code() uint16 { return CodeLinkFault }
