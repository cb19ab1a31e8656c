// internal/fieldbus/link.go
package fieldbus

// BusStatus tracks how far bring-up progressed.
type BusStatus uint8

const (
	StatusCold BusStatus = iota
	StatusInit
	StatusFoundPartial
	StatusFound
	StatusRunningPartial
	StatusRunning
)

func (s BusStatus) String() string {
	switch s {
	case StatusCold:
		return "cold"
	case StatusInit:
		return "init"
	case StatusFoundPartial:
		return "found-partial"
	case StatusFound:
		return "found"
	case StatusRunningPartial:
		return "running-partial"
	case StatusRunning:
		return "running"
	default:
		return "unknown"
	}
}

func (s BusStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// LinkState is owned by the bus; the control loop reads it to decide when
// the cyclic loop may run and when to recover.
type LinkState struct {
	CommsOK       bool      `json:"comms_ok"`
	HasDC         bool      `json:"has_dc"`
	SlaveError    bool      `json:"slave_error"`
	NetworkErrors int       `json:"network_errors"`
	Status        BusStatus `json:"status"`
}

// update recomputes the composite gate.
func (l *LinkState) update() {
	l.CommsOK = !l.SlaveError && l.HasDC
	if l.CommsOK {
		l.Status = StatusRunning
	} else {
		l.Status = StatusRunningPartial
	}
}
