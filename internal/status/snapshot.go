// internal/status/snapshot.go
package status

// Snapshot represents exactly what the writer is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
// Motion fields are already scaled to their register units.
type Snapshot struct {
	Health         uint16
	LastErrorCode  uint16
	SecondsInError uint16
	Ready          bool
	CommsOK        bool

	PositionCdeg int32
	VelocityCdeg int16
	CurrentMA    int16
	ScanCount    uint16
}
