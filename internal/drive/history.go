// internal/drive/history.go
package drive

import (
	"sync"
	"sync/atomic"
	"time"
)

// Sample is one row of telemetry taken after a cyclic exchange.
type Sample struct {
	At time.Time `cbor:"t" json:"at"`

	// deg, deg/s, A, degC
	Position    float64 `cbor:"pos" json:"position"`
	Velocity    float64 `cbor:"vel" json:"velocity"`
	Current     float64 `cbor:"cur" json:"current"`
	Temperature float64 `cbor:"temp" json:"temperature"`

	StatusWord       uint16 `cbor:"sw" json:"status_word"`
	DriveStatus      uint32 `cbor:"ds" json:"drive_status"`
	LatchedFaults    uint32 `cbor:"flt" json:"latched_faults"`
	ControlWordWrite uint16 `cbor:"cww" json:"control_word_write"`
	ControlWordRead  uint16 `cbor:"cwr" json:"control_word_read"`

	Phase          float64 `cbor:"ph" json:"phase"` // deg
	NetworkProblem bool    `cbor:"net" json:"network_problem"`
}

// History holds recent samples. The control loop is the only writer.
type History interface {
	Put(s Sample)
	Latest() Sample
}

// HistoryDepth is the number of slots in a Ring.
const HistoryDepth = 3

// ReadIndex is the slot readers use for write cursor w: two behind the
// writer, which is the slot completed last.
func ReadIndex(w uint32) uint32 { return (w + 2) % HistoryDepth }

// Ring is the lock-free three slot history. Readers never read the slot under
// the write cursor, but a reader that stalls for a full cycle can still
// observe a slot being overwritten: safety depends on the loop period being
// much longer than the time to copy one Sample. Use LockedBuffer where that
// margin is not guaranteed.
type Ring struct {
	slots  [HistoryDepth]Sample
	cursor atomic.Uint32
}

func NewRing() *Ring { return &Ring{} }

func (r *Ring) Put(s Sample) {
	w := r.cursor.Load()
	r.slots[w] = s
	r.cursor.Store((w + 1) % HistoryDepth)
}

func (r *Ring) Latest() Sample {
	return r.slots[ReadIndex(r.cursor.Load())]
}

// Cursor returns the slot the writer will fill next.
func (r *Ring) Cursor() uint32 { return r.cursor.Load() }

// LockedBuffer is a mutex-guarded double buffer with the same contract as Ring.
type LockedBuffer struct {
	mu    sync.RWMutex
	slots [2]Sample
	front int
}

func NewLockedBuffer() *LockedBuffer { return &LockedBuffer{} }

func (b *LockedBuffer) Put(s Sample) {
	b.mu.Lock()
	back := 1 - b.front
	b.slots[back] = s
	b.front = back
	b.mu.Unlock()
}

func (b *LockedBuffer) Latest() Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.slots[b.front]
}

// NewHistory returns a LockedBuffer when locked is set, otherwise a Ring.
func NewHistory(locked bool) History {
	if locked {
		return NewLockedBuffer()
	}
	return NewRing()
}
