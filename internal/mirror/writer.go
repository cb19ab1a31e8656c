// internal/mirror/writer.go

// Package mirror publishes the axis status block to a Modbus memory
// endpoint so supervisory PLCs and ground tooling can read it.
package mirror

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/eldrive/internal/status"
)

// StatusWriter is the delivery-only contract for the status block.
// It receives a snapshot and writes it verbatim.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}

// Plan places the block in the endpoint's memory.
type Plan struct {
	UnitID     uint16
	BaseSlot   uint16
	DeviceName string
}

// blockWriter re-asserts the full block (name included) on the first write
// and after any failure; otherwise it writes only the slot runs that changed.
type blockWriter struct {
	plan Plan
	cli  registerSink

	needFull bool
	last     []uint16
	nameRegs []uint16
}

func NewStatusWriter(plan Plan, cli registerSink) (StatusWriter, error) {
	if cli == nil {
		return nil, errors.New("mirror: client required")
	}
	if plan.UnitID > 255 {
		return nil, fmt.Errorf("mirror: unit id %d out of range", plan.UnitID)
	}
	return &blockWriter{
		plan:     plan,
		cli:      cli,
		needFull: true,
		nameRegs: status.EncodeName(plan.DeviceName),
	}, nil
}

// WriteStatus delivers a snapshot into status memory.
// On any write failure, the next call re-asserts the full block.
func (w *blockWriter) WriteStatus(s status.Snapshot) error {
	regs := w.block(s)
	base := w.plan.BaseSlot * status.SlotsPerDevice
	unitID := uint8(w.plan.UnitID)

	if w.needFull {
		if err := w.cli.WriteRegisters(unitID, base, regs); err != nil {
			return fmt.Errorf("mirror: full block write failed: %w", err)
		}
		w.needFull = false
		w.last = regs
		return nil
	}

	var errs []string
	for _, r := range changedRuns(w.last, regs) {
		if err := w.cli.WriteRegisters(unitID, base+uint16(r.start), regs[r.start:r.end]); err != nil {
			errs = append(errs, fmt.Sprintf("slots %d-%d: %v", r.start, r.end-1, err))
			continue
		}
		copy(w.last[r.start:r.end], regs[r.start:r.end])
	}

	if len(errs) > 0 {
		// Any partial failure introduces doubt: re-assert on next write.
		w.needFull = true
		return errors.New("mirror: " + strings.Join(errs, " | "))
	}
	return nil
}

func (w *blockWriter) block(s status.Snapshot) []uint16 {
	regs := status.Encode(s)
	copy(regs[status.SlotDeviceNameStart:status.SlotDeviceNameEnd+1], w.nameRegs)
	return regs
}

type run struct{ start, end int }

// changedRuns returns the contiguous slot ranges where next differs from prev.
func changedRuns(prev, next []uint16) []run {
	var out []run
	for i := 0; i < len(next); i++ {
		if i < len(prev) && prev[i] == next[i] {
			continue
		}
		j := i + 1
		for j < len(next) && (j >= len(prev) || prev[j] != next[j]) {
			j++
		}
		out = append(out, run{i, j})
		i = j
	}
	return out
}
