// internal/mirror/mirror_test.go
package mirror

import (
	"errors"
	"testing"

	"github.com/tamzrod/eldrive/internal/drive"
	"github.com/tamzrod/eldrive/internal/fieldbus"
	"github.com/tamzrod/eldrive/internal/motor"
	"github.com/tamzrod/eldrive/internal/scan"
	"github.com/tamzrod/eldrive/internal/status"
)

// ---- fake register sink ----

type writeCall struct {
	unitID uint8
	addr   uint16
	regs   []uint16
}

type fakeSink struct {
	writes []writeCall
	fail   bool
}

func (f *fakeSink) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	if f.fail {
		return errors.New("endpoint down")
	}
	f.writes = append(f.writes, writeCall{unitID, addr, append([]uint16(nil), regs...)})
	return nil
}

func (f *fakeSink) last() writeCall { return f.writes[len(f.writes)-1] }

// ---- tests ----

func TestStatusWriter_FullAssertThenIncremental(t *testing.T) {
	cli := &fakeSink{}
	w, err := NewStatusWriter(Plan{UnitID: 7, BaseSlot: 2, DeviceName: "EL-AXIS"}, cli)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := w.WriteStatus(status.Snapshot{Health: status.HealthOK, Ready: true}); err != nil {
		t.Fatalf("full write: %v", err)
	}
	first := cli.last()
	if len(first.regs) != status.SlotsPerDevice || first.addr != 2*status.SlotsPerDevice || first.unitID != 7 {
		t.Fatalf("expected full block at 40 for unit 7, got %d regs at %d unit %d",
			len(first.regs), first.addr, first.unitID)
	}
	want := status.EncodeName("EL-AXIS")
	for i := 0; i < status.SlotDeviceNameSlots; i++ {
		if first.regs[status.SlotDeviceNameStart+i] != want[i] {
			t.Fatalf("name slot %d mismatch", i)
		}
	}

	// Only slot 1 and slots 8..9 change.
	next := status.Snapshot{Health: status.HealthOK, Ready: true, LastErrorCode: 5, CurrentMA: 100, ScanCount: 1}
	if err := w.WriteStatus(next); err != nil {
		t.Fatalf("incremental: %v", err)
	}
	got := cli.writes[1:]
	if len(got) != 2 {
		t.Fatalf("expected 2 incremental writes, got %d", len(got))
	}
	if got[0].addr != 40+status.SlotLastErrorCode || len(got[0].regs) != 1 || got[0].regs[0] != 5 {
		t.Fatalf("error-code write %+v", got[0])
	}
	if got[1].addr != 40+status.SlotCurrent || len(got[1].regs) != 2 {
		t.Fatalf("current/scan write %+v", got[1])
	}

	// Unchanged snapshot writes nothing.
	n := len(cli.writes)
	if err := w.WriteStatus(next); err != nil || len(cli.writes) != n {
		t.Fatalf("unchanged snapshot wrote %d times (err %v)", len(cli.writes)-n, err)
	}
}

func TestStatusWriter_FailureForcesFullReassert(t *testing.T) {
	cli := &fakeSink{}
	w, _ := NewStatusWriter(Plan{UnitID: 1}, cli)
	_ = w.WriteStatus(status.Snapshot{})

	cli.fail = true
	if err := w.WriteStatus(status.Snapshot{Health: status.HealthError}); err == nil {
		t.Fatalf("expected failure")
	}

	cli.fail = false
	if err := w.WriteStatus(status.Snapshot{Health: status.HealthError}); err != nil {
		t.Fatalf("write after failure: %v", err)
	}
	if len(cli.last().regs) != status.SlotsPerDevice {
		t.Fatalf("expected full re-assert after failure, got %d regs", len(cli.last().regs))
	}
}

func TestNewStatusWriter_RejectsWideUnitID(t *testing.T) {
	if _, err := NewStatusWriter(Plan{UnitID: 300}, &fakeSink{}); err == nil {
		t.Fatalf("unit id 300 accepted")
	}
}

func TestFold(t *testing.T) {
	healthy := motor.Health{State: motor.StateRunning, Ready: true, Link: fieldbus.LinkState{CommsOK: true}}
	smp := drive.Sample{Position: 45.5, Velocity: -0.25, Current: 1.2}

	s := fold(status.Snapshot{SecondsInError: 9}, healthy, smp, scan.State{ScanCount: 3})
	if s.Health != status.HealthOK || s.SecondsInError != 0 || s.LastErrorCode != 0 {
		t.Fatalf("healthy fold %+v", s)
	}
	if s.PositionCdeg != 4550 || s.VelocityCdeg != -25 || s.CurrentMA != 1200 || s.ScanCount != 3 || !s.CommsOK {
		t.Fatalf("motion fold %+v", s)
	}

	recovering := motor.Health{State: motor.StateRecovering, LastErrorCode: fieldbus.CodeLinkFault}
	s = fold(status.Snapshot{SecondsInError: 4}, recovering, smp, scan.State{})
	if s.Health != status.HealthError || s.LastErrorCode != fieldbus.CodeLinkFault || s.SecondsInError != 4 {
		t.Fatalf("recovering fold %+v", s)
	}

	s = fold(status.Snapshot{}, motor.Health{State: motor.StateStopped}, smp, scan.State{})
	if s.Health != status.HealthDisabled {
		t.Fatalf("stopped fold %+v", s)
	}

	stale := healthy
	stale.Link.NetworkErrors = 1
	if s = fold(status.Snapshot{}, stale, smp, scan.State{}); s.Health != status.HealthStale {
		t.Fatalf("stale fold %+v", s)
	}
}
