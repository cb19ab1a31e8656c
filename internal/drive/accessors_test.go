// internal/drive/accessors_test.go
package drive_test

import (
	"math"
	"testing"
	"time"

	"github.com/tamzrod/eldrive/internal/drive"
	"github.com/tamzrod/eldrive/internal/fieldbus"
	"github.com/tamzrod/eldrive/internal/fieldbus/sim"
)

func bringUp(t *testing.T, cfg sim.Config) (*fieldbus.Bus, *sim.Amplifier) {
	t.Helper()
	amp := sim.New(cfg)
	bus, err := fieldbus.BringUp(amp, fieldbus.Params{
		Interface: "sim0",
		Period:    4600 * time.Microsecond,
		Layout:    fieldbus.DefaultLayout(),
	})
	if err != nil {
		t.Fatalf("BringUp err=%v", err)
	}
	t.Cleanup(func() { _ = bus.Close() })
	return bus, amp
}

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestAccessors_PositionAndOffset(t *testing.T) {
	bus, _ := bringUp(t, sim.Config{StartPosition: 12.5})
	bus.Exchange()

	acc := drive.NewAccessors(drive.Encoder{MechanicalZero: 90})
	acc.Attach(bus)

	if !near(acc.RawPosition(), 12.5, 1e-3) {
		t.Fatalf("raw position=%f want 12.5", acc.RawPosition())
	}

	acc.LatchOffset()
	if !acc.Latched() {
		t.Fatalf("offset not latched")
	}
	if !near(acc.Position(), 90, 1e-9) {
		t.Fatalf("position after latch=%f want 90", acc.Position())
	}

	acc.SetPositionOffset(30)
	if !near(acc.Position(), 30, 1e-9) {
		t.Fatalf("position after re-base=%f want 30", acc.Position())
	}
}

func TestAccessors_CommandRoundTrip(t *testing.T) {
	bus, amp := bringUp(t, sim.Config{})

	acc := drive.NewAccessors(drive.Encoder{})
	acc.Attach(bus)

	acc.SetControlWord(fieldbus.ControlEnable)
	acc.SetCurrent(1500)
	if !bus.Exchange() {
		t.Fatalf("exchange missed")
	}

	if amps, _ := amp.Command(); amps != 1.5 {
		t.Fatalf("amplifier command=%f A", amps)
	}
	if acc.Current() != 1.5 {
		t.Fatalf("measured current=%f want 1.5", acc.Current())
	}
	if acc.ControlWordRead() != acc.ControlWordWrite() {
		t.Fatalf("control word echo 0x%04X != 0x%04X", acc.ControlWordRead(), acc.ControlWordWrite())
	}
	if acc.Velocity() <= 0 {
		t.Fatalf("positive current must accelerate the load, velocity=%f", acc.Velocity())
	}
	if acc.Temperature() != 31 {
		t.Fatalf("temperature=%f", acc.Temperature())
	}
}

func TestAccessors_ZeroWhenLinkDown(t *testing.T) {
	bus, _ := bringUp(t, sim.Config{NoDC: true, StartPosition: 45})
	bus.Exchange()

	acc := drive.NewAccessors(drive.Encoder{})
	acc.Attach(bus)

	if bus.Link.CommsOK {
		t.Fatalf("link must be degraded without a distributed clock")
	}
	if acc.Position() != 0 || acc.StatusWord() != 0 || acc.Temperature() != 0 {
		t.Fatalf("accessors must read zero while comms are down")
	}

	acc.Detach()
	acc.SetCurrent(100) // no bus, no panic
	if acc.ControlWordWrite() != 0 {
		t.Fatalf("detached control word must read zero")
	}
}

func TestDefaults_SkipsZeroFields(t *testing.T) {
	d := drive.Defaults{
		CurrentLoopCp:  300,
		PeakCurrent:    1200,
		EncoderWrap:    524288,
		LifetimeFactor: 3,
	}

	w := d.Writes()
	if len(w) != 4 {
		t.Fatalf("writes=%d want 4: %+v", len(w), w)
	}
	if w[0].Index != fieldbus.ObjCurrentLoop || w[0].Sub != 1 {
		t.Fatalf("first write %+v", w[0])
	}
	if w[2].Name != "encoder_wrap" || len(w[2].Data) != 4 {
		t.Fatalf("encoder wrap write %+v", w[2])
	}
	if w[3].Index != fieldbus.ObjLifetimeFactor || len(w[3].Data) != 1 {
		t.Fatalf("lifetime write %+v", w[3])
	}
}
