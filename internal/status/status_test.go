// internal/status/status_test.go
package status

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

type codedErr uint16

func (c codedErr) Error() string { return "coded" }
func (c codedErr) Code() uint16  { return uint16(c) }

func TestErrorCode(t *testing.T) {
	if got := ErrorCode(nil); got != 0 {
		t.Fatalf("nil error code=%d", got)
	}
	if got := ErrorCode(errors.New("plain")); got != 1 {
		t.Fatalf("plain error code=%d want 1", got)
	}
	wrapped := fmt.Errorf("bring-up: %w", codedErr(13))
	if got := ErrorCode(wrapped); got != 13 {
		t.Fatalf("wrapped code=%d want 13", got)
	}
}

func TestEncode_SignedPositionHighWordFirst(t *testing.T) {
	regs := Encode(Snapshot{
		Health:       HealthOK,
		Ready:        true,
		PositionCdeg: -2,
		VelocityCdeg: -150,
		CurrentMA:    1200,
		ScanCount:    4,
	})

	if len(regs) != SlotsPerDevice {
		t.Fatalf("block size %d", len(regs))
	}
	if regs[SlotPosition] != 0xFFFF || regs[SlotPosition+1] != 0xFFFE {
		t.Fatalf("position regs %04X %04X", regs[SlotPosition], regs[SlotPosition+1])
	}
	if int16(regs[SlotVelocity]) != -150 || regs[SlotCurrent] != 1200 || regs[SlotScanCount] != 4 {
		t.Fatalf("motion regs %v", regs[SlotVelocity:SlotScanCount+1])
	}
	if regs[SlotReady] != 1 || regs[SlotCommsOK] != 0 {
		t.Fatalf("flags ready=%d comms=%d", regs[SlotReady], regs[SlotCommsOK])
	}
	for i := SlotDeviceNameStart; i <= SlotDeviceNameEnd; i++ {
		if regs[i] != 0 {
			t.Fatalf("name slot %d written by Encode", i)
		}
	}
}

func TestEncodeName(t *testing.T) {
	regs := EncodeName("EL\x01AXIS-ELEVATION-LONG")
	if len(regs) != SlotDeviceNameSlots {
		t.Fatalf("name regs %d", len(regs))
	}
	if regs[0] != uint16('E')<<8|uint16('L') {
		t.Fatalf("first reg %04X", regs[0])
	}
	if regs[1] != uint16('?')<<8|uint16('A') {
		t.Fatalf("control byte not sanitised: %04X", regs[1])
	}
}

func TestCentiSaturates(t *testing.T) {
	if Centi(12.5) != 1250 || Centi16(-1.5) != -150 {
		t.Fatalf("scaling")
	}
	if Centi16(1000) != math.MaxInt16 || Centi(-1e12) != math.MinInt32 {
		t.Fatalf("saturation")
	}
}
