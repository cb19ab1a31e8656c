// internal/drive/accessors.go

// Package drive gives typed, unit-converted access to the amplifier's cyclic
// frame and keeps the short telemetry history the control loop produces.
package drive

import (
	"encoding/binary"

	"github.com/tamzrod/eldrive/internal/fieldbus"
)

// Encoder describes how raw amplifier units map to engineering units.
type Encoder struct {
	CountsPerRev float64

	// VelocityUnit is the size of one raw velocity unit in counts/s.
	VelocityUnit float64

	// MechanicalZero is the angle (deg) the shaft is taken to be at when the
	// software offset is latched.
	MechanicalZero float64
}

// Accessors reads and writes mapped objects on the current bus. Readers
// return zero when the link is not usable; callers check Link separately.
// Not safe for concurrent use; owned by the control loop.
type Accessors struct {
	bus *fieldbus.Bus
	enc Encoder

	offset  float64
	latched bool
}

func NewAccessors(enc Encoder) *Accessors {
	if enc.CountsPerRev == 0 {
		enc.CountsPerRev = 524288
	}
	if enc.VelocityUnit == 0 {
		enc.VelocityUnit = 0.1
	}
	return &Accessors{enc: enc}
}

// Attach points the accessors at a freshly brought-up bus. The software
// offset is kept.
func (a *Accessors) Attach(bus *fieldbus.Bus) { a.bus = bus }

// Detach drops the bus reference during recovery.
func (a *Accessors) Detach() { a.bus = nil }

func (a *Accessors) ok() bool { return a.bus != nil && a.bus.Link.CommsOK }

func (a *Accessors) in(index uint16) []byte {
	if !a.ok() {
		return nil
	}
	return a.bus.Input(index, 0)
}

func (a *Accessors) u16(index uint16) uint16 {
	b := a.in(index)
	if len(b) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (a *Accessors) u32(index uint16) uint32 {
	b := a.in(index)
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (a *Accessors) countsPerDeg() float64 { return a.enc.CountsPerRev / 360 }

// RawPosition is the shaft angle in degrees before the software offset.
func (a *Accessors) RawPosition() float64 {
	return float64(int32(a.u32(fieldbus.ObjPositionActual))) / a.countsPerDeg()
}

// Position is the shaft angle in degrees with the software offset removed.
func (a *Accessors) Position() float64 {
	if !a.ok() {
		return 0
	}
	return a.RawPosition() - a.offset
}

// Velocity in deg/s.
func (a *Accessors) Velocity() float64 {
	raw := float64(int32(a.u32(fieldbus.ObjVelocityActual)))
	return raw * a.enc.VelocityUnit / a.countsPerDeg()
}

// Current is the measured motor current in amps.
func (a *Accessors) Current() float64 {
	return float64(int16(a.u16(fieldbus.ObjActualCurrent))) / 1000
}

// Temperature in degrees Celsius.
func (a *Accessors) Temperature() float64 {
	return float64(int16(a.u16(fieldbus.ObjTemperature)))
}

func (a *Accessors) StatusWord() uint16 { return a.u16(fieldbus.ObjStatusWord) }

func (a *Accessors) DriveStatus() uint32 { return a.u32(fieldbus.ObjDriveStatus) }

func (a *Accessors) LatchedFaults() uint32 { return a.u32(fieldbus.ObjLatchedFaults) }

// ControlWordRead is the control word as echoed back by the amplifier.
func (a *Accessors) ControlWordRead() uint16 { return a.u16(fieldbus.ObjControlWord) }

// ControlWordWrite is the control word in the outbound image.
func (a *Accessors) ControlWordWrite() uint16 {
	if !a.ok() {
		return 0
	}
	b := a.bus.Output(fieldbus.ObjControlWord, 0)
	if len(b) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// Phase is the commutation angle in degrees, [0, 360).
func (a *Accessors) Phase() float64 {
	return float64(a.u16(fieldbus.ObjCommutation)) * 360 / 65536
}

// SetControlWord writes the outbound control word. It is a no-op without a bus.
func (a *Accessors) SetControlWord(cw uint16) {
	if a.bus == nil {
		return
	}
	if b := a.bus.Output(fieldbus.ObjControlWord, 0); len(b) >= 2 {
		binary.LittleEndian.PutUint16(b, cw)
	}
}

// SetCurrent writes the commanded current in milliamps.
func (a *Accessors) SetCurrent(mA int16) {
	if a.bus == nil {
		return
	}
	if b := a.bus.Output(fieldbus.ObjCurrentCommand, 0); len(b) >= 2 {
		binary.LittleEndian.PutUint16(b, uint16(mA))
	}
}

// LatchOffset captures the current raw position as the soft origin, so that
// Position reads MechanicalZero right after the latch.
func (a *Accessors) LatchOffset() {
	a.offset = a.RawPosition() - a.enc.MechanicalZero
	a.latched = true
}

// Latched reports whether LatchOffset has run at least once.
func (a *Accessors) Latched() bool { return a.latched }

// SetPositionOffset re-bases the offset so the current shaft reads angle.
func (a *Accessors) SetPositionOffset(angle float64) {
	a.offset = a.RawPosition() - angle
	a.latched = true
}

func (a *Accessors) Offset() float64 { return a.offset }

