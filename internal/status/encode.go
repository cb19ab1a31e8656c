// internal/status/encode.go
package status

import "math"

// Encode converts a Snapshot into a full status block with an empty name.
// Layout is protocol-locked.
// No IO. No side effects.
func Encode(s Snapshot) []uint16 {
	regs := make([]uint16, SlotsPerDevice)

	regs[SlotHealthCode] = s.Health
	regs[SlotLastErrorCode] = s.LastErrorCode
	regs[SlotSecondsInError] = s.SecondsInError
	regs[SlotReady] = flag(s.Ready)
	regs[SlotCommsOK] = flag(s.CommsOK)

	pos := uint32(s.PositionCdeg)
	regs[SlotPosition] = uint16(pos >> 16)
	regs[SlotPosition+1] = uint16(pos)
	regs[SlotVelocity] = uint16(s.VelocityCdeg)
	regs[SlotCurrent] = uint16(s.CurrentMA)
	regs[SlotScanCount] = s.ScanCount

	return regs
}

// EncodeName packs up to 16 ASCII characters into 8 registers, two bytes per
// register in big-endian order. Non-printable bytes become '?'.
func EncodeName(name string) []uint16 {
	out := make([]uint16, SlotDeviceNameSlots)

	b := []byte(name)
	if len(b) > DeviceNameMaxChars {
		b = b[:DeviceNameMaxChars]
	}

	for i := 0; i < len(b); i++ {
		if b[i] < 0x20 || b[i] > 0x7E {
			b[i] = '?'
		}
	}

	for i := 0; i < DeviceNameMaxChars; i += 2 {
		var hi, lo byte
		if i < len(b) {
			hi = b[i]
		}
		if i+1 < len(b) {
			lo = b[i+1]
		}
		out[i/2] = uint16(hi)<<8 | uint16(lo)
	}

	return out
}

// Centi scales v by 100 and saturates to the int32 range.
func Centi(v float64) int32 {
	c := math.Round(v * 100)
	if c > math.MaxInt32 {
		return math.MaxInt32
	}
	if c < math.MinInt32 {
		return math.MinInt32
	}
	return int32(c)
}

// Centi16 scales v by 100 and saturates to the int16 range.
func Centi16(v float64) int16 {
	c := math.Round(v * 100)
	if c > math.MaxInt16 {
		return math.MaxInt16
	}
	if c < math.MinInt16 {
		return math.MinInt16
	}
	return int16(c)
}

func flag(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}
