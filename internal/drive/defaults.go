// internal/drive/defaults.go
package drive

import "github.com/tamzrod/eldrive/internal/fieldbus"

// Defaults are the amplifier parameters written after every bring-up.
// Zero fields are skipped.
type Defaults struct {
	CurrentLoopCp uint16
	CurrentLoopCi uint16

	PeakCurrent       uint16 // 0.01 A
	ContinuousCurrent uint16 // 0.01 A
	PeakTime          uint16 // ms

	EncoderWrap uint32 // counts

	HeartbeatMs    uint16
	GuardTimeMs    uint16
	LifetimeFactor uint8
}

// Writes turns the defaults into ordered object writes.
func (d Defaults) Writes() []fieldbus.DefaultWrite {
	var out []fieldbus.DefaultWrite

	add16 := func(name string, index uint16, sub uint8, v uint16) {
		if v != 0 {
			out = append(out, fieldbus.DefaultWrite{Name: name, Index: index, Sub: sub, Data: fieldbus.U16(v)})
		}
	}

	add16("current_loop_cp", fieldbus.ObjCurrentLoop, 1, d.CurrentLoopCp)
	add16("current_loop_ci", fieldbus.ObjCurrentLoop, 2, d.CurrentLoopCi)
	add16("peak_current", fieldbus.ObjPeakCurrent, 0, d.PeakCurrent)
	add16("continuous_current", fieldbus.ObjContCurrent, 0, d.ContinuousCurrent)
	add16("peak_time", fieldbus.ObjPeakTime, 0, d.PeakTime)

	if d.EncoderWrap != 0 {
		out = append(out, fieldbus.DefaultWrite{
			Name: "encoder_wrap", Index: fieldbus.ObjEncoderWrap, Data: fieldbus.U32(d.EncoderWrap),
		})
	}

	add16("heartbeat", fieldbus.ObjHeartbeat, 0, d.HeartbeatMs)
	add16("guard_time", fieldbus.ObjGuardTime, 0, d.GuardTimeMs)

	if d.LifetimeFactor != 0 {
		out = append(out, fieldbus.DefaultWrite{
			Name: "lifetime_factor", Index: fieldbus.ObjLifetimeFactor, Data: fieldbus.U8(d.LifetimeFactor),
		})
	}

	return out
}
