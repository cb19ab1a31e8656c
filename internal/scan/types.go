// internal/scan/types.go

// Package scan drives the pointing goal through autonomous patterns: dither
// sweeps between two elevations, sidereal tracking of a fixed target, and
// on/off chopping around that target.
package scan

import (
	"fmt"
	"strings"
	"time"
)

// OnTargetTolerance is the position error (deg) under which an axis counts
// as on target.
const OnTargetTolerance = 0.1

// PointingMode selects how the planner reads Pointing.
type PointingMode uint8

const (
	ModePosition PointingMode = iota
	ModeVelocity
)

func (m PointingMode) String() string {
	if m == ModeVelocity {
		return "velocity"
	}
	return "position"
}

func (m PointingMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Pointing is the goal the planner follows each cycle. Operators write it
// while no scan is active; the Machine writes it while one is.
type Pointing struct {
	Mode PointingMode `json:"mode"`

	Destination float64 `json:"destination"` // deg
	Velocity    float64 `json:"velocity"`    // deg/s

	AzDestination float64 `json:"az_destination"`
	AzVelocity    float64 `json:"az_velocity"`

	OnTargetEl bool `json:"on_target_el"`
	OnTargetAz bool `json:"on_target_az"`
}

// Mode is the active scan pattern.
type Mode uint8

const (
	ModeNone Mode = iota
	ModeDither
	ModeSkyTrack
	ModeOnOffChop
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeDither:
		return "dither"
	case ModeSkyTrack:
		return "sky_track"
	case ModeOnOffChop:
		return "on_off_chop"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode accepts the names produced by String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return ModeNone, nil
	case "dither":
		return ModeDither, nil
	case "sky_track", "track":
		return ModeSkyTrack, nil
	case "on_off_chop", "chop":
		return ModeOnOffChop, nil
	default:
		return ModeNone, fmt.Errorf("scan: unknown mode %q", s)
	}
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Target is a fixed celestial position.
type Target struct {
	RA  float64 `json:"ra"`  // deg
	Dec float64 `json:"dec"` // deg
}

// State is a scan's parameters and progress.
type State struct {
	Mode Mode `json:"mode"`

	StartEl  float64 `json:"start_el"`
	StopEl   float64 `json:"stop_el"`
	Velocity float64 `json:"velocity"`

	NScans    int `json:"nscans"`
	ScanCount int `json:"scan_count"`

	Sign       int  `json:"sign"`
	Turnaround bool `json:"turnaround"`

	ChopOffset float64       `json:"chop_offset"`
	Dwell      time.Duration `json:"dwell"`
	OnPosition bool          `json:"on_position"`

	Target Target `json:"target"`
	Active bool   `json:"active"`
}
