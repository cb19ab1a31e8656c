// internal/scan/machine.go
package scan

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrNoTransformer = errors.New("scan: tracking requires a coordinate transformer")

// Transformer converts a celestial target to mount coordinates at time t.
type Transformer interface {
	Horizontal(t time.Time, ra, dec float64) (el, az float64)
}

// Config tunes the machine.
type Config struct {
	// PositionTolerance widens every boundary test so jitter right at a
	// bound cannot livelock the sweep.
	PositionTolerance float64

	// Axes taking part in the on-target test while tracking. With both
	// false only elevation is used.
	ElEnabled bool
	AzEnabled bool
}

// Machine advances a scan once per control cycle. It is not safe for
// concurrent use; the control loop calls it under its own lock.
type Machine struct {
	cfg Config
	tf  Transformer

	st State

	approaching bool
	approachTo  float64

	dwelling   bool
	dwellStart time.Time
}

func NewMachine(cfg Config, tf Transformer) *Machine {
	if cfg.PositionTolerance <= 0 {
		cfg.PositionTolerance = OnTargetTolerance
	}
	if !cfg.ElEnabled && !cfg.AzEnabled {
		cfg.ElEnabled = true
	}
	return &Machine{cfg: cfg, tf: tf}
}

// State returns a copy of the scan state.
func (m *Machine) State() State { return m.st }

func (m *Machine) Active() bool { return m.st.Active }

// Arm validates s and starts it from the beginning.
func (m *Machine) Arm(s State) error {
	switch s.Mode {
	case ModeDither:
		// the turnaround flag clears only strictly inside both tolerance bands
		if math.Abs(s.StopEl-s.StartEl) <= 2*m.cfg.PositionTolerance {
			return fmt.Errorf("scan: dither bounds must be more than %.3f deg apart", 2*m.cfg.PositionTolerance)
		}
		if s.Velocity <= 0 {
			return errors.New("scan: dither velocity must be > 0")
		}
		if s.NScans < 1 {
			return errors.New("scan: dither needs nscans >= 1")
		}
	case ModeSkyTrack, ModeOnOffChop:
		if m.tf == nil {
			return ErrNoTransformer
		}
		if s.Target.Dec < -90 || s.Target.Dec > 90 {
			return fmt.Errorf("scan: declination %.3f out of range", s.Target.Dec)
		}
		if s.Mode == ModeOnOffChop && s.Dwell <= 0 {
			return errors.New("scan: chop dwell must be > 0")
		}
		if s.NScans < 0 {
			return errors.New("scan: nscans must be >= 0")
		}
	default:
		return fmt.Errorf("scan: cannot arm mode %s", s.Mode)
	}

	s.ScanCount = 0
	s.Sign = 0
	s.Turnaround = false
	s.OnPosition = true
	s.Active = true
	m.st = s

	m.approaching = s.Mode == ModeDither
	m.approachTo = math.NaN()
	m.dwelling = false
	return nil
}

// Stop ends any scan. A velocity-mode goal is brought to rest.
func (m *Machine) Stop(p *Pointing) {
	m.finish(p)
}

func (m *Machine) finish(p *Pointing) {
	m.st.Active = false
	m.st.Mode = ModeNone
	m.approaching = false
	m.dwelling = false
	if p.Mode == ModeVelocity {
		p.Velocity = 0
		p.AzVelocity = 0
	}
}

// Step advances the active scan with the measured axis angles and rewrites
// p accordingly. It does nothing when no scan is active. A NaN azimuth marks
// an unknown reading and is never on target.
func (m *Machine) Step(now time.Time, el, az float64, p *Pointing) {
	if !m.st.Active {
		return
	}
	switch m.st.Mode {
	case ModeDither:
		m.dither(el, p)
	case ModeSkyTrack:
		m.track(now, el, az, 0, p)
	case ModeOnOffChop:
		m.chop(now, el, az, p)
	default:
		m.finish(p)
	}
}

func (m *Machine) bounds() (lo, hi float64) {
	return math.Min(m.st.StartEl, m.st.StopEl), math.Max(m.st.StartEl, m.st.StopEl)
}

func (m *Machine) dither(el float64, p *Pointing) {
	tol := m.cfg.PositionTolerance
	lo, hi := m.bounds()

	if m.approaching {
		if math.IsNaN(m.approachTo) {
			m.approachTo = lo
			if math.Abs(el-hi) < math.Abs(el-lo) {
				m.approachTo = hi
			}
		}
		p.Mode = ModePosition
		p.Destination = m.approachTo
		if math.Abs(el-m.approachTo) >= tol {
			return
		}

		// at the near bound: sweep toward the far one
		m.approaching = false
		m.st.Sign = 1
		if m.approachTo == hi {
			m.st.Sign = -1
		}
		m.st.Turnaround = true
		p.Mode = ModeVelocity
		p.Velocity = float64(m.st.Sign) * m.st.Velocity
		return
	}

	if m.st.Turnaround && el > lo+tol && el < hi-tol {
		m.st.Turnaround = false
	}

	// only a sweep heading out of the range can flip
	if !m.st.Turnaround {
		flipped := false
		if el > hi-tol && m.st.Sign > 0 {
			m.st.Sign = -1
			flipped = true
		} else if el < lo+tol && m.st.Sign < 0 {
			m.st.Sign = 1
			flipped = true
		}
		if flipped {
			m.st.Turnaround = true
			m.st.ScanCount++
			if m.st.ScanCount >= m.st.NScans {
				p.Mode = ModeVelocity
				m.finish(p)
				return
			}
		}
	}

	p.Mode = ModeVelocity
	p.Velocity = float64(m.st.Sign) * m.st.Velocity
}

// track points both axes at the target plus an elevation offset and
// reports whether the enabled axes are on target.
func (m *Machine) track(now time.Time, el, az, elOffset float64, p *Pointing) bool {
	tel, taz := m.tf.Horizontal(now, m.st.Target.RA, m.st.Target.Dec)
	tel += elOffset

	p.Mode = ModePosition
	p.Destination = tel
	p.AzDestination = taz

	p.OnTargetEl = math.Abs(el-tel) < OnTargetTolerance
	p.OnTargetAz = math.Abs(math.Remainder(az-taz, 360)) < OnTargetTolerance

	on := true
	if m.cfg.ElEnabled {
		on = on && p.OnTargetEl
	}
	if m.cfg.AzEnabled {
		on = on && p.OnTargetAz
	}
	return on
}

func (m *Machine) chop(now time.Time, el, az float64, p *Pointing) {
	offset := 0.0
	if !m.st.OnPosition {
		offset = m.st.ChopOffset
	}
	on := m.track(now, el, az, offset, p)

	if !m.dwelling {
		if on {
			m.dwelling = true
			m.dwellStart = now
		}
		return
	}
	if now.Sub(m.dwellStart) < m.st.Dwell {
		return
	}

	m.dwelling = false
	m.st.OnPosition = !m.st.OnPosition
	m.st.ScanCount++
	if m.st.NScans > 0 && m.st.ScanCount >= m.st.NScans {
		m.finish(p)
	}
}
