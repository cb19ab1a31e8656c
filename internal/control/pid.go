// internal/control/pid.go

// Package control turns a pointing goal into a velocity request and a
// velocity error into a bounded motor current.
package control

import (
	"errors"
	"math"
)

// PIDConfig holds the current controller parameters. Currents are mA,
// velocities deg/s.
type PIDConfig struct {
	Kp       float64 // mA per deg/s
	Ti       float64 // s; 0 disables the integrator
	Td       float64 // s
	LoopRate float64 // Hz

	// Integrator steps smaller than Deadband are dropped; each step is
	// clamped to MaxIStep and the accumulator to MaxIntegral. A zero limit
	// leaves that clamp off.
	Deadband    float64
	MaxIStep    float64
	MaxIntegral float64

	// When |P+I+D| exceeds FrictionThreshold a bias of FrictionBias with the
	// same sign is fed through the friction smoother.
	FrictionThreshold float64
	FrictionBias      float64

	MaxDelta   int // mA per cycle
	MaxCurrent int // mA
}

func (c PIDConfig) Validate() error {
	if c.LoopRate <= 0 {
		return errors.New("pid: loop_rate must be > 0")
	}
	if c.MaxCurrent <= 0 || c.MaxCurrent > math.MaxInt16 {
		return errors.New("pid: max_current must be in 1..32767")
	}
	if c.MaxDelta <= 0 {
		return errors.New("pid: max_delta must be > 0")
	}
	if c.Ti < 0 || c.Td < 0 {
		return errors.New("pid: ti and td must be >= 0")
	}
	if c.Deadband < 0 || c.MaxIStep < 0 || c.MaxIntegral < 0 {
		return errors.New("pid: deadband and integrator limits must be >= 0")
	}
	return nil
}

// Terms is a read-only snapshot of the last Compute call.
type Terms struct {
	P        float64 `json:"p" cbor:"p"`
	I        float64 `json:"i" cbor:"i"`
	D        float64 `json:"d" cbor:"d"`
	Friction float64 `json:"friction" cbor:"f"`
	Output   int16   `json:"output" cbor:"o"`

	Requested float64 `json:"requested" cbor:"req"`
	Measured  float64 `json:"measured" cbor:"meas"`

	// Saturations counts cycles in which the current limit clipped the output.
	Saturations uint64 `json:"saturations" cbor:"sat"`
}

// PID is the velocity-to-current controller. Not safe for concurrent use.
type PID struct {
	cfg PIDConfig

	integral     float64
	prevOutput   float64
	prevMeasured float64
	prevRequest  float64
	primed       bool

	dlpf     FIR5
	friction FirstOrder

	terms Terms
}

func NewPID(cfg PIDConfig) *PID {
	return &PID{cfg: cfg}
}

// Compute returns the commanded current in mA.
func (c *PID) Compute(requested, measured float64) int16 {
	cfg := &c.cfg

	// a new setpoint is a new control problem
	if !c.primed || requested != c.prevRequest {
		c.integral = 0
	}

	e := requested - measured

	p := cfg.Kp * e

	var step float64
	if cfg.Ti > 0 {
		step = cfg.Kp * e / (cfg.Ti * cfg.LoopRate)
	}
	if math.Abs(step) < cfg.Deadband {
		step = 0
	}
	step = clamp(step, cfg.MaxIStep)
	c.integral = clamp(c.integral+step, cfg.MaxIntegral)

	var delta float64
	if c.primed {
		delta = measured - c.prevMeasured
	}
	d := cfg.Kp * cfg.Td * cfg.LoopRate * c.dlpf.Step(delta)

	raw := p + c.integral + d

	var bias float64
	if raw > cfg.FrictionThreshold {
		bias = cfg.FrictionBias
	} else if raw < -cfg.FrictionThreshold {
		bias = -cfg.FrictionBias
	}
	fr := c.friction.Step(bias)

	out := raw + fr

	maxDelta := float64(cfg.MaxDelta)
	out = math.Max(c.prevOutput-maxDelta, math.Min(c.prevOutput+maxDelta, out))

	maxCur := float64(cfg.MaxCurrent)
	if out > maxCur || out < -maxCur {
		c.terms.Saturations++
		out = clamp(out, maxCur)
	}

	mA := int16(math.Round(out))

	c.prevOutput = float64(mA)
	c.prevMeasured = measured
	c.prevRequest = requested
	c.primed = true

	c.terms.P = p
	c.terms.I = c.integral
	c.terms.D = d
	c.terms.Friction = fr
	c.terms.Output = mA
	c.terms.Requested = requested
	c.terms.Measured = measured

	return mA
}

// Integral is the current accumulator value.
func (c *PID) Integral() float64 { return c.integral }

func (c *PID) Terms() Terms { return c.terms }

// Reset clears all controller state. Used after a bus recovery so the slew
// limiter starts from zero current.
func (c *PID) Reset() {
	sat := c.terms.Saturations
	*c = PID{cfg: c.cfg}
	c.terms.Saturations = sat
}

// clamp limits v to [-limit, limit]. A zero limit means unlimited.
func clamp(v, limit float64) float64 {
	if limit <= 0 {
		return v
	}
	return math.Max(-limit, math.Min(limit, v))
}
