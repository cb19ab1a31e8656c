// internal/control/planner.go
package control

import (
	"math"

	"github.com/tamzrod/eldrive/internal/scan"
)

type PlannerConfig struct {
	VelocityGain float64 // deg/s per sqrt(deg)
	MaxVelocity  float64 // deg/s
}

// Plan is the planner's answer for one cycle.
type Plan struct {
	Velocity float64
	OnTarget bool
	Clamped  bool
}

// PlanVelocity converts the pointing goal into a requested velocity.
//
// Velocity mode passes the requested velocity through. Position mode uses a
// square-root law, fast far from the destination and gentle close to it,
// limited to ±MaxVelocity.
func PlanVelocity(p scan.Pointing, position float64, cfg PlannerConfig) Plan {
	if p.Mode == scan.ModeVelocity {
		return Plan{Velocity: p.Velocity}
	}

	dy := p.Destination - position
	plan := Plan{OnTarget: math.Abs(dy) < scan.OnTargetTolerance}

	v := sign(dy) * math.Sqrt(math.Abs(dy)) * cfg.VelocityGain
	if cfg.MaxVelocity > 0 && math.Abs(v) > cfg.MaxVelocity {
		v = math.Copysign(cfg.MaxVelocity, v)
		plan.Clamped = true
	}
	plan.Velocity = v
	return plan
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
