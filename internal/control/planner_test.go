// internal/control/planner_test.go
package control

import (
	"math"
	"testing"

	"github.com/tamzrod/eldrive/internal/scan"
)

func TestPlanVelocity_VelocityModePassesThrough(t *testing.T) {
	p := scan.Pointing{Mode: scan.ModeVelocity, Velocity: 12, Destination: 80}
	got := PlanVelocity(p, 0, PlannerConfig{VelocityGain: 1, MaxVelocity: 2})
	if got.Velocity != 12 || got.Clamped {
		t.Fatalf("velocity mode must not be shaped: %+v", got)
	}
}

func TestPlanVelocity_SquareRootLaw(t *testing.T) {
	cfg := PlannerConfig{VelocityGain: 0.5, MaxVelocity: 10}

	got := PlanVelocity(scan.Pointing{Destination: 20}, 16, cfg)
	if got.Velocity != 1 { // sqrt(4) * 0.5
		t.Fatalf("v=%v want 1", got.Velocity)
	}

	got = PlanVelocity(scan.Pointing{Destination: 20}, 29, cfg)
	if got.Velocity != -1.5 { // -sqrt(9) * 0.5
		t.Fatalf("v=%v want -1.5", got.Velocity)
	}
}

func TestPlanVelocity_BoundedAndSigned(t *testing.T) {
	cfg := PlannerConfig{VelocityGain: 2, MaxVelocity: 3}

	for step := -18000; step <= 18000; step++ {
		dest := 45 + float64(step)/100
		dy := dest - 45
		plan := PlanVelocity(scan.Pointing{Destination: dest}, 45, cfg)

		if math.Abs(plan.Velocity) > cfg.MaxVelocity {
			t.Fatalf("dy=%v: |v|=%v > %v", dy, plan.Velocity, cfg.MaxVelocity)
		}
		if math.Abs(dy) >= 0.1 && math.Signbit(plan.Velocity) != math.Signbit(dy) {
			t.Fatalf("dy=%v: v=%v has the wrong sign", dy, plan.Velocity)
		}
		if plan.OnTarget != (math.Abs(dy) < 0.1) {
			t.Fatalf("dy=%v: on-target=%v", dy, plan.OnTarget)
		}
	}
}

func TestPlanVelocity_ReportsClamp(t *testing.T) {
	plan := PlanVelocity(scan.Pointing{Destination: 100}, 0, PlannerConfig{VelocityGain: 1, MaxVelocity: 5})
	if !plan.Clamped || plan.Velocity != 5 {
		t.Fatalf("plan %+v", plan)
	}
}
