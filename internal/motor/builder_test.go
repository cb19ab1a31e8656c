// internal/motor/builder_test.go
package motor

import (
	"testing"

	"github.com/sirupsen/logrus"

	cfg "github.com/tamzrod/eldrive/internal/config"
	"github.com/tamzrod/eldrive/internal/fieldbus/gateway"
	"github.com/tamzrod/eldrive/internal/fieldbus/sim"
)

func TestBuild_FromDefaultConfig(t *testing.T) {
	c := cfg.Default()
	log := logrus.NewEntry(logrus.New())

	s, m, err := Build(&c, nil, nil, log)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, ok := m.(*sim.Amplifier); !ok {
		t.Fatalf("default transport is %T, want sim", m)
	}
	if s.State() != StateStarting {
		t.Fatalf("fresh subsystem state %s", s.State())
	}

	mc := ConfigFrom(&c)
	if mc.PID.LoopRate < 217 || mc.PID.LoopRate > 218 {
		t.Fatalf("loop rate %v for a 4.6 ms period", mc.PID.LoopRate)
	}
	if len(mc.Defaults.Writes()) == 0 {
		t.Fatalf("default drive parameters not mapped")
	}
}

func TestBuildMaster_SelectsTransport(t *testing.T) {
	c := cfg.Default()
	log := logrus.NewEntry(logrus.New())

	c.Bus.Transport = cfg.TransportGateway
	m, err := BuildMaster(c.Bus, log)
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	if _, ok := m.(*gateway.Master); !ok {
		t.Fatalf("transport %T, want gateway", m)
	}

	c.Bus.Transport = "ethercat"
	if _, err := BuildMaster(c.Bus, log); err == nil {
		t.Fatalf("unknown transport accepted")
	}
}
