// internal/motor/builder.go
package motor

import (
	"fmt"

	"github.com/sirupsen/logrus"

	cfg "github.com/tamzrod/eldrive/internal/config"
	"github.com/tamzrod/eldrive/internal/control"
	"github.com/tamzrod/eldrive/internal/drive"
	"github.com/tamzrod/eldrive/internal/fieldbus"
	"github.com/tamzrod/eldrive/internal/fieldbus/gateway"
	"github.com/tamzrod/eldrive/internal/fieldbus/sim"
	"github.com/tamzrod/eldrive/internal/scan"
)

// BuildMaster selects the fieldbus transport. Nothing is opened here; the
// subsystem opens the interface on every bring-up attempt.
func BuildMaster(b cfg.BusConfig, log *logrus.Entry) (fieldbus.Master, error) {
	switch b.Transport {
	case cfg.TransportSim:
		return sim.New(sim.Config{
			NoDC:          b.Sim.NoDC,
			Period:        b.Period,
			StartPosition: b.Sim.StartPosition,
		}), nil
	case cfg.TransportGateway:
		return gateway.New(gateway.Config{
			Endpoint: b.Gateway.Endpoint,
			UnitID:   b.Gateway.UnitID,
			Timeout:  b.Gateway.Timeout,
			BaudRate: b.Gateway.BaudRate,
			Parity:   b.Gateway.Parity,
			RS485:    b.Gateway.RS485,
			Log:      log.WithField("component", "gateway"),
		}), nil
	default:
		return nil, fmt.Errorf("motor: unknown transport %q", b.Transport)
	}
}

// ConfigFrom maps a validated configuration onto the subsystem.
func ConfigFrom(c *cfg.Config) Config {
	return Config{
		Interface:        c.Bus.Interface,
		Period:           c.Bus.Period,
		StatePollCycles:  c.Bus.StatePollCycles,
		MaxNetworkErrors: c.Bus.MaxNetworkErrors,
		Layout:           fieldbus.DefaultLayout(),
		Defaults: drive.Defaults{
			CurrentLoopCp:     c.Drive.CurrentLoopCp,
			CurrentLoopCi:     c.Drive.CurrentLoopCi,
			PeakCurrent:       c.Drive.PeakCurrent,
			ContinuousCurrent: c.Drive.ContinuousCurrent,
			PeakTime:          c.Drive.PeakTimeMs,
			EncoderWrap:       c.Drive.EncoderWrap,
			HeartbeatMs:       c.Drive.HeartbeatMs,
			GuardTimeMs:       c.Drive.GuardTimeMs,
			LifetimeFactor:    c.Drive.LifetimeFactor,
		},
		Encoder: drive.Encoder{
			CountsPerRev:   c.Encoder.CountsPerRev,
			VelocityUnit:   c.Encoder.VelocityUnit,
			MechanicalZero: c.Encoder.MechanicalZero,
		},
		PID: control.PIDConfig{
			Kp:                c.Controller.PID.Kp,
			Ti:                c.Controller.PID.Ti,
			Td:                c.Controller.PID.Td,
			LoopRate:          1 / c.Bus.Period.Seconds(),
			Deadband:          c.Controller.PID.Deadband,
			MaxIStep:          c.Controller.PID.MaxIStep,
			MaxIntegral:       c.Controller.PID.MaxIntegral,
			FrictionThreshold: c.Controller.PID.FrictionThreshold,
			FrictionBias:      c.Controller.PID.FrictionBias,
			MaxDelta:          c.Controller.PID.MaxDelta,
			MaxCurrent:        c.Controller.PID.MaxCurrent,
		},
		Planner: control.PlannerConfig{
			VelocityGain: c.Controller.VelocityGain,
			MaxVelocity:  c.Controller.MaxVelocity,
		},
		Scan: scan.Config{
			PositionTolerance: c.Controller.PositionTolerance,
			ElEnabled:         c.Scan.ElEnabled,
			AzEnabled:         c.Scan.AzEnabled,
		},
		LockedHistory:           c.Telemetry.LockedHistory,
		RelatchOffsetOnRecovery: c.RelatchOffsetOnRecovery,
		RetryInitial:            c.Bus.RetryInitial,
		RetryMax:                c.Bus.RetryMax,
	}
}

// Build wires a subsystem from configuration: transport, site transform and
// the optional motion recorder.
func Build(c *cfg.Config, rec *drive.Recorder, az AzimuthSource, log *logrus.Entry) (*Subsystem, fieldbus.Master, error) {
	m, err := BuildMaster(c.Bus, log)
	if err != nil {
		return nil, nil, err
	}
	s, err := New(ConfigFrom(c), m, Options{
		Transformer: scan.EquatorialTransform{Latitude: c.Site.Latitude, Longitude: c.Site.Longitude},
		Azimuth:     az,
		Recorder:    rec,
		Log:         log,
	})
	if err != nil {
		return nil, nil, err
	}
	return s, m, nil
}
