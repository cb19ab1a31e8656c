// internal/config/validate.go
package config

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// Validate checks configuration correctness.
// It performs declarative validation only and reports every problem found.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	var errs error
	fail := func(format string, args ...interface{}) {
		errs = multierr.Append(errs, fmt.Errorf(format, args...))
	}

	// ------------------------------------------------------------
	// BUS
	// ------------------------------------------------------------

	b := cfg.Bus
	switch strings.ToLower(b.Transport) {
	case TransportSim:
	case TransportGateway:
		validateGateway(b.Gateway, fail)
	default:
		fail("bus.transport %q: must be %q or %q", b.Transport, TransportSim, TransportGateway)
	}
	if b.Interface == "" {
		fail("bus.interface is required")
	}
	if b.Period <= 0 {
		fail("bus.period must be > 0")
	}
	if b.StatePollCycles < 0 {
		fail("bus.state_poll_cycles must be >= 0")
	}
	if b.MaxNetworkErrors < 0 {
		fail("bus.max_network_errors must be >= 0")
	}
	if b.RetryInitial < 0 || b.RetryMax < 0 || (b.RetryMax > 0 && b.RetryMax < b.RetryInitial) {
		fail("bus.retry_initial/retry_max must be >= 0 with retry_max >= retry_initial")
	}

	// ------------------------------------------------------------
	// AMPLIFIER
	// ------------------------------------------------------------

	if cfg.Encoder.CountsPerRev <= 0 {
		fail("encoder.counts_per_rev must be > 0")
	}
	if cfg.Encoder.VelocityUnit <= 0 {
		fail("encoder.velocity_unit must be > 0")
	}

	// ------------------------------------------------------------
	// CONTROL
	// ------------------------------------------------------------

	c := cfg.Controller
	if c.PID.MaxCurrent <= 0 || c.PID.MaxCurrent > math.MaxInt16 {
		fail("controller.pid.max_current must be in 1..%d mA", math.MaxInt16)
	}
	if c.PID.MaxDelta <= 0 {
		fail("controller.pid.max_delta must be > 0")
	}
	if c.PID.Ti < 0 || c.PID.Td < 0 {
		fail("controller.pid.ti and td must be >= 0")
	}
	if c.PID.Deadband < 0 || c.PID.MaxIStep < 0 || c.PID.MaxIntegral < 0 {
		fail("controller.pid deadband and integrator limits must be >= 0")
	}
	if c.VelocityGain <= 0 || c.MaxVelocity <= 0 {
		fail("controller.velocity_gain and max_velocity must be > 0")
	}
	if c.PositionTolerance < 0 {
		fail("controller.position_tolerance must be >= 0")
	}

	if cfg.Site.Latitude < -90 || cfg.Site.Latitude > 90 {
		fail("site.latitude %.3f out of range", cfg.Site.Latitude)
	}

	if a := cfg.Azimuth; a.Enabled {
		if a.Endpoint == "" {
			fail("azimuth.endpoint is required when enabled")
		}
		if a.Scale == 0 {
			fail("azimuth.scale must be non-zero")
		}
		if a.Interval <= 0 {
			fail("azimuth.interval must be > 0")
		}
		if a.Timeout <= 0 {
			fail("azimuth.timeout must be > 0")
		}
	}

	// ------------------------------------------------------------
	// OUTPUTS
	// ------------------------------------------------------------

	if cfg.Telemetry.LogDepth < 0 {
		fail("telemetry.log_depth must be >= 0")
	}

	s := cfg.Status
	for i := 0; i < len(s.DeviceName); i++ {
		if s.DeviceName[i] > 0x7F {
			fail("status_mirror.device_name must contain ASCII characters only")
			break
		}
	}
	if s.Enabled {
		if s.Endpoint == "" {
			fail("status_mirror.endpoint is required when enabled")
		}
		if s.UnitID > 255 {
			fail("status_mirror.unit_id %d out of range", s.UnitID)
		}
		if int(s.BaseSlot)*20+20 > math.MaxUint16+1 {
			fail("status_mirror.base_slot %d does not fit the register space", s.BaseSlot)
		}
	}

	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		fail("log.level: %v", err)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "", "text", "json":
	default:
		fail("log.format %q: must be text or json", cfg.Log.Format)
	}

	return errs
}

func validateGateway(g GatewayConfig, fail func(string, ...interface{})) {
	u, err := url.Parse(g.Endpoint)
	if err != nil {
		fail("bus.gateway.endpoint: %v", err)
		return
	}
	switch u.Scheme {
	case "tcp":
		if u.Host == "" {
			fail("bus.gateway.endpoint %q: missing host", g.Endpoint)
		}
	case "rtu":
		if u.Path == "" {
			fail("bus.gateway.endpoint %q: missing device path", g.Endpoint)
		}
		if g.BaudRate <= 0 {
			fail("bus.gateway.baud_rate must be > 0")
		}
		switch strings.ToUpper(g.Parity) {
		case "", "N", "E", "O":
		default:
			fail("bus.gateway.parity %q: must be N, E or O", g.Parity)
		}
	default:
		fail("bus.gateway.endpoint %q: scheme must be tcp or rtu", g.Endpoint)
	}
	if g.Timeout <= 0 {
		fail("bus.gateway.timeout must be > 0")
	}
}
