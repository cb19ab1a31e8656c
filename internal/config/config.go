// internal/config/config.go
package config

import "time"

type Config struct {
	Bus        BusConfig        `koanf:"bus" yaml:"bus"`
	Encoder    EncoderConfig    `koanf:"encoder" yaml:"encoder"`
	Drive      DriveDefaults    `koanf:"drive_defaults" yaml:"drive_defaults"`
	Controller ControllerConfig `koanf:"controller" yaml:"controller"`
	Scan       ScanConfig       `koanf:"scan" yaml:"scan"`
	Site       SiteConfig       `koanf:"site" yaml:"site"`
	Azimuth    AzimuthConfig    `koanf:"azimuth" yaml:"azimuth"`
	Telemetry  TelemetryConfig  `koanf:"telemetry" yaml:"telemetry"`
	Status     StatusConfig     `koanf:"status_mirror" yaml:"status_mirror"`
	HTTP       HTTPConfig       `koanf:"http" yaml:"http"`
	Log        LogConfig        `koanf:"log" yaml:"log"`

	// Re-latch the software position offset after every recovery instead of
	// only after the first bring-up.
	RelatchOffsetOnRecovery bool `koanf:"relatch_offset_on_recovery" yaml:"relatch_offset_on_recovery"`
}

// ---- BUS ----

const (
	TransportSim     = "sim"
	TransportGateway = "gateway"
)

type BusConfig struct {
	Transport        string        `koanf:"transport" yaml:"transport"`
	Interface        string        `koanf:"interface" yaml:"interface"`
	Period           time.Duration `koanf:"period" yaml:"period"`
	StatePollCycles  int           `koanf:"state_poll_cycles" yaml:"state_poll_cycles"`
	MaxNetworkErrors int           `koanf:"max_network_errors" yaml:"max_network_errors"`
	RetryInitial     time.Duration `koanf:"retry_initial" yaml:"retry_initial"`
	RetryMax         time.Duration `koanf:"retry_max" yaml:"retry_max"`

	Gateway GatewayConfig `koanf:"gateway" yaml:"gateway"`
	Sim     SimConfig     `koanf:"sim" yaml:"sim"`
}

type GatewayConfig struct {
	Endpoint string        `koanf:"endpoint" yaml:"endpoint"` // tcp://host:port or rtu:///dev/ttyX
	UnitID   uint8         `koanf:"unit_id" yaml:"unit_id"`
	Timeout  time.Duration `koanf:"timeout" yaml:"timeout"`
	BaudRate int           `koanf:"baud_rate" yaml:"baud_rate"`
	Parity   string        `koanf:"parity" yaml:"parity"`
	RS485    bool          `koanf:"rs485" yaml:"rs485"`
}

type SimConfig struct {
	NoDC          bool    `koanf:"no_dc" yaml:"no_dc"`
	StartPosition float64 `koanf:"start_position" yaml:"start_position"`
}

// ---- AMPLIFIER ----

type EncoderConfig struct {
	CountsPerRev   float64 `koanf:"counts_per_rev" yaml:"counts_per_rev"`
	VelocityUnit   float64 `koanf:"velocity_unit" yaml:"velocity_unit"`
	MechanicalZero float64 `koanf:"mechanical_zero" yaml:"mechanical_zero"`
}

// DriveDefaults are written to the amplifier after every bring-up; zero
// entries are skipped.
type DriveDefaults struct {
	CurrentLoopCp     uint16 `koanf:"current_loop_cp" yaml:"current_loop_cp"`
	CurrentLoopCi     uint16 `koanf:"current_loop_ci" yaml:"current_loop_ci"`
	PeakCurrent       uint16 `koanf:"peak_current" yaml:"peak_current"`
	ContinuousCurrent uint16 `koanf:"continuous_current" yaml:"continuous_current"`
	PeakTimeMs        uint16 `koanf:"peak_time_ms" yaml:"peak_time_ms"`
	EncoderWrap       uint32 `koanf:"encoder_wrap" yaml:"encoder_wrap"`
	HeartbeatMs       uint16 `koanf:"heartbeat_ms" yaml:"heartbeat_ms"`
	GuardTimeMs       uint16 `koanf:"guard_time_ms" yaml:"guard_time_ms"`
	LifetimeFactor    uint8  `koanf:"lifetime_factor" yaml:"lifetime_factor"`
}

// ---- CONTROL ----

type ControllerConfig struct {
	PID               PIDConfig `koanf:"pid" yaml:"pid"`
	VelocityGain      float64   `koanf:"velocity_gain" yaml:"velocity_gain"`
	MaxVelocity       float64   `koanf:"max_velocity" yaml:"max_velocity"`
	PositionTolerance float64   `koanf:"position_tolerance" yaml:"position_tolerance"`
}

type PIDConfig struct {
	Kp                float64 `koanf:"kp" yaml:"kp"`
	Ti                float64 `koanf:"ti" yaml:"ti"`
	Td                float64 `koanf:"td" yaml:"td"`
	Deadband          float64 `koanf:"deadband" yaml:"deadband"`
	MaxIStep          float64 `koanf:"max_i_step" yaml:"max_i_step"`
	MaxIntegral       float64 `koanf:"max_integral" yaml:"max_integral"`
	FrictionThreshold float64 `koanf:"friction_threshold" yaml:"friction_threshold"`
	FrictionBias      float64 `koanf:"friction_bias" yaml:"friction_bias"`
	MaxDelta          int     `koanf:"max_delta" yaml:"max_delta"`
	MaxCurrent        int     `koanf:"max_current" yaml:"max_current"`
}

type ScanConfig struct {
	ElEnabled bool `koanf:"el_enabled" yaml:"el_enabled"`
	AzEnabled bool `koanf:"az_enabled" yaml:"az_enabled"`
}

type SiteConfig struct {
	Latitude  float64 `koanf:"latitude" yaml:"latitude"`
	Longitude float64 `koanf:"longitude" yaml:"longitude"`
}

// AzimuthConfig locates the turntable's azimuth count (opt-in). Without it
// tracking runs on elevation alone.
type AzimuthConfig struct {
	Enabled  bool          `koanf:"enabled" yaml:"enabled"`
	Endpoint string        `koanf:"endpoint" yaml:"endpoint"` // host:port
	UnitID   uint8         `koanf:"unit_id" yaml:"unit_id"`
	Address  uint16        `koanf:"address" yaml:"address"`
	Scale    float64       `koanf:"scale" yaml:"scale"` // deg per count
	Timeout  time.Duration `koanf:"timeout" yaml:"timeout"`
	Interval time.Duration `koanf:"interval" yaml:"interval"`
	MaxAge   time.Duration `koanf:"max_age" yaml:"max_age"`
}

// ---- OUTPUTS ----

type TelemetryConfig struct {
	LockedHistory  bool          `koanf:"locked_history" yaml:"locked_history"`
	LogPath        string        `koanf:"log_path" yaml:"log_path"` // empty disables the motion log
	LogDepth       int           `koanf:"log_depth" yaml:"log_depth"`
	StreamInterval time.Duration `koanf:"stream_interval" yaml:"stream_interval"`
}

// StatusConfig places the status block in a Modbus memory endpoint (opt-in).
type StatusConfig struct {
	Enabled    bool          `koanf:"enabled" yaml:"enabled"`
	Endpoint   string        `koanf:"endpoint" yaml:"endpoint"`
	UnitID     uint16        `koanf:"unit_id" yaml:"unit_id"`
	BaseSlot   uint16        `koanf:"base_slot" yaml:"base_slot"`
	DeviceName string        `koanf:"device_name" yaml:"device_name"`
	Timeout    time.Duration `koanf:"timeout" yaml:"timeout"`
	Interval   time.Duration `koanf:"interval" yaml:"interval"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr" yaml:"addr"` // empty disables the API
}

type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"` // text or json
}

// Default is the configuration of the flight elevation axis on the
// simulated transport.
func Default() Config {
	return Config{
		Bus: BusConfig{
			Transport:        TransportSim,
			Interface:        "eth1",
			Period:           4600 * time.Microsecond,
			StatePollCycles:  40,
			MaxNetworkErrors: 3,
			RetryInitial:     100 * time.Millisecond,
			RetryMax:         5 * time.Second,
			Gateway: GatewayConfig{
				Endpoint: "tcp://127.0.0.1:502",
				UnitID:   1,
				Timeout:  20 * time.Millisecond,
				BaudRate: 115200,
				Parity:   "N",
			},
		},
		Encoder: EncoderConfig{
			CountsPerRev: 524288,
			VelocityUnit: 0.1,
		},
		Drive: DriveDefaults{
			CurrentLoopCp:     300,
			CurrentLoopCi:     40,
			PeakCurrent:       1200,
			ContinuousCurrent: 600,
			PeakTimeMs:        1000,
			HeartbeatMs:       100,
		},
		Controller: ControllerConfig{
			PID: PIDConfig{
				Kp:                25,
				Ti:                0.5,
				Deadband:          0.001,
				MaxIStep:          5,
				MaxIntegral:       400,
				FrictionThreshold: 50,
				FrictionBias:      300,
				MaxDelta:          40,
				MaxCurrent:        2000,
			},
			VelocityGain:      0.5,
			MaxVelocity:       2,
			PositionTolerance: 0.1,
		},
		Scan: ScanConfig{ElEnabled: true},
		Site: SiteConfig{Latitude: 34.5, Longitude: -104.2},
		Azimuth: AzimuthConfig{
			UnitID:   1,
			Scale:    0.01,
			Timeout:  100 * time.Millisecond,
			Interval: 50 * time.Millisecond,
			MaxAge:   time.Second,
		},
		Telemetry: TelemetryConfig{
			LogDepth:       1024,
			StreamInterval: 100 * time.Millisecond,
		},
		Status: StatusConfig{
			UnitID:     1,
			DeviceName: "EL-AXIS",
			Timeout:    time.Second,
			Interval:   200 * time.Millisecond,
		},
		HTTP: HTTPConfig{Addr: ":8000"},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
}
