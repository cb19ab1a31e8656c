// internal/config/config_test.go
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Bus.Transport = "ethercat"
	cfg.Bus.Period = 0
	cfg.Controller.PID.MaxCurrent = 40000
	cfg.Log.Level = "loud"

	err := Validate(&cfg)
	if err == nil {
		t.Fatalf("expected errors")
	}
	if n := len(multierr.Errors(err)); n != 4 {
		t.Fatalf("expected 4 problems, got %d: %v", n, err)
	}
}

func TestValidate_Gateway(t *testing.T) {
	cfg := Default()
	cfg.Bus.Transport = TransportGateway

	cfg.Bus.Gateway.Endpoint = "tcp://10.0.0.5:502"
	if err := Validate(&cfg); err != nil {
		t.Fatalf("tcp gateway rejected: %v", err)
	}

	cfg.Bus.Gateway.Endpoint = "rtu:///dev/ttyUSB0"
	if err := Validate(&cfg); err != nil {
		t.Fatalf("rtu gateway rejected: %v", err)
	}

	cfg.Bus.Gateway.Parity = "X"
	if err := Validate(&cfg); err == nil {
		t.Fatalf("bad parity accepted")
	}

	cfg.Bus.Gateway.Parity = "N"
	cfg.Bus.Gateway.Endpoint = "udp://10.0.0.5:502"
	if err := Validate(&cfg); err == nil {
		t.Fatalf("udp scheme accepted")
	}
}

func TestValidate_StatusMirror(t *testing.T) {
	cfg := Default()
	cfg.Status.Enabled = true
	if err := Validate(&cfg); err == nil {
		t.Fatalf("enabled mirror without endpoint accepted")
	}

	cfg.Status.Endpoint = "127.0.0.1:1502"
	cfg.Status.DeviceName = "ÉLÉVATION"
	if err := Validate(&cfg); err == nil {
		t.Fatalf("non-ASCII device name accepted")
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	cfg := Default()
	cfg.Bus.Transport = "SIM"
	cfg.Status.DeviceName = "ELEVATION-AXIS-PRIMARY"
	before := cfg

	_ = Validate(&cfg)
	if cfg != before {
		t.Fatalf("Validate mutated the configuration")
	}
}

func TestNormalize(t *testing.T) {
	cfg := Default()
	cfg.Bus.Transport = "Gateway"
	cfg.Scan = ScanConfig{}
	cfg.Controller.PositionTolerance = 0
	cfg.Status.DeviceName = "ELEVATION-AXIS-PRIMARY"

	Normalize(&cfg)

	if cfg.Bus.Transport != TransportGateway {
		t.Fatalf("transport %q", cfg.Bus.Transport)
	}
	if !cfg.Scan.ElEnabled || cfg.Scan.AzEnabled {
		t.Fatalf("scan axes %+v", cfg.Scan)
	}
	if cfg.Controller.PositionTolerance != 0.1 {
		t.Fatalf("tolerance %v", cfg.Controller.PositionTolerance)
	}
	if cfg.Status.DeviceName != "ELEVATION-AXIS-P" {
		t.Fatalf("device name %q", cfg.Status.DeviceName)
	}
}

func TestLoad_FileAndEnvironmentOverrideDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eldrive.yml")
	yml := `
bus:
  period: 5ms
  max_network_errors: 7
controller:
  pid:
    kp: 40
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ELDRIVE_BUS__INTERFACE", "eth9")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Bus.Period != 5*time.Millisecond || cfg.Bus.MaxNetworkErrors != 7 {
		t.Fatalf("file values not applied: %+v", cfg.Bus)
	}
	if cfg.Controller.PID.Kp != 40 || cfg.Controller.PID.MaxCurrent != 2000 {
		t.Fatalf("pid %+v", cfg.Controller.PID)
	}
	if cfg.Bus.Interface != "eth9" {
		t.Fatalf("env override not applied: %q", cfg.Bus.Interface)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Bus.Period != Default().Bus.Period {
		t.Fatalf("period %v", cfg.Bus.Period)
	}
}

func TestDump_RoundTripsThroughLoad(t *testing.T) {
	want := Default()
	want.Bus.Period = 3 * time.Millisecond
	want.Site.Latitude = -77.85

	var buf bytes.Buffer
	if err := Dump(&buf, want); err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.Contains(buf.String(), "period: 3ms") {
		t.Fatalf("durations should be human readable:\n%s", buf.String())
	}

	path := filepath.Join(t.TempDir(), "dump.yml")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *got != want {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", *got, want)
	}
}
