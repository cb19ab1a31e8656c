// internal/config/normalize.go
package config

import "strings"

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.Bus.Transport = strings.ToLower(cfg.Bus.Transport)
	cfg.Bus.Gateway.Parity = strings.ToUpper(cfg.Bus.Gateway.Parity)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	// Tracking with no axis enabled falls back to elevation.
	if !cfg.Scan.ElEnabled && !cfg.Scan.AzEnabled {
		cfg.Scan.ElEnabled = true
	}
	if cfg.Controller.PositionTolerance == 0 {
		cfg.Controller.PositionTolerance = 0.1
	}

	// device_name: ASCII already validated, truncate to 16 characters.
	if len(cfg.Status.DeviceName) > 16 {
		cfg.Status.DeviceName = cfg.Status.DeviceName[:16]
	}
}
