// cmd/eldrive/root.go
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tamzrod/eldrive/internal/config"
)

// Version is injected with -ldflags at build time.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "eldrive",
	Short: "Elevation axis drive for the balloon telescope",
	Long: `eldrive runs the elevation motor of the gondola: it brings the servo
amplifier up on the fieldbus, closes the velocity loop at the bus period,
executes dither, tracking and chop scans, and recovers the bus whenever the
cyclic link is lost.

Configuration is layered: built-in defaults, then the YAML file given with
--config, then ELDRIVE_ environment variables (ELDRIVE_BUS__PERIOD=5ms sets
bus.period).`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "eldrive.yml", "Configuration file")
}

// loadConfig loads, validates and normalizes the configuration and sets up
// logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	config.Normalize(cfg)

	if err := setupLogging(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(c config.LogConfig) error {
	if c.Level != "" {
		lvl, err := logrus.ParseLevel(c.Level)
		if err != nil {
			return err
		}
		logrus.SetLevel(lvl)
	}
	if c.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logrus.SetOutput(os.Stderr)
	return nil
}
