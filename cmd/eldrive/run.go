// cmd/eldrive/run.go
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tamzrod/eldrive/internal/azimuth"
	"github.com/tamzrod/eldrive/internal/config"
	"github.com/tamzrod/eldrive/internal/drive"
	"github.com/tamzrod/eldrive/internal/mirror"
	"github.com/tamzrod/eldrive/internal/motor"
	"github.com/tamzrod/eldrive/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the elevation loop",
	Long: `Run brings the amplifier up and runs the control loop until SIGINT or
SIGTERM, then leaves the amplifier at zero current and disabled.

A failure of the first bring-up ends the process with an error; later link
losses are recovered in place.`,
	RunE: runDrive,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDrive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logrus.WithField("component", "eldrive")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// side tasks outlive the loop so the disable sequence is still logged
	// and mirrored
	auxCtx, cancelAux := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer func() {
		cancelAux()
		wg.Wait()
	}()

	// --------------------
	// Motion log
	// --------------------

	var rec *drive.Recorder
	if cfg.Telemetry.LogPath != "" {
		f, err := os.OpenFile(cfg.Telemetry.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		rec = drive.NewRecorder(f, cfg.Telemetry.LogDepth, logrus.WithField("component", "recorder"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Run(auxCtx)
			if err := f.Close(); err != nil {
				log.WithError(err).Warn("motion log close failed")
			}
		}()
	}

	// --------------------
	// Subsystem and its collaborators
	// --------------------

	var az motor.AzimuthSource
	if cfg.Azimuth.Enabled {
		p, err := azimuth.Build(cfg.Azimuth, logrus.WithField("component", "azimuth"))
		if err != nil {
			return err
		}
		az = p
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(auxCtx)
		}()
	}

	sub, _, err := motor.Build(cfg, rec, az, logrus.WithField("component", "motor"))
	if err != nil {
		return err
	}

	if cfg.Status.Enabled {
		if err := startMirror(auxCtx, &wg, cfg.Status, sub); err != nil {
			return err
		}
	}

	if cfg.HTTP.Addr != "" {
		api := server.New(sub, server.Config{StreamInterval: cfg.Telemetry.StreamInterval}, logrus.WithField("component", "http"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := api.ListenAndServe(auxCtx, cfg.HTTP.Addr); err != nil {
				log.WithError(err).Error("http server failed")
			}
		}()
	}

	log.WithFields(logrus.Fields{
		"transport": cfg.Bus.Transport,
		"interface": cfg.Bus.Interface,
		"period":    cfg.Bus.Period,
	}).Info("starting")

	if err := sub.Run(ctx); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}

func startMirror(ctx context.Context, wg *sync.WaitGroup, c config.StatusConfig, src mirror.Source) error {
	link, err := mirror.NewLink(mirror.LinkConfig{Endpoint: c.Endpoint, Timeout: c.Timeout})
	if err != nil {
		return err
	}
	w, err := mirror.NewStatusWriter(mirror.Plan{
		UnitID:     c.UnitID,
		BaseSlot:   c.BaseSlot,
		DeviceName: c.DeviceName,
	}, link)
	if err != nil {
		return err
	}

	r := mirror.NewRunner(src, w, c.Interval, logrus.WithField("component", "mirror"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer link.Close()
		r.Run(ctx)
	}()
	return nil
}
