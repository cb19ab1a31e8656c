// internal/mirror/runner.go
package mirror

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/tamzrod/eldrive/internal/drive"
	"github.com/tamzrod/eldrive/internal/motor"
	"github.com/tamzrod/eldrive/internal/scan"
	"github.com/tamzrod/eldrive/internal/status"
)

// Source is the part of the motor subsystem the mirror observes.
type Source interface {
	Health() motor.Health
	Latest() drive.Sample
	ScanState() scan.State
}

// Runner owns the snapshot: it folds subsystem health into it on every
// poll and advances seconds_in_error on a 1 Hz ticker.
type Runner struct {
	src      Source
	w        StatusWriter
	interval time.Duration
	log      *logrus.Entry
	errRate  *rate.Limiter

	snap status.Snapshot
}

func NewRunner(src Source, w StatusWriter, interval time.Duration, log *logrus.Entry) *Runner {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	if log == nil {
		log = logrus.WithField("component", "mirror")
	}
	return &Runner{
		src:      src,
		w:        w,
		interval: interval,
		log:      log,
		errRate:  rate.NewLimiter(rate.Every(30*time.Second), 1),
		snap:     status.Snapshot{Health: status.HealthUnknown},
	}
}

func (r *Runner) Run(ctx context.Context) {
	poll := time.NewTicker(r.interval)
	defer poll.Stop()
	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	// Full block write on start (identity re-assert).
	r.write("start")

	for {
		select {
		case <-ctx.Done():
			return

		case <-poll.C:
			r.snap = fold(r.snap, r.src.Health(), r.src.Latest(), r.src.ScanState())
			r.write("poll")

		case <-secTicker.C:
			// Tick 1 Hz while not OK.
			if r.snap.Health != status.HealthOK && r.snap.SecondsInError < status.MaxSecondsInError {
				r.snap.SecondsInError++
				r.write("seconds tick")
			}
		}
	}
}

func (r *Runner) write(what string) {
	if err := r.w.WriteStatus(r.snap); err != nil && r.errRate.Allow() {
		r.log.WithError(err).Warnf("status write failed (%s)", what)
	}
}

// fold derives the next snapshot. seconds_in_error only changes here when
// the axis becomes healthy again.
func fold(prev status.Snapshot, h motor.Health, smp drive.Sample, st scan.State) status.Snapshot {
	s := prev

	switch {
	case h.State == motor.StateStopped && h.LastErrorCode == 0:
		s.Health = status.HealthDisabled
	case h.LastErrorCode != 0 || h.State == motor.StateRecovering:
		s.Health = status.HealthError
	case h.Ready && h.Link.NetworkErrors > 0:
		s.Health = status.HealthStale
	case h.Ready:
		s.Health = status.HealthOK
	default:
		s.Health = status.HealthUnknown
	}

	s.LastErrorCode = h.LastErrorCode
	if s.Health == status.HealthError && s.LastErrorCode == 0 {
		s.LastErrorCode = 1
	}
	if s.Health == status.HealthOK {
		s.SecondsInError = 0
	}

	s.Ready = h.Ready
	s.CommsOK = h.Link.CommsOK
	s.PositionCdeg = status.Centi(smp.Position)
	s.VelocityCdeg = status.Centi16(smp.Velocity)
	s.CurrentMA = int16(math.Round(smp.Current * 1000))
	s.ScanCount = uint16(st.ScanCount)
	return s
}
