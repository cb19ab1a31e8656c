// internal/motor/loop.go
package motor

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"

	"github.com/tamzrod/eldrive/internal/control"
	"github.com/tamzrod/eldrive/internal/drive"
	"github.com/tamzrod/eldrive/internal/fieldbus"
	"github.com/tamzrod/eldrive/internal/scan"
)

// Run brings the bus up and runs the control loop until ctx ends or Stop is
// called. A failure of the first bring-up is returned; every later loss of
// the link is recovered in place. Run returns nil after the disable
// sequence.
func (s *Subsystem) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	if s.stopping.Load() {
		s.setState(StateStopped)
		return ErrStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.setState(StateStarting)
	if err := s.bringUp(); err != nil {
		s.noteError(err)
		s.setState(StateStopped)
		return err
	}
	s.setState(StateRunning)

	next := time.Now()
	for !s.stopping.Load() && ctx.Err() == nil {
		if s.State() == StateRecovering {
			if err := s.recover(ctx); err != nil {
				break
			}
			s.setState(StateRunning)
			next = time.Now()
			continue
		}

		if !s.cycle(time.Now()) {
			s.setState(StateRecovering)
			continue
		}

		next = next.Add(s.cfg.Period)
		if now := time.Now(); now.After(next) {
			s.mu.Lock()
			s.health.Overruns++
			s.mu.Unlock()
			next = now
		}
		sleepUntil(ctx, next)
	}

	s.setState(StateStopping)
	s.shutdown()
	s.setState(StateStopped)
	return nil
}

func sleepUntil(ctx context.Context, deadline time.Time) {
	d := time.Until(deadline)
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// bringUp runs one attempt and attaches the new bus. A bus whose link gate
// stayed closed is released and reported as NotOperationalError.
func (s *Subsystem) bringUp() error {
	bus, err := fieldbus.BringUp(s.master, s.params)
	if err != nil {
		return err
	}
	if !bus.Link.CommsOK {
		err := &NotOperationalError{Link: bus.Link}
		_ = bus.Close()
		return err
	}

	s.bus = bus
	s.acc.Attach(bus)
	s.publishLink()
	s.clearError()
	return nil
}

// cycle runs one control period. It reports false when the link is lost and
// recovery must run.
func (s *Subsystem) cycle(now time.Time) bool {
	acc := s.acc

	acc.SetControlWord(fieldbus.ControlEnable)
	ok := s.bus.Exchange()
	s.publishLink()

	if !ok {
		if n := s.bus.Link.NetworkErrors; n > s.cfg.MaxNetworkErrors {
			s.fault(&fieldbus.LinkFault{MissedFrames: n})
			return false
		}
		// Inputs are stale; keep the last command and flag the sample.
		s.sampler.Sample(true)
		s.countCycle()
		return true
	}

	if w, r := acc.ControlWordWrite(), acc.ControlWordRead(); w != r {
		s.fault(&fieldbus.LinkFault{Written: w, Read: r})
		return false
	}
	s.setReady(true)

	if s.needLatch {
		acc.LatchOffset()
		s.needLatch = false
		s.log.WithField("offset", acc.Offset()).Info("position offset latched")
	}
	select {
	case angle := <-s.offsets:
		acc.SetPositionOffset(angle)
		s.log.WithFields(logrus.Fields{"angle": angle, "offset": acc.Offset()}).Info("position offset set")
	default:
	}

	sample := s.sampler.Sample(false)

	az, stale := 0.0, false
	if s.az != nil {
		az = s.az.Azimuth()
		if !s.az.Fresh(now) {
			// NaN keeps the azimuth axis off target until the turntable reports again
			az, stale = math.NaN(), true
		}
	}

	s.mu.Lock()
	if stale && !s.health.AzimuthStale {
		s.log.Warn("azimuth reading stale")
	}
	s.health.AzimuthStale = stale
	if stale {
		s.health.StaleAzimuth++
	}
	s.machine.Step(now, sample.Position, az, &s.pointing)
	pointing := s.pointing
	st := s.machine.State()
	s.mu.Unlock()

	plan := control.PlanVelocity(pointing, sample.Position, s.cfg.Planner)
	mA := s.pid.Compute(plan.Velocity, sample.Velocity)
	acc.SetCurrent(mA)

	s.mu.Lock()
	if pointing.Mode == scan.ModePosition {
		s.pointing.OnTargetEl = plan.OnTarget
	}
	if plan.Clamped {
		s.health.VelocityClamps++
	}
	s.terms = s.pid.Terms()
	s.mu.Unlock()

	if s.rec != nil {
		s.rec.Record(drive.Record{
			At:        sample.At,
			Position:  sample.Position,
			Velocity:  sample.Velocity,
			Current:   float64(mA) / 1000,
			ScanCount: st.ScanCount,
			NScans:    st.NScans,
		})
	}
	s.countCycle()
	return true
}

func (s *Subsystem) countCycle() {
	s.mu.Lock()
	s.health.Cycles++
	s.mu.Unlock()
}

func (s *Subsystem) publishLink() {
	var l fieldbus.LinkState
	if s.bus != nil {
		l = s.bus.Link
	}
	s.mu.Lock()
	s.link = l
	s.mu.Unlock()
}

// fault marks the loop not ready and records a steady-state link loss. The
// log is throttled; the counters are not.
func (s *Subsystem) fault(err *fieldbus.LinkFault) {
	s.setReady(false)
	s.noteError(err)
	s.mu.Lock()
	s.health.LinkFaults++
	s.mu.Unlock()
	if s.faultRate.Allow() {
		s.log.WithError(err).Warn("link lost, recovering")
	}
}

// recover releases the bus and re-runs bring-up until it succeeds or the
// loop is stopped. Attempts never give up on their own.
func (s *Subsystem) recover(ctx context.Context) error {
	s.setReady(false)
	s.acc.Detach()
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.log.WithError(err).Debug("close before recovery")
		}
		s.bus = nil
	}
	s.publishLink()
	s.pid.Reset()

	b := &backoff.ExponentialBackOff{
		InitialInterval:     s.cfg.RetryInitial,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         s.cfg.RetryMax,
		MaxElapsedTime:      0,
		Clock:               backoff.SystemClock,
	}

	attempts := 0
	op := func() error {
		if s.stopping.Load() {
			return ErrStopped
		}
		attempts++
		return s.bringUp()
	}
	notify := func(err error, wait time.Duration) {
		s.noteError(err)
		if s.retryRate.Allow() {
			s.log.WithError(err).WithFields(logrus.Fields{
				"attempt": attempts,
				"retry":   wait,
			}).Warn("recovery attempt failed")
		}
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return err
	}

	if s.cfg.RelatchOffsetOnRecovery {
		s.needLatch = true
	}
	s.mu.Lock()
	s.health.Recoveries++
	s.mu.Unlock()
	s.log.WithField("attempts", attempts).Info("bus recovered")
	return nil
}

// shutdown leaves the amplifier with zero current and disabled.
func (s *Subsystem) shutdown() {
	s.setReady(false)
	if s.bus == nil {
		return
	}
	s.acc.SetCurrent(0)
	s.acc.SetControlWord(fieldbus.ControlDisable)
	if !s.bus.Exchange() {
		s.log.Warn("disable frame not acknowledged")
	}
	s.acc.Detach()
	if err := s.bus.Close(); err != nil {
		s.log.WithError(err).Warn("close failed")
	}
	s.bus = nil
	s.publishLink()
	s.log.Info("amplifier disabled")
}
