// internal/motor/subsystem.go

// Package motor runs the elevation axis: it brings the amplifier up, runs
// the fixed-period control loop and recovers the bus without limit when the
// cyclic link is lost.
package motor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/tamzrod/eldrive/internal/control"
	"github.com/tamzrod/eldrive/internal/drive"
	"github.com/tamzrod/eldrive/internal/fieldbus"
	"github.com/tamzrod/eldrive/internal/scan"
	"github.com/tamzrod/eldrive/internal/status"
)

// State is the lifecycle of the loop.
type State uint32

const (
	StateStarting State = iota
	StateRunning
	StateRecovering
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateRecovering:
		return "recovering"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Config is the runtime configuration of one axis.
type Config struct {
	Interface        string
	Period           time.Duration
	StatePollCycles  int
	MaxNetworkErrors int
	Layout           fieldbus.Layout

	Defaults drive.Defaults
	Encoder  drive.Encoder
	PID      control.PIDConfig
	Planner  control.PlannerConfig
	Scan     scan.Config

	LockedHistory           bool
	RelatchOffsetOnRecovery bool

	// Recovery pacing. Attempts never stop on their own.
	RetryInitial time.Duration
	RetryMax     time.Duration
}

func (c Config) validate() error {
	if c.Period <= 0 {
		return errors.New("motor: period must be > 0")
	}
	if c.MaxNetworkErrors < 0 {
		return errors.New("motor: max network errors must be >= 0")
	}
	if c.Planner.VelocityGain <= 0 || c.Planner.MaxVelocity <= 0 {
		return errors.New("motor: planner gain and max velocity must be > 0")
	}
	if err := c.PID.Validate(); err != nil {
		return fmt.Errorf("motor: %w", err)
	}
	return nil
}

// AzimuthSource reports the measured azimuth of the mount in degrees. It is
// provided by the turntable driver; without it tracking uses elevation only.
// A reading that is not Fresh is never used to declare the mount on target.
type AzimuthSource interface {
	Azimuth() float64
	Fresh(now time.Time) bool
}

// Options are the optional collaborators of a Subsystem.
type Options struct {
	Transformer scan.Transformer
	Azimuth     AzimuthSource
	Recorder    *drive.Recorder
	Log         *logrus.Entry
}

// Health summarises the loop for operators and the status block.
type Health struct {
	State          State              `json:"state"`
	Ready          bool               `json:"ready"`
	Link           fieldbus.LinkState `json:"link"`
	LastError      string             `json:"last_error,omitempty"`
	LastErrorCode  uint16             `json:"last_error_code"`
	ErrorSince     time.Time          `json:"error_since,omitempty"`
	Recoveries     uint64             `json:"recoveries"`
	LinkFaults     uint64             `json:"link_faults"`
	VelocityClamps uint64             `json:"velocity_clamps"`
	Cycles         uint64             `json:"cycles"`
	Overruns       uint64             `json:"overruns"`
	RecorderDrops  uint64             `json:"recorder_drops"`
	AzimuthStale   bool               `json:"azimuth_stale"`
	StaleAzimuth   uint64             `json:"stale_azimuth_cycles"`
}

// Subsystem owns everything the elevation loop touches. The loop goroutine
// (Run) is the only writer of the bus, the accessors and the PID; commands
// and readers from other goroutines go through mu, the offset channel or
// atomics.
type Subsystem struct {
	cfg    Config
	master fieldbus.Master
	params fieldbus.Params
	az     AzimuthSource
	rec    *drive.Recorder
	log    *logrus.Entry

	// loop-owned
	bus       *fieldbus.Bus
	acc       *drive.Accessors
	sampler   *drive.Sampler
	pid       *control.PID
	needLatch bool

	mu       sync.Mutex
	pointing scan.Pointing
	machine  *scan.Machine
	terms    control.Terms
	link     fieldbus.LinkState
	health   Health

	offsets chan float64

	readyMu sync.Mutex
	ready   bool
	readyCh chan struct{}

	state    atomic.Uint32
	running  atomic.Bool
	stopping atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}

	faultRate *rate.Limiter
	retryRate *rate.Limiter
}

// New validates cfg and builds an idle subsystem. Nothing touches the bus
// until Run.
func New(cfg Config, m fieldbus.Master, opt Options) (*Subsystem, error) {
	if m == nil {
		return nil, errors.New("motor: master required")
	}
	if cfg.PID.LoopRate == 0 && cfg.Period > 0 {
		cfg.PID.LoopRate = 1 / cfg.Period.Seconds()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(cfg.Layout.Rx) == 0 && len(cfg.Layout.Tx) == 0 {
		cfg.Layout = fieldbus.DefaultLayout()
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = 100 * time.Millisecond
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 5 * time.Second
	}

	log := opt.Log
	if log == nil {
		log = logrus.WithField("component", "motor")
	}

	acc := drive.NewAccessors(cfg.Encoder)
	s := &Subsystem{
		cfg:    cfg,
		master: m,
		params: fieldbus.Params{
			Interface:       cfg.Interface,
			Period:          cfg.Period,
			StatePollCycles: cfg.StatePollCycles,
			Layout:          cfg.Layout,
			Defaults:        cfg.Defaults.Writes(),
			Log:             log.WithField("component", "fieldbus"),
		},
		az:        opt.Azimuth,
		rec:       opt.Recorder,
		log:       log,
		acc:       acc,
		sampler:   drive.NewSampler(acc, drive.NewHistory(cfg.LockedHistory)),
		pid:       control.NewPID(cfg.PID),
		needLatch: true,
		machine:   scan.NewMachine(cfg.Scan, opt.Transformer),
		offsets:   make(chan float64, 1),
		readyCh:   make(chan struct{}),
		stopCh:    make(chan struct{}),
		faultRate: rate.NewLimiter(rate.Every(time.Second), 1),
		retryRate: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
	s.pointing.Destination = cfg.Encoder.MechanicalZero
	return s, nil
}

// ---- commands ----

// SetDestination points the axis at angle (deg) in position mode.
func (s *Subsystem) SetDestination(angle float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine.Active() {
		return ErrScanActive
	}
	s.pointing.Mode = scan.ModePosition
	s.pointing.Destination = angle
	return nil
}

// SetVelocity drives the axis at v (deg/s) in velocity mode.
func (s *Subsystem) SetVelocity(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine.Active() {
		return ErrScanActive
	}
	s.pointing.Mode = scan.ModeVelocity
	s.pointing.Velocity = v
	return nil
}

// ArmScan starts st from its first step on the next cycle.
func (s *Subsystem) ArmScan(st scan.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Arm(st)
}

// StopScan ends the active scan. A velocity-mode goal is brought to rest.
func (s *Subsystem) StopScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machine.Stop(&s.pointing)
}

// SetPositionOffset redefines the current shaft position as angle. It is
// applied by the loop at the start of its next cycle.
func (s *Subsystem) SetPositionOffset(angle float64) error {
	select {
	case s.offsets <- angle:
		return nil
	default:
		return ErrOffsetPending
	}
}

// Stop asks the loop to finish its cycle, disable the amplifier and return.
func (s *Subsystem) Stop() {
	s.stopping.Store(true)
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// ---- outputs ----

// Latest returns the most recent stable telemetry sample.
func (s *Subsystem) Latest() drive.Sample { return s.sampler.Latest() }

func (s *Subsystem) Pointing() scan.Pointing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pointing
}

func (s *Subsystem) ScanState() scan.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.State()
}

// Terms returns the controller diagnostics of the last cycle.
func (s *Subsystem) Terms() control.Terms {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terms
}

func (s *Subsystem) Link() fieldbus.LinkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link
}

func (s *Subsystem) State() State { return State(s.state.Load()) }

func (s *Subsystem) Health() Health {
	s.mu.Lock()
	h := s.health
	h.Link = s.link
	s.mu.Unlock()

	h.State = s.State()
	h.Ready = s.Ready()
	if s.rec != nil {
		h.RecorderDrops = s.rec.Dropped()
	}
	return h
}

// Ready reports whether the last cycle exchanged a verified frame.
func (s *Subsystem) Ready() bool {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	return s.ready
}

// WaitReady blocks until the loop is ready or ctx ends.
func (s *Subsystem) WaitReady(ctx context.Context) error {
	s.readyMu.Lock()
	ch := s.readyCh
	ready := s.ready
	s.readyMu.Unlock()
	if ready {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Subsystem) setReady(v bool) {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	if v == s.ready {
		return
	}
	s.ready = v
	if v {
		close(s.readyCh)
	} else {
		s.readyCh = make(chan struct{})
	}
}

func (s *Subsystem) setState(st State) {
	if old := State(s.state.Swap(uint32(st))); old != st {
		s.log.WithFields(logrus.Fields{"from": old, "to": st}).Info("state change")
	}
}

// noteError records err as the last error. The error clock starts at the
// first error after a healthy period.
func (s *Subsystem) noteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health.LastError = err.Error()
	s.health.LastErrorCode = status.ErrorCode(err)
	if s.health.ErrorSince.IsZero() {
		s.health.ErrorSince = time.Now()
	}
}

func (s *Subsystem) clearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health.LastError = ""
	s.health.LastErrorCode = 0
	s.health.ErrorSince = time.Time{}
}
