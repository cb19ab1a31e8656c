// internal/fieldbus/sim/amplifier.go

// Package sim is an in-process fieldbus segment holding one simulated current
// amplifier driving an inertial load. It implements fieldbus.Master and is
// used for bench runs without hardware and by the test suites.
package sim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tamzrod/eldrive/internal/fieldbus"
)

var (
	ErrNotOpen        = errors.New("sim: interface not open")
	ErrNoObject       = errors.New("sim: object does not exist")
	ErrRejected       = errors.New("sim: write rejected by device")
	ErrNoProcessImage = errors.New("sim: process image not configured")
)

// Config describes the simulated amplifier and its load.
type Config struct {
	Slaves       int // devices on the segment; 0 means 1
	NoDC         bool
	CountsPerRev float64
	Period       time.Duration

	// OpAfter is the number of exchanges after an OP request before the
	// device reports OP.
	OpAfter int

	// Load model: angular acceleration per amp and viscous damping.
	AccelPerAmp float64 // deg/s^2 per A
	Damping     float64 // 1/s

	StartPosition float64 // deg, raw shaft angle at power-up
}

type key struct {
	index uint16
	sub   uint8
}

// Amplifier is the simulated segment. All methods are safe for concurrent use.
type Amplifier struct {
	mu  sync.Mutex
	cfg Config

	od map[key][]byte

	open      bool
	state     fieldbus.ALState
	opPending int
	rm        *fieldbus.RegisterMap

	posDeg  float64
	velDeg  float64
	command int16 // mA
	control uint16

	openErr  error
	reject   map[uint16]bool
	badCW    int
	miss     int
	stuck    bool
	opens    int
	exchange int
}

// New returns an amplifier in the powered-off state.
func New(cfg Config) *Amplifier {
	if cfg.Slaves == 0 {
		cfg.Slaves = 1
	}
	if cfg.CountsPerRev == 0 {
		cfg.CountsPerRev = 524288
	}
	if cfg.Period == 0 {
		cfg.Period = 4600 * time.Microsecond
	}
	if cfg.OpAfter == 0 {
		cfg.OpAfter = 3
	}
	if cfg.AccelPerAmp == 0 {
		cfg.AccelPerAmp = 20
	}
	if cfg.Damping == 0 {
		cfg.Damping = 2
	}
	return &Amplifier{
		cfg:    cfg,
		od:     make(map[key][]byte),
		state:  fieldbus.StateInit,
		reject: make(map[uint16]bool),
		posDeg: cfg.StartPosition,
	}
}

// ---- fault injection and inspection ----

// FailOpen makes every Open return err until cleared with nil.
func (a *Amplifier) FailOpen(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.openErr = err
}

// SetSlaves changes the number of devices discovery reports.
func (a *Amplifier) SetSlaves(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.Slaves = n
}

// RejectWrites makes writes to the given object index fail.
func (a *Amplifier) RejectWrites(index uint16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reject[index] = true
}

// CorruptControlWord echoes a wrong control word for the next n exchanges.
func (a *Amplifier) CorruptControlWord(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.badCW = n
}

// MissFrames drops the working counter for the next n exchanges.
func (a *Amplifier) MissFrames(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.miss = n
}

// StickInSafeOp keeps the device from ever reaching OP.
func (a *Amplifier) StickInSafeOp(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stuck = v
}

// Opens counts successful Open calls (one per bring-up attempt that got past
// the interface).
func (a *Amplifier) Opens() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opens
}

// Exchanges counts cyclic frames processed.
func (a *Amplifier) Exchanges() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exchange
}

// Position returns the raw shaft angle in degrees.
func (a *Amplifier) Position() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.posDeg
}

// Command returns the last commanded current in amps and control word.
func (a *Amplifier) Command() (float64, uint16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return float64(a.command) / 1000, a.control
}

// Object returns the raw bytes last written to an object.
func (a *Amplifier) Object(index uint16, sub uint8) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.od[key{index, sub}]
	return b, ok
}

// ---- fieldbus.Master ----

func (a *Amplifier) Open(ifname string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.openErr != nil {
		return a.openErr
	}
	a.open = true
	a.state = fieldbus.StateInit
	a.rm = nil
	a.opens++
	return nil
}

func (a *Amplifier) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open = false
	a.state = fieldbus.StateInit
	a.command = 0
	a.control = 0
	return nil
}

func (a *Amplifier) Slaves() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return 0, ErrNotOpen
	}
	return a.cfg.Slaves, nil
}

func (a *Amplifier) ReadObject(index uint16, sub uint8, size int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return nil, ErrNotOpen
	}
	b, ok := a.od[key{index, sub}]
	if !ok {
		return nil, fmt.Errorf("0x%04X:%02X: %w", index, sub, ErrNoObject)
	}
	out := make([]byte, size)
	copy(out, b)
	return out, nil
}

func (a *Amplifier) WriteObject(index uint16, sub uint8, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return ErrNotOpen
	}
	if a.reject[index] {
		return fmt.Errorf("0x%04X:%02X: %w", index, sub, ErrRejected)
	}
	a.od[key{index, sub}] = append([]byte(nil), data...)
	return nil
}

func (a *Amplifier) HasDistributedClock() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.cfg.NoDC
}

func (a *Amplifier) ConfigureDistributedClock(period time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cfg.NoDC {
		return errors.New("sim: distributed clock not supported")
	}
	if period > 0 {
		a.cfg.Period = period
	}
	return nil
}

func (a *Amplifier) ConfigureProcessImage(outSize, inSize int) error {
	// ReadRegisterMap goes through ReadObject, so it runs unlocked.
	rm, err := fieldbus.ReadRegisterMap(a)
	if err != nil {
		return err
	}
	if rm.OutSize != outSize || rm.InSize != inSize {
		return fmt.Errorf("sim: image size mismatch: device %d/%d, host %d/%d",
			rm.OutSize, rm.InSize, outSize, inSize)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rm = rm
	a.state = fieldbus.StatePreOp
	return nil
}

func (a *Amplifier) RequestState(s fieldbus.ALState) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return ErrNotOpen
	}
	switch s {
	case fieldbus.StateSafeOp:
		if a.rm == nil {
			return ErrNoProcessImage
		}
		a.state = fieldbus.StateSafeOp
	case fieldbus.StateOp:
		a.opPending = a.cfg.OpAfter
	default:
		a.state = s
	}
	return nil
}

func (a *Amplifier) State() (fieldbus.ALState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return fieldbus.StateNone, ErrNotOpen
	}
	return a.state, nil
}

func (a *Amplifier) ExpectedWKC() int { return 3 }

func (a *Amplifier) Exchange(out, in []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.open {
		return 0, ErrNotOpen
	}
	if a.rm == nil {
		return 0, ErrNoProcessImage
	}
	if a.miss > 0 {
		a.miss--
		return 0, nil
	}
	a.exchange++

	if a.opPending > 0 && !a.stuck {
		a.opPending--
		if a.opPending == 0 {
			a.state = fieldbus.StateOp
		}
	}

	if a.state == fieldbus.StateOp {
		if b := a.slice(out, fieldbus.Out, fieldbus.ObjCurrentCommand); b != nil {
			a.command = int16(binary.LittleEndian.Uint16(b))
		}
		if b := a.slice(out, fieldbus.Out, fieldbus.ObjControlWord); b != nil {
			a.control = binary.LittleEndian.Uint16(b)
		}
	}

	a.step()
	a.fill(in)
	return a.ExpectedWKC(), nil
}

// step integrates the load over one period.
func (a *Amplifier) step() {
	dt := a.cfg.Period.Seconds()
	amps := 0.0
	if a.control&fieldbus.ControlEnable == fieldbus.ControlEnable {
		amps = float64(a.command) / 1000
	}
	acc := amps*a.cfg.AccelPerAmp - a.cfg.Damping*a.velDeg
	a.velDeg += acc * dt
	a.posDeg += a.velDeg * dt
}

func (a *Amplifier) fill(in []byte) {
	countsPerDeg := a.cfg.CountsPerRev / 360

	put32 := func(index uint16, v uint32) {
		if b := a.slice(in, fieldbus.In, index); len(b) == 4 {
			binary.LittleEndian.PutUint32(b, v)
		}
	}
	put16 := func(index uint16, v uint16) {
		if b := a.slice(in, fieldbus.In, index); len(b) == 2 {
			binary.LittleEndian.PutUint16(b, v)
		}
	}

	cw := a.control
	if a.badCW > 0 {
		a.badCW--
		cw = ^cw
	}

	status := uint16(0x0250)
	if a.control&fieldbus.ControlEnable == fieldbus.ControlEnable {
		status = 0x0237
	}

	phase := math.Mod(a.posDeg*4, 360)
	if phase < 0 {
		phase += 360
	}

	put32(fieldbus.ObjPositionActual, uint32(int32(math.Round(a.posDeg*countsPerDeg))))
	put32(fieldbus.ObjVelocityActual, uint32(int32(math.Round(a.velDeg*countsPerDeg*10))))
	put16(fieldbus.ObjControlWord, cw)
	put16(fieldbus.ObjStatusWord, status)
	put32(fieldbus.ObjDriveStatus, 0)
	put16(fieldbus.ObjActualCurrent, uint16(a.command))
	put16(fieldbus.ObjTemperature, 31)
	put16(fieldbus.ObjCommutation, uint16(phase/360*65536))
	put32(fieldbus.ObjLatchedFaults, 0)
}

func (a *Amplifier) slice(img []byte, dir fieldbus.Dir, index uint16) []byte {
	e, ok := a.rm.Lookup(dir, index, 0)
	if !ok || e.Offset+e.Size > len(img) {
		return nil
	}
	return img[e.Offset : e.Offset+e.Size]
}
