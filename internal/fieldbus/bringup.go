// internal/fieldbus/bringup.go
package fieldbus

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// DefaultStatePollCycles bounds the SAFE-OP to OP transition.
const DefaultStatePollCycles = 40

// DefaultWrite is one best-effort device parameter applied after the bus is
// operational.
type DefaultWrite struct {
	Name  string
	Index uint16
	Sub   uint8
	Data  []byte
}

// Params configures one bring-up attempt.
type Params struct {
	Interface       string
	Period          time.Duration
	StatePollCycles int
	Layout          Layout
	Defaults        []DefaultWrite
	Log             *logrus.Entry
}

func (p Params) logger() *logrus.Entry {
	if p.Log != nil {
		return p.Log
	}
	return logrus.WithField("component", "fieldbus")
}

// BringUp opens the interface, discovers the amplifier, negotiates the
// process-data mapping, drives the segment to OP and applies device defaults.
// Each step fails fast; on failure the interface is released.
func BringUp(m Master, p Params) (*Bus, error) {
	log := p.logger().WithField("interface", p.Interface)

	if err := m.Open(p.Interface); err != nil {
		log.WithError(err).Error("interface open failed")
		return nil, &InterfaceError{Interface: p.Interface, Err: err}
	}

	bus, err := bringUp(m, p, log)
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	return bus, nil
}

func bringUp(m Master, p Params, log *logrus.Entry) (*Bus, error) {
	status := StatusInit

	// ------------------------------------------------------------
	// Discovery: exactly one amplifier
	// ------------------------------------------------------------

	n, err := m.Slaves()
	if err != nil {
		log.WithError(err).Error("slave discovery failed")
		return nil, &TopologyError{Err: err}
	}
	if n != 1 {
		if n > 1 {
			status = StatusFoundPartial
		}
		log.WithFields(logrus.Fields{"found": n, "status": status}).Error("unexpected slave count")
		return nil, &TopologyError{Found: n}
	}
	log.Info("amplifier found")

	// ------------------------------------------------------------
	// Process-data assignment, then read back from the device
	// ------------------------------------------------------------

	if err := assign(m, p.Layout, log); err != nil {
		return nil, err
	}

	rm, err := ReadRegisterMap(m)
	if err != nil {
		log.WithError(err).Error("pdo read-back failed")
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"entries": len(rm.Entries),
		"out":     rm.OutSize,
		"in":      rm.InSize,
	}).Info("register map built")

	bus := newBus(m, rm)
	bus.Link.Status = StatusFound

	// ------------------------------------------------------------
	// Distributed clock (optional)
	// ------------------------------------------------------------

	if m.HasDistributedClock() {
		if err := m.ConfigureDistributedClock(p.Period); err != nil {
			log.WithError(err).Warn("distributed clock configuration failed, running unsynchronised")
		} else {
			bus.Link.HasDC = true
		}
	} else {
		log.Warn("amplifier has no distributed clock, running unsynchronised")
	}

	if err := m.ConfigureProcessImage(rm.OutSize, rm.InSize); err != nil {
		log.WithError(err).Error("process image configuration failed")
		return nil, &StateError{Want: StateSafeOp, Err: err}
	}

	// ------------------------------------------------------------
	// SAFE-OP -> OP
	// ------------------------------------------------------------

	st, err := transition(bus, p.StatePollCycles)
	if err != nil {
		log.WithError(err).Error("bus state transition failed")
		return nil, err
	}

	bus.Link.SlaveError = st&StateErrorFlag != 0
	bus.Link.update()

	// ------------------------------------------------------------
	// Device defaults (best effort)
	// ------------------------------------------------------------

	if errs := applyDefaults(m, p.Defaults, log); errs != nil {
		if len(multierr.Errors(errs)) == len(p.Defaults) {
			log.WithError(errs).Error("every device default was rejected")
			bus.Link.SlaveError = true
			bus.Link.update()
		}
	}

	log.WithFields(logrus.Fields{
		"comms_ok": bus.Link.CommsOK,
		"dc":       bus.Link.HasDC,
		"status":   bus.Link.Status,
	}).Info("bus operational")

	return bus, nil
}

// assign clears the existing assignment and writes the requested groups.
// Each failed write aborts with the object address that failed.
func assign(m Master, layout Layout, log *logrus.Entry) error {
	if len(layout.Rx) > MaxGroups || len(layout.Tx) > MaxGroups {
		return &MappingError{Err: fmt.Errorf("at most %d groups per direction", MaxGroups)}
	}

	write := func(index uint16, sub uint8, data []byte) error {
		if err := m.WriteObject(index, sub, data); err != nil {
			log.WithError(err).Errorf("mapping write rejected at 0x%04X:%02X", index, sub)
			return &MappingError{Index: index, Sub: sub, Err: err}
		}
		return nil
	}

	if err := write(ObjRxAssign, 0, U8(0)); err != nil {
		return err
	}
	if err := write(ObjTxAssign, 0, U8(0)); err != nil {
		return err
	}

	for _, side := range []struct {
		assign uint16
		base   uint16
		groups []Group
	}{
		{ObjRxAssign, ObjRxMapBase, layout.Rx},
		{ObjTxAssign, ObjTxMapBase, layout.Tx},
	} {
		for gi, g := range side.groups {
			pdo := side.base + uint16(gi)

			if err := write(pdo, 0, U8(0)); err != nil {
				return err
			}
			for mi, mp := range g {
				word := PackPDOMapping(mp.Index, mp.Sub, mp.Bits)
				if err := write(pdo, uint8(mi+1), U32(word)); err != nil {
					return err
				}
			}
			if err := write(pdo, 0, U8(uint8(len(g)))); err != nil {
				return err
			}
			if err := write(side.assign, uint8(gi+1), U16(pdo)); err != nil {
				return err
			}
		}
		if err := write(side.assign, 0, U8(uint8(len(side.groups)))); err != nil {
			return err
		}
	}

	return nil
}

// transition drives SAFE-OP then OP, bounded by cycles exchanges.
func transition(bus *Bus, cycles int) (ALState, error) {
	if cycles <= 0 {
		cycles = DefaultStatePollCycles
	}
	m := bus.master

	if err := m.RequestState(StateSafeOp); err != nil {
		return StateNone, &StateError{Want: StateSafeOp, Err: err}
	}
	st, err := m.State()
	if err != nil {
		return st, &StateError{Want: StateSafeOp, Got: st, Err: err}
	}
	if st&^StateErrorFlag != StateSafeOp {
		return st, &StateError{Want: StateSafeOp, Got: st}
	}

	if err := m.RequestState(StateOp); err != nil {
		return st, &StateError{Want: StateOp, Got: st, Err: err}
	}
	for i := 0; i < cycles; i++ {
		bus.Exchange()
		st, err = m.State()
		if err != nil {
			continue
		}
		if st&^StateErrorFlag == StateOp {
			bus.Link.NetworkErrors = 0
			return st, nil
		}
	}
	return st, &StateError{Want: StateOp, Got: st}
}

func applyDefaults(m Master, defaults []DefaultWrite, log *logrus.Entry) error {
	var errs error
	for _, d := range defaults {
		if err := m.WriteObject(d.Index, d.Sub, d.Data); err != nil {
			log.WithError(err).Warnf("default %s (0x%04X:%02X) not applied", d.Name, d.Index, d.Sub)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", d.Name, err))
		}
	}
	return errs
}
