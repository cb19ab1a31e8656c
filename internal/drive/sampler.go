// internal/drive/sampler.go
package drive

import "time"

// Sampler copies one row of accessor values into the history per cycle.
type Sampler struct {
	acc  *Accessors
	hist History
	now  func() time.Time
}

func NewSampler(acc *Accessors, hist History) *Sampler {
	return &Sampler{acc: acc, hist: hist, now: time.Now}
}

// Sample reads every accessor, stores the row and returns it.
func (s *Sampler) Sample(networkProblem bool) Sample {
	a := s.acc
	row := Sample{
		At:               s.now(),
		Position:         a.Position(),
		Velocity:         a.Velocity(),
		Current:          a.Current(),
		Temperature:      a.Temperature(),
		StatusWord:       a.StatusWord(),
		DriveStatus:      a.DriveStatus(),
		LatchedFaults:    a.LatchedFaults(),
		ControlWordWrite: a.ControlWordWrite(),
		ControlWordRead:  a.ControlWordRead(),
		Phase:            a.Phase(),
		NetworkProblem:   networkProblem,
	}
	s.hist.Put(row)
	return row
}

// Latest returns the most recent stable sample. Safe from any goroutine.
func (s *Sampler) Latest() Sample { return s.hist.Latest() }
