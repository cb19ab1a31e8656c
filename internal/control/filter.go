// internal/control/filter.go
package control

// FIR5 is a five tap binomial low-pass (1 4 6 4 1)/16.
type FIR5 struct {
	x [5]float64
}

var fir5Taps = [5]float64{1.0 / 16, 4.0 / 16, 6.0 / 16, 4.0 / 16, 1.0 / 16}

func (f *FIR5) Step(in float64) float64 {
	copy(f.x[1:], f.x[:4])
	f.x[0] = in

	var y float64
	for i, c := range fir5Taps {
		y += c * f.x[i]
	}
	return y
}

func (f *FIR5) Reset() { f.x = [5]float64{} }

// Friction smoothing filter: one-pole low-pass with unity DC gain.
const (
	frictionGain = 637.62
	frictionPole = 0.996863
)

// FirstOrder is the friction bias smoother:
//
//	x[n] = in / 637.62
//	y[n] = x[n] + x[n-1] + 0.996863*y[n-1]
type FirstOrder struct {
	x1 float64
	y1 float64
}

func (f *FirstOrder) Step(in float64) float64 {
	x0 := in / frictionGain
	y0 := x0 + f.x1 + frictionPole*f.y1
	f.x1, f.y1 = x0, y0
	return y0
}

func (f *FirstOrder) Reset() { *f = FirstOrder{} }
