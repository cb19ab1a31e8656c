// internal/scan/transform.go
package scan

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// EquatorialTransform converts RA/Dec to elevation/azimuth for an observer.
// Azimuth is measured from north through east, [0, 360).
type EquatorialTransform struct {
	Latitude  float64 // deg, north positive
	Longitude float64 // deg, east positive
}

const (
	unixEpochJD = 2440587.5
	j2000JD     = 2451545.0
)

// GMST is the Greenwich mean sidereal time in degrees, [0, 360).
func GMST(t time.Time) float64 {
	jd := float64(t.UnixNano())/float64(24*time.Hour) + unixEpochJD
	return normDeg(280.46061837 + 360.98564736629*(jd-j2000JD))
}

// LST is the local mean sidereal time in degrees.
func (e EquatorialTransform) LST(t time.Time) float64 {
	return normDeg(GMST(t) + e.Longitude)
}

func (e EquatorialTransform) Horizontal(t time.Time, ra, dec float64) (el, az float64) {
	ha := mgl64.DegToRad(e.LST(t) - ra)
	d := mgl64.DegToRad(dec)
	phi := mgl64.DegToRad(e.Latitude)

	// hour-angle frame: x to the meridian, y to the east, z to the pole
	v := mgl64.Vec3{math.Cos(d) * math.Cos(ha), -math.Cos(d) * math.Sin(ha), math.Sin(d)}

	// rotate about the east axis into north/east/up
	rot := mgl64.Mat3FromCols(
		mgl64.Vec3{-math.Sin(phi), 0, math.Cos(phi)},
		mgl64.Vec3{0, 1, 0},
		mgl64.Vec3{math.Cos(phi), 0, math.Sin(phi)},
	)
	h := rot.Mul3x1(v)

	el = mgl64.RadToDeg(math.Asin(mgl64.Clamp(h.Z(), -1, 1)))
	az = normDeg(mgl64.RadToDeg(math.Atan2(h.Y(), h.X())))
	return el, az
}

func normDeg(v float64) float64 {
	v = math.Mod(v, 360)
	if v < 0 {
		v += 360
	}
	return v
}

var _ Transformer = EquatorialTransform{}
