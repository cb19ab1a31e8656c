// internal/scan/transform_test.go
package scan

import (
	"math"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestEquatorialTransform(t *testing.T) {
	Convey("Given an observer at 34 N, 104 W", t, func() {
		tf := EquatorialTransform{Latitude: 34, Longitude: -104}
		now := time.Date(2026, 6, 21, 4, 30, 0, 0, time.UTC)

		Convey("the celestial pole sits due north at the latitude", func() {
			el, az := tf.Horizontal(now, 123, 90)
			So(el, ShouldAlmostEqual, 34.0, 1e-9)
			So(math.Abs(math.Remainder(az, 360)), ShouldBeLessThan, 1e-6)
		})

		Convey("a star on the meridian at dec = latitude is at the zenith", func() {
			el, _ := tf.Horizontal(now, tf.LST(now), 34)
			So(el, ShouldAlmostEqual, 90.0, 1e-5)
		})

		Convey("a meridian star on the equator culminates due south", func() {
			el, az := tf.Horizontal(now, tf.LST(now), 0)
			So(el, ShouldAlmostEqual, 56.0, 1e-9)
			So(az, ShouldAlmostEqual, 180.0, 1e-9)
		})

		Convey("a star six hours east of the meridian is rising", func() {
			el, az := tf.Horizontal(now, tf.LST(now)+90, 0)
			So(el, ShouldAlmostEqual, 0.0, 1e-9)
			So(az, ShouldAlmostEqual, 90.0, 1e-9)
		})
	})

	Convey("GMST at the J2000 epoch matches its defining constant", t, func() {
		j2000 := time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
		So(GMST(j2000), ShouldAlmostEqual, 280.46061837, 1e-6)
	})
}
