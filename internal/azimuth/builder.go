// internal/azimuth/builder.go
package azimuth

import (
	"github.com/sirupsen/logrus"

	cfg "github.com/tamzrod/eldrive/internal/config"
)

// Build constructs a Poller for the turntable endpoint. Nothing is dialled
// here: a turntable that is not up yet must not keep the elevation axis
// from starting, so the first tick connects.
func Build(c cfg.AzimuthConfig, log *logrus.Entry) (*Poller, error) {
	// client factory: ONE attempt per call
	factory := func() (Client, error) {
		return Dial(ClientConfig{
			Endpoint: c.Endpoint,
			UnitID:   c.UnitID,
			Timeout:  c.Timeout,
		})
	}

	return New(Config{
		Address:  c.Address,
		Scale:    c.Scale,
		Interval: c.Interval,
		MaxAge:   c.MaxAge,
	}, nil, factory, log)
}
