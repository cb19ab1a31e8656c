// internal/azimuth/poller.go

// Package azimuth reads the turntable's measured azimuth from its Modbus
// register block so the elevation loop can track in two axes.
package azimuth

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Client is the one read the poller needs (FC 3).
type Client interface {
	ReadHoldingRegisters(addr, qty uint16) ([]uint16, error)
}

// Config is the runtime config of the poller.
type Config struct {
	// Address of the two-register signed count, high word first.
	Address uint16

	// Scale converts counts to degrees.
	Scale float64

	Interval time.Duration

	// MaxAge after which a reading is no longer Fresh.
	MaxAge time.Duration
}

// Poller is a clock-driven reader. It keeps one client while reads succeed;
// after a failure the client is discarded and factory is tried on the next
// tick. No retries inside a tick.
type Poller struct {
	cfg     Config
	factory func() (Client, error)
	log     *logrus.Entry
	errRate *rate.Limiter

	client Client // owned by the polling goroutine

	mu    sync.Mutex
	az    float64
	at    time.Time
	reads uint64
	fails uint64
}

// New creates a poller with immutable config. client may be nil, in which
// case the first tick dials through factory.
func New(cfg Config, client Client, factory func() (Client, error), log *logrus.Entry) (*Poller, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("azimuth: interval must be > 0")
	}
	if cfg.Scale == 0 {
		return nil, errors.New("azimuth: scale must be non-zero")
	}
	if client == nil && factory == nil {
		return nil, errors.New("azimuth: client or factory required")
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * cfg.Interval
	}
	if log == nil {
		log = logrus.WithField("component", "azimuth")
	}
	return &Poller{
		cfg:     cfg,
		client:  client,
		factory: factory,
		log:     log,
		errRate: rate.NewLimiter(rate.Every(30*time.Second), 1),
	}, nil
}

// PollOnce performs exactly one read. The stored azimuth only changes when
// the read succeeds.
func (p *Poller) PollOnce(now time.Time) error {
	if p.client == nil {
		c, err := p.factory()
		if err != nil {
			p.failed()
			return err
		}
		p.client = c
	}

	regs, err := p.client.ReadHoldingRegisters(p.cfg.Address, 2)
	if err == nil && len(regs) != 2 {
		err = errors.New("azimuth: short register read")
	}
	if err != nil {
		if c, ok := p.client.(interface{ Close() error }); ok {
			_ = c.Close()
		}
		p.client = nil
		p.failed()
		return err
	}

	counts := int32(uint32(regs[0])<<16 | uint32(regs[1]))
	az := math.Mod(float64(counts)*p.cfg.Scale, 360)
	if az < 0 {
		az += 360
	}

	p.mu.Lock()
	p.az = az
	p.at = now
	p.reads++
	p.mu.Unlock()
	return nil
}

func (p *Poller) failed() {
	p.mu.Lock()
	p.fails++
	p.mu.Unlock()
}

// Run polls every Interval until ctx ends.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if c, ok := p.client.(interface{ Close() error }); ok {
				_ = c.Close()
			}
			return
		case now := <-ticker.C:
			if err := p.PollOnce(now); err != nil && p.errRate.Allow() {
				p.log.WithError(err).Warn("azimuth read failed")
			}
		}
	}
}

// Azimuth is the last good reading in [0, 360). A reading older than MaxAge
// is still returned; Fresh tells the two apart.
func (p *Poller) Azimuth() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.az
}

// Fresh reports whether the last good reading is younger than MaxAge.
func (p *Poller) Fresh(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.at.IsZero() && now.Sub(p.at) <= p.cfg.MaxAge
}

// Counts returns the number of good and failed reads.
func (p *Poller) Counts() (reads, fails uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reads, p.fails
}
