// internal/mirror/link.go
package mirror

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// maxWriteRegs is the FC16 quantity limit.
const maxWriteRegs = 123

// registerSink is what the status writer writes through.
type registerSink interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// session is one open connection to the endpoint.
type session interface {
	write(unitID uint8, addr uint16, payload []byte) error
	Close() error
}

type LinkConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// Link writes register runs to the status endpoint. It connects on first
// use and drops the session after any failed write, so the next write
// starts on a new connection.
type Link struct {
	mu     sync.Mutex
	open   func() (session, error)
	sess   session
	opens  uint64
	closed bool
}

// NewLink validates cfg; nothing is dialled until the first write.
func NewLink(cfg LinkConfig) (*Link, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("mirror: endpoint required")
	}
	return newLink(func() (session, error) {
		s, err := dialTCP(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}), nil
}

func newLink(open func() (session, error)) *Link {
	return &Link{open: open}
}

func (l *Link) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	if len(regs) == 0 || len(regs) > maxWriteRegs {
		return fmt.Errorf("mirror: cannot write %d registers in one request", len(regs))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errors.New("mirror: link closed")
	}
	if l.sess == nil {
		s, err := l.open()
		if err != nil {
			return fmt.Errorf("mirror: connect: %w", err)
		}
		l.sess = s
		l.opens++
	}

	if err := l.sess.write(unitID, addr, encodeRegs(regs)); err != nil {
		_ = l.sess.Close()
		l.sess = nil
		return err
	}
	return nil
}

// Opens reports how many sessions the link has started.
func (l *Link) Opens() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opens
}

func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	if l.sess == nil {
		return nil
	}
	err := l.sess.Close()
	l.sess = nil
	return err
}

// tcpSession carries FC16 writes over goburrow's TCP transport.
type tcpSession struct {
	h   *modbus.TCPClientHandler
	cli modbus.Client
}

func dialTCP(cfg LinkConfig) (*tcpSession, error) {
	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	if err := h.Connect(); err != nil {
		return nil, err
	}
	return &tcpSession{h: h, cli: modbus.NewClient(h)}, nil
}

func (s *tcpSession) write(unitID uint8, addr uint16, payload []byte) error {
	s.h.SlaveId = unitID
	_, err := s.cli.WriteMultipleRegisters(addr, uint16(len(payload)/2), payload)
	return err
}

func (s *tcpSession) Close() error { return s.h.Close() }

// encodeRegs lays registers out big-endian, high byte first.
func encodeRegs(regs []uint16) []byte {
	out := make([]byte, 0, 2*len(regs))
	for _, r := range regs {
		out = append(out, byte(r>>8), byte(r))
	}
	return out
}
