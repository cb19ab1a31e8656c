// internal/fieldbus/gateway/master.go

// Package gateway reaches the amplifier's segment through a fieldbus-to-Modbus
// gateway. Mailbox access and the cyclic frame are tunnelled through holding
// registers; the cyclic exchange is one read/write-multiple-registers request.
package gateway

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/goburrow/serial"
	"github.com/sirupsen/logrus"

	"github.com/tamzrod/eldrive/internal/fieldbus"
)

// Gateway register layout.
const (
	RegSlaveCount uint16 = 0x0000
	RegALRequest  uint16 = 0x0001
	RegALState    uint16 = 0x0002
	RegDCCapable  uint16 = 0x0003
	RegDCCycle    uint16 = 0x0004 // 2 registers, microseconds, low word first
	RegImageSizes uint16 = 0x0006 // out bytes, in bytes

	RegMbxIndex  uint16 = 0x0010
	RegMbxSubLen uint16 = 0x0011 // sub<<8 | size
	RegMbxCmd    uint16 = 0x0012
	RegMbxStatus uint16 = 0x0013
	RegMbxAbort  uint16 = 0x0014 // 2 registers
	RegMbxData   uint16 = 0x0018 // 4 registers

	RegInterface uint16 = 0x0020 // 8 registers, ASCII
	RegOutImage  uint16 = 0x0100
	RegInImage   uint16 = 0x0200 // followed by one working-counter register

	MbxRead  uint16 = 1
	MbxWrite uint16 = 2

	MbxBusy  uint16 = 0
	MbxDone  uint16 = 1
	MbxAbort uint16 = 2

	mbxDataBytes = 8
	ifnameBytes  = 16
)

var (
	ErrNotConnected = errors.New("gateway: not connected")
	ErrMailboxBusy  = errors.New("gateway: mailbox did not complete")
)

// AbortError is an SDO abort relayed by the gateway.
type AbortError struct {
	Index uint16
	Sub   uint8
	Code  uint32
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("gateway: 0x%04X:%02X aborted with 0x%08X", e.Index, e.Sub, e.Code)
}

// Config selects and parameterises the gateway connection.
//
// Endpoint is "tcp://host:port" or "rtu:///dev/ttyUSB0".
type Config struct {
	Endpoint string
	UnitID   uint8
	Timeout  time.Duration

	// RTU only.
	BaudRate int
	Parity   string
	RS485    bool

	MailboxPolls    int
	MailboxInterval time.Duration

	Log *logrus.Entry
}

// registerClient is the subset of modbus.Client the master uses.
type registerClient interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
	ReadWriteMultipleRegisters(readAddress, readQuantity, writeAddress, writeQuantity uint16, value []byte) ([]byte, error)
}

type dialFunc func(cfg Config) (registerClient, io.Closer, error)

// Master implements fieldbus.Master over Modbus. Requests are serialised.
type Master struct {
	mu   sync.Mutex
	cfg  Config
	dial dialFunc

	client registerClient
	closer io.Closer
	log    *logrus.Entry
}

func New(cfg Config) *Master {
	return newMaster(cfg, dial)
}

func newMaster(cfg Config, d dialFunc) *Master {
	if cfg.MailboxPolls <= 0 {
		cfg.MailboxPolls = 50
	}
	if cfg.MailboxInterval <= 0 {
		cfg.MailboxInterval = time.Millisecond
	}
	l := cfg.Log
	if l == nil {
		l = logrus.WithField("component", "gateway")
	}
	return &Master{cfg: cfg, dial: d, log: l.WithField("endpoint", cfg.Endpoint)}
}

func dial(cfg Config) (registerClient, io.Closer, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("gateway: endpoint %q: %w", cfg.Endpoint, err)
	}

	switch u.Scheme {
	case "tcp":
		h := modbus.NewTCPClientHandler(u.Host)
		h.Timeout = cfg.Timeout
		h.SlaveId = cfg.UnitID
		if err := h.Connect(); err != nil {
			return nil, nil, err
		}
		return modbus.NewClient(h), h, nil

	case "rtu":
		h := modbus.NewRTUClientHandler(u.Path)
		h.BaudRate = cfg.BaudRate
		h.DataBits = 8
		h.StopBits = 1
		h.Parity = strings.ToUpper(cfg.Parity)
		if h.Parity == "" {
			h.Parity = "N"
		}
		h.Timeout = cfg.Timeout
		h.SlaveId = cfg.UnitID
		if cfg.RS485 {
			h.RS485 = serial.RS485Config{Enabled: true, RtsHighDuringSend: true}
		}
		if err := h.Connect(); err != nil {
			return nil, nil, err
		}
		return modbus.NewClient(h), h, nil

	default:
		return nil, nil, fmt.Errorf("gateway: unsupported scheme %q", u.Scheme)
	}
}

// ---- fieldbus.Master ----

func (m *Master) Open(ifname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closer != nil {
		_ = m.closer.Close()
		m.client, m.closer = nil, nil
	}

	c, closer, err := m.dial(m.cfg)
	if err != nil {
		return err
	}
	m.client, m.closer = c, closer

	name := make([]byte, ifnameBytes)
	copy(name, ifname)
	if _, err := c.WriteMultipleRegisters(RegInterface, ifnameBytes/2, toWire(name)); err != nil {
		_ = closer.Close()
		m.client, m.closer = nil, nil
		return fmt.Errorf("gateway: select interface %q: %w", ifname, err)
	}

	m.log.WithField("interface", ifname).Debug("gateway connected")
	return nil
}

func (m *Master) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closer == nil {
		return nil
	}
	err := m.closer.Close()
	m.client, m.closer = nil, nil
	return err
}

func (m *Master) Slaves() (int, error) {
	v, err := m.readReg(RegSlaveCount)
	return int(v), err
}

func (m *Master) HasDistributedClock() bool {
	v, err := m.readReg(RegDCCapable)
	return err == nil && v != 0
}

func (m *Master) ConfigureDistributedClock(period time.Duration) error {
	us := uint32(period / time.Microsecond)
	return m.writeRegs(RegDCCycle, []uint16{uint16(us), uint16(us >> 16)})
}

func (m *Master) ConfigureProcessImage(outSize, inSize int) error {
	return m.writeRegs(RegImageSizes, []uint16{uint16(outSize), uint16(inSize)})
}

func (m *Master) RequestState(s fieldbus.ALState) error {
	return m.writeRegs(RegALRequest, []uint16{uint16(s)})
}

func (m *Master) State() (fieldbus.ALState, error) {
	v, err := m.readReg(RegALState)
	return fieldbus.ALState(v), err
}

// ExpectedWKC is the working counter of a combined read/write frame to a
// single slave.
func (m *Master) ExpectedWKC() int { return 3 }

func (m *Master) Exchange(out, in []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return 0, ErrNotConnected
	}

	outRegs := regCount(len(out))
	inRegs := regCount(len(in))

	res, err := m.client.ReadWriteMultipleRegisters(
		RegInImage, uint16(inRegs+1),
		RegOutImage, uint16(outRegs), toWire(pad(out)),
	)
	if err != nil {
		return 0, err
	}
	if len(res) < (inRegs+1)*2 {
		return 0, fmt.Errorf("gateway: short process-data response: %d bytes", len(res))
	}

	img := fromWire(res[:inRegs*2])
	copy(in, img)

	wkc := int(res[inRegs*2])<<8 | int(res[inRegs*2+1])
	return wkc, nil
}

func (m *Master) ReadObject(index uint16, sub uint8, size int) ([]byte, error) {
	if size > mbxDataBytes {
		return nil, fmt.Errorf("gateway: object size %d exceeds mailbox", size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.mailbox(MbxRead, index, sub, size, nil); err != nil {
		return nil, err
	}
	regs, err := m.readLocked(RegMbxData, mbxDataBytes/2)
	if err != nil {
		return nil, err
	}
	return fromWire(regs)[:size], nil
}

func (m *Master) WriteObject(index uint16, sub uint8, data []byte) error {
	if len(data) > mbxDataBytes {
		return fmt.Errorf("gateway: object size %d exceeds mailbox", len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mailbox(MbxWrite, index, sub, len(data), data)
}

// ---- internals ----

// mailbox issues one SDO through the gateway and waits for it to finish.
// Caller holds m.mu.
func (m *Master) mailbox(cmd, index uint16, sub uint8, size int, data []byte) error {
	if m.client == nil {
		return ErrNotConnected
	}

	if cmd == MbxWrite {
		buf := make([]byte, mbxDataBytes)
		copy(buf, data)
		if _, err := m.client.WriteMultipleRegisters(RegMbxData, mbxDataBytes/2, toWire(buf)); err != nil {
			return err
		}
	}

	hdr := encodeRegs([]uint16{index, uint16(sub)<<8 | uint16(size), cmd})
	if _, err := m.client.WriteMultipleRegisters(RegMbxIndex, 3, hdr); err != nil {
		return err
	}

	for i := 0; i < m.cfg.MailboxPolls; i++ {
		res, err := m.client.ReadHoldingRegisters(RegMbxStatus, 3)
		if err != nil {
			return err
		}
		regs := decodeRegs(res)
		if len(regs) < 3 {
			return fmt.Errorf("gateway: short mailbox status: %d bytes", len(res))
		}
		switch regs[0] {
		case MbxDone:
			return nil
		case MbxAbort:
			return &AbortError{Index: index, Sub: sub, Code: uint32(regs[1]) | uint32(regs[2])<<16}
		}
		time.Sleep(m.cfg.MailboxInterval)
	}
	return fmt.Errorf("0x%04X:%02X: %w", index, sub, ErrMailboxBusy)
}

func (m *Master) readReg(addr uint16) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return 0, ErrNotConnected
	}
	res, err := m.client.ReadHoldingRegisters(addr, 1)
	if err != nil {
		return 0, err
	}
	regs := decodeRegs(res)
	if len(regs) != 1 {
		return 0, fmt.Errorf("gateway: short read at 0x%04X", addr)
	}
	return regs[0], nil
}

func (m *Master) readLocked(addr, qty uint16) ([]byte, error) {
	res, err := m.client.ReadHoldingRegisters(addr, qty)
	if err != nil {
		return nil, err
	}
	if len(res) < int(qty)*2 {
		return nil, fmt.Errorf("gateway: short read at 0x%04X", addr)
	}
	return res, nil
}

func (m *Master) writeRegs(addr uint16, regs []uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return ErrNotConnected
	}
	_, err := m.client.WriteMultipleRegisters(addr, uint16(len(regs)), encodeRegs(regs))
	return err
}

var _ fieldbus.Master = (*Master)(nil)
