// internal/fieldbus/gateway/master_test.go
package gateway

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/tamzrod/eldrive/internal/fieldbus"
	"github.com/tamzrod/eldrive/internal/fieldbus/sim"
)

// ---- fake gateway: register protocol in front of a simulated amplifier ----

type fakeGateway struct {
	amp *sim.Amplifier

	regs    map[uint16]uint16
	outSize int
	inSize  int

	requests int
	closed   bool
}

func newFakeGateway(amp *sim.Amplifier) *fakeGateway {
	return &fakeGateway{amp: amp, regs: make(map[uint16]uint16)}
}

func (g *fakeGateway) Close() error {
	g.closed = true
	return g.amp.Close()
}

func (g *fakeGateway) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	g.requests++
	out := make([]uint16, quantity)
	for i := range out {
		a := address + uint16(i)
		switch a {
		case RegSlaveCount:
			n, err := g.amp.Slaves()
			if err != nil {
				return nil, err
			}
			out[i] = uint16(n)
		case RegDCCapable:
			if g.amp.HasDistributedClock() {
				out[i] = 1
			}
		case RegALState:
			st, err := g.amp.State()
			if err != nil {
				return nil, err
			}
			out[i] = uint16(st)
		default:
			out[i] = g.regs[a]
		}
	}
	return encodeRegs(out), nil
}

func (g *fakeGateway) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	g.requests++
	regs := decodeRegs(value)
	if len(regs) != int(quantity) {
		return nil, errors.New("quantity mismatch")
	}
	for i, v := range regs {
		g.regs[address+uint16(i)] = v
	}

	switch address {
	case RegInterface:
		name := strings.TrimRight(string(fromWire(value)), "\x00")
		return nil, g.amp.Open(name)
	case RegALRequest:
		return nil, g.amp.RequestState(fieldbus.ALState(regs[0]))
	case RegDCCycle:
		us := uint32(regs[0]) | uint32(regs[1])<<16
		return nil, g.amp.ConfigureDistributedClock(time.Duration(us) * time.Microsecond)
	case RegImageSizes:
		g.outSize, g.inSize = int(regs[0]), int(regs[1])
		return nil, g.amp.ConfigureProcessImage(g.outSize, g.inSize)
	case RegMbxIndex:
		g.runMailbox()
	}
	return nil, nil
}

func (g *fakeGateway) runMailbox() {
	index := g.regs[RegMbxIndex]
	sub := uint8(g.regs[RegMbxSubLen] >> 8)
	size := int(g.regs[RegMbxSubLen] & 0xFF)

	var err error
	switch g.regs[RegMbxCmd] {
	case MbxRead:
		var b []byte
		b, err = g.amp.ReadObject(index, sub, size)
		if err == nil {
			buf := make([]byte, mbxDataBytes)
			copy(buf, b)
			for i, v := range decodeRegs(toWire(buf)) {
				g.regs[RegMbxData+uint16(i)] = v
			}
		}
	case MbxWrite:
		buf := make([]byte, mbxDataBytes)
		for i := 0; i < mbxDataBytes/2; i++ {
			copy(buf[2*i:], fromWire(encodeRegs([]uint16{g.regs[RegMbxData+uint16(i)]})))
		}
		err = g.amp.WriteObject(index, sub, buf[:size])
	}

	if err != nil {
		g.regs[RegMbxStatus] = MbxAbort
		g.regs[RegMbxAbort] = 0x0000
		g.regs[RegMbxAbort+1] = 0x0602
		return
	}
	g.regs[RegMbxStatus] = MbxDone
}

func (g *fakeGateway) ReadWriteMultipleRegisters(readAddress, readQuantity, writeAddress, writeQuantity uint16, value []byte) ([]byte, error) {
	g.requests++
	if readAddress != RegInImage || writeAddress != RegOutImage {
		return nil, errors.New("unexpected process-data addresses")
	}
	out := fromWire(value)[:g.outSize]
	in := make([]byte, (int(readQuantity)-1)*2)

	wkc, err := g.amp.Exchange(out, in[:g.inSize])
	if err != nil {
		return nil, err
	}
	return append(toWire(in), encodeRegs([]uint16{uint16(wkc)})...), nil
}

func testMaster(amp *sim.Amplifier) (*Master, *fakeGateway) {
	g := newFakeGateway(amp)
	m := newMaster(Config{Endpoint: "tcp://fake:502", MailboxInterval: time.Microsecond},
		func(Config) (registerClient, io.Closer, error) { return g, g, nil })
	return m, g
}

func bringUpParams() fieldbus.Params {
	return fieldbus.Params{
		Interface: "eth1",
		Period:    4600 * time.Microsecond,
		Layout:    fieldbus.DefaultLayout(),
	}
}

// ---- tests ----

func TestCodec_SwapsBytePairs(t *testing.T) {
	got := toWire([]byte{0x01, 0x02, 0x03})
	want := []byte{0x02, 0x01, 0x00, 0x03}
	if string(got) != string(want) {
		t.Fatalf("toWire=% X want % X", got, want)
	}
	if back := fromWire(got); back[0] != 0x01 || back[1] != 0x02 || back[2] != 0x03 {
		t.Fatalf("fromWire=% X", back)
	}
}

func TestMaster_BringUpThroughGateway(t *testing.T) {
	amp := sim.New(sim.Config{})
	m, g := testMaster(amp)

	bus, err := fieldbus.BringUp(m, bringUpParams())
	if err != nil {
		t.Fatalf("BringUp err=%v", err)
	}

	if !bus.Link.CommsOK {
		t.Fatalf("link: %+v", bus.Link)
	}
	if g.outSize != 4 || g.inSize != 26 {
		t.Fatalf("gateway image sizes: out=%d in=%d", g.outSize, g.inSize)
	}

	// enable and command 1.5 A
	copy(bus.Output(fieldbus.ObjCurrentCommand, 0), fieldbus.U16(1500))
	copy(bus.Output(fieldbus.ObjControlWord, 0), fieldbus.U16(fieldbus.ControlEnable))
	if !bus.Exchange() {
		t.Fatalf("exchange missed")
	}

	amps, cw := amp.Command()
	if amps != 1.5 || cw != fieldbus.ControlEnable {
		t.Fatalf("amplifier saw %.2f A cw=0x%04X", amps, cw)
	}

	echo := bus.Input(fieldbus.ObjControlWord, 0)
	if echo[0] != 0x0F || echo[1] != 0x00 {
		t.Fatalf("control word echo % X", echo)
	}

	if err := bus.Close(); err != nil {
		t.Fatalf("close err=%v", err)
	}
	if !g.closed {
		t.Fatalf("gateway connection not closed")
	}
}

func TestMaster_MailboxAbortSurfacesAsMappingError(t *testing.T) {
	amp := sim.New(sim.Config{})
	amp.RejectWrites(0x1A01)
	m, _ := testMaster(amp)

	_, err := fieldbus.BringUp(m, bringUpParams())

	var me *fieldbus.MappingError
	if !errors.As(err, &me) || me.Index != 0x1A01 {
		t.Fatalf("expected MappingError at 0x1A01, got %v", err)
	}
	var ae *AbortError
	if !errors.As(err, &ae) || ae.Code != 0x06020000 {
		t.Fatalf("expected abort code 0x06020000, got %v", err)
	}
}

func TestMaster_NotConnected(t *testing.T) {
	m, _ := testMaster(sim.New(sim.Config{}))

	if _, err := m.Exchange(make([]byte, 4), make([]byte, 26)); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := m.WriteObject(0x6040, 0, fieldbus.U16(0)); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestDial_UnsupportedScheme(t *testing.T) {
	_, _, err := dial(Config{Endpoint: "udp://10.0.0.5:502"})
	if err == nil || !strings.Contains(err.Error(), "unsupported scheme") {
		t.Fatalf("expected unsupported scheme error, got %v", err)
	}
}
