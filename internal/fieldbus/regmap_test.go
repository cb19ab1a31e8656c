// internal/fieldbus/regmap_test.go
package fieldbus

import (
	"errors"
	"testing"
	"time"
)

// ---- fake master: object dictionary only ----

type odKey struct {
	index uint16
	sub   uint8
}

type fakeOD struct {
	objs map[odKey][]byte
}

func newFakeOD() *fakeOD { return &fakeOD{objs: make(map[odKey][]byte)} }

func (f *fakeOD) set(index uint16, sub uint8, b []byte) { f.objs[odKey{index, sub}] = b }

func (f *fakeOD) Open(string) error { return nil }
func (f *fakeOD) Close() error { return nil }
func (f *fakeOD) Slaves() (int, error) { return 1, nil }

func (f *fakeOD) ReadObject(index uint16, sub uint8, size int) ([]byte, error) {
	b, ok := f.objs[odKey{index, sub}]
	if !ok {
		return nil, errors.New("no object")
	}
	return b, nil
}

func (f *fakeOD) WriteObject(index uint16, sub uint8, data []byte) error {
	f.set(index, sub, data)
	return nil
}

func (f *fakeOD) HasDistributedClock() bool { return true }
func (f *fakeOD) ConfigureDistributedClock(time.Duration) error { return nil }
func (f *fakeOD) ConfigureProcessImage(int, int) error { return nil }
func (f *fakeOD) RequestState(ALState) error { return nil }
func (f *fakeOD) State() (ALState, error) { return StateOp, nil }
func (f *fakeOD) Exchange(out, in []byte) (int, error) { return 3, nil }
func (f *fakeOD) ExpectedWKC() int { return 3 }

// ---- tests ----

func TestPackPDOMapping(t *testing.T) {
	got := PackPDOMapping(0x6064, 0, 32)
	if got != 0x60640020 {
		t.Fatalf("pack: got=0x%08X want=0x60640020", got)
	}

	idx, sub, bits := UnpackPDOMapping(PackPDOMapping(0x2183, 0x05, 16))
	if idx != 0x2183 || sub != 0x05 || bits != 16 {
		t.Fatalf("unpack: got=%04X:%02X/%d", idx, sub, bits)
	}
}

func TestReadRegisterMap_FollowsDeviceOrder(t *testing.T) {
	od := newFakeOD()

	// one rx group
	od.set(ObjRxAssign, 0, U8(1))
	od.set(ObjRxAssign, 1, U16(0x1600))
	od.set(0x1600, 0, U8(2))
	od.set(0x1600, 1, U32(PackPDOMapping(ObjCurrentCommand, 0, 16)))
	od.set(0x1600, 2, U32(PackPDOMapping(ObjControlWord, 0, 16)))

	// device reports 0x1A01 before 0x1A00
	od.set(ObjTxAssign, 0, U8(2))
	od.set(ObjTxAssign, 1, U16(0x1A01))
	od.set(ObjTxAssign, 2, U16(0x1A00))
	od.set(0x1A00, 0, U8(1))
	od.set(0x1A00, 1, U32(PackPDOMapping(ObjPositionActual, 0, 32)))
	od.set(0x1A01, 0, U8(1))
	od.set(0x1A01, 1, U32(PackPDOMapping(ObjStatusWord, 0, 16)))

	rm, err := ReadRegisterMap(od)
	if err != nil {
		t.Fatalf("ReadRegisterMap err=%v", err)
	}

	if rm.OutSize != 4 || rm.InSize != 6 {
		t.Fatalf("sizes: out=%d in=%d", rm.OutSize, rm.InSize)
	}

	cw, ok := rm.Lookup(Out, ObjControlWord, 0)
	if !ok || cw.Offset != 2 {
		t.Fatalf("control word entry: %+v ok=%v", cw, ok)
	}

	sw, _ := rm.Lookup(In, ObjStatusWord, 0)
	pos, _ := rm.Lookup(In, ObjPositionActual, 0)
	if sw.Offset != 0 || pos.Offset != 2 {
		t.Fatalf("device order not honoured: status@%d position@%d", sw.Offset, pos.Offset)
	}
}

func TestReadRegisterMap_UnalignedEntry(t *testing.T) {
	od := newFakeOD()
	od.set(ObjRxAssign, 0, U8(0))
	od.set(ObjTxAssign, 0, U8(1))
	od.set(ObjTxAssign, 1, U16(0x1A00))
	od.set(0x1A00, 0, U8(1))
	od.set(0x1A00, 1, U32(PackPDOMapping(ObjStatusWord, 0, 12)))

	_, err := ReadRegisterMap(od)

	var me *MappingError
	if !errors.As(err, &me) {
		t.Fatalf("expected MappingError, got %v", err)
	}
	if me.Index != 0x1A00 || me.Sub != 1 {
		t.Fatalf("wrong failing address: 0x%04X:%02X", me.Index, me.Sub)
	}
}

func TestLookup_Direction(t *testing.T) {
	rm := &RegisterMap{}
	_ = rm.add(Out, ObjControlWord, 0, 16)
	_ = rm.add(In, ObjControlWord, 0, 16)
	_ = rm.add(In, ObjStatusWord, 0, 16)

	out, _ := rm.Lookup(Out, ObjControlWord, 0)
	in, _ := rm.Lookup(In, ObjStatusWord, 0)
	if out.Offset != 0 || in.Offset != 2 {
		t.Fatalf("offsets: out=%d in=%d", out.Offset, in.Offset)
	}
	if _, ok := rm.Lookup(Out, ObjStatusWord, 0); ok {
		t.Fatalf("status word must not be found in outbound image")
	}
}
