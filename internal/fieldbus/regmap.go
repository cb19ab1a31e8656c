// internal/fieldbus/regmap.go
package fieldbus

import (
	"encoding/binary"
	"fmt"
)

// Dir is the direction of a process-data entry.
type Dir uint8

const (
	// Out is host to amplifier (RxPDO from the slave's point of view).
	Out Dir = iota
	// In is amplifier to host (TxPDO).
	In
)

func (d Dir) String() string {
	if d == Out {
		return "out"
	}
	return "in"
}

// Entry associates one object with its place in the cyclic frame.
type Entry struct {
	Index  uint16
	Sub    uint8
	Offset int
	Size   int // bytes
	Dir    Dir
}

// RegisterMap is built once per bring-up from the device's own read-back and
// is read-only afterwards.
type RegisterMap struct {
	Entries []Entry
	OutSize int
	InSize  int
}

// PackPDOMapping encodes a mapping word: index<<16 | sub<<8 | bit length.
func PackPDOMapping(index uint16, sub uint8, bits uint8) uint32 {
	return uint32(index)<<16 | uint32(sub)<<8 | uint32(bits)
}

// UnpackPDOMapping is the inverse of PackPDOMapping.
func UnpackPDOMapping(word uint32) (index uint16, sub uint8, bits uint8) {
	return uint16(word >> 16), uint8(word >> 8), uint8(word)
}

// add appends an entry at the current end of its direction's image.
func (rm *RegisterMap) add(dir Dir, index uint16, sub uint8, bits uint8) error {
	if bits%8 != 0 {
		return fmt.Errorf("fieldbus: 0x%04X:%02X bit length %d not byte aligned", index, sub, bits)
	}
	size := int(bits / 8)

	e := Entry{Index: index, Sub: sub, Size: size, Dir: dir}
	if dir == Out {
		e.Offset = rm.OutSize
		rm.OutSize += size
	} else {
		e.Offset = rm.InSize
		rm.InSize += size
	}
	rm.Entries = append(rm.Entries, e)
	return nil
}

// Lookup finds the entry for an object in one direction.
func (rm *RegisterMap) Lookup(dir Dir, index uint16, sub uint8) (Entry, bool) {
	if rm == nil {
		return Entry{}, false
	}
	for _, e := range rm.Entries {
		if e.Dir == dir && e.Index == index && e.Sub == sub {
			return e, true
		}
	}
	return Entry{}, false
}

// ReadRegisterMap reads the finalized assignment back from the device. The
// device is authoritative: whatever order it reports is the frame layout.
func ReadRegisterMap(m Master) (*RegisterMap, error) {
	rm := &RegisterMap{}

	for _, side := range []struct {
		assign uint16
		dir    Dir
	}{
		{ObjRxAssign, Out},
		{ObjTxAssign, In},
	} {
		n, err := readU8(m, side.assign, 0)
		if err != nil {
			return nil, &MappingError{Index: side.assign, Err: err}
		}

		for i := uint8(1); i <= n; i++ {
			pdo, err := readU16(m, side.assign, i)
			if err != nil {
				return nil, &MappingError{Index: side.assign, Sub: i, Err: err}
			}

			count, err := readU8(m, pdo, 0)
			if err != nil {
				return nil, &MappingError{Index: pdo, Err: err}
			}

			for j := uint8(1); j <= count; j++ {
				word, err := readU32(m, pdo, j)
				if err != nil {
					return nil, &MappingError{Index: pdo, Sub: j, Err: err}
				}
				index, sub, bits := UnpackPDOMapping(word)
				if err := rm.add(side.dir, index, sub, bits); err != nil {
					return nil, &MappingError{Index: pdo, Sub: j, Err: err}
				}
			}
		}
	}

	return rm, nil
}

func readU8(m Master, index uint16, sub uint8) (uint8, error) {
	b, err := m.ReadObject(index, sub, 1)
	if err != nil {
		return 0, err
	}
	if len(b) < 1 {
		return 0, fmt.Errorf("short read: %d bytes", len(b))
	}
	return b[0], nil
}

func readU16(m Master, index uint16, sub uint8) (uint16, error) {
	b, err := m.ReadObject(index, sub, 2)
	if err != nil {
		return 0, err
	}
	if len(b) < 2 {
		return 0, fmt.Errorf("short read: %d bytes", len(b))
	}
	return binary.LittleEndian.Uint16(b), nil
}

func readU32(m Master, index uint16, sub uint8) (uint32, error) {
	b, err := m.ReadObject(index, sub, 4)
	if err != nil {
		return 0, err
	}
	if len(b) < 4 {
		return 0, fmt.Errorf("short read: %d bytes", len(b))
	}
	return binary.LittleEndian.Uint32(b), nil
}

// U8, U16 and U32 encode object values in bus byte order.
func U8(v uint8) []byte { return []byte{v} }

func U16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func U32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
