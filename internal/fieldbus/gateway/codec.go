// internal/fieldbus/gateway/codec.go
package gateway

// Process-image and mailbox bytes keep bus (little-endian) order inside the
// gateway. Modbus carries registers big-endian, so each byte pair is swapped
// on the wire.

func regCount(n int) int { return (n + 1) / 2 }

func pad(b []byte) []byte {
	if len(b)%2 == 0 {
		return b
	}
	out := make([]byte, len(b)+1)
	copy(out, b)
	return out
}

func toWire(b []byte) []byte {
	b = pad(b)
	out := make([]byte, len(b))
	for i := 0; i+1 < len(b); i += 2 {
		out[i] = b[i+1]
		out[i+1] = b[i]
	}
	return out
}

// The swap is symmetric.
func fromWire(b []byte) []byte { return toWire(b) }

func encodeRegs(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

func decodeRegs(b []byte) []uint16 {
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return out
}
