// internal/fieldbus/bus.go
package fieldbus

// Bus is a brought-up segment: the master, the register map read back from
// the device, the two process images and the link flags.
// It is owned by the control loop goroutine.
type Bus struct {
	master Master

	Map  *RegisterMap
	Link LinkState

	out []byte
	in  []byte
}

func newBus(m Master, rm *RegisterMap) *Bus {
	return &Bus{
		master: m,
		Map:    rm,
		out:    make([]byte, rm.OutSize),
		in:     make([]byte, rm.InSize),
	}
}

// Exchange performs exactly one cyclic frame and reports whether the working
// counter was met. Consecutive misses are counted in Link.NetworkErrors.
func (b *Bus) Exchange() bool {
	wkc, err := b.master.Exchange(b.out, b.in)
	if err != nil || wkc < b.master.ExpectedWKC() {
		b.Link.NetworkErrors++
		return false
	}
	b.Link.NetworkErrors = 0
	return true
}

// Input returns the bytes of an object in the inbound image, or nil if the
// object is not mapped.
func (b *Bus) Input(index uint16, sub uint8) []byte {
	e, ok := b.Map.Lookup(In, index, sub)
	if !ok {
		return nil
	}
	return b.in[e.Offset : e.Offset+e.Size]
}

// Output returns the writable bytes of an object in the outbound image, or
// nil if the object is not mapped.
func (b *Bus) Output(index uint16, sub uint8) []byte {
	e, ok := b.Map.Lookup(Out, index, sub)
	if !ok {
		return nil
	}
	return b.out[e.Offset : e.Offset+e.Size]
}

// Close releases the interface. The bus must not be used afterwards.
func (b *Bus) Close() error {
	b.Link = LinkState{Status: StatusCold}
	return b.master.Close()
}
