// internal/azimuth/poller_test.go
package azimuth

import (
	"errors"
	"math"
	"testing"
	"time"
)

type fakeClient struct {
	regs   []uint16
	fail   bool
	closed bool
}

func (f *fakeClient) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	if f.fail {
		return nil, errors.New("fail fc3")
	}
	return f.regs, nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func counts(v int32) []uint16 {
	u := uint32(v)
	return []uint16{uint16(u >> 16), uint16(u)}
}

func TestPollOnce_DecodesSignedCount(t *testing.T) {
	c := &fakeClient{regs: counts(12345)}
	p, err := New(Config{Scale: 0.01, Interval: time.Second}, c, nil, nil)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	now := time.Now()
	if err := p.PollOnce(now); err != nil {
		t.Fatalf("PollOnce err=%v", err)
	}
	if got := p.Azimuth(); math.Abs(got-123.45) > 1e-9 {
		t.Fatalf("azimuth=%v want 123.45", got)
	}

	c.regs = counts(-9000)
	_ = p.PollOnce(now)
	if got := p.Azimuth(); math.Abs(got-270) > 1e-9 {
		t.Fatalf("azimuth=%v want 270", got)
	}
	if !p.Fresh(now) {
		t.Fatal("reading should be fresh")
	}
}

func TestPollOnce_FailureKeepsLastReadingAndRedials(t *testing.T) {
	first := &fakeClient{regs: counts(1000)}
	second := &fakeClient{regs: counts(2000)}
	dials := 0
	factory := func() (Client, error) {
		dials++
		return second, nil
	}

	p, err := New(Config{Scale: 0.01, Interval: 10 * time.Millisecond}, first, factory, nil)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	t0 := time.Now()
	_ = p.PollOnce(t0)

	first.fail = true
	if err := p.PollOnce(t0.Add(time.Second)); err == nil {
		t.Fatal("expected error, got nil")
	}
	if !first.closed {
		t.Fatal("failed client must be closed")
	}
	if p.Azimuth() != 10 {
		t.Fatalf("azimuth=%v want the last good 10", p.Azimuth())
	}
	if p.Fresh(t0.Add(time.Second)) {
		t.Fatal("a one second old reading is stale at 50ms max age")
	}

	if err := p.PollOnce(t0.Add(2 * time.Second)); err != nil {
		t.Fatalf("PollOnce err=%v", err)
	}
	if dials != 1 || p.Azimuth() != 20 {
		t.Fatalf("dials=%d azimuth=%v", dials, p.Azimuth())
	}

	reads, fails := p.Counts()
	if reads != 2 || fails != 1 {
		t.Fatalf("reads=%d fails=%d", reads, fails)
	}
}

func TestPollOnce_DialFailure(t *testing.T) {
	p, err := New(Config{Scale: 1, Interval: time.Second}, nil, func() (Client, error) {
		return nil, errors.New("connection refused")
	}, nil)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	if err := p.PollOnce(time.Now()); err == nil {
		t.Fatal("expected error, got nil")
	}
	if p.Fresh(time.Now()) {
		t.Fatal("no reading yet")
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	c := &fakeClient{}
	if _, err := New(Config{Scale: 1}, c, nil, nil); err == nil {
		t.Fatal("zero interval accepted")
	}
	if _, err := New(Config{Interval: time.Second}, c, nil, nil); err == nil {
		t.Fatal("zero scale accepted")
	}
	if _, err := New(Config{Scale: 1, Interval: time.Second}, nil, nil, nil); err == nil {
		t.Fatal("missing client accepted")
	}
}
