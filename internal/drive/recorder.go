// internal/drive/recorder.go
package drive

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Record is one line of the per-cycle motion log.
type Record struct {
	At        time.Time
	Position  float64
	Velocity  float64
	Current   float64
	ScanCount int
	NScans    int
}

// Line renders "timestamp;position;velocity;current;scan_count;nscans".
func (r Record) Line() string {
	return fmt.Sprintf("%.6f;%.5f;%.5f;%.4f;%d;%d",
		float64(r.At.UnixMicro())/1e6, r.Position, r.Velocity, r.Current, r.ScanCount, r.NScans)
}

// Recorder writes records to a caller-owned sink from its own goroutine.
// Record never blocks; when the queue is full the record is dropped and
// counted.
type Recorder struct {
	w       io.Writer
	ch      chan Record
	dropped atomic.Uint64

	log     *logrus.Entry
	errRate *rate.Limiter
}

func NewRecorder(w io.Writer, depth int, log *logrus.Entry) *Recorder {
	if depth <= 0 {
		depth = 1024
	}
	if log == nil {
		log = logrus.WithField("component", "recorder")
	}
	return &Recorder{
		w:       w,
		ch:      make(chan Record, depth),
		log:     log,
		errRate: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// Record queues r. It reports false if r was dropped.
func (r *Recorder) Record(rec Record) bool {
	select {
	case r.ch <- rec:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Dropped is the number of records lost to a full queue.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Run drains the queue until ctx is cancelled, then writes what is left.
func (r *Recorder) Run(ctx context.Context) {
	bw := bufio.NewWriter(r.w)
	defer r.flush(bw)

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case rec := <-r.ch:
					r.write(bw, rec)
				default:
					return
				}
			}
		case rec := <-r.ch:
			r.write(bw, rec)
			if len(r.ch) == 0 {
				r.flush(bw)
			}
		}
	}
}

func (r *Recorder) write(bw *bufio.Writer, rec Record) {
	if _, err := bw.WriteString(rec.Line() + "\n"); err != nil && r.errRate.Allow() {
		r.log.WithError(err).Warn("motion log write failed")
	}
}

func (r *Recorder) flush(bw *bufio.Writer) {
	if err := bw.Flush(); err != nil && r.errRate.Allow() {
		r.log.WithError(err).Warn("motion log flush failed")
	}
}
