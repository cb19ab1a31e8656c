// internal/server/stream.go
package server

import (
	"net/http"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"

	"github.com/tamzrod/eldrive/internal/control"
	"github.com/tamzrod/eldrive/internal/drive"
	"github.com/tamzrod/eldrive/internal/scan"
)

// Frame is one binary message of the telemetry stream.
type Frame struct {
	Sample   drive.Sample  `cbor:"s"`
	Terms    control.Terms `cbor:"pid"`
	Pointing scan.Pointing `cbor:"pt"`
	Scans    int           `cbor:"n"`
	Ready    bool          `cbor:"rdy"`
}

const writeWait = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// stream pushes a CBOR Frame every StreamInterval until the client goes away.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade")
		return
	}
	defer conn.Close()

	// the read pump only notices the close
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		s.log.WithError(err).Error("cbor encoder")
		return
	}

	tick := time.NewTicker(s.cfg.StreamInterval)
	defer tick.Stop()
	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-tick.C:
		}

		b, err := enc.Marshal(s.frame())
		if err != nil {
			s.log.WithError(err).Error("encode frame")
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
			s.log.WithError(err).Debug("stream closed")
			return
		}
	}
}

func (s *Server) frame() Frame {
	return Frame{
		Sample:   s.m.Latest(),
		Terms:    s.m.Terms(),
		Pointing: s.m.Pointing(),
		Scans:    s.m.ScanState().ScanCount,
		Ready:    s.m.Health().Ready,
	}
}
