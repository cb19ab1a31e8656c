// internal/server/server.go

// Package server exposes the elevation axis to operators over HTTP: reads of
// telemetry, controller terms and link health, pointing and scan commands,
// and a websocket stream of CBOR-encoded samples.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/sirupsen/logrus"

	"github.com/tamzrod/eldrive/internal/control"
	"github.com/tamzrod/eldrive/internal/drive"
	"github.com/tamzrod/eldrive/internal/motor"
	"github.com/tamzrod/eldrive/internal/scan"
)

// Motor is the command and telemetry surface of the subsystem.
type Motor interface {
	Latest() drive.Sample
	Terms() control.Terms
	Health() motor.Health
	Pointing() scan.Pointing
	ScanState() scan.State

	SetDestination(angle float64) error
	SetVelocity(v float64) error
	SetPositionOffset(angle float64) error
	ArmScan(st scan.State) error
	StopScan()
	WaitReady(ctx context.Context) error
}

// FloatT is the body of scalar commands.
type FloatT struct {
	F64 float64 `json:"f64"`
}

// Config tunes the server.
type Config struct {
	// StreamInterval is the period of the websocket telemetry stream.
	StreamInterval time.Duration

	// MaxWaitReady bounds /motor/wait-ready.
	MaxWaitReady time.Duration
}

type Server struct {
	m   Motor
	cfg Config
	log *logrus.Entry
	mux chi.Router
}

func New(m Motor, cfg Config, log *logrus.Entry) *Server {
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = 100 * time.Millisecond
	}
	if cfg.MaxWaitReady <= 0 {
		cfg.MaxWaitReady = 30 * time.Second
	}
	if log == nil {
		log = logrus.WithField("component", "http")
	}
	s := &Server{m: m, cfg: cfg, log: log}
	s.mux = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Route("/motor", func(r chi.Router) {
		r.Get("/telemetry", s.getTelemetry)
		r.Get("/pid", s.getTerms)
		r.Get("/status", s.getStatus)
		r.Get("/pointing", s.getPointing)
		r.Get("/wait-ready", s.waitReady)
		r.Get("/stream", s.stream)

		r.Post("/destination", s.setFloat(s.m.SetDestination))
		r.Post("/velocity", s.setFloat(s.m.SetVelocity))
		r.Post("/offset", s.setFloat(s.m.SetPositionOffset))
	})

	r.Get("/scan", s.getScan)
	r.Post("/scan", s.armScan)
	r.Delete("/scan", s.stopScan)
	return r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves on addr until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start),
		}).Debug("request")
	})
}

// ---- reads ----

func (s *Server) getTelemetry(w http.ResponseWriter, r *http.Request) {
	respond(w, s.m.Latest())
}

func (s *Server) getTerms(w http.ResponseWriter, r *http.Request) {
	respond(w, s.m.Terms())
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	respond(w, s.m.Health())
}

func (s *Server) getPointing(w http.ResponseWriter, r *http.Request) {
	respond(w, s.m.Pointing())
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	respond(w, s.m.ScanState())
}

// waitReady blocks until the loop is ready, bounded by ?timeout= (a Go
// duration) and MaxWaitReady.
func (s *Server) waitReady(w http.ResponseWriter, r *http.Request) {
	timeout := s.cfg.MaxWaitReady
	if q := r.URL.Query().Get("timeout"); q != "" {
		d, err := time.ParseDuration(q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if d < timeout {
			timeout = d
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	if err := s.m.WaitReady(ctx); err != nil {
		http.Error(w, "not ready: "+err.Error(), http.StatusGatewayTimeout)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ---- commands ----

func (s *Server) setFloat(set func(float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := FloatT{}
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := set(f.F64); err != nil {
			http.Error(w, err.Error(), commandStatus(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// ScanRequest is the body of POST /scan. Dwell is in seconds.
type ScanRequest struct {
	Mode       scan.Mode `json:"mode"`
	StartEl    float64   `json:"start_el"`
	StopEl     float64   `json:"stop_el"`
	Velocity   float64   `json:"velocity"`
	NScans     int       `json:"nscans"`
	ChopOffset float64   `json:"chop_offset"`
	Dwell      float64   `json:"dwell"`
	RA         float64   `json:"ra"`
	Dec        float64   `json:"dec"`
}

func (q ScanRequest) State() scan.State {
	return scan.State{
		Mode:       q.Mode,
		StartEl:    q.StartEl,
		StopEl:     q.StopEl,
		Velocity:   q.Velocity,
		NScans:     q.NScans,
		ChopOffset: q.ChopOffset,
		Dwell:      time.Duration(q.Dwell * float64(time.Second)),
		Target:     scan.Target{RA: q.RA, Dec: q.Dec},
	}
}

func (s *Server) armScan(w http.ResponseWriter, r *http.Request) {
	q := ScanRequest{}
	err := json.NewDecoder(r.Body).Decode(&q)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.m.ArmScan(q.State()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.log.WithField("mode", q.Mode).Info("scan armed")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) stopScan(w http.ResponseWriter, r *http.Request) {
	s.m.StopScan()
	w.WriteHeader(http.StatusOK)
}

func commandStatus(err error) int {
	switch {
	case errors.Is(err, motor.ErrScanActive), errors.Is(err, motor.ErrOffsetPending):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respond(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
