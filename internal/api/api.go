// Package api serves the switcher's state and control intents over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zsiec/atemtally/internal/certs"
	"github.com/zsiec/atemtally/internal/command"
	"github.com/zsiec/atemtally/internal/session"
	"github.com/zsiec/atemtally/internal/state"
	"github.com/zsiec/atemtally/internal/tally"
	"github.com/zsiec/atemtally/internal/transport"
)

// Controller is the subset of driver.Driver the API needs.
type Controller interface {
	Do(fn func(*session.Session) error) error
	State() session.State
	Snapshot() state.Snapshot
}

// Config configures the API handler. Driver and Hub are required.
type Config struct {
	Driver    Controller
	Hub       *tally.Hub
	Gatherer  prometheus.Gatherer // nil disables /metrics
	Cert      *certs.CertInfo     // tally server certificate, for pinning
	TallyAddr string
	Log       *slog.Logger
}

type server struct {
	cfg      Config
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// Handler builds the chi router for cfg.
func Handler(cfg Config) (http.Handler, error) {
	if cfg.Driver == nil {
		return nil, errors.New("api: Driver is required")
	}
	if cfg.Hub == nil {
		return nil, errors.New("api: Hub is required")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	s := &server{
		cfg: cfg,
		log: log.With("component", "api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(corsMiddleware)

	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/tally", s.handleTally)
		r.Get("/tally/ws", s.handleTallyWS)
		r.Get("/tally/subscribers", s.handleSubscribers)
		r.Get("/cert-hash", s.handleCertHash)

		r.Post("/program", s.handleProgram)
		r.Post("/preview", s.handlePreview)
		r.Post("/cut", s.simple((*session.Session).Cut))
		r.Post("/auto", s.simple((*session.Session).Auto))
		r.Post("/ftb", s.simple((*session.Session).FadeToBlack))
		r.Post("/aux/{aux}", s.handleAux)
		r.Post("/dsk/{keyer}", s.handleDownstreamKeyer)
		r.Post("/usk/{keyer}", s.handleUpstreamKeyer)
	})
	return r, nil
}

// logRequests logs one line per request at debug level, warn for 5xx.
func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		level := slog.LevelDebug
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.log.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"requestId", middleware.GetReqID(r.Context()))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

type stateResponse struct {
	State    string         `json:"state"`
	Switcher state.Snapshot `json:"switcher"`
}

func (s *server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{
		State:    s.cfg.Driver.State().String(),
		Switcher: s.cfg.Driver.Snapshot(),
	})
}

func (s *server) handleTally(w http.ResponseWriter, _ *http.Request) {
	f, ok := s.cfg.Hub.Last()
	if !ok {
		f = tally.FrameFromSnapshot(s.cfg.Driver.Snapshot())
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *server) handleTallyWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	sub := tally.NewWebSocketSubscriber(conn, s.log)
	s.cfg.Hub.Add(sub, "websocket")
	defer s.cfg.Hub.Remove(sub.ID())
	sub.Run(r.Context())
}

func (s *server) handleSubscribers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Hub.Stats())
}

type certHashResponse struct {
	Hash string `json:"hash"`
	Addr string `json:"addr"`
}

func (s *server) handleCertHash(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Cert == nil {
		writeError(w, http.StatusNotFound, "tally server not configured")
		return
	}
	writeJSON(w, http.StatusOK, certHashResponse{
		Hash: s.cfg.Cert.FingerprintBase64(),
		Addr: s.cfg.TallyAddr,
	})
}

type sourceRequest struct {
	Source *uint16 `json:"source"`
}

type switchRequest struct {
	On  *bool `json:"on"`
	Tie *bool `json:"tie,omitempty"`
}

func (s *server) handleProgram(w http.ResponseWriter, r *http.Request) {
	s.sourceIntent(w, r, (*session.Session).ChangeProgramInput)
}

func (s *server) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.sourceIntent(w, r, (*session.Session).ChangePreviewInput)
}

func (s *server) sourceIntent(w http.ResponseWriter, r *http.Request, fn func(*session.Session, uint16) error) {
	var req sourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Source == nil {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}
	src := *req.Source
	s.do(w, func(sess *session.Session) error { return fn(sess, src) })
}

func (s *server) simple(fn func(*session.Session) error) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.do(w, fn)
	}
}

func (s *server) handleAux(w http.ResponseWriter, r *http.Request) {
	aux, ok := pathIndex(w, r, "aux")
	if !ok {
		return
	}
	var req sourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Source == nil {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}
	src := *req.Source
	s.do(w, func(sess *session.Session) error { return sess.ChangeAuxSource(aux, src) })
}

func (s *server) handleDownstreamKeyer(w http.ResponseWriter, r *http.Request) {
	keyer, ok := pathIndex(w, r, "keyer")
	if !ok {
		return
	}
	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.On == nil && req.Tie == nil {
		writeError(w, http.StatusBadRequest, "on or tie is required")
		return
	}
	s.do(w, func(sess *session.Session) error {
		if req.Tie != nil {
			if err := sess.ChangeDownstreamKeyerTie(keyer, *req.Tie); err != nil {
				return err
			}
		}
		if req.On == nil {
			return nil
		}
		err := sess.ChangeDownstreamKeyerOn(keyer, *req.On)
		if err != nil && req.Tie != nil {
			return fmt.Errorf("api: DSK on after tie was sent: %w", err)
		}
		return err
	})
}

func (s *server) handleUpstreamKeyer(w http.ResponseWriter, r *http.Request) {
	keyer, ok := pathIndex(w, r, "keyer")
	if !ok {
		return
	}
	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.On == nil {
		writeError(w, http.StatusBadRequest, "on is required")
		return
	}
	on := *req.On
	s.do(w, func(sess *session.Session) error { return sess.ChangeUpstreamKeyerOn(keyer, on) })
}

func pathIndex(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be an integer")
		return 0, false
	}
	return n, true
}

// do runs fn on the driver's session and maps its error to a status code.
func (s *server) do(w http.ResponseWriter, fn func(*session.Session) error) {
	err := s.cfg.Driver.Do(fn)
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]string{"result": command.Sent.String()})
		return
	}
	writeJSON(w, statusFor(err), map[string]string{
		"result": command.ResultOf(err).String(),
		"error":  err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, command.ErrOutOfRange), errors.Is(err, command.ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, transport.ErrPacketIDsExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
