// Package control exposes start, stop and status over a local HTTP API, with
// live run events on a WebSocket.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ibeckermayer/xsweep/internal/store"
	"github.com/ibeckermayer/xsweep/internal/types"
	"github.com/ibeckermayer/xsweep/internal/worker"
)

const writeTimeout = 10 * time.Second

// Controller is the part of worker.Controller the API drives
type Controller interface {
	Start(cfg types.RunConfig) bool
	Stop()
	Status() types.Status
}

// History lists past runs; *store.Store implements it
type History interface {
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
}

// Server serves the control API
type Server struct {
	ctrl     Controller
	hub      *Hub
	defaults types.RunConfig
	history  History
	logger   *zap.Logger
	upgrader websocket.Upgrader
	now      func() time.Time
}

// NewServer creates a Server. defaults fill fields a start request leaves out;
// history may be nil.
func NewServer(ctrl Controller, hub *Hub, defaults types.RunConfig, history History, logger *zap.Logger) *Server {
	s := &Server{
		ctrl:     ctrl,
		hub:      hub,
		defaults: defaults,
		history:  history,
		logger:   logger.Named("control"),
		now:      time.Now,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: localOrigin}
	return s
}

// localOrigin admits non-browser clients and pages served from this machine
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /start", s.handleStart)
	mux.HandleFunc("POST /stop", s.handleStop)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /history", s.handleHistory)
	return mux
}

// ListenAndServe serves on addr until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Control API listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down control API: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) snapshot() Event {
	st := s.ctrl.Status()
	return Event{Type: EventStatus, State: &st, Elapsed: st.Elapsed(s.now())}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

// decodeStart reads an optional RunConfig body over the defaults
func (s *Server) decodeStart(body io.Reader) (types.RunConfig, error) {
	cfg := s.defaults
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return types.RunConfig{}, fmt.Errorf("%w: %v", types.ErrInvalidConfig, err)
	}
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return types.RunConfig{}, err
	}
	return cfg, nil
}

// start applies the one-run rule and reports the outcome as an error
func (s *Server) start(cfg types.RunConfig) error {
	if !s.ctrl.Start(cfg) {
		return worker.ErrAlreadyRunning
	}
	s.logger.Info("Run started from control API", zap.String("mode", string(cfg.Mode)))
	return nil
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.decodeStart(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.start(cfg); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.snapshot())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Stop()
	writeJSON(w, http.StatusAccepted, s.snapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, errors.New("run history is disabled"))
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// command is a message a WebSocket client may send
type command struct {
	Type   string          `json:"type"` // start, stop or status
	Config json.RawMessage `json:"config,omitempty"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := s.hub.add(conn)
	// Reconnecting clients hydrate from the current state
	c.send <- s.snapshot()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(c)
	}()

	s.readLoop(c)

	s.hub.remove(c)
	<-writerDone
	conn.Close()
}

func (s *Server) writeLoop(c *client) {
	for e := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(e); err != nil {
			s.logger.Debug("WebSocket write failed", zap.Error(err))
			c.conn.Close()
			// drain so remove never blocks a broadcaster
			for range c.send {
			}
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

func (s *Server) readLoop(c *client) {
	for {
		var cmd command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("WebSocket read ended", zap.Error(err))
			}
			return
		}

		reply := s.command(cmd)
		select {
		case c.send <- reply:
		default:
		}
	}
}

func (s *Server) command(cmd command) Event {
	switch cmd.Type {
	case "start":
		body := io.Reader(http.NoBody)
		if len(cmd.Config) > 0 {
			body = bytes.NewReader(cmd.Config)
		}
		cfg, err := s.decodeStart(body)
		if err == nil {
			err = s.start(cfg)
		}
		if err != nil {
			return Event{Type: EventError, Error: err.Error()}
		}
	case "stop":
		s.ctrl.Stop()
	case "status":
	default:
		return Event{Type: EventError, Error: fmt.Sprintf("unknown command %q", cmd.Type)}
	}
	return s.snapshot()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, Event{Type: EventError, Error: err.Error()})
}
