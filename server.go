package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"i4.energy/across/celldial/events"
	"i4.energy/across/celldial/journal"
	"i4.energy/across/celldial/modem"
)

// Modem is the part of *modem.Modem used by the control surface.
type Modem interface {
	Status(ctx context.Context) (modem.Mode, bool)
	IMEI(ctx context.Context) (string, error)
	Connect(ctx context.Context, apn, username, password string) error
	Hangup(ctx context.Context) error
	CheckPPPStatus(ctx context.Context) (bool, error)
	NetworkTime(ctx context.Context) (time.Time, error)
	Mode() modem.Mode
}

// Server handles incoming HTTP requests for interacting with the
// configured modem instance
type Server struct {
	Logger *slog.Logger
	Modem  Modem
	// Params are used by connect requests that leave fields empty
	Params modem.ConnectionParams
	// Journal serves /api/sessions, optional
	Journal *journal.Store
	// Hub feeds /ws/events, optional
	Hub *events.Hub
	// Metrics serves /metrics, optional
	Metrics http.Handler
	// Watchdog is paused by hangup requests and resumed by connect
	// requests, optional
	Watchdog *Watchdog

	router   *mux.Router
	upgrader websocket.Upgrader
}

// Handler builds the router. ServeHTTP builds it on first use otherwise.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	// method mismatches answer 405 only for routes on the root router
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/imei", s.handleIMEI).Methods(http.MethodGet)
	r.HandleFunc("/api/connect", s.handleConnect).Methods(http.MethodPost)
	r.HandleFunc("/api/hangup", s.handleHangup).Methods(http.MethodPost)
	r.HandleFunc("/api/ppp", s.handlePPP).Methods(http.MethodGet)
	r.HandleFunc("/api/time", s.handleTime).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions", s.handleSessions).Methods(http.MethodGet)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.sendError(w, "", http.StatusMethodNotAllowed)
	})

	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics).Methods(http.MethodGet)
	}
	r.HandleFunc("/ws/events", s.handleEvents)

	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	s.router = r
	return r
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.router == nil {
		s.Handler()
	}
	s.router.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	s.sendJSON(w, ErrorResponse{Message: message}, statusCode)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// modemError maps modem failures to HTTP status codes.
func modemError(err error) int {
	switch {
	case errors.Is(err, modem.ErrAlreadyClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, modem.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// handleStatus reports the link mode. Readiness is only probed in command
// mode: probing in data mode would interrupt the PPP session.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	type StatusResponse struct {
		Mode  string `json:"mode"`
		Ready *bool  `json:"ready,omitempty"`
	}

	mode, ready := s.Modem.Status(r.Context())
	resp := StatusResponse{Mode: mode.String()}
	if mode == modem.ModeCommand {
		resp.Ready = &ready
	}
	s.sendJSON(w, resp, http.StatusOK)
}

func (s *Server) handleIMEI(w http.ResponseWriter, r *http.Request) {
	imei, err := s.Modem.IMEI(r.Context())
	if err != nil {
		s.Logger.Error("Failed to read IMEI", "error", err)
		s.sendError(w, err.Error(), modemError(err))
		return
	}
	s.sendJSON(w, map[string]string{"imei": imei}, http.StatusOK)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	type ConnectRequest struct {
		APN      string `json:"apn"`
		Username string `json:"username"`
		Password string `json:"password"`
	}

	var req ConnectRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.APN == "" {
		req.APN = s.Params.APN
		req.Username = s.Params.Username
		req.Password = s.Params.Password
	}
	if req.APN == "" {
		s.sendError(w, "'apn' is required", http.StatusBadRequest)
		return
	}

	if err := s.Modem.Connect(r.Context(), req.APN, req.Username, req.Password); err != nil {
		s.Logger.Error("Failed to connect", "error", err, "apn", req.APN)
		s.sendError(w, err.Error(), modemError(err))
		return
	}

	if s.Watchdog != nil {
		s.Watchdog.Resume()
	}
	s.Logger.Info("Connected", "apn", req.APN)
	s.sendJSON(w, map[string]string{"mode": s.Modem.Mode().String()}, http.StatusOK)
}

func (s *Server) handleHangup(w http.ResponseWriter, r *http.Request) {
	// paused first so that a tick cannot redial in between
	if s.Watchdog != nil {
		s.Watchdog.Pause()
	}
	if err := s.Modem.Hangup(r.Context()); err != nil {
		s.Logger.Error("Failed to hang up", "error", err)
		s.sendError(w, err.Error(), modemError(err))
		return
	}
	s.sendJSON(w, map[string]string{"mode": s.Modem.Mode().String()}, http.StatusOK)
}

func (s *Server) handlePPP(w http.ResponseWriter, r *http.Request) {
	type PPPResponse struct {
		Connected bool   `json:"connected"`
		Mode      string `json:"mode"`
		Error     string `json:"error,omitempty"`
	}

	connected, err := s.Modem.CheckPPPStatus(r.Context())
	resp := PPPResponse{Connected: connected, Mode: s.Modem.Mode().String()}
	if err != nil {
		s.Logger.Error("PPP status check failed", "error", err)
		resp.Error = err.Error()
		s.sendJSON(w, resp, modemError(err))
		return
	}
	s.sendJSON(w, resp, http.StatusOK)
}

func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	t, err := s.Modem.NetworkTime(r.Context())
	if err != nil {
		s.Logger.Error("Failed to read network time", "error", err)
		s.sendError(w, err.Error(), modemError(err))
		return
	}
	s.sendJSON(w, map[string]time.Time{"time": t}, http.StatusOK)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		s.sendError(w, "journal disabled", http.StatusNotFound)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.sendError(w, "'limit' must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.Journal.Recent(r.Context(), r.URL.Query().Get("kind"), limit)
	if err != nil {
		s.Logger.Error("Failed to read journal", "error", err)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, entries, http.StatusOK)
}

// handleEvents streams modem events to a websocket client.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		s.sendError(w, "event stream disabled", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, cancel := s.Hub.Subscribe(0)
	defer cancel()

	// the reader notices a closed connection
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.Logger.Debug("WebSocket client connected", "remote", r.RemoteAddr)
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.Logger.Debug("WebSocket client disconnected", "remote", r.RemoteAddr, "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
