// Package api exposes a small local control surface over HTTP, either on a
// TCP address or a unix socket / named pipe. It mirrors what the
// interactive menu can do and streams change events to subscribers.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/fosrl/newt/logger"
	"github.com/gorilla/websocket"

	"github.com/dnschanger/dnschanger/dnsmgr"
	"github.com/dnschanger/dnschanger/providers"
)

// ApplyRequest is the body of POST /apply. Either Provider or Addrs must
// be set.
type ApplyRequest struct {
	Interface string   `json:"interface"`
	Provider  string   `json:"provider,omitempty"`
	Addrs     []string `json:"addrs,omitempty"`
	Automatic bool     `json:"automatic,omitempty"`
}

// RestoreRequest is the body of POST /restore. Interface is optional; the
// saved record names the interface when omitted.
type RestoreRequest struct {
	Interface string `json:"interface,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Version        string         `json:"version,omitempty"`
	Interfaces     []string       `json:"interfaces"`
	PendingRestore bool           `json:"pendingRestore"`
	Previous       *dnsmgr.Record `json:"previous,omitempty"`
}

// ProvidersResponse is returned by GET /providers. Custom and Automatic
// are always offered alongside the presets.
type ProvidersResponse struct {
	Providers []providers.Provider `json:"providers"`
	Custom    bool                 `json:"custom"`
	Automatic bool                 `json:"automatic"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// API is the HTTP server plus the websocket subscriber set for /events.
type API struct {
	addr       string
	socketPath string
	version    string
	listener   net.Listener
	server     *http.Server
	mgr        *dnsmgr.Manager
	extra      []providers.Provider
	upgrader   websocket.Upgrader

	mu          sync.Mutex
	subscribers map[*websocket.Conn]struct{}
}

// NewAPI creates a server listening on a TCP address.
func NewAPI(addr, version string, mgr *dnsmgr.Manager, extra []providers.Provider) *API {
	return &API{
		addr:        addr,
		version:     version,
		mgr:         mgr,
		extra:       extra,
		subscribers: make(map[*websocket.Conn]struct{}),
	}
}

// NewAPISocket creates a server listening on a unix socket or Windows
// named pipe.
func NewAPISocket(socketPath, version string, mgr *dnsmgr.Manager, extra []providers.Provider) *API {
	return &API{
		socketPath:  socketPath,
		version:     version,
		mgr:         mgr,
		extra:       extra,
		subscribers: make(map[*websocket.Conn]struct{}),
	}
}

// Start begins serving. The manager's change notifications are wired to
// the /events broadcast.
func (s *API) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/providers", s.handleProviders)
	mux.HandleFunc("/apply", s.handleApply)
	mux.HandleFunc("/restore", s.handleRestore)
	mux.HandleFunc("/events", s.handleEvents)

	s.server = &http.Server{Handler: mux}
	s.mgr.SetNotify(s.Broadcast)

	var err error
	if s.socketPath != "" {
		s.listener, err = createSocketListener(s.socketPath)
		if err != nil {
			return fmt.Errorf("failed to create socket listener: %w", err)
		}
		logger.Info("Starting control API on socket %s", s.socketPath)
	} else {
		s.listener, err = net.Listen("tcp", s.addr)
		if err != nil {
			return fmt.Errorf("failed to create TCP listener: %w", err)
		}
		logger.Info("Starting control API on %s", s.addr)
	}

	go func() {
		if err := s.server.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			logger.Error("Control API error: %v", err)
		}
	}()
	return nil
}

// Stop shuts down the server and closes all event subscribers.
func (s *API) Stop() error {
	logger.Info("Stopping control API")

	s.mu.Lock()
	for conn := range s.subscribers {
		conn.Close()
	}
	s.subscribers = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()

	if s.server != nil {
		s.server.Close()
	}
	if s.socketPath != "" {
		cleanupSocket(s.socketPath)
	}
	return nil
}

// Broadcast sends a change event to every /events subscriber.
func (s *API) Broadcast(ev dnsmgr.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.subscribers {
		if err := conn.WriteJSON(ev); err != nil {
			logger.Debug("Dropping events subscriber: %v", err)
			conn.Close()
			delete(s.subscribers, conn)
		}
	}
}

func (s *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	interfaces, err := s.mgr.ListInterfaces()
	if err != nil {
		interfaces = nil
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Version:        s.version,
		Interfaces:     interfaces,
		PendingRestore: s.mgr.PendingRestore(),
		Previous:       s.mgr.Previous(),
	})
}

func (s *API) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, ProvidersResponse{
		Providers: append(providers.Builtin(), s.extra...),
		Custom:    true,
		Automatic: true,
	})
}

func (s *API) handleApply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if req.Automatic {
		if err := s.mgr.SetAutomatic(req.Interface); err != nil {
			writeManagerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"result": "automatic"})
		return
	}

	values := req.Addrs
	if req.Provider != "" {
		p, ok := providers.Find(req.Provider, s.extra)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown provider %q", req.Provider))
			return
		}
		values = p.AddrStrings()
	}

	if err := s.mgr.Apply(req.Interface, values); err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": "applied", "addrs": values})
}

func (s *API) handleRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req RestoreRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
	}

	if err := s.mgr.Restore(req.Interface); err != nil {
		writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "restored"})
}

func (s *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("Events upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.subscribers[conn] = struct{}{}
	s.mu.Unlock()

	logger.Debug("Events subscriber connected from %s", r.RemoteAddr)

	// Drain the connection to notice the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.mu.Lock()
				delete(s.subscribers, conn)
				s.mu.Unlock()
				conn.Close()
				return
			}
		}
	}()
}

// writeManagerError maps the manager's sentinel errors onto HTTP status
// codes.
func writeManagerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dnsmgr.ErrInvalidAddress):
		status = http.StatusBadRequest
	case errors.Is(err, dnsmgr.ErrInterfaceNotFound), errors.Is(err, dnsmgr.ErrNoInterfacesFound):
		status = http.StatusNotFound
	case errors.Is(err, dnsmgr.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, dnsmgr.ErrNothingToRestore):
		status = http.StatusConflict
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Failed to encode response: %v", err)
	}
}
