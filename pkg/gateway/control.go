package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// controlTokenHeader authenticates non-loopback control requests.
const controlTokenHeader = "X-Bot-Control-Token"

type healthResponse struct {
	OK     bool   `json:"ok"`
	Ready  bool   `json:"ready"`
	Mode   string `json:"mode"`
	Paused bool   `json:"paused"`
}

type controlResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Mode   string `json:"mode,omitempty"`
	Paused *bool  `json:"paused,omitempty"`
}

// runControlServer serves the health and control endpoints until ctx is done.
// Startup failures (typically a taken port) are fatal for the service.
func (s *Service) runControlServer(ctx context.Context, errCh chan<- error) {
	control := s.runtime.Config().Control

	host := strings.TrimSpace(control.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	addr := net.JoinHostPort(host, strconv.Itoa(control.Port))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/reload", s.controlAction(func() error { return s.Reload() }))
	mux.HandleFunc("/pause", s.controlAction(func() error { s.Pause(); return nil }))
	mux.HandleFunc("/resume", s.controlAction(func() error { s.Resume(); return nil }))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Control endpoint started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start control endpoint: %w", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, healthResponse{
		OK:     true,
		Ready:  s.ready.Load(),
		Mode:   s.runtime.CurrentPair().Key,
		Paused: s.Paused(),
	})
}

// controlAction wraps a state-changing operation with method and caller
// checks. Every action reports the resulting mode and pause state.
func (s *Service) controlAction(action func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !s.authorized(r) {
			s.writeJSON(w, http.StatusForbidden, controlResponse{OK: false, Error: "forbidden"})
			return
		}

		if err := action(); err != nil {
			s.log.Error("Control action failed", "path", r.URL.Path, "error", err)
			s.writeJSON(w, http.StatusInternalServerError, controlResponse{OK: false, Error: err.Error()})
			return
		}

		paused := s.Paused()
		s.writeJSON(w, http.StatusOK, controlResponse{
			OK:     true,
			Mode:   s.runtime.CurrentPair().Key,
			Paused: &paused,
		})
	}
}

// authorized admits a control request from loopback unconditionally; remote
// callers must present the configured token. With no token configured, only
// loopback gets in.
func (s *Service) authorized(r *http.Request) bool {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
			return true
		}
	}

	token := s.runtime.Config().Control.Token
	if token == "" {
		return false
	}
	presented := r.Header.Get(controlTokenHeader)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1
}

func (s *Service) writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write control response", "error", err)
	}
}
