package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bnema/steam-accounts-cli/internal/application"
	"github.com/bnema/steam-accounts-cli/internal/domain"
	"github.com/sirupsen/logrus"
)

const (
	DefaultListenAddr = "127.0.0.1:8787"

	maxRequestBytes   = 64 * 1024
	readHeaderTimeout = 5 * time.Second
)

// AccountService is the part of the account facade exposed over HTTP.
type AccountService interface {
	GetStatus() application.Status
	AcceptAllPending(ctx context.Context) (application.AcceptResult, error)
	IsFriend(ctx context.Context, peer domain.PeerID) bool
	SendMessage(ctx context.Context, peer domain.PeerID, text string) error
}

type handler struct {
	service AccountService
	logger  logrus.FieldLogger
}

// NewHandler routes the control-plane endpoints to service.
func NewHandler(service AccountService, logger logrus.FieldLogger) http.Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &handler{service: service, logger: logger.WithField("component", "httpapi")}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", h.status)
	mux.HandleFunc("POST /friends/accept", h.acceptAll)
	mux.HandleFunc("GET /friends/{peer}", h.isFriend)
	mux.HandleFunc("POST /messages", h.sendMessage)
	mux.HandleFunc("OPTIONS /", h.preflight)

	return h.withCORS(h.withLogging(mux))
}

func (h *handler) status(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.GetStatus())
}

func (h *handler) acceptAll(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.AcceptAllPending(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toAcceptResponse(result))
}

func (h *handler) isFriend(w http.ResponseWriter, r *http.Request) {
	peer := domain.PeerID(strings.TrimSpace(r.PathValue("peer")))
	if peer == "" {
		h.writeBadRequest(w, "peer is required")
		return
	}
	h.writeJSON(w, http.StatusOK, friendResponse{Peer: peer, Friend: h.service.IsFriend(r.Context(), peer)})
}

func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		h.writeBadRequest(w, fmt.Sprintf("decode message request: %v", err))
		return
	}

	req.Peer = domain.PeerID(strings.TrimSpace(string(req.Peer)))
	if req.Peer == "" {
		h.writeBadRequest(w, "peer is required")
		return
	}
	if req.Text == "" {
		h.writeBadRequest(w, "text is required")
		return
	}

	if err := h.service.SendMessage(r.Context(), req.Peer, req.Text); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) preflight(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *handler) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		h.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(started),
		}).Debug("Handled control request")
	})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Warn("Failed to write response")
	}
}

func (h *handler) writeBadRequest(w http.ResponseWriter, message string) {
	h.writeJSON(w, http.StatusBadRequest, errorResponse{Code: codeBadRequest, Error: message})
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).Warn("Control request failed")
	}
	h.writeJSON(w, status, errorResponse{Code: code, Error: err.Error()})
}

// Server serves the control plane on a TCP listener.
type Server struct {
	listener  net.Listener
	server    *http.Server
	errCh     chan error
	closeOnce sync.Once
}

func StartServer(listenAddr string, service AccountService, logger logrus.FieldLogger) (*Server, error) {
	if listenAddr == "" {
		listenAddr = DefaultListenAddr
	}

	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen control server: %w", err)
	}

	s := &Server{
		listener: listener,
		server: &http.Server{
			Handler:           NewHandler(service, logger),
			ReadHeaderTimeout: readHeaderTimeout,
		},
		errCh: make(chan error, 1),
	}

	go func() {
		if serveErr := s.server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.errCh <- serveErr
		}
		close(s.errCh)
	}()

	return s, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Err reports a serve failure; it is closed after a clean shutdown.
func (s *Server) Err() <-chan error {
	return s.errCh
}

func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		err = s.server.Shutdown(ctx)
	})
	return err
}
