// Package api exposes the assistant over HTTP to the chat-forwarding
// gateway: one message endpoint plus a health check, authenticated with
// gateway-signed bearer tokens.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/louisbranch/taskweave/internal/assistant"
	apperrors "github.com/louisbranch/taskweave/internal/platform/errors"
	"github.com/louisbranch/taskweave/internal/platform/timeouts"
)

// MessageHandler is the orchestrator surface the server needs.
type MessageHandler interface {
	HandleMessage(ctx context.Context, sessionID, userID, text string) (assistant.Reply, error)
}

// Server is the inbound HTTP surface.
type Server struct {
	addr       string
	httpServer *http.Server
	handler    MessageHandler
	verifier   *Verifier
	logger     *log.Logger
}

// NewServer builds the HTTP server on addr.
func NewServer(addr string, handler MessageHandler, verifier *Verifier, logger *log.Logger) (*Server, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("message handler is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("verifier is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{addr: addr, handler: handler, verifier: verifier, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/messages", s.handleMessage)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	return s, nil
}

// Handler exposes the mux, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe runs the server until the context ends, then drains
// in-flight requests within the shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	serveErr := make(chan error, 1)
	s.logger.Printf("assistant api listening on %s", s.addr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type messageRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := s.verifier.Verify(bearerToken(r))
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, err)
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest,
			apperrors.New(apperrors.CodeValidation, "request body must be JSON"))
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		s.writeError(w, http.StatusBadRequest,
			apperrors.New(apperrors.CodeValidation, "session_id is required"))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, http.StatusBadRequest,
			apperrors.New(apperrors.CodeValidation, "text is required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Turn)
	defer cancel()

	reply, err := s.handler.HandleMessage(ctx, req.SessionID, userID, req.Text)
	if err != nil {
		s.logger.Printf("session=%s code=%s: %v", req.SessionID, apperrors.GetCode(err), err)
		s.writeError(w, http.StatusInternalServerError,
			apperrors.New(apperrors.CodeTransient, "the assistant is temporarily unavailable"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(reply); err != nil {
		s.logger.Printf("session=%s encode reply: %v", req.SessionID, err)
	}
}

// writeError emits the typed code and a safe message, never internal
// error text.
func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	var resp errorResponse
	resp.Error.Code = string(apperrors.GetCode(err))
	resp.Error.Message = apperrors.GetMessage(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return token
}
