// internal/server/server.go
// The thin HTTP surface. No business logic lives here: handlers decode,
// delegate to the driver or orchestrator, and translate errors per the
// taxonomy.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	json "github.com/json-iterator/go"

	"github.com/0xfaultline/chatmux/api/schemas"
	"github.com/0xfaultline/chatmux/internal/browser"
	"github.com/0xfaultline/chatmux/internal/config"
	"github.com/0xfaultline/chatmux/internal/discussion"
)

// AgentLister exposes the registry's tracked identities for observability.
type AgentLister interface {
	ListActiveAgents() []string
}

// DiscussionRunner is the orchestrator surface the handlers call.
type DiscussionRunner interface {
	RunSerial(ctx context.Context, req discussion.SerialRequest) (*schemas.DiscussionResult, error)
	RunParallel(ctx context.Context, req discussion.ParallelRequest) (*schemas.DiscussionResult, error)
}

// Server wires the HTTP mux to the orchestration core.
type Server struct {
	httpServer *http.Server
	sender     schemas.MessageSender
	agents     AgentLister
	runner     DiscussionRunner
	repo       schemas.Repository // nil when persistence is disabled
	logger     *zap.Logger
}

func New(cfg config.ServerConfig, sender schemas.MessageSender, agents AgentLister, runner DiscussionRunner, repo schemas.Repository, logger *zap.Logger) *Server {
	s := &Server{
		sender: sender,
		agents: agents,
		runner: runner,
		repo:   repo,
		logger: logger.Named("server"),
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler builds the route table. Exposed separately for httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /agents", s.handleListAgents)
	mux.HandleFunc("POST /agents/{agentID}/messages", s.handleSendMessage)
	mux.HandleFunc("POST /rooms/{roomID}/discuss", s.handleDiscuss)
	mux.HandleFunc("POST /rooms/{roomID}/discuss-v2", s.handleDiscussV2)
	mux.HandleFunc("GET /rooms/{roomID}", s.handleGetRoom)
	return mux
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP surface listening.", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains connections gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"agents": s.agents.ListActiveAgents()})
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agentID")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("body must be {\"message\": \"...\"}"))
		return
	}

	result, err := s.sender.SendMessage(r.Context(), agentID, req.Message)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDiscuss(w http.ResponseWriter, r *http.Request) {
	var req discussion.SerialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("body requires a question"))
		return
	}
	req.RoomID = r.PathValue("roomID")

	result, err := s.runner.RunSerial(r.Context(), req)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDiscussV2(w http.ResponseWriter, r *http.Request) {
	var req discussion.ParallelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("body requires a question"))
		return
	}
	req.RoomID = r.PathValue("roomID")

	result, err := s.runner.RunParallel(r.Context(), req)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		s.writeError(w, http.StatusNotImplemented, fmt.Errorf("persistence is disabled"))
		return
	}
	details, err := s.repo.GetRoomWithDetails(r.Context(), r.PathValue("roomID"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, http.StatusOK, details)
}

// statusFor maps the error taxonomy onto HTTP statuses: an unreachable
// browser is a dependency outage, a broken selector contract is a bad
// upstream response.
func statusFor(err error) int {
	switch {
	case errors.Is(err, browser.ErrBrowserUnreachable):
		return http.StatusServiceUnavailable
	case errors.Is(err, browser.ErrInputNotFound),
		errors.Is(err, browser.ErrInputInjection),
		errors.Is(err, browser.ErrSendTriggerExhausted),
		errors.Is(err, browser.ErrGenerationTimeout):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("Failed to encode response.", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
