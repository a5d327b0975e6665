// Package api exposes the dialogue engine over HTTP.
//
// It provides a chat endpoint plus thread inspection and reset endpoints.
// Turns within one thread are serialized so concurrent requests cannot
// interleave state updates.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gutzcha/fitbit-bot/internal/flow"
	"github.com/gutzcha/fitbit-bot/internal/models"
	"github.com/gutzcha/fitbit-bot/internal/store"
)

// defaultShutdownTimeout bounds graceful shutdown.
const defaultShutdownTimeout = 10 * time.Second

// Server hosts the HTTP API in front of the turn router.
type Server struct {
	router       *flow.TurnRouter
	stateManager flow.StateManager
	addr         string

	mu          sync.Mutex
	threadLocks map[string]*sync.Mutex

	httpServer *http.Server
}

// NewServer creates an API server. addr is the listen address (":8080").
func NewServer(router *flow.TurnRouter, stateManager flow.StateManager, addr string) *Server {
	return &Server{
		router:       router,
		stateManager: stateManager,
		addr:         addr,
		threadLocks:  map[string]*sync.Mutex{},
	}
}

// Handler returns the configured route mux, exported for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.chatHandler)
	mux.HandleFunc("GET /threads/{id}", s.getThreadHandler)
	mux.HandleFunc("DELETE /threads/{id}", s.deleteThreadHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	return mux
}

// Run starts the HTTP server and blocks until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{Addr: s.addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		slog.Info("Server.Run: shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// threadLock returns the mutex serializing turns for one thread.
func (s *Server) threadLock(threadID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.threadLocks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		s.threadLocks[threadID] = lock
	}
	return lock
}

// ChatRequest is the POST /chat request body.
type ChatRequest struct {
	ThreadID string `json:"thread_id"`
	UserID   int64  `json:"user_id"`
	Message  string `json:"message"`
}

// ChatResponse is the POST /chat reply.
type ChatResponse struct {
	ThreadID           string              `json:"thread_id"`
	TurnID             string              `json:"turn_id"`
	Response           string              `json:"response"`
	Intent             models.IntentLabel  `json:"intent,omitempty"`
	Confidence         float64             `json:"confidence"`
	NeedsClarification bool                `json:"needs_clarification"`
	SuggestionIncluded bool                `json:"suggestion_included"`
	Deltas             []models.StateDelta `json:"deltas,omitempty"`
}

func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.chatHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if strings.TrimSpace(req.ThreadID) == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("thread_id is required"))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("message is required"))
		return
	}

	lock := s.threadLock(req.ThreadID)
	lock.Lock()
	defer lock.Unlock()

	result, err := s.router.HandleTurn(r.Context(), req.ThreadID, req.UserID, req.Message)
	if err != nil {
		if errors.Is(err, models.ErrEmptyThreadID) || errors.Is(err, models.ErrEmptyUserMessage) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.chatHandler: turn failed", "threadID", req.ThreadID, "error", err)
		// The router still produced a user-facing response for failed turns.
		if result != nil {
			writeJSONResponse(w, http.StatusInternalServerError, chatResponseFrom(result))
			return
		}
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}
	writeJSONResponse(w, http.StatusOK, chatResponseFrom(result))
}

func chatResponseFrom(result *models.TurnResult) ChatResponse {
	return ChatResponse{
		ThreadID:           result.ThreadID,
		TurnID:             result.TurnID,
		Response:           result.Response,
		Intent:             result.Intent,
		Confidence:         result.Confidence,
		NeedsClarification: result.NeedsClarification,
		SuggestionIncluded: result.SuggestionIncluded,
		Deltas:             result.Deltas,
	}
}

func (s *Server) getThreadHandler(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")
	thread, err := s.stateManager.GetThread(r.Context(), threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Thread not found"))
			return
		}
		if errors.Is(err, models.ErrEmptyThreadID) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.getThreadHandler: load failed", "threadID", threadID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load thread"))
		return
	}
	writeJSONResponse(w, http.StatusOK, thread)
}

func (s *Server) deleteThreadHandler(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")
	if err := s.stateManager.ResetThread(r.Context(), threadID); err != nil {
		if errors.Is(err, models.ErrEmptyThreadID) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.deleteThreadHandler: reset failed", "threadID", threadID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to reset thread"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success("Thread reset"))
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success("healthy"))
}
