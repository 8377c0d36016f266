package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi"
	"github.com/rs/cors"

	"github.com/evermind-ai/evermind/pkg/ai"
	"github.com/evermind-ai/evermind/pkg/assistant"
)

// Server exposes the assistant over HTTP.
type Server struct {
	logger    *log.Logger
	assistant *assistant.Service
}

func New(logger *log.Logger, svc *assistant.Service) *Server {
	return &Server{logger: logger, assistant: svc}
}

// Router builds the HTTP surface.
func (s *Server) Router() *chi.Mux {
	router := chi.NewRouter()
	router.Use(cors.New(cors.Options{
		AllowCredentials: true,
		AllowedOrigins:   []string{"*"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept"},
		Debug:            false,
	}).Handler)

	router.Post("/api/v1/assistant", s.handleTurn)
	router.Post("/api/v1/assistant/patch", s.handlePatch)
	router.Get("/api/v1/assistant/history", s.handleHistory)
	router.Get("/api/v1/assistant/stats", s.handleStats)

	return router
}

type turnRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type patchRequest struct {
	UserID          string   `json:"user_id"`
	Text            string   `json:"text"`
	EnrichedPrompt  string   `json:"enriched_prompt"`
	ResolvableNames []string `json:"resolvable_names"`
}

type turnResponse struct {
	ServerReply string     `json:"server_reply"`
	Question    bool       `json:"question"`
	Skills      []ai.Skill `json:"skills,omitempty"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Text) == "" {
		s.writeError(w, http.StatusBadRequest, "user_id and text are required")
		return
	}

	result, err := s.assistant.HandleTurn(r.Context(), req.UserID, req.Text, nil)
	if err != nil {
		s.logger.Error("Turn failed", "user_id", req.UserID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to process request")
		return
	}

	s.writeJSON(w, http.StatusOK, turnResponse{
		ServerReply: result.ReplyText,
		Question:    result.ContinueListening,
		Skills:      result.Skills,
	})
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if strings.TrimSpace(req.Text) == "" && strings.TrimSpace(req.EnrichedPrompt) == "" {
		s.writeError(w, http.StatusBadRequest, "text or enriched_prompt is required")
		return
	}

	patch := &assistant.PatchSignal{
		EnrichedPrompt:  req.EnrichedPrompt,
		ResolvableNames: req.ResolvableNames,
	}
	result, err := s.assistant.HandleTurn(r.Context(), req.UserID, req.Text, patch)
	if err != nil {
		s.logger.Error("Patch turn failed", "user_id", req.UserID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to process request")
		return
	}

	s.writeJSON(w, http.StatusOK, turnResponse{
		ServerReply: result.ReplyText,
		Question:    result.ContinueListening,
		Skills:      result.Skills,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)

	result, err := s.assistant.History(r.Context(), userID, page, pageSize)
	if err != nil {
		s.logger.Error("History lookup failed", "user_id", userID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	stats, err := s.assistant.ContextStats(r.Context(), userID)
	if err != nil {
		s.logger.Error("Stats lookup failed", "user_id", userID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
