package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/duel/go/internal/match"
	"github.com/mcdev12/duel/go/internal/match/history"
	"github.com/mcdev12/duel/go/internal/models"
)

// HistoryReader serves finalized matches
type HistoryReader interface {
	ListRecent(ctx context.Context, limit int) ([]history.MatchResult, error)
	ListByParticipant(ctx context.Context, participantID string, limit int) ([]history.MatchResult, error)
}

// ChallengeRequest is the body of POST /api/challenges
type ChallengeRequest struct {
	HostID     string `json:"host_id"`
	OpponentID string `json:"opponent_id"`
	TimeLimit  int    `json:"time_limit"`
}

// APIHandler handles the JSON HTTP API
type APIHandler struct {
	commands  *Commands
	engine    Engine
	directory Directory
	history   HistoryReader
}

func NewAPIHandler(commands *Commands, engine Engine, directory Directory, history HistoryReader) *APIHandler {
	return &APIHandler{
		commands:  commands,
		engine:    engine,
		directory: directory,
		history:   history,
	}
}

// HandleCreateChallenge handles POST /api/challenges
func (h *APIHandler) HandleCreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req ChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.HostID == "" || req.OpponentID == "" {
		http.Error(w, "host_id and opponent_id are required", http.StatusBadRequest)
		return
	}

	host, ok := h.directory.Lookup(req.HostID)
	if !ok {
		http.Error(w, "Host is not connected", http.StatusConflict)
		return
	}

	snap, err := h.commands.Challenge(r.Context(), host, req.OpponentID, req.TimeLimit)
	var ce *match.ChallengeError
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, snap)
	case errors.As(err, &ce):
		writeJSON(w, http.StatusUnprocessableEntity, rejectedPayload(ce))
	case errors.Is(err, match.ErrEngineClosed):
		http.Error(w, "Engine is shutting down", http.StatusServiceUnavailable)
	default:
		log.Error().Err(err).Str("host_id", req.HostID).Str("opponent_id", req.OpponentID).Msg("failed to start match")
		http.Error(w, "Failed to start match", http.StatusBadGateway)
	}
}

// HandleListMatches handles GET /api/matches
func (h *APIHandler) HandleListMatches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Sessions())
}

// HandleGetMatch handles GET /api/matches/{id}
func (h *APIHandler) HandleGetMatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 0 {
		http.Error(w, "Invalid match ID", http.StatusBadRequest)
		return
	}

	snap, ok := h.engine.Lookup(models.SessionID(id))
	if !ok {
		http.Error(w, "Match not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleListHistory handles GET /api/history?participant_id=&limit=
func (h *APIHandler) HandleListHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, "History is disabled", http.StatusServiceUnavailable)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	var (
		results []history.MatchResult
		err     error
	)
	if pid := r.URL.Query().Get("participant_id"); pid != "" {
		results, err = h.history.ListByParticipant(r.Context(), pid, limit)
	} else {
		results, err = h.history.ListRecent(r.Context(), limit)
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to list match history")
		http.Error(w, "Failed to list match history", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []history.MatchResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

// RegisterRoutes registers the API routes
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/challenges", h.HandleCreateChallenge)
	mux.HandleFunc("GET /api/matches", h.HandleListMatches)
	mux.HandleFunc("GET /api/matches/{id}", h.HandleGetMatch)
	mux.HandleFunc("GET /api/history", h.HandleListHistory)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
