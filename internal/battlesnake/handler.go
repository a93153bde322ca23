package battlesnake

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// APIVersion is the Battlesnake API version served.
const APIVersion = "1"

// maxBodyBytes bounds a request body; the largest boards are a few tens of KB.
const maxBodyBytes = 1 << 20

// EventHandler observes the game lifecycle. Implementations must return
// promptly: the move deadline is measured from the engine's side.
type EventHandler interface {
	GameStarted(state GameState)
	MoveRequested(state GameState, move Direction)
	GameEnded(state GameState)
}

// Chooser picks a move for a game state.
type Chooser interface {
	Choose(state GameState) Direction
}

// Server serves the Battlesnake webhook API.
type Server struct {
	info    InfoResponse
	chooser Chooser
	events  EventHandler
	logger  *zap.Logger
}

// NewServer creates the webhook API.
//
// Precondition: chooser, events and logger must be non-nil.
func NewServer(info InfoResponse, chooser Chooser, events EventHandler, logger *zap.Logger) *Server {
	if info.APIVersion == "" {
		info.APIVersion = APIVersion
	}
	return &Server{info: info, chooser: chooser, events: events, logger: logger}
}

// Register mounts the API routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleInfo)
	mux.HandleFunc("POST /start", s.handleStart)
	mux.HandleFunc("POST /move", s.handleMove)
	mux.HandleFunc("POST /end", s.handleEnd)
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.info)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	state, ok := s.decode(w, r)
	if !ok {
		return
	}
	s.logger.Info("game started",
		zap.String("game_id", state.Game.ID),
		zap.String("ruleset", state.Game.Ruleset.Name),
		zap.Int("snakes", len(state.Board.Snakes)),
	)
	s.events.GameStarted(state)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	state, ok := s.decode(w, r)
	if !ok {
		return
	}
	move := s.chooser.Choose(state)
	writeJSON(w, MoveResponse{Move: move})

	s.logger.Debug("move chosen",
		zap.String("game_id", state.Game.ID),
		zap.Int("turn", state.Turn),
		zap.String("move", string(move)),
		zap.Duration("elapsed", time.Since(start)),
	)
	s.events.MoveRequested(state, move)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	state, ok := s.decode(w, r)
	if !ok {
		return
	}
	s.logger.Info("game ended",
		zap.String("game_id", state.Game.ID),
		zap.Int("turn", state.Turn),
		zap.String("outcome", string(OutcomeOf(state))),
	)
	s.events.GameEnded(state)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (GameState, bool) {
	var state GameState
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&state); err != nil {
		s.logger.Warn("rejecting game request",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		http.Error(w, fmt.Sprintf("invalid game state: %v", err), http.StatusBadRequest)
		return GameState{}, false
	}
	if state.Game.ID == "" {
		http.Error(w, "invalid game state: game.id is required", http.StatusBadRequest)
		return GameState{}, false
	}
	return state, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
