// Package server exposes the round engine over HTTP: a WebSocket event
// stream per game plus REST endpoints for snapshots, bets, manual advances,
// and fairness verification.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wheelhouse-gg/wheelhouse/internal/hub"
	"github.com/wheelhouse-gg/wheelhouse/internal/round"
)

// Game bundles one scheduler with its hub under a routable name.
type Game struct {
	Name      string
	Scheduler *round.Scheduler
	Hub       *hub.Hub
}

// Server is the HTTP/WebSocket front for a set of games. The game set is
// fixed at construction; the first game is the default for the unprefixed
// routes.
type Server struct {
	logger      zerolog.Logger
	upgrader    websocket.Upgrader
	games       map[string]*Game
	defaultGame string
	httpServer  *http.Server
}

// NewServer creates a server over the given games.
func NewServer(logger zerolog.Logger, games ...*Game) *Server {
	s := &Server{
		logger: logger.With().Str("component", "server").Logger(),
		upgrader: websocket.Upgrader{
			// Origin checking is the reverse proxy's job in production.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		games: make(map[string]*Game),
	}
	for _, g := range games {
		s.games[g.Name] = g
		if s.defaultGame == "" {
			s.defaultGame = g.Name
		}
	}
	return s
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/verify", s.handleVerify)

	// Unprefixed aliases for the default game.
	r.Get("/ws", s.gameHandler(s.handleWebSocket))
	r.Route("/api/rounds", func(r chi.Router) {
		r.Get("/current", s.gameHandler(s.handleSnapshot))
		r.Post("/advance", s.gameHandler(s.handleAdvance))
		r.Post("/{roundID}/bets", s.gameHandler(s.handleBet))
	})

	r.Route("/games/{game}", func(r chi.Router) {
		r.Get("/ws", s.gameHandler(s.handleWebSocket))
		r.Get("/rounds/current", s.gameHandler(s.handleSnapshot))
		r.Post("/rounds/advance", s.gameHandler(s.handleAdvance))
		r.Post("/rounds/{roundID}/bets", s.gameHandler(s.handleBet))
	})

	return r
}

// Start serves HTTP on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.Router()}
	s.logger.Info().Str("addr", addr).Int("games", len(s.games)).Msg("Starting server")
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the HTTP listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type gameHandlerFunc func(w http.ResponseWriter, r *http.Request, game *Game)

// gameHandler resolves the {game} route param, falling back to the default
// game for the unprefixed routes.
func (s *Server) gameHandler(fn gameHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "game")
		if name == "" {
			name = s.defaultGame
		}
		game, ok := s.games[name]
		if !ok {
			s.writeError(w, http.StatusNotFound, "game_not_found", "Unknown game: "+name)
			return
		}
		fn(w, r, game)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, game *Game) {
	participantID := r.URL.Query().Get("participant")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	client, err := NewConnection(conn, game, participantID, s.logger)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to subscribe connection")
		_ = conn.Close()
		return
	}

	go client.Start()
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request, game *Game) {
	s.writeJSON(w, http.StatusOK, game.Scheduler.Snapshot())
}

type betRequest struct {
	ParticipantID string `json:"participant_id"`
	BetID         string `json:"bet_id,omitempty"`
}

func (s *Server) handleBet(w http.ResponseWriter, r *http.Request, game *Game) {
	roundID := chi.URLParam(r, "roundID")

	var req betRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse bet request")
		return
	}
	if req.ParticipantID == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "participant_id is required")
		return
	}
	if req.BetID == "" {
		req.BetID = uuid.NewString()
	}

	err := game.Scheduler.RegisterBet(roundID, req.ParticipantID, req.BetID)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, BetAckData{RoundID: roundID, BetID: req.BetID})
	case errors.Is(err, round.ErrInvalidPhase):
		s.writeError(w, http.StatusConflict, "invalid_phase", "Betting is closed for this round")
	case errors.Is(err, round.ErrRoundNotFound), errors.Is(err, round.ErrNoRound):
		s.writeError(w, http.StatusNotFound, "round_not_found", "Round is no longer current")
	default:
		s.writeError(w, http.StatusInternalServerError, "bet_failed", err.Error())
	}
}

type advanceRequest struct {
	ParticipantID string `json:"participant_id"`
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request, game *Game) {
	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse advance request")
		return
	}
	if req.ParticipantID == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "participant_id is required")
		return
	}

	roundID, err := game.Scheduler.TriggerAdvance(req.ParticipantID)

	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, AdvanceAckData{RoundID: roundID, Status: "advancing"})
	case errors.Is(err, round.ErrAlreadyAdvancing):
		s.writeJSON(w, http.StatusOK, AdvanceAckData{RoundID: roundID, Status: "already_advancing"})
	case errors.Is(err, round.ErrInvalidPhase):
		s.writeError(w, http.StatusConflict, "invalid_phase", "Round cannot be advanced right now")
	case errors.Is(err, round.ErrNoRound):
		s.writeError(w, http.StatusNotFound, "round_not_found", "No round in progress")
	default:
		s.writeError(w, http.StatusInternalServerError, "advance_failed", err.Error())
	}
}

type verifyResponse struct {
	HashMatches bool           `json:"hash_matches"`
	Hash        string         `json:"hash"`
	Outcome     *round.Outcome `json:"outcome,omitempty"`
}

// handleVerify lets anyone recompute a revealed round from its public
// inputs: hash check always, outcome re-derivation when kind is supplied.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	secret := q.Get("secret")
	hash := q.Get("hash")
	if secret == "" || hash == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "secret and hash are required")
		return
	}

	resp := verifyResponse{
		HashMatches: round.VerifyCommitment(secret, hash),
		Hash:        round.HashSecret(secret),
	}

	if kind := q.Get("kind"); kind != "" {
		roundID := q.Get("round_id")
		sequence, _ := strconv.ParseUint(q.Get("sequence"), 10, 64)
		in := round.PublicInputs{RoundID: roundID, Sequence: sequence}

		switch round.Kind(kind) {
		case round.KindFixedPhase:
			slots, _ := strconv.Atoi(q.Get("slots"))
			out := round.WheelStrategy{Slots: slots}.Settle(secret, in)
			resp.Outcome = &out
		case round.KindEscalating:
			edge, _ := strconv.ParseFloat(q.Get("house_edge"), 64)
			maxPoint, _ := strconv.ParseFloat(q.Get("max_crash_point"), 64)
			out := round.CrashStrategy{HouseEdge: edge, MaxPoint: maxPoint}.Settle(secret, in)
			resp.Outcome = &out
		default:
			s.writeError(w, http.StatusBadRequest, "invalid_request", "Unknown kind: "+kind)
			return
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, ErrorData{Code: code, Message: message})
}
