package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/peterkuimelis/duelserver/internal/app"
	"github.com/peterkuimelis/duelserver/internal/game"
	"github.com/peterkuimelis/duelserver/internal/match"
	"github.com/peterkuimelis/duelserver/internal/store"
	"github.com/sirupsen/logrus"
)

// PlayerHeader carries the acting player's id. Authentication happens in
// front of this server.
const PlayerHeader = "X-Player-ID"

// CardInfo is the JSON representation of a card for the /api/cards endpoint.
type CardInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CardType  string `json:"cardType"`
	Subtype   string `json:"subtype,omitempty"`
	Rarity    string `json:"rarity,omitempty"`
	Archetype string `json:"archetype,omitempty"`
	ATK       int    `json:"atk,omitempty"`
	DEF       int    `json:"def,omitempty"`
	Ability   string `json:"ability,omitempty"`
	Active    bool   `json:"active"`
}

// DeckInfo is the JSON representation of a deck for the /api/decks endpoint.
type DeckInfo struct {
	Name  string   `json:"name"`
	Cards []string `json:"cards"`
}

type cardLister interface {
	Cards() []*game.CardDefinition
}

type deckLister interface {
	DeckNames() []string
	Deck(name string) ([]string, bool)
}

// Server is the match HTTP API and spectator stream.
type Server struct {
	svc *app.Service
	log logrus.FieldLogger
	mux *http.ServeMux
}

func NewServer(svc *app.Service, logger logrus.FieldLogger) *Server {
	s := &Server{svc: svc, log: logger, mux: http.NewServeMux()}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /api/cards", s.handleCards)
	s.mux.HandleFunc("GET /api/decks", s.handleDecks)

	s.mux.HandleFunc("POST /api/matches", s.handleStart)
	s.mux.HandleFunc("GET /api/matches/{lobby}", s.handleState)
	s.mux.HandleFunc("GET /api/matches/{lobby}/events", s.handleEvents)
	s.mux.HandleFunc("POST /api/matches/{lobby}/attack", s.action(s.attack))
	s.mux.HandleFunc("POST /api/matches/{lobby}/summon", s.action(s.summon))
	s.mux.HandleFunc("POST /api/matches/{lobby}/position", s.action(s.position))
	s.mux.HandleFunc("POST /api/matches/{lobby}/set", s.action(s.set))
	s.mux.HandleFunc("POST /api/matches/{lobby}/activate", s.action(s.activate))
	s.mux.HandleFunc("POST /api/matches/{lobby}/phase", s.action(s.phase))
	s.mux.HandleFunc("POST /api/matches/{lobby}/end-turn", s.action(s.endTurn))
	s.mux.HandleFunc("POST /api/matches/{lobby}/surrender", s.action(s.surrender))

	s.mux.HandleFunc("GET /ws/matches/{lobby}", s.handleWebSocket)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then drains open requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.WithField("addr", addr).Info("http server listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdown)
}

func (s *Server) handleCards(w http.ResponseWriter, r *http.Request) {
	cards := []CardInfo{}
	if cl, ok := s.svc.Engine().Catalog().(cardLister); ok {
		for _, c := range cl.Cards() {
			cards = append(cards, CardInfo{
				ID:        c.ID,
				Name:      c.Name,
				CardType:  string(c.CardType),
				Subtype:   c.Subtype,
				Rarity:    c.Rarity,
				Archetype: c.Archetype,
				ATK:       c.Attack,
				DEF:       c.Defense,
				Ability:   c.Ability.Text,
				Active:    c.IsActive,
			})
		}
	}
	writeJSON(w, http.StatusOK, cards)
}

func (s *Server) handleDecks(w http.ResponseWriter, r *http.Request) {
	decks := []DeckInfo{}
	if dl, ok := s.svc.Engine().Catalog().(deckLister); ok {
		for _, name := range dl.DeckNames() {
			cards, _ := dl.Deck(name)
			decks = append(decks, DeckInfo{Name: name, Cards: cards})
		}
	}
	writeJSON(w, http.StatusOK, decks)
}

type matchResponse struct {
	LobbyID string         `json:"lobbyId"`
	State   *app.StateView `json:"state"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req app.StartRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.HostID == "" {
		req.HostID = r.Header.Get(PlayerHeader)
	}
	res, err := s.svc.StartMatch(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, matchResponse{
		LobbyID: res.State.LobbyID,
		State:   app.NewStateView(s.svc.Engine(), res.State, req.HostID),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.View(r.Context(), r.PathValue("lobby"), r.Header.Get(PlayerHeader))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.svc.Events(r.Context(), r.PathValue("lobby"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// actionFunc performs one player action from a decoded request.
type actionFunc func(r *http.Request, lobbyID, playerID string) (*app.Result, error)

type actionResponse struct {
	*app.Result
	State *app.StateView `json:"state,omitempty"`
}

func (s *Server) action(fn actionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID := r.Header.Get(PlayerHeader)
		if playerID == "" {
			writeError(w, http.StatusUnauthorized, "missing_player", PlayerHeader+" header is required")
			return
		}
		lobbyID := r.PathValue("lobby")
		res, err := fn(r, lobbyID, playerID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, actionResponse{
			Result: res,
			State:  app.NewStateView(s.svc.Engine(), res.State, playerID),
		})
	}
}

type cardRequest struct {
	InstanceID string   `json:"instanceId"`
	Position   string   `json:"position,omitempty"`
	Targets    []string `json:"targets,omitempty"`
	AttackerID string   `json:"attackerId,omitempty"`
	TargetID   string   `json:"targetId,omitempty"`
	Phase      string   `json:"phase,omitempty"`
}

var errBadBody = errors.New("bad request body")

func readCard(r *http.Request) (cardRequest, error) {
	var req cardRequest
	if r.ContentLength == 0 {
		return req, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("%w: %v", errBadBody, err)
	}
	return req, nil
}

func (s *Server) attack(r *http.Request, lobbyID, playerID string) (*app.Result, error) {
	req, err := readCard(r)
	if err != nil {
		return nil, err
	}
	return s.svc.DeclareAttack(r.Context(), lobbyID, game.AttackRequest{
		PlayerID:   playerID,
		AttackerID: req.AttackerID,
		TargetID:   req.TargetID,
	})
}

func (s *Server) summon(r *http.Request, lobbyID, playerID string) (*app.Result, error) {
	req, err := readCard(r)
	if err != nil {
		return nil, err
	}
	pos := game.PositionAttack
	switch req.Position {
	case "", "attack":
	case "defense":
		pos = game.PositionDefense
	default:
		return nil, fmt.Errorf("%w: unknown position %q", errBadBody, req.Position)
	}
	return s.svc.NormalSummon(r.Context(), lobbyID, playerID, req.InstanceID, pos)
}

func (s *Server) position(r *http.Request, lobbyID, playerID string) (*app.Result, error) {
	req, err := readCard(r)
	if err != nil {
		return nil, err
	}
	return s.svc.ChangePosition(r.Context(), lobbyID, playerID, req.InstanceID)
}

func (s *Server) set(r *http.Request, lobbyID, playerID string) (*app.Result, error) {
	req, err := readCard(r)
	if err != nil {
		return nil, err
	}
	return s.svc.SetSpellTrap(r.Context(), lobbyID, playerID, req.InstanceID)
}

func (s *Server) activate(r *http.Request, lobbyID, playerID string) (*app.Result, error) {
	req, err := readCard(r)
	if err != nil {
		return nil, err
	}
	return s.svc.ActivateCard(r.Context(), lobbyID, playerID, req.InstanceID, req.Targets)
}

func (s *Server) phase(r *http.Request, lobbyID, playerID string) (*app.Result, error) {
	req, err := readCard(r)
	if err != nil {
		return nil, err
	}
	return s.svc.AdvancePhase(r.Context(), lobbyID, playerID, game.Phase(req.Phase))
}

func (s *Server) endTurn(r *http.Request, lobbyID, playerID string) (*app.Result, error) {
	return s.svc.EndTurn(r.Context(), lobbyID, playerID)
}

func (s *Server) surrender(r *http.Request, lobbyID, playerID string) (*app.Result, error) {
	return s.svc.Surrender(r.Context(), lobbyID, playerID)
}

// handleWebSocket streams a lobby's event log: everything recorded so far,
// then new events as they commit.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	lobbyID := r.PathValue("lobby")
	// Subscribe before reading the backlog so nothing committed in between
	// is missed; duplicates are dropped by sequence number.
	sub := s.svc.Hub().Subscribe(lobbyID)
	defer sub.Close()

	backlog, err := s.svc.Events(r.Context(), lobbyID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.log.WithError(err).Warn("websocket accept failed")
		return
	}
	defer conn.CloseNow()
	ctx := conn.CloseRead(r.Context())
	logger := s.log.WithField("lobby_id", lobbyID)

	last := 0
	for _, e := range backlog {
		if err := wsjson.Write(ctx, conn, e); err != nil {
			logger.WithError(err).Debug("spectator write failed")
			return
		}
		last = e.Seq
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				conn.Close(websocket.StatusTryAgainLater, "spectator fell behind")
				return
			}
			if e.Seq <= last {
				continue
			}
			if err := wsjson.Write(ctx, conn, e); err != nil {
				logger.WithError(err).Debug("spectator write failed")
				return
			}
			last = e.Seq
		}
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return false
	}
	return true
}

// fail maps service errors to HTTP responses. Rejected actions carry their
// code; conflicts with the current game state answer 409.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ae *game.ActionError
	switch {
	case errors.As(err, &ae):
		status := http.StatusBadRequest
		if errors.Is(err, game.ErrGameOver) || errors.Is(err, game.ErrNotYourTurn) || errors.Is(err, game.ErrWrongPhase) {
			status = http.StatusConflict
		}
		writeError(w, status, ae.Code, ae.Msg)
	case errors.Is(err, errBadBody), errors.Is(err, app.ErrInvalidMatch):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, store.ErrNotFound), errors.Is(err, match.ErrLobbyNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, match.ErrLobbyExists), errors.Is(err, match.ErrLobbyCancelled), errors.Is(err, store.ErrExists), errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, app.ErrGameStillRunning):
		writeError(w, http.StatusConflict, "game_running", err.Error())
	default:
		s.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
