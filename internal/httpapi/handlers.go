package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/DoyleJ11/testination-backend/internal/board"
	"github.com/DoyleJ11/testination-backend/internal/hub"
	"github.com/DoyleJ11/testination-backend/internal/leaderboard"
	"github.com/DoyleJ11/testination-backend/internal/session"
	"github.com/DoyleJ11/testination-backend/internal/store"
	"github.com/DoyleJ11/testination-backend/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PlayerStore interface {
	UpsertPlayer(ctx context.Context, id, username string) error
}

// Store is the persistence the handlers read from. *store.Store implements it.
type Store interface {
	PlayerStore
	Ping(ctx context.Context) error
	Games(ctx context.Context) ([]store.Game, error)
	Game(ctx context.Context, id string) (*store.Game, error)
	NextGameID(ctx context.Context, id string) (string, error)
	Unlocked(ctx context.Context, playerID string, g *store.Game) (bool, error)
	StartPlay(ctx context.Context, playerID, gameID string) (*store.Play, error)
	Plays(ctx context.Context, playerID string) (map[string]store.Play, error)
	Coins(ctx context.Context, playerID string) (int, error)
}

type GameSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Order       int    `json:"game_order"`
	Description string `json:"description"`
	Unlocked    bool   `json:"unlocked"`
	Completed   bool   `json:"completed"`
	Score       int    `json:"score"`
}

type hintRequest struct {
	HintType string `json:"hint_type"`
	Slot     *int   `json:"slot,omitempty"`
}

type hintResponse struct {
	HintContent string `json:"hint_content"`
	Slot        *int   `json:"slot,omitempty"`
	Price       int    `json:"price"`
}

func Healthz(st Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := st.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func Me(st Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := PlayerFrom(r.Context())
		coins, err := st.Coins(r.Context(), p.ID)
		if err != nil {
			internalError(w, log, "coins", err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Player
			Coins int `json:"coins"`
		}{Player: p, Coins: coins})
	}
}

func ListGames(st Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := PlayerFrom(r.Context())
		games, err := st.Games(r.Context())
		if err != nil {
			internalError(w, log, "list games", err)
			return
		}
		plays, err := st.Plays(r.Context(), p.ID)
		if err != nil {
			internalError(w, log, "list plays", err)
			return
		}

		// Games come ordered, so a level is open when the one before it is done.
		out := make([]GameSummary, 0, len(games))
		prevDone := true
		for _, g := range games {
			play, ok := plays[g.ID]
			done := ok && play.Completed()
			sum := GameSummary{
				ID:          g.ID,
				Title:       g.Title,
				Order:       g.GameOrder,
				Description: g.Description,
				Unlocked:    g.GameOrder <= 1 || prevDone,
				Completed:   done,
			}
			if done {
				sum.Score = play.Score
			}
			out = append(out, sum)
			prevDone = done
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func GetGame(st Store, shuffle Shuffler, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, ok := unlockedGame(w, r, st, log)
		if !ok {
			return
		}
		content, err := NewGameContent(g, shuffle)
		if err != nil {
			internalError(w, log, "game content", err)
			return
		}
		writeJSON(w, http.StatusOK, content)
	}
}

// CreateSession starts or resumes the caller's play of a game and returns
// the code to open the WebSocket with.
func CreateSession(st Store, h *hub.Hub, shuffle Shuffler, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := PlayerFrom(r.Context())
		g, ok := unlockedGame(w, r, st, log)
		if !ok {
			return
		}

		level, err := BuildLevel(g, "", shuffle)
		if err != nil {
			internalError(w, log, "build level", err)
			return
		}
		play, err := st.StartPlay(r.Context(), p.ID, g.ID)
		if err != nil {
			internalError(w, log, "start play", err)
			return
		}
		next, err := st.NextGameID(r.Context(), g.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			internalError(w, log, "next game", err)
			return
		}

		level.NextGameID = next
		created, err := h.Ensure(r.Context(), p.ID+":"+g.ID, level, PlayProgress(play))
		if err != nil {
			internalError(w, log, "create session", err)
			return
		}

		writeJSON(w, http.StatusCreated, struct {
			Code string `json:"code"`
		}{Code: created.Code})
	}
}

func GetSession(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := ownSession(w, r, h)
		if !ok {
			return
		}
		reply := make(chan session.View, 1)
		if err := s.Send(r.Context(), session.GetState{Reply: reply}); err != nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		select {
		case v := <-reply:
			writeJSON(w, http.StatusOK, types.SnapshotMessage(v.Version, v.State))
		case <-s.Done():
			writeError(w, http.StatusNotFound, "session not found")
		case <-r.Context().Done():
		}
	}
}

func BuyHint(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req hintRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		kind := store.HintKind(req.HintType)
		if !kind.Valid() {
			writeError(w, http.StatusBadRequest, "invalid hint type")
			return
		}

		s, ok := ownSession(w, r, h)
		if !ok {
			return
		}
		reply := make(chan session.HintReply, 1)
		if err := s.Send(r.Context(), session.BuyHint{Kind: kind, Slot: req.Slot, Reply: reply}); err != nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}

		var res session.HintReply
		select {
		case res = <-reply:
		case <-s.Done():
			writeError(w, http.StatusNotFound, "session not found")
			return
		case <-r.Context().Done():
			return
		}

		switch {
		case res.Err == nil:
		case errors.Is(res.Err, session.ErrHintAlreadyBought):
			writeError(w, http.StatusForbidden, "hint already bought")
			return
		case errors.Is(res.Err, session.ErrNotEnoughCoins):
			writeError(w, http.StatusBadRequest, "not enough coins")
			return
		case errors.Is(res.Err, session.ErrUnknownHint),
			errors.Is(res.Err, session.ErrNothingToFill),
			errors.Is(res.Err, board.ErrDropRejected):
			writeError(w, http.StatusBadRequest, res.Err.Error())
			return
		default:
			internalError(w, log, "buy hint", res.Err)
			return
		}

		out := hintResponse{HintContent: res.Content, Price: res.Price}
		if kind == store.HintFill {
			out.Slot = &res.Slot
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func Leaderboard(svc *leaderboard.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "page")
		if raw == "" {
			raw = r.URL.Query().Get("page")
		}
		page, err := svc.Page(r.Context(), raw)
		if err != nil {
			internalError(w, log, "leaderboard", err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func loadGame(w http.ResponseWriter, r *http.Request, st Store, log *zap.Logger) (*store.Game, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return nil, false
	}
	g, err := st.Game(r.Context(), id.String())
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "game not found")
		return nil, false
	}
	if err != nil {
		internalError(w, log, "load game", err)
		return nil, false
	}
	return g, true
}

// unlockedGame loads the game named in the URL and refuses it while the
// level before it is not completed.
func unlockedGame(w http.ResponseWriter, r *http.Request, st Store, log *zap.Logger) (*store.Game, bool) {
	p, _ := PlayerFrom(r.Context())
	g, ok := loadGame(w, r, st, log)
	if !ok {
		return nil, false
	}
	unlocked, err := st.Unlocked(r.Context(), p.ID, g)
	if err != nil {
		internalError(w, log, "unlocked", err)
		return nil, false
	}
	if !unlocked {
		writeError(w, http.StatusForbidden, "previous level not completed")
		return nil, false
	}
	return g, true
}

// ownSession finds the session named in the URL. Sessions of other players
// are reported as missing.
func ownSession(w http.ResponseWriter, r *http.Request, h *hub.Hub) (*session.Session, bool) {
	p, _ := PlayerFrom(r.Context())
	s, err := h.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable")
		return nil, false
	}
	if s == nil || s.PlayerID() != p.ID {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return s, true
}

func internalError(w http.ResponseWriter, log *zap.Logger, op string, err error) {
	log.Error(op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
