package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DoyleJ11/testination-backend/internal/board"
	"github.com/DoyleJ11/testination-backend/internal/hub"
	"github.com/DoyleJ11/testination-backend/internal/leaderboard"
	"github.com/DoyleJ11/testination-backend/internal/levels"
	"github.com/DoyleJ11/testination-backend/internal/session"
	"github.com/DoyleJ11/testination-backend/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type env struct {
	srv   *httptest.Server
	store *store.Store
	games []store.Game
}

func noShuffle(int, func(i, j int)) {}

func setup(t *testing.T) *env {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: store.NewGormLogger(zap.NewNop(), 0),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	st := store.New(db, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))
	cat, err := levels.Builtin()
	require.NoError(t, err)
	require.NoError(t, st.SeedGames(ctx, cat.Games()))
	games, err := st.Games(ctx)
	require.NoError(t, err)

	h := hub.NewHub(ctx, session.Options{Recorder: st})
	srv := httptest.NewServer(SetupRoutes(Deps{
		Store:       st,
		Hub:         h,
		Leaderboard: leaderboard.NewService(st, nil, nil),
		CORSOrigin:  "http://localhost:5173",
		Shuffle:     noShuffle,
	}))
	t.Cleanup(func() {
		srv.Close()
		_ = h.Shutdown(context.Background())
		_ = st.Close()
	})
	return &env{srv: srv, store: st, games: games}
}

type player struct {
	id   string
	name string
}

func newPlayer(name string) player { return player{id: uuid.NewString(), name: name} }

func (e *env) do(t *testing.T, p *player, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	if p != nil {
		req.Header.Set(HeaderPlayerID, p.id)
		req.Header.Set(HeaderPlayerName, p.name)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (e *env) createSession(t *testing.T, p player, gameID string) string {
	t.Helper()
	resp, body := e.do(t, &p, http.MethodPost, "/games/"+gameID+"/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	code, _ := body["code"].(string)
	require.NotEmpty(t, code)
	return code
}

func TestHealthz(t *testing.T) {
	e := setup(t)
	resp, body := e.do(t, nil, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestRequirePlayer(t *testing.T) {
	e := setup(t)

	resp, _ := e.do(t, nil, http.MethodGet, "/games", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.do(t, &player{id: "not-a-uuid", name: "ada"}, http.MethodGet, "/games", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	p := newPlayer("ada")
	resp, body := e.do(t, &p, http.MethodGet, "/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ada", body["username"])
	assert.EqualValues(t, 0, body["coins"])
}

func TestGames(t *testing.T) {
	e := setup(t)
	p := newPlayer("ada")

	req, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/games", nil)
	req.Header.Set(HeaderPlayerID, p.id)
	req.Header.Set(HeaderPlayerName, p.name)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var list []GameSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 2)
	assert.Equal(t, "XSS Attack", list[0].Title)
	assert.True(t, list[0].Unlocked)
	assert.Equal(t, 2, list[1].Order)
	assert.False(t, list[1].Unlocked)

	resp2, body := e.do(t, &p, http.MethodGet, "/games/"+e.games[0].ID, nil)
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	assert.EqualValues(t, 7, body["solution_length"])
	assert.Len(t, body["blocks"], 11)
	assert.Equal(t, map[string]any{
		"1": `src="http://`,
		"3": `.com" style="position: absolute; top: 0; left: 0; width: `,
		"5": `; height: 100%;"`,
	}, body["skeleton"])
	assert.NotContains(t, body, "textual_hint")

	resp2, body = e.do(t, &p, http.MethodGet, "/games/"+e.games[1].ID, nil)
	assert.Equal(t, http.StatusForbidden, resp2.StatusCode, "level 2 is locked")
	assert.NotContains(t, body, "blocks")

	ctx := context.Background()
	_, err = e.store.StartPlay(ctx, p.id, e.games[0].ID)
	require.NoError(t, err)
	require.NoError(t, e.store.CompletePlay(ctx, p.id, e.games[0].ID, 1000, time.Now()))
	resp2, _ = e.do(t, &p, http.MethodGet, "/games/"+e.games[1].ID, nil)
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	resp2, _ = e.do(t, &p, http.MethodGet, "/games/nope", nil)
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
	resp2, _ = e.do(t, &p, http.MethodGet, "/games/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestCreateSession(t *testing.T) {
	e := setup(t)
	p := newPlayer("ada")

	resp, _ := e.do(t, &p, http.MethodPost, "/games/"+e.games[1].ID+"/sessions", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "level 2 is locked")

	code := e.createSession(t, p, e.games[0].ID)
	again := e.createSession(t, p, e.games[0].ID)
	assert.Equal(t, code, again, "reopening resumes the live session")

	resp, body := e.do(t, &p, http.MethodGet, "/sessions/"+code, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "StateSnapshot", body["type"])
	state := body["state"].(map[string]any)
	assert.Equal(t, "incomplete", state["phase"])
	assert.Len(t, state["pool"], 11)

	other := newPlayer("bob")
	resp, _ = e.do(t, &other, http.MethodGet, "/sessions/"+code, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = e.do(t, nil, http.MethodGet, "/ws?code="+code, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = e.do(t, &other, http.MethodGet, "/ws?code="+code, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	play, err := e.store.Play(context.Background(), p.id, e.games[0].ID)
	require.NoError(t, err)
	assert.False(t, play.Completed())
}

func TestBuyHint(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	p := newPlayer("ada")

	// A broke player cannot buy anything.
	code := e.createSession(t, p, e.games[0].ID)
	resp, body := e.do(t, &p, http.MethodPost, "/sessions/"+code+"/hints", map[string]any{"hint_type": "textual"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "not enough coins", body["error"])

	resp, _ = e.do(t, &p, http.MethodPost, "/sessions/"+code+"/hints", map[string]any{"hint_type": "psychic"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Finishing level 1 earns coins and unlocks level 2.
	require.NoError(t, e.store.CompletePlay(ctx, p.id, e.games[0].ID, 1000, time.Now()))

	code2 := e.createSession(t, p, e.games[1].ID)
	resp, body = e.do(t, &p, http.MethodPost, "/sessions/"+code2+"/hints", map[string]any{"hint_type": "textual"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body["hint_content"], "Close the string")
	assert.EqualValues(t, 150, body["price"])

	resp, body = e.do(t, &p, http.MethodPost, "/sessions/"+code2+"/hints", map[string]any{"hint_type": "textual"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "hint already bought", body["error"])

	resp, _ = e.do(t, &p, http.MethodPost, "/sessions/"+code2+"/hints", map[string]any{"hint_type": "fill", "slot": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "slot 0 is skeleton")

	resp, body = e.do(t, &p, http.MethodPost, "/sessions/"+code2+"/hints", map[string]any{"hint_type": "fill"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "admin", body["hint_content"])
	assert.EqualValues(t, 1, body["slot"])

	_, me := e.do(t, &p, http.MethodGet, "/me", nil)
	assert.EqualValues(t, 1000-150-300, me["coins"])
}

func TestLeaderboard(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	for i, name := range []string{"ada", "bob", "cy"} {
		p := newPlayer(name)
		require.NoError(t, e.store.UpsertPlayer(ctx, p.id, p.name))
		_, err := e.store.StartPlay(ctx, p.id, e.games[0].ID)
		require.NoError(t, err)
		require.NoError(t, e.store.CompletePlay(ctx, p.id, e.games[0].ID, 100*(i+1), time.Now()))
	}

	for _, path := range []string{"/leaderboard", "/leaderboard/0", "/leaderboard?page=abc", "/leaderboard/99"} {
		resp, body := e.do(t, nil, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.EqualValues(t, 1, body["currentPage"], path)
		assert.EqualValues(t, 1, body["pages"], path)
		entries := body["entries"].([]any)
		require.Len(t, entries, 3, path)
		assert.Equal(t, "cy", entries[0].(map[string]any)["username"], path)
	}
}

func TestBuildLevel(t *testing.T) {
	order := func(i int) *int { return &i }
	g := &store.Game{
		Model: store.Model{ID: "g1"},
		Blocks: []store.Block{
			{Content: "decoy"},
			{Content: "b", Order: order(2)},
			{Content: "=", Order: order(1), Skeleton: true},
			{Content: "a", Order: order(0)},
		},
		FreezeDurationSecs: 30,
		PerfectTimeslot:    60,
	}
	// reverse the pool
	reverse := func(n int, swap func(i, j int)) {
		for i := 0; i < n/2; i++ {
			swap(i, n-1-i)
		}
	}

	l, err := BuildLevel(g, "g2", reverse)
	require.NoError(t, err)
	assert.Equal(t, 3, l.Layout.SlotCount)
	assert.Equal(t, map[int]string{1: "="}, l.Layout.Skeleton)
	assert.Equal(t, []string{"a", "b", "decoy"}, l.Layout.Blocks)
	assert.Equal(t, board.Target{0: 1, 2: 2}, l.Target)
	assert.Equal(t, 30*time.Second, l.FreezeDuration)
	assert.Equal(t, time.Minute, l.Scoring.Timeslots.Perfect)
	assert.Equal(t, "g2", l.NextGameID)
}

func TestBuildLevel_RejectsBrokenPositions(t *testing.T) {
	order := func(i int) *int { return &i }
	tests := []struct {
		name   string
		blocks []store.Block
	}{
		{"skeleton without position", []store.Block{
			{Content: "a", Order: order(0)},
			{Content: "=", Skeleton: true},
		}},
		{"gap", []store.Block{
			{Content: "a", Order: order(0)},
			{Content: "b", Order: order(2)},
		}},
		{"shared position", []store.Block{
			{Content: "a", Order: order(0)},
			{Content: "=", Order: order(0), Skeleton: true},
		}},
		{"negative position", []store.Block{
			{Content: "a", Order: order(-1)},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildLevel(&store.Game{Blocks: tt.blocks}, "", noShuffle)
			assert.ErrorIs(t, err, ErrInvalidLevel)
		})
	}
}
