package httpapi

import (
	"net/http"
	"net/url"

	"github.com/DoyleJ11/testination-backend/internal/hub"
	"github.com/DoyleJ11/testination-backend/internal/leaderboard"
	"github.com/DoyleJ11/testination-backend/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type Deps struct {
	Store       Store
	Hub         *hub.Hub
	Leaderboard *leaderboard.Service
	Log         *zap.Logger
	CORSOrigin  string
	Shuffle     Shuffler // nil shuffles randomly
}

func SetupRoutes(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log.Named("http")))
	r.Use(middleware.Recoverer)
	if d.CORSOrigin != "" {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{d.CORSOrigin},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", HeaderPlayerID, HeaderPlayerName},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Public routes
	r.Get("/healthz", Healthz(d.Store))
	r.Get("/leaderboard", Leaderboard(d.Leaderboard, log))
	r.Get("/leaderboard/{page}", Leaderboard(d.Leaderboard, log))

	// Player routes
	r.Group(func(r chi.Router) {
		r.Use(RequirePlayer(d.Store, log))
		r.Get("/me", Me(d.Store, log))
		r.Get("/games", ListGames(d.Store, log))
		r.Get("/games/{gameID}", GetGame(d.Store, d.Shuffle, log))
		r.Post("/games/{gameID}/sessions", CreateSession(d.Store, d.Hub, d.Shuffle, log))
		r.Get("/sessions/{code}", GetSession(d.Hub))
		r.Post("/sessions/{code}/hints", BuyHint(d.Hub, log))
		r.Get("/ws", ws.Handler(d.Hub, log.Named("ws"), ws.Options{
			OriginPatterns: originPatterns(d.CORSOrigin),
			Player:         playerID,
		}))
	})
	return r
}

func playerID(r *http.Request) (string, bool) {
	p, ok := PlayerFrom(r.Context())
	return p.ID, ok
}

// originPatterns turns the allowed origin into the host pattern the
// WebSocket handshake checks.
func originPatterns(origin string) []string {
	if origin == "" {
		return nil
	}
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		return []string{u.Host}
	}
	return []string{origin}
}
