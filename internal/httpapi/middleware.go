package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	HeaderPlayerID   = "X-Player-ID"
	HeaderPlayerName = "X-Player-Name"
)

type Player struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type playerKey struct{}

func PlayerFrom(ctx context.Context) (Player, bool) {
	p, ok := ctx.Value(playerKey{}).(Player)
	return p, ok
}

// RequestLogger logs one line per request once it has been served.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("took", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// RequirePlayer reads the identity the gateway forwards, records the player
// and puts it on the request context.
func RequirePlayer(players PlayerStore, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(r.Header.Get(HeaderPlayerID))
			name := strings.TrimSpace(r.Header.Get(HeaderPlayerName))
			if err != nil || name == "" {
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}
			p := Player{ID: id.String(), Username: name}
			if err := players.UpsertPlayer(r.Context(), p.ID, p.Username); err != nil {
				log.Error("upsert player", zap.String("player", p.ID), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), playerKey{}, p)))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
