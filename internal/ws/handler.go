package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/DoyleJ11/testination-backend/internal/hub"
	"github.com/DoyleJ11/testination-backend/internal/session"
	"github.com/DoyleJ11/testination-backend/internal/types"
	wire "github.com/DoyleJ11/testination-backend/pkg/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

type Options struct {
	// OriginPatterns are passed to websocket.Accept. Empty means same origin only.
	OriginPatterns []string

	// Player reports who is calling. Connections without a player are
	// refused, and sessions of other players are reported as missing.
	Player func(r *http.Request) (string, bool)
}

func Handler(h *hub.Hub, log *zap.Logger, opts Options) http.HandlerFunc {
	if opts.Player == nil {
		opts.Player = func(*http.Request) (string, bool) { return "", false }
	}
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, ok := opts.Player(r)
		if !ok {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		s, err := h.Get(r.Context(), code)
		if err != nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		if s == nil || s.PlayerID() != playerID {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		log := log.With(zap.String("code", code), zap.String("client", clientID))

		out := make(chan session.Snapshot, 8)
		if err := s.Send(r.Context(), session.Join{ClientID: clientID, Outbox: out}); err != nil {
			conn.Close(websocket.StatusGoingAway, "session closed")
			return
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = s.Send(ctx, session.Leave{ClientID: clientID})
		}()
		log.Debug("client joined")

		// Writer goroutine. out is closed by the session on Leave, shutdown
		// or when this client falls behind.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			defer writeCancel()
			for snap := range out {
				if snap.Err != nil {
					if err := write(writeCtx, conn, types.ErrorMessage(snap.Err)); err != nil {
						return
					}
				}
				if err := write(writeCtx, conn, types.SnapshotMessage(snap.Version, snap.State)); err != nil {
					return
				}
			}
			conn.Close(websocket.StatusGoingAway, "session ended")
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(writeCtx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					log.Debug("client left")
				default:
					log.Debug("read failed", zap.Error(err))
				}
				return
			}

			var cm wire.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = write(writeCtx, conn, wire.ServerMessage{Type: wire.MsgError, Error: "bad json"})
				continue
			}

			cmd, err := types.ToCommand(cm)
			if err != nil {
				_ = write(writeCtx, conn, types.ErrorMessage(err))
				continue
			}

			if err := s.Send(writeCtx, session.FromClient{ClientID: clientID, Cmd: cmd}); err != nil {
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg wire.ServerMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}
