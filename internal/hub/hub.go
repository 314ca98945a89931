package hub

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"

	"github.com/DoyleJ11/testination-backend/internal/session"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

// EnsureSession returns the live session for Key, creating one when there
// is none. Key identifies a player on a game so reopening the level lands
// in the same session.
type EnsureSession struct {
	Key   string
	Level session.Level
	Play  session.Play
	Reply chan Created
}

type Created struct {
	Code    string
	Session *session.Session
	Err     error
}

type GetSession struct {
	Code  string
	Reply chan *session.Session
}

type RemoveSession struct {
	Code string
}

type ShutdownHub struct{}

func (EnsureSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

type entry struct {
	key     string
	session *session.Session
}

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]entry  // by code
	codes    map[string]string // key -> code
	opts     session.Options
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewHub starts the registry. opts is the template every session is
// created with; OnClose is owned by the hub.
func NewHub(parent context.Context, opts session.Options) *Hub {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]entry),
		codes:    make(map[string]string),
		opts:     opts,
		log:      opts.Log.Named("hub"),
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case <-h.ctx.Done():
		return ErrClosed
	default:
	}
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Ensure(ctx context.Context, key string, level session.Level, play session.Play) (Created, error) {
	reply := make(chan Created, 1)
	if err := h.send(ctx, EnsureSession{Key: key, Level: level, Play: play, Reply: reply}); err != nil {
		return Created{}, err
	}
	select {
	case c := <-reply:
		return c, c.Err
	case <-ctx.Done():
		return Created{}, ctx.Err()
	}
}

// Get returns the session for code, or nil.
func (h *Hub) Get(ctx context.Context, code string) (*session.Session, error) {
	reply := make(chan *session.Session, 1)
	if err := h.send(ctx, GetSession{Code: normalize(code), Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) Shutdown(ctx context.Context) error {
	if err := h.send(ctx, ShutdownHub{}); err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	select {
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureSession:
				if code, ok := h.codes[msg.Key]; ok {
					if s := h.live(code); s != nil {
						msg.Reply <- Created{Code: code, Session: s}
						break
					}
				}
				code, err := h.newCode()
				if err != nil {
					msg.Reply <- Created{Err: err}
					break
				}
				opts := h.opts
				opts.OnClose = func() {
					select {
					case h.inbox <- RemoveSession{Code: code}:
					case <-h.ctx.Done():
					}
				}
				s, err := session.NewSession(h.ctx, msg.Level, msg.Play, opts)
				if err != nil {
					msg.Reply <- Created{Err: err}
					break
				}
				h.sessions[code] = entry{key: msg.Key, session: s}
				h.codes[msg.Key] = code
				h.log.Debug("session created", zap.String("code", code), zap.String("game", msg.Level.GameID))
				msg.Reply <- Created{Code: code, Session: s}

			case GetSession:
				msg.Reply <- h.live(msg.Code) // May be nil

			case RemoveSession:
				h.remove(msg.Code)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// live returns the session for code, forgetting it if it already stopped.
func (h *Hub) live(code string) *session.Session {
	e, ok := h.sessions[code]
	if !ok {
		return nil
	}
	select {
	case <-e.session.Done():
		h.remove(code)
		return nil
	default:
		return e.session
	}
}

func (h *Hub) remove(code string) {
	e, ok := h.sessions[code]
	if !ok {
		return
	}
	delete(h.sessions, code)
	if h.codes[e.key] == code {
		delete(h.codes, e.key)
	}
	h.log.Debug("session removed", zap.String("code", code))
}

func (h *Hub) newCode() (string, error) {
	for {
		code, err := GenerateCode()
		if err != nil {
			return "", err
		}
		if _, taken := h.sessions[code]; !taken {
			return code, nil
		}
		h.log.Debug("collision on code, regenerating")
	}
}

// GenerateCode returns a random six character join code.
func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

func (h *Hub) shutdown() {
	for code, e := range h.sessions {
		// Non-blocking: a session that already stopped has nobody reading.
		select {
		case e.session.Inbox() <- session.Shutdown{}:
		case <-e.session.Done():
		default:
		}
		delete(h.sessions, code)
	}
	clear(h.codes)
	h.cancel()
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
