package session

import (
	"context"
	"errors"
	"maps"
	"strconv"
	"time"

	"github.com/DoyleJ11/testination-backend/internal/board"
	"github.com/DoyleJ11/testination-backend/internal/scoring"
	"github.com/DoyleJ11/testination-backend/internal/store"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("session closed")
var ErrUnknownHint = errors.New("unknown hint type")
var ErrHintAlreadyBought = errors.New("hint already bought")
var ErrNotEnoughCoins = errors.New("not enough coins")
var ErrNothingToFill = errors.New("no slot left to fill")

const storeTimeout = 5 * time.Second

// Recorder persists the results of a play. *store.Store implements it.
type Recorder interface {
	Coins(ctx context.Context, playerID string) (int, error)
	SpendHint(ctx context.Context, playerID, gameID string, kind store.HintKind, price int) error
	IncrementAttempts(ctx context.Context, playerID, gameID string) error
	CompletePlay(ctx context.Context, playerID, gameID string, score int, at time.Time) error
}

// Level is everything a session needs to know about the game being played.
type Level struct {
	GameID         string
	Layout         board.Layout
	Target         board.Target
	Scoring        scoring.Params
	TextualHint    string
	Prices         map[store.HintKind]int
	FreezeDuration time.Duration
	WinningMessage string
	NextGameID     string
}

// Play is the player's stored progress on the level when the session opens.
type Play struct {
	PlayerID    string
	StartedAt   time.Time
	Attempts    int
	Completed   bool
	HintsBought map[store.HintKind]bool
}

type Options struct {
	Recorder Recorder
	Log      *zap.Logger
	Now      func() time.Time

	// IdleTimeout closes the session once it has had no clients for this
	// long. Zero keeps it open until Shutdown.
	IdleTimeout time.Duration
	OnClose     func()
}

type Msg interface{ isSessionMsg() }

type FromClient struct {
	ClientID string
	Cmd      board.Command
}

func (FromClient) isSessionMsg() {}

type Join struct {
	ClientID string
	Outbox   chan Snapshot // where this client wants to receive snapshots
}

func (Join) isSessionMsg() {}

type Leave struct{ ClientID string }

func (Leave) isSessionMsg() {}

type BuyHint struct {
	Kind  store.HintKind
	Slot  *int // fill only; nil lets the session choose
	Reply chan HintReply
}

func (BuyHint) isSessionMsg() {}

type HintReply struct {
	Content string
	Slot    int
	Price   int
	Err     error
}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

type freezeEnded struct{ gen int }

func (freezeEnded) isSessionMsg() {}

type idleExpired struct{ gen int }

func (idleExpired) isSessionMsg() {}

// Snapshot is sent to clients after every accepted change. Err is only set
// on the copy sent back to a client whose command was rejected.
type Snapshot struct {
	Version int
	State   State
	Err     error
}

type View struct {
	Version    int
	NumClients int
	State      State
}

type State struct {
	GameID  string
	Board   board.Board
	Phase   board.Phase
	Clock   Clock
	Hints   Hints
	Outcome *Outcome
}

type Clock struct {
	Active      time.Duration
	Frozen      bool
	FrozenUntil time.Time
}

type Hints struct {
	Textual    string
	FreezeUsed bool
	FillUsed   bool
	Prices     map[store.HintKind]int
}

type Outcome struct {
	Result         board.Result
	Matches        []bool
	Score          int
	Multiplier     float64
	WinningMessage string
	NextGameID     string
}

type Session struct {
	inbox   chan Msg
	level   Level
	play    Play
	board   *board.Board
	version int
	clients map[string]chan Snapshot
	outcome *Outcome

	frozenSince time.Time
	frozenTotal time.Duration
	freezeGen   int
	freezeTimer *time.Timer
	finishedAt  time.Time
	textual     string

	idleGen   int
	idleTimer *time.Timer

	playerID string
	opts     Options
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewSession(parent context.Context, level Level, play Play, opts Options) (*Session, error) {
	b, err := board.New(level.Layout)
	if err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	play.HintsBought = maps.Clone(play.HintsBought)
	if play.HintsBought == nil {
		play.HintsBought = map[store.HintKind]bool{}
	}
	if play.StartedAt.IsZero() {
		play.StartedAt = opts.Now()
	}

	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		inbox:    make(chan Msg, 64), // Small buffer
		level:    level,
		play:     play,
		board:    b,
		clients:  make(map[string]chan Snapshot),
		playerID: play.PlayerID,
		opts:     opts,
		log:      opts.Log.With(zap.String("game", level.GameID), zap.String("player", play.PlayerID)),
		ctx:      ctx,
		cancel:   cancel,
	}
	if play.HintsBought[store.HintTextual] {
		s.textual = level.TextualHint
	}
	s.armIdle()

	go s.loop()
	return s, nil
}

// Inbox exposes the raw inbox. Prefer Send, which gives up once the session
// has stopped.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

func (s *Session) PlayerID() string { return s.playerID }

func (s *Session) GameID() string { return s.level.GameID }

func (s *Session) Send(ctx context.Context, m Msg) error {
	select {
	case <-s.ctx.Done():
		return ErrClosed
	default:
	}
	select {
	case s.inbox <- m:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				// Register client + send current snapshot immediately
				if old, ok := s.clients[msg.ClientID]; ok && old != msg.Outbox {
					close(old)
				}
				s.clients[msg.ClientID] = msg.Outbox
				s.idleGen++
				if !s.deliver(msg.ClientID, msg.Outbox, Snapshot{Version: s.version, State: s.state()}) && len(s.clients) == 0 {
					s.armIdle()
				}

			case Leave:
				if ch, ok := s.clients[msg.ClientID]; ok {
					close(ch)
					delete(s.clients, msg.ClientID)
				}
				if len(s.clients) == 0 {
					s.armIdle()
				}

			case FromClient:
				s.handleCommand(msg)

			case BuyHint:
				msg.Reply <- s.buyHint(msg)

			case GetState:
				msg.Reply <- View{
					Version:    s.version,
					NumClients: len(s.clients),
					State:      s.state(),
				}

			case freezeEnded:
				if msg.gen != s.freezeGen || s.frozenSince.IsZero() {
					break
				}
				s.unfreeze(s.opts.Now())
				s.publish()

			case idleExpired:
				if msg.gen != s.idleGen || len(s.clients) > 0 {
					break
				}
				s.log.Info("closing idle session")
				s.shutdown()
				return

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) handleCommand(msg FromClient) {
	evaluated := s.board.Result != board.ResultNone
	held := s.board.Held

	events, err := s.board.Apply(msg.Cmd, s.level.Target)
	if err != nil {
		s.log.Debug("command rejected", zap.String("cmd", string(msg.Cmd.Type)), zap.Error(err))
		s.reply(msg.ClientID, err)
		return
	}
	if len(events) == 0 && held == s.board.Held {
		return
	}

	for _, evt := range events {
		switch evt.Type {
		case board.EvtBoardEvaluated:
			// Injecting an already evaluated board just reports it again.
			if !evaluated {
				s.settle(evt)
			}
		case board.EvtBoardReset:
			s.outcome = nil
		}
	}
	s.publish()
}

// settle records an evaluated board: wrong answers count as attempts until
// the level is first completed, a win stores the score.
func (s *Session) settle(evt board.Event) {
	now := s.opts.Now()
	out := &Outcome{Result: evt.Result, Matches: evt.Matches}

	ctx, cancel := context.WithTimeout(s.ctx, storeTimeout)
	defer cancel()

	switch evt.Result {
	case board.ResultLose:
		if !s.play.Completed {
			s.play.Attempts++
			if err := s.opts.Recorder.IncrementAttempts(ctx, s.play.PlayerID, s.level.GameID); err != nil {
				s.log.Error("failed to record attempt", zap.Error(err))
			}
		}

	case board.ResultWin:
		out.WinningMessage = s.level.WinningMessage
		out.NextGameID = s.level.NextGameID
		if s.play.Completed {
			break
		}
		active := s.activeTime(now)
		out.Score, out.Multiplier = scoring.Score(s.level.Scoring, active, s.play.Attempts)
		s.finishedAt = now
		if err := s.opts.Recorder.CompletePlay(ctx, s.play.PlayerID, s.level.GameID, out.Score, now); err != nil {
			s.log.Error("failed to record win", zap.Error(err))
		} else {
			s.play.Completed = true
		}
		s.log.Info("level completed",
			zap.Int("score", out.Score),
			zap.Float64("multiplier", out.Multiplier),
			zap.Duration("active", active),
			zap.Int("attempts", s.play.Attempts))
	}
	s.outcome = out
}

func (s *Session) buyHint(msg BuyHint) HintReply {
	kind := msg.Kind
	if !kind.Valid() {
		return HintReply{Err: ErrUnknownHint}
	}
	if s.play.HintsBought[kind] && !s.play.Completed {
		return HintReply{Err: ErrHintAlreadyBought}
	}

	price := s.level.Prices[kind]
	if s.play.Completed {
		price = 0
	}

	// Work out the effect before charging for it.
	reply := HintReply{Price: price}
	var filled *board.Board
	switch kind {
	case store.HintTextual:
		reply.Content = s.level.TextualHint
	case store.HintFreeze:
		reply.Content = strconv.Itoa(int(s.level.FreezeDuration / time.Second))
	case store.HintFill:
		slot, ok := 0, false
		if msg.Slot != nil {
			slot, ok = *msg.Slot, true
		} else {
			slot, ok = s.board.ChooseHintSlot(s.level.Target)
		}
		if !ok {
			return HintReply{Err: ErrNothingToFill}
		}
		next := s.board.Clone()
		id, err := next.FillHint(slot, s.level.Target)
		if err != nil {
			return HintReply{Err: err}
		}
		filled = &next
		reply.Slot = slot
		reply.Content = next.Content(id)
	}

	if price > 0 {
		ctx, cancel := context.WithTimeout(s.ctx, storeTimeout)
		defer cancel()
		coins, err := s.opts.Recorder.Coins(ctx, s.play.PlayerID)
		if err != nil {
			return HintReply{Err: err}
		}
		if coins < price {
			return HintReply{Err: ErrNotEnoughCoins}
		}
		if err := s.opts.Recorder.SpendHint(ctx, s.play.PlayerID, s.level.GameID, kind, price); err != nil {
			return HintReply{Err: err}
		}
	}

	s.play.HintsBought[kind] = true
	switch kind {
	case store.HintTextual:
		s.textual = reply.Content
	case store.HintFreeze:
		s.freeze(s.opts.Now())
	case store.HintFill:
		s.board = filled
	}
	s.log.Info("hint bought", zap.String("kind", string(kind)), zap.Int("price", price))
	s.publish()
	return reply
}

func (s *Session) freeze(now time.Time) {
	if s.level.FreezeDuration <= 0 {
		return
	}
	if s.frozenSince.IsZero() {
		s.frozenSince = now
	}
	s.freezeGen++
	gen := s.freezeGen
	if s.freezeTimer != nil {
		s.freezeTimer.Stop()
	}
	s.freezeTimer = time.AfterFunc(s.level.FreezeDuration, func() {
		select {
		case s.inbox <- freezeEnded{gen: gen}:
		case <-s.ctx.Done():
		}
	})
}

func (s *Session) unfreeze(now time.Time) {
	s.frozenTotal += now.Sub(s.frozenSince)
	s.frozenSince = time.Time{}
}

func (s *Session) armIdle() {
	if s.opts.IdleTimeout <= 0 {
		return
	}
	s.idleGen++
	gen := s.idleGen
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleTimer = time.AfterFunc(s.opts.IdleTimeout, func() {
		select {
		case s.inbox <- idleExpired{gen: gen}:
		case <-s.ctx.Done():
		}
	})
}

// activeTime is the time spent playing, frozen periods excluded.
func (s *Session) activeTime(now time.Time) time.Duration {
	if !s.finishedAt.IsZero() {
		now = s.finishedAt
	}
	active := now.Sub(s.play.StartedAt) - s.frozenTotal
	if !s.frozenSince.IsZero() {
		active -= now.Sub(s.frozenSince)
	}
	return max(active, 0)
}

func (s *Session) state() State {
	now := s.opts.Now()
	st := State{
		GameID: s.level.GameID,
		Board:  s.board.Clone(),
		Phase:  s.board.Phase(),
		Clock:  Clock{Active: s.activeTime(now)},
		Hints: Hints{
			Textual:    s.textual,
			FreezeUsed: s.play.HintsBought[store.HintFreeze],
			FillUsed:   s.play.HintsBought[store.HintFill],
			Prices:     s.prices(),
		},
	}
	if !s.frozenSince.IsZero() {
		st.Clock.Frozen = true
		st.Clock.FrozenUntil = s.frozenSince.Add(s.level.FreezeDuration)
	}
	if s.outcome != nil {
		out := *s.outcome
		st.Outcome = &out
	}
	return st
}

func (s *Session) prices() map[store.HintKind]int {
	out := make(map[store.HintKind]int, len(s.level.Prices))
	for k, v := range s.level.Prices {
		if s.play.Completed {
			v = 0
		}
		out[k] = v
	}
	return out
}

func (s *Session) publish() {
	s.version++
	s.broadcast(Snapshot{Version: s.version, State: s.state()})
}

func (s *Session) reply(clientID string, err error) {
	ch, ok := s.clients[clientID]
	if !ok {
		return
	}
	select {
	case ch <- Snapshot{Version: s.version, State: s.state(), Err: err}:
	default:
		close(ch)
		delete(s.clients, clientID)
	}
}

func (s *Session) shutdown() {
	for id, ch := range s.clients {
		close(ch) // Tell client no more snapshots
		delete(s.clients, id)
	}
	if s.freezeTimer != nil {
		s.freezeTimer.Stop()
	}
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.cancel()
	if s.opts.OnClose != nil {
		go s.opts.OnClose()
	}
}

func (s *Session) broadcast(snap Snapshot) {
	for id, ch := range s.clients {
		s.deliver(id, ch, snap)
	}
}

// deliver reports whether the client kept up.
func (s *Session) deliver(id string, ch chan Snapshot, snap Snapshot) bool {
	select {
	case ch <- snap:
		return true
	default:
		// Client is slow/full - drop them.
		close(ch)
		delete(s.clients, id)
		return false
	}
}
