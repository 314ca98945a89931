package httpapi

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/DoyleJ11/testination-backend/internal/board"
	"github.com/DoyleJ11/testination-backend/internal/scoring"
	"github.com/DoyleJ11/testination-backend/internal/session"
	"github.com/DoyleJ11/testination-backend/internal/store"
)

var ErrInvalidLevel = errors.New("invalid level")

// Shuffler reorders n items through swap, like rand.Shuffle.
type Shuffler func(n int, swap func(i, j int))

// BuildLevel turns a stored game into the board a session plays on. Answer
// blocks and decoys go to the pool in shuffled order; skeleton blocks become
// prefilled slots. Every position up to the last one must be covered by
// exactly one skeleton or answer block.
func BuildLevel(g *store.Game, nextGameID string, shuffle Shuffler) (session.Level, error) {
	if shuffle == nil {
		shuffle = rand.Shuffle
	}

	layout := board.Layout{Skeleton: map[int]string{}}
	type piece struct {
		content string
		slot    int // -1 for decoys
	}
	var pieces []piece
	taken := map[int]bool{}
	for _, b := range g.Blocks {
		if b.Order == nil {
			if b.Skeleton {
				return session.Level{}, fmt.Errorf("%w: skeleton block %q has no position", ErrInvalidLevel, b.Content)
			}
			pieces = append(pieces, piece{content: b.Content, slot: -1})
			continue
		}
		pos := *b.Order
		if pos < 0 || taken[pos] {
			return session.Level{}, fmt.Errorf("%w: position %d is negative or used twice", ErrInvalidLevel, pos)
		}
		taken[pos] = true
		layout.SlotCount = max(layout.SlotCount, pos+1)
		if b.Skeleton {
			layout.Skeleton[pos] = b.Content
		} else {
			pieces = append(pieces, piece{content: b.Content, slot: pos})
		}
	}
	for pos := range layout.SlotCount {
		if !taken[pos] {
			return session.Level{}, fmt.Errorf("%w: no block for position %d", ErrInvalidLevel, pos)
		}
	}
	shuffle(len(pieces), func(i, j int) { pieces[i], pieces[j] = pieces[j], pieces[i] })

	target := board.Target{}
	for i, p := range pieces {
		layout.Blocks = append(layout.Blocks, p.content)
		if p.slot >= 0 {
			target[p.slot] = board.BlockID(i + 1)
		}
	}

	return session.Level{
		GameID: g.ID,
		Layout: layout,
		Target: target,
		Scoring: scoring.Params{
			MaxScore:         g.MaxScore,
			WrongAttemptCost: g.WrongAttemptCost,
			Timeslots: scoring.Timeslots{
				Perfect:   seconds(g.PerfectTimeslot),
				Great:     seconds(g.GreatTimeslot),
				Medium:    seconds(g.MediumTimeslot),
				NotSoGood: seconds(g.NotSoGoodTimeslot),
			},
		},
		TextualHint:    g.TextualHint,
		Prices:         hintPrices(g),
		FreezeDuration: seconds(g.FreezeDurationSecs),
		WinningMessage: g.WinningMessage,
		NextGameID:     nextGameID,
	}, nil
}

// PlayProgress is what the session needs to know about a stored play.
func PlayProgress(p *store.Play) session.Play {
	return session.Play{
		PlayerID:  p.PlayerID,
		StartedAt: p.StartTime,
		Attempts:  p.Attempts,
		Completed: p.Completed(),
		HintsBought: map[store.HintKind]bool{
			store.HintTextual: p.TextualHintSpent > 0,
			store.HintFreeze:  p.FreezeSpent > 0,
			store.HintFill:    p.FillHintSpent > 0,
		},
	}
}

// GameContent is the level as shown before play: no answer positions.
type GameContent struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Order          int            `json:"game_order"`
	Description    string         `json:"description"`
	Story          string         `json:"story"`
	Cheatsheet     string         `json:"cheatsheet"`
	Background     string         `json:"background"`
	WinningMessage string         `json:"winning_message"`
	Skeleton       map[int]string `json:"skeleton"`
	Blocks         []string       `json:"blocks"`
	SolutionLength int            `json:"solution_length"`
	HintPrices     map[string]int `json:"hint_prices"`
	FreezeSeconds  int            `json:"freeze_duration"`
}

func NewGameContent(g *store.Game, shuffle Shuffler) (GameContent, error) {
	level, err := BuildLevel(g, "", shuffle)
	if err != nil {
		return GameContent{}, err
	}
	prices := make(map[string]int, len(level.Prices))
	for k, v := range level.Prices {
		prices[string(k)] = v
	}
	return GameContent{
		ID:             g.ID,
		Title:          g.Title,
		Order:          g.GameOrder,
		Description:    g.Description,
		Story:          g.Story,
		Cheatsheet:     g.Cheatsheet,
		Background:     g.Background,
		WinningMessage: g.WinningMessage,
		Skeleton:       level.Layout.Skeleton,
		Blocks:         level.Layout.Blocks,
		SolutionLength: level.Layout.SlotCount,
		HintPrices:     prices,
		FreezeSeconds:  g.FreezeDurationSecs,
	}, nil
}

func hintPrices(g *store.Game) map[store.HintKind]int {
	return map[store.HintKind]int{
		store.HintTextual: g.TextualHintPrice,
		store.HintFreeze:  g.FreezePrice,
		store.HintFill:    g.FillHintPrice,
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
