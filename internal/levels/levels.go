// Package levels holds the level catalogue the store is seeded from.
package levels

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/DoyleJ11/testination-backend/internal/store"
	"gopkg.in/yaml.v3"
)

//go:embed levels.yaml
var builtin []byte

var ErrInvalidLevel = errors.New("invalid level")

type Catalogue struct {
	Levels []Level `yaml:"levels"`
}

type Level struct {
	Order            int       `yaml:"order"`
	Title            string    `yaml:"title"`
	Description      string    `yaml:"description"`
	Background       string    `yaml:"background"`
	Story            string    `yaml:"story"`
	Cheatsheet       string    `yaml:"cheatsheet"`
	WinningMessage   string    `yaml:"winning_message"`
	MaxScore         int       `yaml:"max_score"`
	WrongAttemptCost int       `yaml:"wrong_attempt_cost"`
	Timeslots        Timeslots `yaml:"timeslots"`
	Hints            Hints     `yaml:"hints"`
	Answer           []Piece   `yaml:"answer"`
	Decoys           []string  `yaml:"decoys"`
}

// Timeslots are in seconds.
type Timeslots struct {
	Perfect   int `yaml:"perfect"`
	Great     int `yaml:"great"`
	Medium    int `yaml:"medium"`
	NotSoGood int `yaml:"not_so_good"`
}

type Hints struct {
	Textual        string `yaml:"textual"`
	TextualPrice   int    `yaml:"textual_price"`
	FillPrice      int    `yaml:"fill_price"`
	FreezePrice    int    `yaml:"freeze_price"`
	FreezeDuration int    `yaml:"freeze_duration"`
}

// Piece is one position of the answer: either a block the player must
// place or skeleton text shown in place.
type Piece struct {
	Block    string `yaml:"block,omitempty"`
	Skeleton string `yaml:"skeleton,omitempty"`
}

func Builtin() (*Catalogue, error) {
	return Parse(builtin)
}

func Load(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read levels: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode levels: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalogue) Validate() error {
	seen := map[int]bool{}
	for _, l := range c.Levels {
		if l.Order < 1 {
			return fmt.Errorf("%w: %q has order %d", ErrInvalidLevel, l.Title, l.Order)
		}
		if seen[l.Order] {
			return fmt.Errorf("%w: order %d used twice", ErrInvalidLevel, l.Order)
		}
		seen[l.Order] = true

		open := 0
		for i, p := range l.Answer {
			if (p.Block == "") == (p.Skeleton == "") {
				return fmt.Errorf("%w: %q answer piece %d needs exactly one of block or skeleton", ErrInvalidLevel, l.Title, i)
			}
			if p.Block != "" {
				open++
			}
		}
		if open == 0 {
			return fmt.Errorf("%w: %q has nothing to place", ErrInvalidLevel, l.Title)
		}
	}
	for order := 1; order <= len(c.Levels); order++ {
		if !seen[order] {
			return fmt.Errorf("%w: orders must run 1..%d without gaps", ErrInvalidLevel, len(c.Levels))
		}
	}
	return nil
}

// Games converts the catalogue into store rows ready for seeding.
func (c *Catalogue) Games() []store.Game {
	games := make([]store.Game, 0, len(c.Levels))
	for _, l := range c.Levels {
		g := store.Game{
			Title:              l.Title,
			GameOrder:          l.Order,
			Description:        l.Description,
			Story:              l.Story,
			Cheatsheet:         l.Cheatsheet,
			Background:         l.Background,
			WinningMessage:     l.WinningMessage,
			MaxScore:           l.MaxScore,
			WrongAttemptCost:   l.WrongAttemptCost,
			PerfectTimeslot:    l.Timeslots.Perfect,
			GreatTimeslot:      l.Timeslots.Great,
			MediumTimeslot:     l.Timeslots.Medium,
			NotSoGoodTimeslot:  l.Timeslots.NotSoGood,
			TextualHint:        l.Hints.Textual,
			TextualHintPrice:   l.Hints.TextualPrice,
			FillHintPrice:      l.Hints.FillPrice,
			FreezePrice:        l.Hints.FreezePrice,
			FreezeDurationSecs: l.Hints.FreezeDuration,
		}
		for i, p := range l.Answer {
			order := i
			if p.Skeleton != "" {
				g.Blocks = append(g.Blocks, store.Block{Content: p.Skeleton, Order: &order, Skeleton: true})
			} else {
				g.Blocks = append(g.Blocks, store.Block{Content: p.Block, Order: &order})
			}
		}
		for _, d := range l.Decoys {
			g.Blocks = append(g.Blocks, store.Block{Content: d})
		}
		games = append(games, g)
	}
	return games
}
