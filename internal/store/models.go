package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Model struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (m *Model) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

type Game struct {
	Model
	Title          string  `gorm:"not null" json:"title"`
	GameOrder      int     `gorm:"not null;uniqueIndex" json:"game_order"`
	Description    string  `gorm:"not null" json:"description"`
	Story          string  `gorm:"not null" json:"story"`
	Cheatsheet     string  `gorm:"not null" json:"cheatsheet"`
	Background     string  `gorm:"not null" json:"background"`
	WinningMessage string  `gorm:"not null" json:"winning_message"`
	Blocks         []Block `json:"blocks,omitempty"`

	MaxScore         int `gorm:"not null" json:"max_score"`
	WrongAttemptCost int `gorm:"not null" json:"wrong_attempt_cost"`

	// Speed brackets, in seconds.
	PerfectTimeslot   int `gorm:"not null" json:"perfect_timeslot"`
	GreatTimeslot     int `gorm:"not null" json:"great_timeslot"`
	MediumTimeslot    int `gorm:"not null" json:"medium_timeslot"`
	NotSoGoodTimeslot int `gorm:"not null" json:"not_so_good_timeslot"`

	TextualHint        string `gorm:"not null" json:"textual_hint"`
	TextualHintPrice   int    `gorm:"not null" json:"textual_hint_price"`
	FillHintPrice      int    `gorm:"not null" json:"fill_hint_price"`
	FreezePrice        int    `gorm:"not null" json:"freeze_price"`
	FreezeDurationSecs int    `gorm:"not null" json:"freeze_duration"`
}

type Block struct {
	Model
	Content string `gorm:"not null" json:"content"`

	// Position in the answer, nil for decoys. A pointer because 0 is a
	// valid position.
	Order *int `json:"order"`

	// Skeleton blocks are shown pre-placed and cannot be moved.
	Skeleton bool `json:"skeleton"`

	GameID string `gorm:"not null;index;size:36" json:"game_id"`
}

// Player is keyed by the ID the gateway forwards. Usernames are display
// names and may repeat.
type Player struct {
	Model
	Username string `gorm:"not null" json:"username"`
}

// Play is one player's progress on one game.
type Play struct {
	PlayerID  string     `gorm:"primaryKey;size:36" json:"player_id"`
	GameID    string     `gorm:"primaryKey;size:36" json:"game_id"`
	Score     int        `gorm:"not null;default:0" json:"score"`
	Attempts  int        `gorm:"not null;default:0" json:"attempts"`
	StartTime time.Time  `gorm:"not null" json:"start_time"`
	EndTime   *time.Time `json:"end_time"`

	TextualHintSpent int `gorm:"not null;default:0" json:"textual_hint_spent"`
	FillHintSpent    int `gorm:"not null;default:0" json:"fill_hint_spent"`
	FreezeSpent      int `gorm:"not null;default:0" json:"freeze_spent"`
}

func (p Play) Completed() bool { return p.EndTime != nil }

type LeaderboardEntry struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// HintKind names a purchasable hint and the Play column tracking its spend.
type HintKind string

const (
	HintTextual HintKind = "textual"
	HintFreeze  HintKind = "freeze"
	HintFill    HintKind = "fill"
)

func (k HintKind) Valid() bool {
	switch k {
	case HintTextual, HintFreeze, HintFill:
		return true
	}
	return false
}

func (k HintKind) column() string {
	switch k {
	case HintFreeze:
		return "freeze_spent"
	case HintFill:
		return "fill_hint_spent"
	default:
		return "textual_hint_spent"
	}
}
