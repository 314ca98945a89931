// Package types holds the JSON shapes the game client receives over the
// WebSocket and the REST API.
package types

type StateSnapshot struct {
	GameID  string   `json:"game_id"`
	Phase   string   `json:"phase"` // "incomplete" | "complete" | "evaluated"
	Slots   []Slot   `json:"slots"`
	Pool    []Block  `json:"pool"`
	Held    int      `json:"held,omitempty"`
	Clock   Clock    `json:"clock"`
	Hints   Hints    `json:"hints"`
	Outcome *Outcome `json:"outcome,omitempty"`
}

type Block struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
}

// Slot is one input box. Prefilled slots show Fixed and never hold a block.
type Slot struct {
	Index     int    `json:"index"`
	Prefilled bool   `json:"prefilled"`
	Fixed     string `json:"fixed,omitempty"`
	Block     *Block `json:"block,omitempty"`
}

type Clock struct {
	ActiveMS    int64  `json:"active_ms"`
	Frozen      bool   `json:"frozen"`
	FrozenUntil string `json:"frozen_until,omitempty"` // RFC 3339
}

type Hints struct {
	Textual    string         `json:"textual,omitempty"`
	FreezeUsed bool           `json:"freeze_used"`
	FillUsed   bool           `json:"fill_used"`
	Prices     map[string]int `json:"prices"`
}

type Outcome struct {
	Result         string  `json:"result"` // "win" | "lose"
	Matches        []bool  `json:"matches"`
	Score          int     `json:"score"`
	Multiplier     float64 `json:"multiplier,omitempty"`
	WinningMessage string  `json:"winning_message,omitempty"`
	NextGameID     string  `json:"next_game_id,omitempty"`
}
