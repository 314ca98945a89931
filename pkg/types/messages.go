package types

// Client -> Server
// PickUp:      block_id (from the pool) or slot (from an input box)
// Drop:        slot
// DropOnPool:  {}
// PlaceBlock:  block_id, slot
// RemoveBlock: slot
// Reset:       {}
// Inject:      {}
type ClientMessage struct {
	Type    string `json:"type"`
	BlockID int    `json:"block_id,omitempty"`
	Slot    *int   `json:"slot,omitempty"`
}

// Server -> Client
// StateSnapshot: version, state
// Error:         error
type ServerMessage struct {
	Type    string         `json:"type"`
	Version int            `json:"version,omitempty"`
	State   *StateSnapshot `json:"state,omitempty"`
	Error   string         `json:"error,omitempty"`
}

const (
	MsgStateSnapshot = "StateSnapshot"
	MsgError         = "Error"
)
