package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/testination-backend/internal/board"
	"github.com/DoyleJ11/testination-backend/internal/session"
	wire "github.com/DoyleJ11/testination-backend/pkg/types"
)

var ErrUnknownType = errors.New("unknown type")
var ErrMissingField = errors.New("missing field")

// MsgFillAllBoxes is what players see when they inject an incomplete board.
const MsgFillAllBoxes = "Please fill all the boxes"

// ToCommand maps a client message onto a board command.
func ToCommand(m wire.ClientMessage) (board.Command, error) {
	slot := func() (int, error) {
		if m.Slot == nil {
			return 0, fmt.Errorf("%w: slot", ErrMissingField)
		}
		return *m.Slot, nil
	}
	id := board.BlockID(m.BlockID)

	switch m.Type {
	case "PickUp":
		if id != board.NoBlock {
			return board.Command{Type: board.CmdPickUpBlock, BlockID: id}, nil
		}
		s, err := slot()
		if err != nil {
			return board.Command{}, fmt.Errorf("%w: block_id or slot", ErrMissingField)
		}
		return board.Command{Type: board.CmdPickUpSlot, Slot: s}, nil
	case "Drop":
		s, err := slot()
		return board.Command{Type: board.CmdDrop, Slot: s}, err
	case "DropOnPool":
		return board.Command{Type: board.CmdDropOnPool}, nil
	case "PlaceBlock":
		if id == board.NoBlock {
			return board.Command{}, fmt.Errorf("%w: block_id", ErrMissingField)
		}
		s, err := slot()
		return board.Command{Type: board.CmdPlaceBlock, BlockID: id, Slot: s}, err
	case "RemoveBlock":
		s, err := slot()
		return board.Command{Type: board.CmdRemoveBlock, Slot: s}, err
	case "Reset":
		return board.Command{Type: board.CmdReset}, nil
	case "Inject":
		return board.Command{Type: board.CmdEvaluate}, nil
	default:
		return board.Command{}, fmt.Errorf("%w %q", ErrUnknownType, m.Type)
	}
}

func ErrorText(err error) string {
	if errors.Is(err, board.ErrBlocksMissing) {
		return MsgFillAllBoxes
	}
	return err.Error()
}

func ErrorMessage(err error) wire.ServerMessage {
	return wire.ServerMessage{Type: wire.MsgError, Error: ErrorText(err)}
}

func SnapshotMessage(version int, st session.State) wire.ServerMessage {
	snap := ToSnapshot(st)
	return wire.ServerMessage{Type: wire.MsgStateSnapshot, Version: version, State: &snap}
}

func ToSnapshot(st session.State) wire.StateSnapshot {
	b := st.Board
	block := func(id board.BlockID) wire.Block {
		return wire.Block{ID: int(id), Content: b.Content(id)}
	}

	out := wire.StateSnapshot{
		GameID: st.GameID,
		Phase:  string(st.Phase),
		Slots:  make([]wire.Slot, 0, len(b.Slots)),
		Pool:   make([]wire.Block, 0, len(b.Pool)),
		Held:   int(b.Held),
		Clock: wire.Clock{
			ActiveMS: st.Clock.Active.Milliseconds(),
			Frozen:   st.Clock.Frozen,
		},
		Hints: wire.Hints{
			Textual:    st.Hints.Textual,
			FreezeUsed: st.Hints.FreezeUsed,
			FillUsed:   st.Hints.FillUsed,
			Prices:     make(map[string]int, len(st.Hints.Prices)),
		},
	}
	for _, s := range b.Slots {
		slot := wire.Slot{Index: s.Index, Prefilled: s.Prefilled, Fixed: s.Fixed}
		if s.Occupant != board.NoBlock {
			blk := block(s.Occupant)
			slot.Block = &blk
		}
		out.Slots = append(out.Slots, slot)
	}
	for _, id := range b.Pool {
		out.Pool = append(out.Pool, block(id))
	}
	if st.Clock.Frozen {
		out.Clock.FrozenUntil = st.Clock.FrozenUntil.UTC().Format(time.RFC3339)
	}
	for kind, price := range st.Hints.Prices {
		out.Hints.Prices[string(kind)] = price
	}
	if o := st.Outcome; o != nil {
		out.Outcome = &wire.Outcome{
			Result:         string(o.Result),
			Matches:        o.Matches,
			Score:          o.Score,
			Multiplier:     o.Multiplier,
			WinningMessage: o.WinningMessage,
			NextGameID:     o.NextGameID,
		}
	}
	return out
}
