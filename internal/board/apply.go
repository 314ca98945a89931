package board

import "errors"

var ErrUnsupportedCommand = errors.New("unsupported command")
var ErrNothingHeld = errors.New("no block picked up")
var ErrEmptySlot = errors.New("slot has no block to pick up")

type CommandType string

const (
	CmdPickUpBlock CommandType = "PickUpBlock"
	CmdPickUpSlot  CommandType = "PickUpSlot"
	CmdDrop        CommandType = "Drop"
	CmdDropOnPool  CommandType = "DropOnPool"
	CmdPlaceBlock  CommandType = "PlaceBlock"
	CmdRemoveBlock CommandType = "RemoveBlock"
	CmdReset       CommandType = "Reset"
	CmdEvaluate    CommandType = "Evaluate"
	CmdFillHint    CommandType = "FillHint"
)

/*
	CmdPickUpBlock / CmdPickUpSlot -> no event, Held is set
	CmdDrop        -> EvtBlockPlaced (+ EvtBoardCompleted) | EvtDropRejected
	CmdDropOnPool  -> EvtBlockRemoved when the held block sat in a slot
	CmdPlaceBlock  -> same as a pick up followed by a drop
	CmdRemoveBlock -> EvtBlockRemoved
	CmdEvaluate    -> EvtBoardEvaluated, or ErrBlocksMissing with no state change
	CmdFillHint    -> EvtHintFilled (+ EvtBoardCompleted)
	CmdReset       -> EvtBoardReset
*/

type Command struct {
	Type    CommandType
	BlockID BlockID
	Slot    int
}

type EventType string

const (
	EvtBlockPlaced    EventType = "BlockPlaced"
	EvtBlockRemoved   EventType = "BlockRemoved"
	EvtDropRejected   EventType = "DropRejected"
	EvtBoardCompleted EventType = "BoardCompleted"
	EvtBoardEvaluated EventType = "BoardEvaluated"
	EvtBoardReset     EventType = "BoardReset"
	EvtHintFilled     EventType = "HintFilled"
)

type Event struct {
	Type    EventType
	BlockID BlockID
	Slot    int
	Result  Result
	Matches []bool
}

// Apply runs cmd against b. On error b is left as it was, except that a
// rejected drop still releases the held block.
func (b *Board) Apply(cmd Command, target Target) ([]Event, error) {
	switch cmd.Type {
	case CmdPickUpBlock:
		if b.Result != ResultNone {
			return nil, ErrAlreadyEvaluated
		}
		if !b.hasBlock(cmd.BlockID) {
			return nil, ErrUnknownBlock
		}
		b.Held = cmd.BlockID
		return nil, nil

	case CmdPickUpSlot:
		if b.Result != ResultNone {
			return nil, ErrAlreadyEvaluated
		}
		if cmd.Slot < 0 || cmd.Slot >= len(b.Slots) {
			return nil, ErrSlotOutOfRange
		}
		occupant := b.Slots[cmd.Slot].Occupant
		if occupant == NoBlock {
			return nil, ErrEmptySlot
		}
		b.Held = occupant
		return nil, nil

	case CmdDrop:
		held := b.Held
		if held == NoBlock {
			return nil, ErrNothingHeld
		}
		b.Held = NoBlock
		return b.place(held, cmd.Slot)

	case CmdDropOnPool:
		held := b.Held
		if held == NoBlock {
			return nil, ErrNothingHeld
		}
		b.Held = NoBlock
		slot, ok := b.SlotOf(held)
		if !ok {
			// already in the pool
			return nil, nil
		}
		return b.remove(slot), nil

	case CmdPlaceBlock:
		return b.place(cmd.BlockID, cmd.Slot)

	case CmdRemoveBlock:
		return b.remove(cmd.Slot), nil

	case CmdEvaluate:
		result, matches, err := b.Evaluate(target)
		if err != nil {
			return nil, err
		}
		return []Event{{Type: EvtBoardEvaluated, Result: result, Matches: matches}}, nil

	case CmdFillHint:
		wasComplete := b.IsComplete()
		id, err := b.FillHint(cmd.Slot, target)
		if err != nil {
			return nil, err
		}
		events := []Event{{Type: EvtHintFilled, BlockID: id, Slot: cmd.Slot}}
		if !wasComplete && b.IsComplete() {
			events = append(events, Event{Type: EvtBoardCompleted})
		}
		return events, nil

	case CmdReset:
		b.Reset()
		return []Event{{Type: EvtBoardReset}}, nil

	default:
		return nil, ErrUnsupportedCommand
	}
}

func (b *Board) place(id BlockID, slot int) ([]Event, error) {
	if before, placed := b.SlotOf(id); placed && before == slot && b.Result == ResultNone {
		return nil, nil
	}
	if err := b.PlaceBlock(id, slot); err != nil {
		return []Event{{Type: EvtDropRejected, BlockID: id, Slot: slot}}, err
	}

	events := []Event{{Type: EvtBlockPlaced, BlockID: id, Slot: slot}}
	if b.IsComplete() {
		events = append(events, Event{Type: EvtBoardCompleted})
	}
	return events, nil
}

func (b *Board) remove(slot int) []Event {
	id := NoBlock
	if slot >= 0 && slot < len(b.Slots) {
		id = b.Slots[slot].Occupant
	}
	if !b.RemoveBlock(slot) {
		return nil
	}
	return []Event{{Type: EvtBlockRemoved, BlockID: id, Slot: slot}}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
