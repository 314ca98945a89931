package board

import (
	"errors"
	"fmt"
	"slices"
)

var ErrDropRejected = errors.New("drop rejected")
var ErrSlotPrefilled = fmt.Errorf("%w: slot is prefilled", ErrDropRejected)
var ErrSlotOccupied = fmt.Errorf("%w: slot is occupied", ErrDropRejected)
var ErrSlotOutOfRange = fmt.Errorf("%w: slot out of range", ErrDropRejected)
var ErrUnknownBlock = fmt.Errorf("%w: unknown block", ErrDropRejected)
var ErrAlreadyEvaluated = fmt.Errorf("%w: board already evaluated", ErrDropRejected)
var ErrBlocksMissing = errors.New("blocks missing")
var ErrInvalidLayout = errors.New("invalid layout")

type BlockID int

// NoBlock marks an empty slot. Block IDs start at 1.
const NoBlock BlockID = 0

type Result string

const (
	ResultNone Result = ""
	ResultWin  Result = "win"
	ResultLose Result = "lose"
)

type Phase string

const (
	PhaseIncomplete Phase = "incomplete"
	PhaseComplete   Phase = "complete"
	PhaseEvaluated  Phase = "evaluated"
)

type Block struct {
	ID      BlockID `json:"id"`
	Content string  `json:"content"`
}

type Slot struct {
	Index     int     `json:"index"`
	Prefilled bool    `json:"prefilled"`
	Fixed     string  `json:"fixed,omitempty"` // skeleton text shown by a prefilled slot
	Occupant  BlockID `json:"occupant"`
}

// Layout is what a board is built from: the skeleton text per prefilled
// slot index and the block contents in initial pool order.
type Layout struct {
	SlotCount int
	Skeleton  map[int]string
	Blocks    []string
}

// Target maps each open slot index to the block expected there.
type Target map[int]BlockID

type Board struct {
	Blocks []Block   `json:"blocks"`
	Slots  []Slot    `json:"slots"`
	Pool   []BlockID `json:"pool"`
	Held   BlockID   `json:"held"`
	Result Result    `json:"result"`
}

func New(layout Layout) (*Board, error) {
	if layout.SlotCount <= 0 {
		return nil, fmt.Errorf("%w: no slots", ErrInvalidLayout)
	}
	for idx := range layout.Skeleton {
		if idx < 0 || idx >= layout.SlotCount {
			return nil, fmt.Errorf("%w: skeleton index %d outside %d slots", ErrInvalidLayout, idx, layout.SlotCount)
		}
	}
	if len(layout.Skeleton) == layout.SlotCount {
		return nil, fmt.Errorf("%w: no open slots", ErrInvalidLayout)
	}

	b := &Board{
		Blocks: make([]Block, 0, len(layout.Blocks)),
		Slots:  make([]Slot, layout.SlotCount),
		Pool:   make([]BlockID, 0, len(layout.Blocks)),
	}
	for i, content := range layout.Blocks {
		if content == "" {
			return nil, fmt.Errorf("%w: block %d has no content", ErrInvalidLayout, i)
		}
		id := BlockID(i + 1)
		b.Blocks = append(b.Blocks, Block{ID: id, Content: content})
		b.Pool = append(b.Pool, id)
	}
	for i := range b.Slots {
		fixed, prefilled := layout.Skeleton[i]
		b.Slots[i] = Slot{Index: i, Prefilled: prefilled, Fixed: fixed}
	}
	return b, nil
}

// PlaceBlock moves a block from the pool or from another open slot into slot.
// Moving a block onto the slot it already occupies is a no-op.
func (b *Board) PlaceBlock(id BlockID, slot int) error {
	if b.Result != ResultNone {
		return ErrAlreadyEvaluated
	}
	if !b.hasBlock(id) {
		return ErrUnknownBlock
	}
	if slot < 0 || slot >= len(b.Slots) {
		return ErrSlotOutOfRange
	}
	target := &b.Slots[slot]
	if target.Prefilled {
		return ErrSlotPrefilled
	}
	if target.Occupant == id {
		return nil
	}
	if target.Occupant != NoBlock {
		return ErrSlotOccupied
	}

	if from, ok := b.SlotOf(id); ok {
		b.Slots[from].Occupant = NoBlock
	} else {
		b.takeFromPool(id)
	}
	target.Occupant = id
	return nil
}

// RemoveBlock sends the block in slot back to the pool and reports whether
// anything moved.
func (b *Board) RemoveBlock(slot int) bool {
	if b.Result != ResultNone {
		return false
	}
	if slot < 0 || slot >= len(b.Slots) {
		return false
	}
	s := &b.Slots[slot]
	if s.Prefilled || s.Occupant == NoBlock {
		return false
	}
	b.Pool = append(b.Pool, s.Occupant)
	s.Occupant = NoBlock
	return true
}

func (b *Board) IsComplete() bool {
	for _, s := range b.Slots {
		if !s.Prefilled && s.Occupant == NoBlock {
			return false
		}
	}
	return true
}

// Evaluate compares every open slot with the target. Blocks with the same
// content are interchangeable.
func (b *Board) Evaluate(target Target) (Result, []bool, error) {
	if b.Result != ResultNone {
		return b.Result, b.matches(target), nil
	}
	if !b.IsComplete() {
		return ResultNone, nil, ErrBlocksMissing
	}

	matches := b.matches(target)
	b.Result = ResultWin
	for i, s := range b.Slots {
		if !s.Prefilled && !matches[i] {
			b.Result = ResultLose
			break
		}
	}
	b.Held = NoBlock
	return b.Result, matches, nil
}

// Reset returns every placed block to the pool in initial order.
func (b *Board) Reset() {
	for i := range b.Slots {
		b.Slots[i].Occupant = NoBlock
	}
	b.Pool = b.Pool[:0]
	for _, blk := range b.Blocks {
		b.Pool = append(b.Pool, blk.ID)
	}
	b.Held = NoBlock
	b.Result = ResultNone
}

func (b *Board) Phase() Phase {
	switch {
	case b.Result != ResultNone:
		return PhaseEvaluated
	case b.IsComplete():
		return PhaseComplete
	default:
		return PhaseIncomplete
	}
}

// ChooseHintSlot picks the first open slot whose occupant is not the
// expected block.
func (b *Board) ChooseHintSlot(target Target) (int, bool) {
	for i, s := range b.Slots {
		if s.Prefilled {
			continue
		}
		if !b.sameBlock(s.Occupant, target[i]) {
			return i, true
		}
	}
	return 0, false
}

// FillHint puts the expected block into slot, sending any other occupant
// back to the pool.
func (b *Board) FillHint(slot int, target Target) (BlockID, error) {
	if b.Result != ResultNone {
		return NoBlock, ErrAlreadyEvaluated
	}
	if slot < 0 || slot >= len(b.Slots) {
		return NoBlock, ErrSlotOutOfRange
	}
	if b.Slots[slot].Prefilled {
		return NoBlock, ErrSlotPrefilled
	}
	want, ok := target[slot]
	if !ok || !b.hasBlock(want) {
		return NoBlock, ErrUnknownBlock
	}
	if b.sameBlock(b.Slots[slot].Occupant, want) {
		return b.Slots[slot].Occupant, nil
	}

	pick := b.fillCandidate(slot, want, target)
	b.RemoveBlock(slot)
	if err := b.PlaceBlock(pick, slot); err != nil {
		return NoBlock, err
	}
	return pick, nil
}

// fillCandidate picks the block FillHint moves into slot. Any block with the
// expected content will do; one in the pool is taken first, then one sitting
// in a slot where it is wrong. A block already correct elsewhere is moved
// only when nothing else carries that content.
func (b *Board) fillCandidate(slot int, want BlockID, target Target) BlockID {
	if b.InPool(want) {
		return want
	}
	misplaced := NoBlock
	for _, blk := range b.Blocks {
		if !b.sameBlock(blk.ID, want) {
			continue
		}
		if b.InPool(blk.ID) {
			return blk.ID
		}
		at, ok := b.SlotOf(blk.ID)
		if misplaced == NoBlock && ok && at != slot && !b.sameBlock(blk.ID, target[at]) {
			misplaced = blk.ID
		}
	}
	if misplaced != NoBlock {
		return misplaced
	}
	return want
}

// SlotOf reports the slot currently holding id.
func (b *Board) SlotOf(id BlockID) (int, bool) {
	for i, s := range b.Slots {
		if s.Occupant == id && id != NoBlock {
			return i, true
		}
	}
	return 0, false
}

func (b *Board) InPool(id BlockID) bool {
	return slices.Contains(b.Pool, id)
}

func (b *Board) Content(id BlockID) string {
	if !b.hasBlock(id) {
		return ""
	}
	return b.Blocks[id-1].Content
}

// Clone returns a deep copy that shares nothing with b.
func (b *Board) Clone() Board {
	return Board{
		Blocks: slices.Clone(b.Blocks),
		Slots:  slices.Clone(b.Slots),
		Pool:   slices.Clone(b.Pool),
		Held:   b.Held,
		Result: b.Result,
	}
}

func (b *Board) hasBlock(id BlockID) bool {
	return id > 0 && int(id) <= len(b.Blocks)
}

func (b *Board) takeFromPool(id BlockID) {
	if i := slices.Index(b.Pool, id); i >= 0 {
		b.Pool = slices.Delete(b.Pool, i, i+1)
	}
}

func (b *Board) sameBlock(got, want BlockID) bool {
	if got == NoBlock || want == NoBlock {
		return false
	}
	return got == want || b.Content(got) == b.Content(want)
}

func (b *Board) matches(target Target) []bool {
	out := make([]bool, len(b.Slots))
	for i, s := range b.Slots {
		out[i] = s.Prefilled || b.sameBlock(s.Occupant, target[i])
	}
	return out
}
