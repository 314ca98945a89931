package board

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// Blocks of the first level, in the order the server hands them out.
var xssBlocks = []string{
	"goodcompany", // 1
	"<img",        // 2
	"<iframe",     // 3
	"50%",         // 4
	"evilcompany", // 5
	"<script",     // 6
	"25%",         // 7
	"/>",          // 8
	"></script",   // 9
	"></iframe>",  // 10
	"100%",        // 11
}

var xssTarget = Target{0: 3, 2: 5, 4: 11, 6: 10}

func newXSSBoard(t *testing.T) *Board {
	t.Helper()
	b, err := New(Layout{
		SlotCount: 7,
		Skeleton: map[int]string{
			1: `src="http://`,
			3: `.com" style="position: absolute; top: 0; left: 0; width: `,
			5: `; height: 100%;"`,
		},
		Blocks: xssBlocks,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func mustPlace(t *testing.T, b *Board, id BlockID, slot int) {
	t.Helper()
	if err := b.PlaceBlock(id, slot); err != nil {
		t.Fatalf("PlaceBlock(%d, %d): %v", id, slot, err)
	}
}

// checkLocations asserts every block sits in exactly one place.
func checkLocations(t *testing.T, b *Board) {
	t.Helper()
	seen := map[BlockID]int{}
	for _, id := range b.Pool {
		seen[id]++
	}
	for _, s := range b.Slots {
		if s.Prefilled && s.Occupant != NoBlock {
			t.Fatalf("prefilled slot %d holds block %d", s.Index, s.Occupant)
		}
		if s.Occupant != NoBlock {
			seen[s.Occupant]++
		}
	}
	for _, blk := range b.Blocks {
		if seen[blk.ID] != 1 {
			t.Fatalf("block %d found in %d locations", blk.ID, seen[blk.ID])
		}
	}
	if len(seen) != len(b.Blocks) {
		t.Fatalf("found %d distinct blocks, want %d", len(seen), len(b.Blocks))
	}
}

func TestNew_BuildsPoolAndSlots(t *testing.T) {
	b := newXSSBoard(t)

	if len(b.Pool) != len(xssBlocks) {
		t.Fatalf("pool: got %d blocks, want %d", len(b.Pool), len(xssBlocks))
	}
	prefilled := 0
	for _, s := range b.Slots {
		if s.Prefilled {
			prefilled++
		}
	}
	if prefilled != 3 {
		t.Fatalf("prefilled slots: got %d, want 3", prefilled)
	}
	if b.Phase() != PhaseIncomplete {
		t.Fatalf("phase: got %v, want %v", b.Phase(), PhaseIncomplete)
	}
	checkLocations(t, b)
}

func TestNew_RejectsBadLayouts(t *testing.T) {
	cases := []struct {
		name   string
		layout Layout
	}{
		{name: "no slots", layout: Layout{SlotCount: 0, Blocks: []string{"a"}}},
		{name: "skeleton out of range", layout: Layout{SlotCount: 2, Skeleton: map[int]string{2: "x"}}},
		{name: "every slot prefilled", layout: Layout{SlotCount: 1, Skeleton: map[int]string{0: "x"}}},
		{name: "empty block", layout: Layout{SlotCount: 2, Blocks: []string{"a", ""}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.layout)
			if !errors.Is(err, ErrInvalidLayout) {
				t.Fatalf("want ErrInvalidLayout, got %v", err)
			}
		})
	}
}

func TestPlaceBlock_FromPool(t *testing.T) {
	b := newXSSBoard(t)

	mustPlace(t, b, 1, 0)

	if b.Slots[0].Occupant != 1 {
		t.Fatalf("slot 0: got occupant %d, want 1", b.Slots[0].Occupant)
	}
	if b.InPool(1) {
		t.Fatalf("block 1 still in pool")
	}
	checkLocations(t, b)
}

func TestPlaceBlock_MovesBetweenSlots(t *testing.T) {
	b := newXSSBoard(t)
	mustPlace(t, b, 1, 0)

	mustPlace(t, b, 1, 2)

	if b.Slots[0].Occupant != NoBlock {
		t.Fatalf("source slot should be empty, holds %d", b.Slots[0].Occupant)
	}
	if b.Slots[2].Occupant != 1 {
		t.Fatalf("slot 2: got occupant %d, want 1", b.Slots[2].Occupant)
	}
	checkLocations(t, b)
}

func TestPlaceBlock_OwnSlotIsNoop(t *testing.T) {
	b := newXSSBoard(t)
	mustPlace(t, b, 4, 2)
	before := b.Clone()

	if err := b.PlaceBlock(4, 2); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if diff := cmp.Diff(before, b.Clone()); diff != "" {
		t.Fatalf("board changed (-before +after):\n%s", diff)
	}
}

func TestPlaceBlock_RejectedLeavesBoardUnchanged(t *testing.T) {
	cases := []struct {
		name    string
		setup   func(t *testing.T, b *Board)
		id      BlockID
		slot    int
		wantErr error
	}{
		{
			name:    "prefilled slot",
			setup:   func(t *testing.T, b *Board) {},
			id:      1,
			slot:    1,
			wantErr: ErrSlotPrefilled,
		},
		{
			name:    "occupied slot from pool",
			setup:   func(t *testing.T, b *Board) { mustPlace(t, b, 1, 2) },
			id:      2,
			slot:    2,
			wantErr: ErrSlotOccupied,
		},
		{
			name: "occupied slot from another slot",
			setup: func(t *testing.T, b *Board) {
				mustPlace(t, b, 1, 0)
				mustPlace(t, b, 2, 2)
			},
			id:      1,
			slot:    2,
			wantErr: ErrSlotOccupied,
		},
		{
			name:    "slot out of range",
			setup:   func(t *testing.T, b *Board) {},
			id:      1,
			slot:    7,
			wantErr: ErrSlotOutOfRange,
		},
		{
			name:    "unknown block",
			setup:   func(t *testing.T, b *Board) {},
			id:      42,
			slot:    0,
			wantErr: ErrUnknownBlock,
		},
		{
			name: "evaluated board",
			setup: func(t *testing.T, b *Board) {
				for slot, id := range xssTarget {
					mustPlace(t, b, id, slot)
				}
				if _, _, err := b.Evaluate(xssTarget); err != nil {
					t.Fatalf("Evaluate: %v", err)
				}
			},
			id:      1,
			slot:    0,
			wantErr: ErrAlreadyEvaluated,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := newXSSBoard(t)
			tc.setup(t, b)
			before := b.Clone()

			err := b.PlaceBlock(tc.id, tc.slot)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
			if !errors.Is(err, ErrDropRejected) {
				t.Fatalf("want error wrapping ErrDropRejected, got %v", err)
			}
			if diff := cmp.Diff(before, b.Clone()); diff != "" {
				t.Fatalf("board changed (-before +after):\n%s", diff)
			}
		})
	}
}

func TestRemoveBlock(t *testing.T) {
	b := newXSSBoard(t)
	mustPlace(t, b, 3, 0)

	if !b.RemoveBlock(0) {
		t.Fatalf("expected block to be removed")
	}
	if !b.InPool(3) || b.Slots[0].Occupant != NoBlock {
		t.Fatalf("block 3 should be back in the pool, slots=%+v", b.Slots)
	}
	checkLocations(t, b)

	for _, slot := range []int{0, 1, -1, 9} {
		if b.RemoveBlock(slot) {
			t.Fatalf("RemoveBlock(%d) should be a no-op", slot)
		}
	}
	checkLocations(t, b)
}

func TestIsComplete_CountsOpenSlots(t *testing.T) {
	b := newXSSBoard(t)
	open := []int{0, 2, 4, 6}

	for i, slot := range open {
		if b.IsComplete() {
			t.Fatalf("complete with %d of %d open slots filled", i, len(open))
		}
		mustPlace(t, b, BlockID(i+1), slot)
	}
	if !b.IsComplete() {
		t.Fatalf("expected complete board")
	}
	if b.Phase() != PhaseComplete {
		t.Fatalf("phase: got %v, want %v", b.Phase(), PhaseComplete)
	}

	b.RemoveBlock(4)
	if b.IsComplete() {
		t.Fatalf("board should be incomplete after removal")
	}
	mustPlace(t, b, 7, 4)
	if b.Phase() != PhaseComplete {
		t.Fatalf("phase: got %v, want %v", b.Phase(), PhaseComplete)
	}
}

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name      string
		placement map[int]BlockID
		want      Result
	}{
		{
			name:      "correct arrangement wins",
			placement: map[int]BlockID{0: 3, 2: 5, 4: 11, 6: 10},
			want:      ResultWin,
		},
		{
			name:      "swapped middle blocks lose",
			placement: map[int]BlockID{0: 3, 2: 11, 4: 5, 6: 10},
			want:      ResultLose,
		},
		{
			name:      "swapped ends lose",
			placement: map[int]BlockID{0: 10, 2: 5, 4: 11, 6: 3},
			want:      ResultLose,
		},
		{
			name:      "decoy block loses",
			placement: map[int]BlockID{0: 3, 2: 1, 4: 11, 6: 10},
			want:      ResultLose,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := newXSSBoard(t)
			for slot, id := range tc.placement {
				mustPlace(t, b, id, slot)
			}

			got, matches, err := b.Evaluate(xssTarget)
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %v, want %v (matches %v)", got, tc.want, matches)
			}
			if b.Phase() != PhaseEvaluated {
				t.Fatalf("phase: got %v, want %v", b.Phase(), PhaseEvaluated)
			}
		})
	}
}

func TestEvaluate_IncompleteBoardIsRejected(t *testing.T) {
	b := newXSSBoard(t)
	mustPlace(t, b, 3, 0)
	before := b.Clone()

	_, _, err := b.Evaluate(xssTarget)
	if !errors.Is(err, ErrBlocksMissing) {
		t.Fatalf("want ErrBlocksMissing, got %v", err)
	}
	if diff := cmp.Diff(before, b.Clone()); diff != "" {
		t.Fatalf("board changed (-before +after):\n%s", diff)
	}
}

func TestEvaluate_DuplicateContentIsInterchangeable(t *testing.T) {
	b, err := New(Layout{SlotCount: 3, Skeleton: map[int]string{1: "x"}, Blocks: []string{`"`, `"`}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mustPlace(t, b, 2, 0)
	mustPlace(t, b, 1, 2)

	got, _, err := b.Evaluate(Target{0: 1, 2: 2})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != ResultWin {
		t.Fatalf("got %v, want %v", got, ResultWin)
	}
}

func TestEvaluate_MatchVector(t *testing.T) {
	b := newXSSBoard(t)
	for slot, id := range map[int]BlockID{0: 3, 2: 11, 4: 5, 6: 10} {
		mustPlace(t, b, id, slot)
	}

	_, matches, err := b.Evaluate(xssTarget)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := []bool{true, true, false, true, false, true, true}
	if diff := cmp.Diff(want, matches); diff != "" {
		t.Fatalf("matches (-want +got):\n%s", diff)
	}
}

func TestReset_ReturnsEverythingToPool(t *testing.T) {
	b := newXSSBoard(t)
	for slot, id := range xssTarget {
		mustPlace(t, b, id, slot)
	}
	if _, _, err := b.Evaluate(xssTarget); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	b.Reset()

	fresh := newXSSBoard(t)
	if diff := cmp.Diff(fresh.Clone(), b.Clone()); diff != "" {
		t.Fatalf("reset board differs from a fresh one (-fresh +reset):\n%s", diff)
	}
}

func TestChooseHintSlot_FirstUnmatchedOpenSlot(t *testing.T) {
	b := newXSSBoard(t)

	slot, ok := b.ChooseHintSlot(xssTarget)
	if !ok || slot != 0 {
		t.Fatalf("got (%d, %v), want (0, true)", slot, ok)
	}

	mustPlace(t, b, 3, 0)
	mustPlace(t, b, 1, 2)
	slot, ok = b.ChooseHintSlot(xssTarget)
	if !ok || slot != 2 {
		t.Fatalf("got (%d, %v), want (2, true)", slot, ok)
	}

	b.RemoveBlock(2)
	for s, id := range map[int]BlockID{2: 5, 4: 11, 6: 10} {
		mustPlace(t, b, id, s)
	}
	if _, ok := b.ChooseHintSlot(xssTarget); ok {
		t.Fatalf("solved board should have no hint slot")
	}
}

func TestFillHint(t *testing.T) {
	b := newXSSBoard(t)
	mustPlace(t, b, 1, 0) // wrong block in the hinted slot
	mustPlace(t, b, 3, 4) // expected block sitting elsewhere

	id, err := b.FillHint(0, xssTarget)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if id != 3 || b.Slots[0].Occupant != 3 {
		t.Fatalf("slot 0 should hold block 3, got %d", b.Slots[0].Occupant)
	}
	if !b.InPool(1) {
		t.Fatalf("displaced block should return to the pool")
	}
	if b.Slots[4].Occupant != NoBlock {
		t.Fatalf("slot 4 should be empty, holds %d", b.Slots[4].Occupant)
	}
	checkLocations(t, b)

	if _, err := b.FillHint(1, xssTarget); !errors.Is(err, ErrSlotPrefilled) {
		t.Fatalf("want ErrSlotPrefilled, got %v", err)
	}
}

func TestFillHint_LeavesCorrectDuplicateInPlace(t *testing.T) {
	b, err := New(Layout{SlotCount: 2, Blocks: []string{"x", "x"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	target := Target{0: 1, 1: 2}
	mustPlace(t, b, 1, 1) // correct by content

	slot, ok := b.ChooseHintSlot(target)
	if !ok || slot != 0 {
		t.Fatalf("want hint slot 0, got %d (ok=%v)", slot, ok)
	}
	id, err := b.FillHint(slot, target)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if id != 2 {
		t.Fatalf("want block 2 from the pool, got %d", id)
	}
	if b.Slots[1].Occupant != 1 {
		t.Fatalf("slot 1 should keep block 1, holds %d", b.Slots[1].Occupant)
	}
	if !b.IsComplete() {
		t.Fatalf("board should be complete")
	}
	checkLocations(t, b)
}

func TestFillHint_TakesMisplacedDuplicateBeforeCorrectOne(t *testing.T) {
	b, err := New(Layout{SlotCount: 3, Blocks: []string{"x", "x", "y"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	target := Target{0: 1, 1: 2, 2: 3}
	mustPlace(t, b, 1, 1) // correct by content
	mustPlace(t, b, 2, 2) // wrong, slot 2 wants "y"

	id, err := b.FillHint(0, target)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if id != 2 || b.Slots[1].Occupant != 1 || b.Slots[2].Occupant != NoBlock {
		t.Fatalf("got id=%d slots=%+v", id, b.Slots)
	}
	checkLocations(t, b)
}

func TestOperations_KeepEveryBlockInOneLocation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b := newXSSBoard(t)
	total := len(b.Blocks)

	for i := 0; i < 2000; i++ {
		switch rng.Intn(5) {
		case 0, 1, 2:
			_ = b.PlaceBlock(BlockID(rng.Intn(total+2)), rng.Intn(9)-1)
		case 3:
			b.RemoveBlock(rng.Intn(9) - 1)
		case 4:
			if b.IsComplete() {
				_, _, _ = b.Evaluate(xssTarget)
				b.Reset()
			}
		}
		checkLocations(t, b)

		placed := 0
		for _, s := range b.Slots {
			if s.Occupant != NoBlock {
				placed++
			}
		}
		if placed+len(b.Pool) != total {
			t.Fatalf("step %d: pool %d + placed %d != %d", i, len(b.Pool), placed, total)
		}
	}
}
