package rules

import (
	"slices"
	"testing"

	"github.com/brensch/snekgym/game"
)

// Board (5x5), y grows upward:
//
//	. H b T .   <- b: head (1,1), tail (3,1)
//	. . . H .   <- a: head (3,0)
//
// a moving Up lands on b's tail, which moves away this turn.
func TestLegalMovesWithTailDecrement(t *testing.T) {
	state := &game.GameState{
		Width:  5,
		Height: 5,
		Snakes: []game.Snake{
			snake("a", 100, 3, 0, 2, 0, 1, 0),
			snake("b", 100, 1, 1, 2, 1, 3, 1),
		},
	}
	t.Logf("Testing tail decrement:\n%s", state.Dump())

	conservative := LegalMoves(state, 0)
	withTail := LegalMovesWithTailDecrement(state, 0)
	t.Logf("LegalMoves: %v  LegalMovesWithTailDecrement: %v", conservative, withTail)

	if slices.Contains(conservative, game.MoveUp) {
		t.Error("LegalMoves should not allow Up into b's tail")
	}
	if !slices.Contains(withTail, game.MoveUp) {
		t.Error("LegalMovesWithTailDecrement should allow Up into b's tail")
	}
	if slices.Contains(withTail, game.MoveDown) {
		t.Error("Down leaves the board")
	}
	if slices.Contains(withTail, game.MoveLeft) {
		t.Error("Left runs into a's own neck")
	}
}

// A snake that just ate keeps its tail in place, so the cell stays blocked.
func TestLegalMovesWithTailDecrement_StackedTail(t *testing.T) {
	state := &game.GameState{
		Width:  5,
		Height: 5,
		Snakes: []game.Snake{
			snake("a", 100, 3, 0, 2, 0, 1, 0),
			snake("b", 100, 1, 1, 2, 1, 3, 1, 3, 1),
		},
	}
	t.Logf("Testing stacked tail:\n%s", state.Dump())

	moves := LegalMovesWithTailDecrement(state, 0)
	t.Logf("LegalMovesWithTailDecrement: %v", moves)
	if slices.Contains(moves, game.MoveUp) {
		t.Error("Up into b's stacked tail should not be allowed")
	}
	if !slices.Equal(moves, []game.Move{game.MoveRight}) {
		t.Errorf("moves=%v want [right]", moves)
	}
}

func TestLegalMoves_DeadOrMissingSnake(t *testing.T) {
	state := &game.GameState{
		Width:  5,
		Height: 5,
		Snakes: []game.Snake{snake("a", 100, 2, 2, 2, 1)},
	}
	state.Snakes[0].Alive = false

	if got := LegalMoves(state, 0); got != nil {
		t.Fatalf("dead snake got moves %v", got)
	}
	if got := LegalMoves(state, 3); got != nil {
		t.Fatalf("out of range index got moves %v", got)
	}
}

func TestLegalMoves_IgnoresDeadBodies(t *testing.T) {
	dead := snake("b", 0, 2, 3, 3, 3, 4, 3)
	dead.Alive = false
	state := &game.GameState{
		Width:  5,
		Height: 5,
		Snakes: []game.Snake{snake("a", 100, 2, 2, 2, 1), dead},
	}

	if got := LegalMoves(state, 0); !slices.Contains(got, game.MoveUp) {
		t.Fatalf("moves=%v; a dead body should not block", got)
	}
}
