package rules

import (
	"github.com/brensch/snekgym/game"
)

// LegalMoves returns the moves for snake idx that do not immediately run into
// a wall or any living snake's body. Tails are treated as blocking.
func LegalMoves(state *game.GameState, idx int) []game.Move {
	return legalMoves(state, idx, false)
}

// LegalMovesWithTailDecrement is LegalMoves, except that a tail which will
// move away this turn counts as free. A stacked tail (the owner just ate or
// just spawned) stays put and still blocks.
func LegalMovesWithTailDecrement(state *game.GameState, idx int) []game.Move {
	return legalMoves(state, idx, true)
}

func legalMoves(state *game.GameState, idx int, tailDecrement bool) []game.Move {
	if idx < 0 || idx >= len(state.Snakes) {
		return nil
	}
	you := &state.Snakes[idx]
	if !you.Alive || len(you.Body) == 0 {
		return nil
	}

	head := you.Body[0]
	moves := make([]game.Move, 0, game.NumMoves)
	for m := game.Move(0); m < game.NumMoves; m++ {
		p := head.Add(m.Delta())
		if isSafe(state, p, tailDecrement) {
			moves = append(moves, m)
		}
	}
	return moves
}

func isSafe(state *game.GameState, p game.Point, tailDecrement bool) bool {
	if !state.InBounds(p) {
		return false
	}

	for i := range state.Snakes {
		s := &state.Snakes[i]
		if !s.Alive {
			continue
		}
		n := len(s.Body)
		for j, bp := range s.Body {
			if bp != p {
				continue
			}
			if tailDecrement && j == n-1 && n > 1 && s.Body[n-2] != bp {
				continue
			}
			return false
		}
	}
	return true
}
