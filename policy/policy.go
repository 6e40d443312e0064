// Package policy chooses moves for snakes the trainer does not control.
package policy

import (
	"math/rand"

	"github.com/brensch/snekgym/game"
	"github.com/brensch/snekgym/rules"
)

// Policy picks a move for state.Snakes[snake]. Implementations draw any
// randomness from rng so episodes stay reproducible from the instance seed.
type Policy interface {
	Act(state *game.GameState, snake int, rng *rand.Rand) (game.Move, error)
}

// Func adapts a plain function to Policy.
type Func func(state *game.GameState, snake int, rng *rand.Rand) (game.Move, error)

func (f Func) Act(state *game.GameState, snake int, rng *rand.Rand) (game.Move, error) {
	return f(state, snake, rng)
}

// Forward keeps going in the current heading; the rules engine does the rest.
var Forward = Func(func(state *game.GameState, snake int, _ *rand.Rand) (game.Move, error) {
	if m, ok := state.Snakes[snake].Facing(); ok {
		return m, nil
	}
	return game.MoveUp, nil
})

// RandomSafe picks uniformly among moves that do not hit a wall or a body,
// treating tails that will move away as free. With no safe move it picks any
// move at random.
type RandomSafe struct{}

func (RandomSafe) Act(state *game.GameState, snake int, rng *rand.Rand) (game.Move, error) {
	legal := rules.LegalMovesWithTailDecrement(state, snake)
	if len(legal) == 0 {
		return game.Move(rng.Intn(game.NumMoves)), nil
	}
	return legal[rng.Intn(len(legal))], nil
}

// Greedy heads for the nearest food by Manhattan distance among the safe
// moves, breaking ties at random. It also avoids cells next to the head of
// an equal or longer snake when it has another option.
type Greedy struct{}

func (Greedy) Act(state *game.GameState, snake int, rng *rand.Rand) (game.Move, error) {
	legal := rules.LegalMovesWithTailDecrement(state, snake)
	if len(legal) == 0 {
		return game.Move(rng.Intn(game.NumMoves)), nil
	}

	you := &state.Snakes[snake]
	head := you.Body[0]

	safe := legal[:0:0]
	for _, m := range legal {
		if !contested(state, snake, head.Add(m.Delta())) {
			safe = append(safe, m)
		}
	}
	if len(safe) == 0 {
		safe = legal
	}
	if len(state.Food) == 0 {
		return safe[rng.Intn(len(safe))], nil
	}

	best := make([]game.Move, 0, game.NumMoves)
	bestDist := int32(-1)
	for _, m := range safe {
		d := nearest(head.Add(m.Delta()), state.Food)
		switch {
		case bestDist < 0 || d < bestDist:
			bestDist = d
			best = append(best[:0], m)
		case d == bestDist:
			best = append(best, m)
		}
	}
	return best[rng.Intn(len(best))], nil
}

func contested(state *game.GameState, snake int, p game.Point) bool {
	own := len(state.Snakes[snake].Body)
	for i := range state.Snakes {
		o := &state.Snakes[i]
		if i == snake || !o.Alive || len(o.Body) < own {
			continue
		}
		if o.Body[0].Adjacent(p) {
			return true
		}
	}
	return false
}

func nearest(p game.Point, food []game.Point) int32 {
	best := int32(-1)
	for _, f := range food {
		d := abs(p.X-f.X) + abs(p.Y-f.Y)
		if best < 0 || d < best {
			best = d
		}
	}
	return best
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// ByName resolves the scripted policies selectable from configuration.
func ByName(name string) (Policy, bool) {
	switch name {
	case "random", "random-safe":
		return RandomSafe{}, true
	case "greedy":
		return Greedy{}, true
	case "forward":
		return Forward, true
	}
	return nil, false
}
