package rules

import (
	"fmt"
	"math/rand"

	"github.com/brensch/snekgym/game"
)

// spawnCandidates returns the canonical start cells for a board: the corners,
// edge midpoints and centre of the ring one cell in from the walls. On an
// 11x11 board these are (1,1) (5,1) (9,1) (1,5) (9,5) (1,9) (5,9) (9,9).
func spawnCandidates(width, height int32) []game.Point {
	xs := ringCoords(width)
	ys := ringCoords(height)

	seen := make(map[game.Point]struct{}, 8)
	out := make([]game.Point, 0, 8)
	for yi, y := range ys {
		for xi, x := range xs {
			// Skip the centre; it is the most contested cell.
			if xi == 1 && yi == 1 {
				continue
			}
			p := game.Point{X: x, Y: y}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

func ringCoords(n int32) [3]int32 {
	lo, hi := int32(1), n-2
	if n < 3 {
		lo, hi = 0, n-1
	}
	return [3]int32{lo, (n - 1) / 2, hi}
}

// NewGame builds the opening state for one episode: every snake stacked
// StartingLength deep on its own start cell, then the initial food.
//
// Start cells come from the shuffled canonical candidates and fall back to
// random free cells when there are more snakes than candidates.
func (e *Engine) NewGame(width, height int32, ids []string, rng *rand.Rand) (*game.GameState, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid board %dx%d", width, height)
	}
	if len(ids) > int(width*height) {
		return nil, fmt.Errorf("%d snakes do not fit on a %dx%d board", len(ids), width, height)
	}

	state := &game.GameState{
		Width:  width,
		Height: height,
		Snakes: make([]game.Snake, len(ids)),
	}

	starts := spawnCandidates(width, height)
	rng.Shuffle(len(starts), func(i, j int) { starts[i], starts[j] = starts[j], starts[i] })
	if len(starts) < len(ids) {
		taken := make(map[game.Point]struct{}, len(starts))
		for _, p := range starts {
			taken[p] = struct{}{}
		}
		rest := make([]game.Point, 0, int(width*height)-len(starts))
		for y := int32(0); y < height; y++ {
			for x := int32(0); x < width; x++ {
				p := game.Point{X: x, Y: y}
				if _, ok := taken[p]; !ok {
					rest = append(rest, p)
				}
			}
		}
		rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
		starts = append(starts, rest...)
	}

	length := e.Settings.StartingLength
	if length < 1 {
		length = 1
	}
	for i, id := range ids {
		body := make([]game.Point, length)
		for j := range body {
			body[j] = starts[i]
		}
		state.Snakes[i] = game.Snake{
			ID:     id,
			Health: e.Settings.StartingHealth,
			Body:   body,
			Alive:  true,
		}
	}

	initial := e.Settings.InitialFood
	if initial < 0 {
		initial = len(ids)
	}
	if limit := e.Settings.Food.SpawnCap; limit > 0 && initial > limit {
		initial = limit
	}
	if initial > 0 {
		e.placeFood(state, rng, initial)
	}

	if err := state.Validate(); err != nil {
		return nil, err
	}
	return state, nil
}
