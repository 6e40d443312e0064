package rules

import (
	"math/rand"

	"github.com/brensch/snekgym/game"
)

// FoodSettings controls food spawning after each tick.
//
//   - ReplaceEaten: spawn one new food for every food eaten this tick.
//   - MinimumFood: top the board up to at least this many food items.
//   - FoodSpawnChance: percentage chance (0-100) to spawn one extra food each turn.
//   - SpawnCap: never hold more than this many food items. Zero means no cap.
//   - SpawnRetries: random draws per food before falling back to a scan of
//     the free cells. The scan makes placement exact on crowded boards; a
//     saturated board simply skips the spawn.
type FoodSettings struct {
	ReplaceEaten    bool
	MinimumFood     int
	FoodSpawnChance int
	SpawnCap        int
	SpawnRetries    int
}

var DefaultFoodSettings = FoodSettings{
	ReplaceEaten:    true,
	MinimumFood:     1,
	FoodSpawnChance: 0,
	SpawnCap:        0,
	SpawnRetries:    32,
}

// spawnFood places new food for this turn and returns the cells it used.
func (e *Engine) spawnFood(state *game.GameState, rng *rand.Rand, eaten int) []game.Point {
	settings := e.Settings.Food

	toSpawn := 0
	if settings.ReplaceEaten {
		toSpawn = eaten
	}
	if deficit := settings.MinimumFood - (len(state.Food) + toSpawn); deficit > 0 {
		toSpawn += deficit
	}
	if settings.FoodSpawnChance > 0 && rng.Intn(100) < settings.FoodSpawnChance {
		toSpawn++
	}
	if settings.SpawnCap > 0 && len(state.Food)+toSpawn > settings.SpawnCap {
		toSpawn = settings.SpawnCap - len(state.Food)
	}
	if toSpawn <= 0 {
		return nil
	}
	return e.placeFood(state, rng, toSpawn)
}

// placeFood adds up to n food items on uniformly random free cells.
func (e *Engine) placeFood(state *game.GameState, rng *rand.Rand, n int) []game.Point {
	e.occ.Fill(state, true)
	e.occ.MarkFood(state.Food)

	start := len(state.Food)
	for ; n > 0; n-- {
		if e.occ.FreeCount() == 0 {
			break
		}
		p, ok := e.drawFree(state, rng)
		if !ok {
			e.free = e.occ.FreeCells(e.free[:0])
			p = e.free[rng.Intn(len(e.free))]
		}
		e.occ.Set(p, game.CellFood)
		state.Food = append(state.Food, p)
	}

	if len(state.Food) == start {
		return nil
	}
	spawned := make([]game.Point, len(state.Food)-start)
	copy(spawned, state.Food[start:])
	return spawned
}

func (e *Engine) drawFree(state *game.GameState, rng *rand.Rand) (game.Point, bool) {
	for try := 0; try < e.Settings.Food.SpawnRetries; try++ {
		p := game.Point{X: rng.Int31n(state.Width), Y: rng.Int31n(state.Height)}
		if e.occ.IsFree(p) {
			return p, true
		}
	}
	return game.Point{}, false
}
