// Package rules implements the simultaneous-move snake rules as a
// deterministic state machine.
//
// Engine.Tick advances one GameState by one turn given a move for every
// living snake. It never mutates its input and draws randomness only from the
// *rand.Rand it is handed, so an instance that owns its own source replays
// bit-identically.
package rules

import (
	"math/rand"

	"github.com/brensch/snekgym/game"
)

// Settings are the per-episode knobs of the rules.
type Settings struct {
	MaxHealth      int32
	StartingHealth int32
	// HealthDecay is subtracted from every living snake each turn.
	HealthDecay    int32
	StartingLength int
	// InitialFood is placed at reset. Negative means one per snake.
	InitialFood int
	// MaxTicks ends the episode once Turn reaches it. Zero disables the cap.
	MaxTicks int32

	Food FoodSettings
}

// DefaultSettings mirrors standard Battlesnake play with per-eat replacement food.
var DefaultSettings = Settings{
	MaxHealth:      100,
	StartingHealth: 100,
	HealthDecay:    1,
	StartingLength: 3,
	InitialFood:    -1,
	MaxTicks:       500,
	Food:           DefaultFoodSettings,
}

// Event is what happened to one snake during one tick.
type Event struct {
	Snake int
	// Move is the move actually applied after correction.
	Move      game.Move
	Corrected bool
	// WasAlive is false for snakes that were already dead before the tick;
	// all other fields are zero for them.
	WasAlive bool
	Ate      bool
	Died     bool
	Cause    game.DeathCause
	Length   int
	Health   int32
}

// Report collects the per-snake events of one tick plus food bookkeeping.
type Report struct {
	Events  []Event
	Eaten   []game.Point
	Spawned []game.Point
}

// Engine applies Settings to game states. It holds scratch buffers, so one
// Engine must not be used from two goroutines at once; give every instance
// its own.
type Engine struct {
	Settings Settings

	occ   game.Occupancy
	free  []game.Point
	dying []game.DeathCause
}

func NewEngine(settings Settings) *Engine {
	return &Engine{Settings: settings}
}

// Tick applies moves (indexed like state.Snakes) and returns the next state.
//
// Missing, out-of-range and 180 degree reversal moves are replaced by the
// snake's current heading. A state that breaks the body invariants panics
// with a *game.InvariantError: that is a bug upstream, not a game outcome.
func (e *Engine) Tick(state *game.GameState, moves []game.Move, rng *rand.Rand) (*game.GameState, Report) {
	if err := checkBodies(state); err != nil {
		panic(err)
	}

	next := state.Clone()
	next.Turn++

	report := Report{Events: make([]Event, len(next.Snakes))}
	if cap(e.dying) < len(next.Snakes) {
		e.dying = make([]game.DeathCause, len(next.Snakes))
	}
	e.dying = e.dying[:len(next.Snakes)]
	clear(e.dying)

	// 1. Resolve moves and advance bodies, dropping the tail.
	for i := range next.Snakes {
		s := &next.Snakes[i]
		ev := &report.Events[i]
		ev.Snake = i
		if !s.Alive {
			continue
		}
		ev.WasAlive = true

		var requested game.Move
		have := i < len(moves)
		if have {
			requested = moves[i]
		}
		ev.Move, ev.Corrected = resolveMove(s, requested, have)

		head := s.Body[0].Add(ev.Move.Delta())
		copy(s.Body[1:], s.Body[:len(s.Body)-1])
		s.Body[0] = head

		s.Health -= e.Settings.HealthDecay
	}

	// 2. Feeding. Every head on a food cell eats it; growth duplicates the new
	// tail so the extra segment only takes up a new cell next turn.
	if len(next.Food) > 0 {
		remaining := next.Food[:0]
		for _, f := range next.Food {
			eaten := false
			for i := range next.Snakes {
				s := &next.Snakes[i]
				if !s.Alive || s.Body[0] != f {
					continue
				}
				eaten = true
				report.Events[i].Ate = true
				s.Health = e.Settings.MaxHealth
				s.Body = append(s.Body, s.Body[len(s.Body)-1])
			}
			if eaten {
				report.Eaten = append(report.Eaten, f)
				continue
			}
			remaining = append(remaining, f)
		}
		next.Food = remaining
	}

	// 3. Eliminations that do not depend on other snakes.
	for i := range next.Snakes {
		s := &next.Snakes[i]
		if !s.Alive {
			continue
		}
		switch {
		case !next.InBounds(s.Body[0]):
			e.dying[i] = game.DeathWall
		case s.Health <= 0:
			e.dying[i] = game.DeathStarvation
		}
	}
	e.eliminate(next, &report)

	// 4. Collisions between the remaining snakes, all resolved against the
	// same post-move board so no snake gains from its index.
	e.occ.Fill(next, false)
	for i := range next.Snakes {
		s := &next.Snakes[i]
		if !s.Alive {
			continue
		}
		if e.occ.At(s.Body[0]) != game.CellEmpty {
			e.dying[i] = game.DeathBody
			continue
		}
		for j := range next.Snakes {
			o := &next.Snakes[j]
			if j == i || !o.Alive || o.Body[0] != s.Body[0] {
				continue
			}
			// Ties die together; only a strictly longer snake survives.
			if len(o.Body) >= len(s.Body) {
				e.dying[i] = game.DeathHeadToHead
				break
			}
		}
	}
	e.eliminate(next, &report)

	// 5. Food replenishment on the board as it now stands.
	report.Spawned = e.spawnFood(next, rng, len(report.Eaten))

	for i := range next.Snakes {
		s := &next.Snakes[i]
		if !report.Events[i].WasAlive {
			continue
		}
		report.Events[i].Length = len(s.Body)
		report.Events[i].Health = s.Health
	}

	next.Over = e.Terminal(next)
	return next, report
}

// Terminal reports whether the episode is over: fewer than two snakes left in
// a multi-snake game, no snakes left in a solo game, or the turn cap reached.
func (e *Engine) Terminal(state *game.GameState) bool {
	alive := state.AliveCount()
	if len(state.Snakes) > 1 && alive < 2 {
		return true
	}
	if alive == 0 {
		return true
	}
	return e.Settings.MaxTicks > 0 && state.Turn >= e.Settings.MaxTicks
}

func (e *Engine) eliminate(state *game.GameState, report *Report) {
	for i, cause := range e.dying {
		if cause == game.DeathNone {
			continue
		}
		s := &state.Snakes[i]
		s.Alive = false
		s.Death = cause
		s.EliminatedTurn = state.Turn
		report.Events[i].Died = true
		report.Events[i].Cause = cause
		e.dying[i] = game.DeathNone
	}
}

func resolveMove(s *game.Snake, requested game.Move, have bool) (game.Move, bool) {
	facing, hasFacing := s.Facing()
	if !hasFacing {
		facing = game.MoveUp
	}
	if !have || !requested.Valid() {
		return facing, true
	}
	if hasFacing && requested == facing.Opposite() {
		return facing, true
	}
	return requested, false
}

// checkBodies is the allocation-free subset of GameState.Validate run on
// every tick.
func checkBodies(state *game.GameState) error {
	if state.Width <= 0 || state.Height <= 0 {
		return &game.InvariantError{Turn: state.Turn, Reason: "invalid board dimensions"}
	}
	for i := range state.Snakes {
		s := &state.Snakes[i]
		if !s.Alive {
			continue
		}
		if len(s.Body) == 0 {
			return &game.InvariantError{Turn: state.Turn, Snake: s.ID, Reason: "living snake has an empty body"}
		}
		for j, p := range s.Body {
			if !state.InBounds(p) {
				return &game.InvariantError{Turn: state.Turn, Snake: s.ID, Reason: "living snake has a segment off the board"}
			}
			if j > 0 && p != s.Body[j-1] && !p.Adjacent(s.Body[j-1]) {
				return &game.InvariantError{Turn: state.Turn, Snake: s.ID, Reason: "body is not contiguous"}
			}
		}
	}
	return nil
}
