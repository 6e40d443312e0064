package rules

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/brensch/snekgym/game"
)

// noFood disables every food source so scenarios stay hand-checkable.
var noFood = Settings{
	MaxHealth:      100,
	StartingHealth: 100,
	HealthDecay:    1,
	StartingLength: 3,
	Food:           FoodSettings{SpawnRetries: 8},
}

func pts(xy ...int32) []game.Point {
	out := make([]game.Point, 0, len(xy)/2)
	for i := 0; i+1 < len(xy); i += 2 {
		out = append(out, game.Point{X: xy[i], Y: xy[i+1]})
	}
	return out
}

func snake(id string, health int32, body ...int32) game.Snake {
	return game.Snake{ID: id, Health: health, Alive: true, Body: pts(body...)}
}

func logTick(t *testing.T, name string, before *game.GameState, moves []game.Move, after *game.GameState) {
	t.Helper()
	var mv strings.Builder
	mv.WriteString("Moves:")
	for i, m := range moves {
		fmt.Fprintf(&mv, " %d=%s", i, m)
	}
	mv.WriteByte('\n')
	t.Logf("=== %s ===\nBefore:\n%s%sAfter:\n%s", name, before.Dump(), mv.String(), after.Dump())
}

func assertBody(t *testing.T, got []game.Point, want []game.Point) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("body len=%d want=%d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("body[%d]=%v want=%v", i, got[i], want[i])
		}
	}
}

func tick(t *testing.T, name string, settings Settings, before *game.GameState, moves ...game.Move) (*game.GameState, Report) {
	t.Helper()
	e := NewEngine(settings)
	after, report := e.Tick(before, moves, rand.New(rand.NewSource(1)))
	logTick(t, name, before, moves, after)
	return after, report
}

func TestTick_NormalMove_NoFood(t *testing.T) {
	before := &game.GameState{
		Width:  7,
		Height: 7,
		Snakes: []game.Snake{snake("me", 10, 3, 3, 3, 2, 3, 1)},
	}

	after, report := tick(t, "normal move", noFood, before, game.MoveUp)

	assertBody(t, after.Snakes[0].Body, pts(3, 4, 3, 3, 3, 2))
	if after.Snakes[0].Health != 9 {
		t.Fatalf("health=%d want=9", after.Snakes[0].Health)
	}
	if after.Turn != 1 {
		t.Fatalf("turn=%d want=1", after.Turn)
	}
	ev := report.Events[0]
	if ev.Corrected || ev.Died || ev.Ate || ev.Length != 3 || ev.Health != 9 {
		t.Fatalf("unexpected event %+v", ev)
	}
	if after.Over {
		t.Fatalf("solo game with a living snake must not be over")
	}
}

func TestTick_DoesNotMutateInput(t *testing.T) {
	before := &game.GameState{
		Width:  7,
		Height: 7,
		Snakes: []game.Snake{snake("me", 10, 3, 3, 3, 2, 3, 1)},
		Food:   pts(3, 4, 0, 0),
	}
	dump := before.Dump()
	tick(t, "input untouched", DefaultSettings, before, game.MoveUp)
	if before.Dump() != dump {
		t.Fatalf("Tick mutated its input state")
	}
}

func TestTick_EatFood_GrowsByDuplicatingTail(t *testing.T) {
	before := &game.GameState{
		Width:  7,
		Height: 7,
		Snakes: []game.Snake{snake("me", 10, 3, 3, 3, 2, 3, 1)},
		Food:   pts(3, 4),
	}

	after, report := tick(t, "eat food", noFood, before, game.MoveUp)

	assertBody(t, after.Snakes[0].Body, pts(3, 4, 3, 3, 3, 2, 3, 2))
	if after.Snakes[0].Health != 100 {
		t.Fatalf("health=%d want=100", after.Snakes[0].Health)
	}
	if len(after.Food) != 0 {
		t.Fatalf("food len=%d want=0", len(after.Food))
	}
	if !report.Events[0].Ate || len(report.Eaten) != 1 {
		t.Fatalf("eat not reported: %+v", report)
	}

	// The extra segment only claims a new cell on the following turn.
	next, _ := tick(t, "after eating", noFood, after, game.MoveUp)
	assertBody(t, next.Snakes[0].Body, pts(3, 5, 3, 4, 3, 3, 3, 2))
}

func TestTick_StackedSpawn_EatFood(t *testing.T) {
	before := &game.GameState{
		Width:  7,
		Height: 7,
		Snakes: []game.Snake{snake("me", 10, 1, 1, 1, 1, 1, 1)},
		Food:   pts(1, 2),
	}

	after, _ := tick(t, "stacked spawn eat", noFood, before, game.MoveUp)
	assertBody(t, after.Snakes[0].Body, pts(1, 2, 1, 1, 1, 1, 1, 1))
}

func TestTick_BothMove_OneEats(t *testing.T) {
	before := &game.GameState{
		Width:  7,
		Height: 7,
		Snakes: []game.Snake{
			snake("a", 10, 1, 1, 1, 1, 1, 1),
			snake("b", 10, 5, 5, 5, 5, 5, 5),
		},
		Food: pts(1, 2),
	}

	after, _ := tick(t, "one eats", noFood, before, game.MoveUp, game.MoveLeft)

	a, b := after.Snakes[0], after.Snakes[1]
	if !a.Alive || !b.Alive {
		t.Fatalf("expected both snakes alive")
	}
	assertBody(t, a.Body, pts(1, 2, 1, 1, 1, 1, 1, 1))
	if a.Health != 100 {
		t.Fatalf("snake a health=%d want=100", a.Health)
	}
	assertBody(t, b.Body, pts(4, 5, 5, 5, 5, 5))
	if b.Health != 9 {
		t.Fatalf("snake b health=%d want=9", b.Health)
	}
}

func TestTick_ReversalContinuesForward(t *testing.T) {
	before := &game.GameState{
		Width:  7,
		Height: 7,
		Snakes: []game.Snake{snake("me", 10, 3, 3, 3, 2, 3, 1)},
	}

	after, report := tick(t, "reversal", noFood, before, game.MoveDown)

	assertBody(t, after.Snakes[0].Body, pts(3, 4, 3, 3, 3, 2))
	if !report.Events[0].Corrected || report.Events[0].Move != game.MoveUp {
		t.Fatalf("event=%+v want corrected up", report.Events[0])
	}
	if !after.Snakes[0].Alive {
		t.Fatalf("reversal must never kill the snake")
	}
}

func TestTick_MissingAndInvalidMovesContinueForward(t *testing.T) {
	before := &game.GameState{
		Width:  7,
		Height: 7,
		Snakes: []game.Snake{
			snake("a", 10, 3, 3, 2, 3, 1, 3),
			snake("b", 10, 5, 1, 5, 2, 5, 3),
		},
	}

	after, report := tick(t, "missing move", noFood, before, game.Move(9))

	if report.Events[0].Move != game.MoveRight || !report.Events[0].Corrected {
		t.Fatalf("invalid move not corrected: %+v", report.Events[0])
	}
	if report.Events[1].Move != game.MoveDown || !report.Events[1].Corrected {
		t.Fatalf("missing move not corrected: %+v", report.Events[1])
	}
	assertBody(t, after.Snakes[1].Body, pts(5, 0, 5, 1, 5, 2))
}

func TestTick_WallDeathIsExcludedFromCollisions(t *testing.T) {
	before := &game.GameState{
		Width:  5,
		Height: 5,
		Snakes: []game.Snake{
			snake("a", 50, 0, 2, 1, 2, 2, 2),
			snake("b", 50, 1, 3, 2, 3, 3, 3),
		},
	}

	// a leaves the board; b moves onto the cell a's body would occupy.
	after, report := tick(t, "wall death", noFood, before, game.MoveLeft, game.MoveDown)

	if after.Snakes[0].Alive || report.Events[0].Cause != game.DeathWall {
		t.Fatalf("snake a: alive=%t cause=%s want wall death", after.Snakes[0].Alive, report.Events[0].Cause)
	}
	if after.Snakes[0].EliminatedTurn != 1 {
		t.Fatalf("eliminated turn=%d want=1", after.Snakes[0].EliminatedTurn)
	}
	if !after.Snakes[1].Alive {
		t.Fatalf("snake b collided with a snake that already left the board")
	}
	if !after.Over {
		t.Fatalf("one survivor of two must end the episode")
	}
}

func TestTick_HeadToHead_EqualLengthBothDie(t *testing.T) {
	before := &game.GameState{
		Width:  5,
		Height: 5,
		Snakes: []game.Snake{
			snake("a", 50, 1, 2, 0, 2, 0, 1),
			snake("b", 50, 3, 2, 4, 2, 4, 1),
		},
	}

	for _, order := range [][2]int{{0, 1}, {1, 0}} {
		s := before.Clone()
		s.Snakes = []game.Snake{before.Snakes[order[0]], before.Snakes[order[1]]}
		moves := make([]game.Move, 2)
		for i, idx := range order {
			if idx == 0 {
				moves[i] = game.MoveRight
			} else {
				moves[i] = game.MoveLeft
			}
		}
		after, report := tick(t, "head to head equal", noFood, s, moves...)
		for i := range after.Snakes {
			if after.Snakes[i].Alive || report.Events[i].Cause != game.DeathHeadToHead {
				t.Fatalf("order %v: snake %s alive=%t cause=%s", order, after.Snakes[i].ID, after.Snakes[i].Alive, report.Events[i].Cause)
			}
		}
		if !after.Over || after.AliveCount() != 0 {
			t.Fatalf("order %v: over=%t alive=%d", order, after.Over, after.AliveCount())
		}
	}
}

func TestTick_HeadToHead_ShorterDies(t *testing.T) {
	before := &game.GameState{
		Width:  5,
		Height: 5,
		Snakes: []game.Snake{
			snake("a", 50, 1, 2, 0, 2, 0, 1),
			snake("b", 50, 3, 2, 4, 2, 4, 1, 4, 0),
		},
	}

	after, report := tick(t, "head to head shorter", noFood, before, game.MoveRight, game.MoveLeft)

	if after.Snakes[0].Alive || report.Events[0].Cause != game.DeathHeadToHead {
		t.Fatalf("shorter snake survived")
	}
	if !after.Snakes[1].Alive || report.Events[1].Died {
		t.Fatalf("longer snake died")
	}
}

func TestTick_HeadToHead_ThreeWayTieAtTop(t *testing.T) {
	before := &game.GameState{
		Width:  7,
		Height: 7,
		Snakes: []game.Snake{
			snake("a", 50, 2, 3, 1, 3, 0, 3, 0, 2),
			snake("b", 50, 4, 3, 5, 3, 6, 3, 6, 2),
			snake("c", 50, 3, 2, 3, 1, 3, 0),
		},
	}

	after, _ := tick(t, "three way", noFood, before, game.MoveRight, game.MoveLeft, game.MoveUp)

	for i := range after.Snakes {
		if after.Snakes[i].Alive {
			t.Fatalf("snake %s survived a tied head-on collision", after.Snakes[i].ID)
		}
	}
}

func TestTick_BodyCollision(t *testing.T) {
	before := &game.GameState{
		Width:  7,
		Height: 7,
		Snakes: []game.Snake{
			snake("a", 50, 2, 2, 1, 2, 0, 2),
			snake("b", 50, 3, 3, 3, 2, 3, 1),
			snake("c", 50, 6, 6, 6, 5, 6, 4),
		},
	}

	after, report := tick(t, "body collision", noFood, before, game.MoveRight, game.MoveUp, game.MoveLeft)

	if after.Snakes[0].Alive || report.Events[0].Cause != game.DeathBody {
		t.Fatalf("snake a should die on b's body, got alive=%t cause=%s", after.Snakes[0].Alive, report.Events[0].Cause)
	}
	if !after.Snakes[1].Alive || !after.Snakes[2].Alive {
		t.Fatalf("b and c should survive")
	}
	if after.Over {
		t.Fatalf("two survivors: episode must continue")
	}
}

func TestTick_ChasingOwnTailIsSafe(t *testing.T) {
	before := &game.GameState{
		Width:  5,
		Height: 5,
		Snakes: []game.Snake{snake("me", 50, 1, 1, 1, 2, 2, 2, 2, 1)},
	}

	after, _ := tick(t, "tail chase", noFood, before, game.MoveRight)

	if !after.Snakes[0].Alive {
		t.Fatalf("moving into the vacated tail cell must be safe")
	}
	assertBody(t, after.Snakes[0].Body, pts(2, 1, 1, 1, 1, 2, 2, 2))
}

func TestTick_SelfCollision(t *testing.T) {
	before := &game.GameState{
		Width:  5,
		Height: 5,
		Snakes: []game.Snake{snake("me", 50, 2, 2, 2, 1, 1, 1, 1, 2, 1, 3)},
	}

	after, report := tick(t, "self collision", noFood, before, game.MoveLeft)

	if after.Snakes[0].Alive || report.Events[0].Cause != game.DeathBody {
		t.Fatalf("self collision not detected: %+v", report.Events[0])
	}
}

func TestTick_Starvation(t *testing.T) {
	before := &game.GameState{
		Width:  5,
		Height: 5,
		Snakes: []game.Snake{snake("me", 1, 2, 2, 2, 1, 2, 0)},
	}

	after, report := tick(t, "starvation", noFood, before, game.MoveUp)

	if after.Snakes[0].Alive || report.Events[0].Cause != game.DeathStarvation {
		t.Fatalf("snake should starve: %+v", report.Events[0])
	}
	if !after.Over {
		t.Fatalf("solo game with no survivors must be over")
	}

	fed := before.Clone()
	fed.Food = pts(2, 3)
	after, _ = tick(t, "fed in time", noFood, fed, game.MoveUp)
	if !after.Snakes[0].Alive || after.Snakes[0].Health != 100 {
		t.Fatalf("eating on the last point of health must save the snake")
	}
}

func TestTick_MaxTicksEndsEpisode(t *testing.T) {
	settings := noFood
	settings.MaxTicks = 2
	state := &game.GameState{
		Width:  7,
		Height: 7,
		Snakes: []game.Snake{
			snake("a", 50, 1, 1, 1, 0),
			snake("b", 50, 5, 5, 5, 6),
		},
	}
	e := NewEngine(settings)
	rng := rand.New(rand.NewSource(3))

	state, _ = e.Tick(state, []game.Move{game.MoveUp, game.MoveDown}, rng)
	if state.Over {
		t.Fatalf("over after one tick")
	}
	state, _ = e.Tick(state, []game.Move{game.MoveUp, game.MoveDown}, rng)
	if !state.Over {
		t.Fatalf("not over at the tick cap")
	}
}

func TestTick_InvariantViolationPanics(t *testing.T) {
	broken := &game.GameState{
		Width:  5,
		Height: 5,
		Snakes: []game.Snake{snake("me", 50, 2, 2, 4, 4)},
	}

	defer func() {
		r := recover()
		err, ok := r.(error)
		var inv *game.InvariantError
		if !ok || !errors.As(err, &inv) {
			t.Fatalf("recovered %v, want *game.InvariantError", r)
		}
	}()
	NewEngine(noFood).Tick(broken, []game.Move{game.MoveUp}, rand.New(rand.NewSource(1)))
}

// Scenario: two snakes in opposite corners of an 11x11 board both head for
// the centre for five ticks without meeting food or each other.
func TestTick_OppositeCornersTowardCentre(t *testing.T) {
	state := &game.GameState{
		Width:  11,
		Height: 11,
		Snakes: []game.Snake{
			snake("a", 100, 1, 1, 1, 1, 1, 1),
			snake("b", 100, 9, 9, 9, 9, 9, 9),
		},
	}
	e := NewEngine(noFood)
	rng := rand.New(rand.NewSource(11))

	plan := [][2]game.Move{
		{game.MoveUp, game.MoveDown},
		{game.MoveRight, game.MoveLeft},
		{game.MoveUp, game.MoveDown},
		{game.MoveRight, game.MoveLeft},
		{game.MoveUp, game.MoveDown},
	}
	for turn, m := range plan {
		before := state
		var report Report
		state, report = e.Tick(state, m[:], rng)
		logTick(t, fmt.Sprintf("toward centre turn %d", turn+1), before, m[:], state)
		for i, ev := range report.Events {
			if ev.Died {
				t.Fatalf("turn %d: snake %d died (%s)", turn+1, i, ev.Cause)
			}
		}
	}
	if state.Over {
		t.Fatalf("episode ended early")
	}
	if got := state.Snakes[0].Body[0]; got != (game.Point{X: 3, Y: 4}) {
		t.Fatalf("snake a head=%v want (3,4)", got)
	}
	if got := state.Snakes[1].Body[0]; got != (game.Point{X: 7, Y: 6}) {
		t.Fatalf("snake b head=%v want (7,6)", got)
	}
}
