package policy

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/brensch/snekgym/game"
	"github.com/brensch/snekgym/rules"
)

func body(xy ...int32) []game.Point {
	out := make([]game.Point, 0, len(xy)/2)
	for i := 0; i+1 < len(xy); i += 2 {
		out = append(out, game.Point{X: xy[i], Y: xy[i+1]})
	}
	return out
}

func TestRandomSafe_OnlyPicksSafeMoves(t *testing.T) {
	// Cornered at (0,0) facing down: only Right is safe.
	state := &game.GameState{
		Width:  5,
		Height: 5,
		Snakes: []game.Snake{{ID: "a", Health: 100, Alive: true, Body: body(0, 0, 0, 1, 0, 2)}},
	}
	t.Logf("\n%s", state.Dump())

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		m, err := RandomSafe{}.Act(state, 0, rng)
		if err != nil {
			t.Fatal(err)
		}
		if m != game.MoveRight {
			t.Fatalf("picked %v, only right is safe", m)
		}
	}
}

func TestRandomSafe_TrappedStillReturnsAMove(t *testing.T) {
	state := &game.GameState{
		Width:  1,
		Height: 2,
		Snakes: []game.Snake{{ID: "a", Health: 100, Alive: true, Body: body(0, 1, 0, 0, 0, 0)}},
	}
	m, err := RandomSafe{}.Act(state, 0, rand.New(rand.NewSource(1)))
	if err != nil || !m.Valid() {
		t.Fatalf("move=%v err=%v", m, err)
	}
}

func TestGreedy_HeadsForFood(t *testing.T) {
	state := &game.GameState{
		Width:  7,
		Height: 7,
		Snakes: []game.Snake{{ID: "a", Health: 100, Alive: true, Body: body(3, 3, 3, 2, 3, 1)}},
		Food:   body(6, 3),
	}
	t.Logf("\n%s", state.Dump())

	m, err := Greedy{}.Act(state, 0, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if m != game.MoveRight {
		t.Fatalf("greedy picked %v want right", m)
	}
}

func TestGreedy_AvoidsLongerHead(t *testing.T) {
	// Food is up, but the cell above is next to a longer snake's head.
	state := &game.GameState{
		Width:  7,
		Height: 7,
		Snakes: []game.Snake{
			{ID: "a", Health: 100, Alive: true, Body: body(3, 3, 3, 2, 3, 1)},
			{ID: "b", Health: 100, Alive: true, Body: body(3, 5, 4, 5, 5, 5, 6, 5)},
		},
		Food: body(3, 4),
	}
	t.Logf("\n%s", state.Dump())

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		m, err := Greedy{}.Act(state, 0, rng)
		if err != nil {
			t.Fatal(err)
		}
		if m == game.MoveUp {
			t.Fatalf("greedy walked next to a longer head")
		}
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"random", "random-safe", "greedy", "forward"} {
		if _, ok := ByName(name); !ok {
			t.Errorf("ByName(%q) not found", name)
		}
	}
	if _, ok := ByName("nope"); ok {
		t.Errorf("ByName accepted an unknown name")
	}
}

// Scripted opponents must survive noticeably longer than uniform random moves.
func TestRandomSafe_OutlivesUniformRandom(t *testing.T) {
	survive := func(p Policy) int {
		total := 0
		for seed := int64(0); seed < 20; seed++ {
			e := rules.NewEngine(rules.DefaultSettings)
			rng := rand.New(rand.NewSource(seed))
			state, err := e.NewGame(11, 11, []string{"a"}, rng)
			if err != nil {
				t.Fatal(err)
			}
			for !state.Over {
				m, err := p.Act(state, 0, rng)
				if err != nil {
					t.Fatal(err)
				}
				state, _ = e.Tick(state, []game.Move{m}, rng)
			}
			total += int(state.Turn)
		}
		return total
	}

	uniform := Func(func(_ *game.GameState, _ int, rng *rand.Rand) (game.Move, error) {
		return game.Move(rng.Intn(game.NumMoves)), nil
	})
	safe, naive := survive(RandomSafe{}), survive(uniform)
	t.Logf("random-safe=%d uniform=%d turns", safe, naive)
	if safe <= naive {
		t.Fatalf("random-safe (%d turns) should outlive uniform random (%d)", safe, naive)
	}
}

func TestForward_KeepsHeading(t *testing.T) {
	state := &game.GameState{
		Width:  5,
		Height: 5,
		Snakes: []game.Snake{
			{ID: "a", Health: 100, Alive: true, Body: body(2, 2, 1, 2)},
			{ID: "b", Health: 100, Alive: true, Body: body(4, 4, 4, 4)},
		},
	}
	got := make([]game.Move, 2)
	for i := range got {
		m, _ := Forward.Act(state, i, nil)
		got[i] = m
	}
	if !slices.Equal(got, []game.Move{game.MoveRight, game.MoveUp}) {
		t.Fatalf("forward=%v", got)
	}
}
