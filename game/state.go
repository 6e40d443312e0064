// Package game defines the core game state types for the snake grid simulator.
//
// These types are the passive data model consumed by the rules engine, the
// environment wrappers and the encoders. Snakes are plain records; nothing in
// here points back from a board cell to the snake that occupies it. Occupancy
// is always recomputed from the bodies (see Occupancy).
package game

// Point is a board coordinate.
// Coordinates follow Battlesnake conventions: (0,0) is bottom-left and Up is +Y.
type Point struct {
	X int32
	Y int32
}

// Add returns p translated by d.
func (p Point) Add(d Point) Point {
	return Point{X: p.X + d.X, Y: p.Y + d.Y}
}

// Adjacent reports whether q is exactly one orthogonal step away from p.
func (p Point) Adjacent(q Point) bool {
	dx := p.X - q.X
	dy := p.Y - q.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return dx+dy == 1
}

// DeathCause records why a snake was eliminated.
type DeathCause uint8

const (
	DeathNone DeathCause = iota
	DeathWall
	DeathBody
	DeathHeadToHead
	DeathStarvation
)

func (c DeathCause) String() string {
	switch c {
	case DeathNone:
		return ""
	case DeathWall:
		return "wall-collision"
	case DeathBody:
		return "snake-collision"
	case DeathHeadToHead:
		return "head-collision"
	case DeathStarvation:
		return "starvation"
	default:
		return "unknown"
	}
}

type Snake struct {
	ID     string
	Health int32
	// Body is head first. Consecutive segments are either orthogonally
	// adjacent or stacked on the same cell (fresh spawns and pending growth).
	Body  []Point
	Alive bool

	Death DeathCause
	// EliminatedTurn is the turn on which the snake died; meaningless while alive.
	EliminatedTurn int32
}

// Head returns the first body segment. The snake must have a body.
func (s *Snake) Head() Point {
	return s.Body[0]
}

func (s *Snake) Length() int {
	return len(s.Body)
}

// Facing returns the direction the snake last moved in, derived from its head
// and neck. ok is false for snakes whose neck is stacked under the head.
func (s *Snake) Facing() (m Move, ok bool) {
	if len(s.Body) < 2 {
		return 0, false
	}
	return DirectionOf(s.Body[1], s.Body[0])
}

// GameState is the complete state of one game instance.
// It is owned by exactly one environment; share it only through Clone.
type GameState struct {
	Width  int32
	Height int32
	Snakes []Snake
	Food   []Point
	Turn   int32
	// Over is set by the rules engine once the terminal condition holds.
	Over bool
}

// InBounds reports whether p lies on the board.
func (s *GameState) InBounds(p Point) bool {
	return p.X >= 0 && p.X < s.Width && p.Y >= 0 && p.Y < s.Height
}

// AliveCount returns the number of living snakes.
func (s *GameState) AliveCount() int {
	n := 0
	for i := range s.Snakes {
		if s.Snakes[i].Alive {
			n++
		}
	}
	return n
}

// SnakeIndex returns the index of the snake with the given ID, or -1.
func (s *GameState) SnakeIndex(id string) int {
	for i := range s.Snakes {
		if s.Snakes[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone performs a deep copy of the game state.
func (s *GameState) Clone() *GameState {
	if s == nil {
		return nil
	}

	out := &GameState{
		Width:  s.Width,
		Height: s.Height,
		Turn:   s.Turn,
		Over:   s.Over,
	}

	if len(s.Food) > 0 {
		out.Food = make([]Point, len(s.Food))
		copy(out.Food, s.Food)
	}

	if len(s.Snakes) > 0 {
		out.Snakes = make([]Snake, len(s.Snakes))
		for i := range s.Snakes {
			out.Snakes[i] = s.Snakes[i]
			out.Snakes[i].Body = nil
			if len(s.Snakes[i].Body) > 0 {
				out.Snakes[i].Body = make([]Point, len(s.Snakes[i].Body))
				copy(out.Snakes[i].Body, s.Snakes[i].Body)
			}
		}
	}

	return out
}
