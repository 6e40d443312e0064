package game

import "fmt"

// Move is one of the four orthogonal actions a snake can take per tick.
type Move uint8

const (
	MoveUp    Move = 0
	MoveDown  Move = 1
	MoveLeft  Move = 2
	MoveRight Move = 3
)

// NumMoves is the size of the action space.
const NumMoves = 4

var moveNames = [NumMoves]string{"up", "down", "left", "right"}

var moveDeltas = [NumMoves]Point{
	MoveUp:    {X: 0, Y: 1},
	MoveDown:  {X: 0, Y: -1},
	MoveLeft:  {X: -1, Y: 0},
	MoveRight: {X: 1, Y: 0},
}

// Valid reports whether m is one of the four defined moves.
func (m Move) Valid() bool {
	return m < NumMoves
}

func (m Move) String() string {
	if !m.Valid() {
		return fmt.Sprintf("move(%d)", uint8(m))
	}
	return moveNames[m]
}

// Delta is the coordinate offset for m. Invalid moves have a zero delta.
func (m Move) Delta() Point {
	if !m.Valid() {
		return Point{}
	}
	return moveDeltas[m]
}

// Opposite returns the 180 degree reversal of m.
func (m Move) Opposite() Move {
	switch m {
	case MoveUp:
		return MoveDown
	case MoveDown:
		return MoveUp
	case MoveLeft:
		return MoveRight
	default:
		return MoveLeft
	}
}

// ParseMove accepts the lowercase names and their single-letter forms.
func ParseMove(s string) (Move, error) {
	switch s {
	case "up", "u":
		return MoveUp, nil
	case "down", "d":
		return MoveDown, nil
	case "left", "l":
		return MoveLeft, nil
	case "right", "r":
		return MoveRight, nil
	}
	return 0, fmt.Errorf("unknown move %q", s)
}

// DirectionOf returns the move that takes from to to. ok is false unless the
// two points are orthogonally adjacent.
func DirectionOf(from, to Point) (Move, bool) {
	d := Point{X: to.X - from.X, Y: to.Y - from.Y}
	for m, md := range moveDeltas {
		if md == d {
			return Move(m), true
		}
	}
	return 0, false
}
