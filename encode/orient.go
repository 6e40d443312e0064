package encode

import "github.com/brensch/snekgym/game"

// Orientation mirrors an observation. Bit 0 flips x, bit 1 flips y. Each
// orientation is its own inverse.
type Orientation uint8

const (
	OrientIdentity Orientation = 0
	OrientFlipX    Orientation = 1
	OrientFlipY    Orientation = 2
	OrientFlipXY   Orientation = OrientFlipX | OrientFlipY

	NumOrientations = 4
)

func (o Orientation) FlipsX() bool { return o&OrientFlipX != 0 }

func (o Orientation) FlipsY() bool { return o&OrientFlipY != 0 }

// Move maps m between the board frame and the view frame of o. Moves that
// are not valid pass through untouched.
func (o Orientation) Move(m game.Move) game.Move {
	switch m {
	case game.MoveLeft, game.MoveRight:
		if o.FlipsX() {
			return m.Opposite()
		}
	case game.MoveUp, game.MoveDown:
		if o.FlipsY() {
			return m.Opposite()
		}
	}
	return m
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithEgocentric centres every observation on the perspective snake's head.
// The view grows to (2*Width+1) x (2*Height+1) so the whole board stays in
// sight from any head position.
func WithEgocentric() Option {
	return func(e *Encoder) { e.Egocentric = true }
}
