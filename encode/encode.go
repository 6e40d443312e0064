// Package encode turns a GameState into fixed-shape float32 observation
// planes seen from one snake, plus the scalar reward for that snake.
package encode

import (
	"sync"

	"github.com/brensch/snekgym/game"
)

// Channel layout (C, H, W), y rows indexed bottom-up like the board:
//
//	0 food
//	1 own head
//	2 own body TTL, head 1.0 down to tail 1/len
//	3 own health plane (health / max health everywhere)
//	4 other heads
//	5 other bodies TTL
//	6 other health, written at each other head
//	7 heads of others at least as long as self
//	8 alive fraction plane (alive snakes / snakes in the game)
//	9 in-bounds plane
const (
	ChanFood = iota
	ChanOwnHead
	ChanOwnBody
	ChanOwnHealth
	ChanOtherHeads
	ChanOtherBodies
	ChanOtherHealth
	ChanThreats
	ChanAlive
	ChanBoard

	Channels
)

// Encoder writes observations for one board size. It is safe for concurrent
// use; the only shared state is the buffer pool.
type Encoder struct {
	Width     int
	Height    int
	MaxHealth float32
	// Egocentric views are head centred and (2*Width+1) x (2*Height+1).
	Egocentric bool

	pool sync.Pool
}

func New(width, height int32, maxHealth int32, opts ...Option) *Encoder {
	e := &Encoder{Width: int(width), Height: int(height), MaxHealth: float32(maxHealth)}
	if e.MaxHealth <= 0 {
		e.MaxHealth = 100
	}
	for _, opt := range opts {
		opt(e)
	}
	size := e.Size()
	e.pool.New = func() any {
		b := make([]float32, size)
		return &b
	}
	return e
}

// Size is the number of float32 values in one observation.
func (e *Encoder) Size() int {
	w, h := e.view()
	return Channels * h * w
}

// Shape returns {Channels, Height, Width} of the view.
func (e *Encoder) Shape() [3]int {
	w, h := e.view()
	return [3]int{Channels, h, w}
}

func (e *Encoder) view() (w, h int) {
	if e.Egocentric {
		return 2*e.Width + 1, 2*e.Height + 1
	}
	return e.Width, e.Height
}

// GetFloatBuffer returns a zeroed-on-encode buffer of Size floats.
func (e *Encoder) GetFloatBuffer() *[]float32 {
	return e.pool.Get().(*[]float32)
}

func (e *Encoder) PutFloatBuffer(b *[]float32) {
	if b == nil || len(*b) != e.Size() {
		return
	}
	e.pool.Put(b)
}

// Float32 encodes state from snake's perspective into a pooled buffer.
// The caller returns it with PutFloatBuffer.
func (e *Encoder) Float32(state *game.GameState, snake int) *[]float32 {
	ptr := e.GetFloatBuffer()
	e.Encode(state, snake, *ptr)
	return ptr
}

// Encode writes the observation for state.Snakes[snake] into dst, which must
// hold at least Size values. A dead or out-of-range snake gets empty own
// planes; everything else is still filled in.
func (e *Encoder) Encode(state *game.GameState, snake int, dst []float32) {
	e.EncodeOriented(state, snake, OrientIdentity, dst)
}

// EncodeOriented is Encode with the view mirrored by o. An egocentric view
// is centred on the snake's head, or on the board centre when it has none.
func (e *Encoder) EncodeOriented(state *game.GameState, snake int, o Orientation, dst []float32) {
	vw, vh := e.view()
	plane := vh * vw
	data := dst[:Channels*plane]
	clear(data)

	origin := game.Point{X: int32(e.Width / 2), Y: int32(e.Height / 2)}
	if snake >= 0 && snake < len(state.Snakes) && len(state.Snakes[snake].Body) > 0 {
		origin = state.Snakes[snake].Body[0]
	}
	// cell is the index of p within a plane, or -1 when p is off the board.
	cell := func(p game.Point) int {
		x, y := int(p.X), int(p.Y)
		if x < 0 || x >= e.Width || y < 0 || y >= e.Height {
			return -1
		}
		if e.Egocentric {
			x, y = x-int(origin.X), y-int(origin.Y)
			if o.FlipsX() {
				x = -x
			}
			if o.FlipsY() {
				y = -y
			}
			x, y = x+e.Width, y+e.Height
			if x < 0 || x >= vw || y < 0 || y >= vh {
				return -1
			}
		} else {
			if o.FlipsX() {
				x = e.Width - 1 - x
			}
			if o.FlipsY() {
				y = e.Height - 1 - y
			}
		}
		return y*vw + x
	}

	set := func(c int, p game.Point, val float32) {
		if i := cell(p); i >= 0 {
			data[c*plane+i] = val
		}
	}
	fill := func(c int, val float32) {
		ch := data[c*plane : (c+1)*plane]
		for i := range ch {
			ch[i] = val
		}
	}
	// Stacked segments share a cell; the one nearest the head leaves last,
	// so keep the larger TTL.
	ttl := func(c int, body []game.Point) {
		l := len(body)
		denom := float32(l)
		for i, p := range body {
			at := cell(p)
			if at < 0 {
				continue
			}
			idx := c*plane + at
			if v := float32(l-i) / denom; v > data[idx] {
				data[idx] = v
			}
		}
	}

	for _, f := range state.Food {
		set(ChanFood, f, 1)
	}

	ownLen := 0
	if snake >= 0 && snake < len(state.Snakes) {
		if s := &state.Snakes[snake]; s.Alive && len(s.Body) > 0 {
			ownLen = len(s.Body)
			set(ChanOwnHead, s.Body[0], 1)
			ttl(ChanOwnBody, s.Body)
			fill(ChanOwnHealth, float32(s.Health)/e.MaxHealth)
		}
	}

	alive := 0
	for i := range state.Snakes {
		s := &state.Snakes[i]
		if !s.Alive || len(s.Body) == 0 {
			continue
		}
		alive++
		if i == snake {
			continue
		}
		head := s.Body[0]
		set(ChanOtherHeads, head, 1)
		ttl(ChanOtherBodies, s.Body)
		set(ChanOtherHealth, head, float32(s.Health)/e.MaxHealth)
		if len(s.Body) >= ownLen {
			set(ChanThreats, head, 1)
		}
	}

	if len(state.Snakes) > 0 {
		fill(ChanAlive, float32(alive)/float32(len(state.Snakes)))
	}
	if !e.Egocentric {
		fill(ChanBoard, 1)
		return
	}
	for y := range e.Height {
		for x := range e.Width {
			set(ChanBoard, game.Point{X: int32(x), Y: int32(y)}, 1)
		}
	}
}
