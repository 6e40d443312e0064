package game

// Cell values stored in an Occupancy grid. Non-negative values are snake indices.
const (
	CellEmpty int16 = -1
	CellFood  int16 = -2
)

// Occupancy is a coordinate -> occupant lookup rebuilt from a GameState on
// demand. It is scratch space: callers keep one around and Fill it every tick
// instead of storing back-references in the board.
type Occupancy struct {
	Width  int32
	Height int32
	cells  []int16
	free   int
}

// Fill recomputes the grid from the living snakes in s. Heads are included
// only when withHeads is set; head-to-head contact is resolved separately from
// body contact, so collision checks build the grid without them.
func (o *Occupancy) Fill(s *GameState, withHeads bool) {
	o.Width = s.Width
	o.Height = s.Height
	n := int(s.Width * s.Height)
	if cap(o.cells) < n {
		o.cells = make([]int16, n)
	}
	o.cells = o.cells[:n]
	for i := range o.cells {
		o.cells[i] = CellEmpty
	}
	o.free = n

	for i := range s.Snakes {
		sn := &s.Snakes[i]
		if !sn.Alive {
			continue
		}
		body := sn.Body
		if !withHeads && len(body) > 0 {
			body = body[1:]
		}
		for _, p := range body {
			o.Set(p, int16(i))
		}
	}
}

// MarkFood marks every in-bounds food cell.
func (o *Occupancy) MarkFood(food []Point) {
	for _, f := range food {
		o.Set(f, CellFood)
	}
}

func (o *Occupancy) index(p Point) int {
	if p.X < 0 || p.X >= o.Width || p.Y < 0 || p.Y >= o.Height {
		return -1
	}
	return int(p.Y*o.Width + p.X)
}

// Set writes v at p. Out-of-bounds points are ignored.
func (o *Occupancy) Set(p Point, v int16) {
	idx := o.index(p)
	if idx < 0 {
		return
	}
	if o.cells[idx] == CellEmpty && v != CellEmpty {
		o.free--
	} else if o.cells[idx] != CellEmpty && v == CellEmpty {
		o.free++
	}
	o.cells[idx] = v
}

// At returns the occupant at p. Out-of-bounds points report CellEmpty.
func (o *Occupancy) At(p Point) int16 {
	idx := o.index(p)
	if idx < 0 {
		return CellEmpty
	}
	return o.cells[idx]
}

// IsFree reports whether p is on the board and unoccupied.
func (o *Occupancy) IsFree(p Point) bool {
	idx := o.index(p)
	return idx >= 0 && o.cells[idx] == CellEmpty
}

// FreeCount is the number of empty cells.
func (o *Occupancy) FreeCount() int {
	return o.free
}

// FreeCells appends every empty cell to dst in row-major order.
func (o *Occupancy) FreeCells(dst []Point) []Point {
	for i, v := range o.cells {
		if v != CellEmpty {
			continue
		}
		dst = append(dst, Point{X: int32(i) % o.Width, Y: int32(i) / o.Width})
	}
	return dst
}
