package game

import (
	"fmt"
	"strings"
)

// Dump renders the state as text for tests and trace logs.
//
// Board legend: heads are the snake's letter in uppercase (A for snake 0),
// bodies lowercase, F is food, digits mark stacked segments of one snake and
// '.' is empty. Dead snakes are listed but not drawn. Row 0 is printed last.
func (s *GameState) Dump() string {
	if s == nil {
		return "<nil state>"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Turn=%d Size=%dx%d Over=%t\n", s.Turn, s.Width, s.Height, s.Over)

	fmt.Fprintf(&b, "Food(%d):", len(s.Food))
	for _, f := range s.Food {
		fmt.Fprintf(&b, " (%d,%d)", f.X, f.Y)
	}
	b.WriteString("\n")

	for i := range s.Snakes {
		sn := &s.Snakes[i]
		state := "alive"
		if !sn.Alive {
			state = "dead:" + sn.Death.String()
		}
		fmt.Fprintf(&b, "Snake %c %s Health=%d Len=%d %s Body:", snakeLetter(i), sn.ID, sn.Health, len(sn.Body), state)
		for _, p := range sn.Body {
			fmt.Fprintf(&b, " (%d,%d)", p.X, p.Y)
		}
		b.WriteString("\n")
	}

	w, h := int(s.Width), int(s.Height)
	if w <= 0 || h <= 0 || w > 64 || h > 64 {
		return b.String()
	}

	grid := make([][]byte, h)
	stack := make([][]int, h)
	for y := range grid {
		grid[y] = []byte(strings.Repeat(".", w))
		stack[y] = make([]int, w)
	}
	for _, f := range s.Food {
		if s.InBounds(f) {
			grid[f.Y][f.X] = 'F'
		}
	}
	for i := range s.Snakes {
		sn := &s.Snakes[i]
		if !sn.Alive {
			continue
		}
		letter := snakeLetter(i)
		for j := len(sn.Body) - 1; j >= 0; j-- {
			p := sn.Body[j]
			if !s.InBounds(p) {
				continue
			}
			stack[p.Y][p.X]++
			switch {
			case j == 0:
				grid[p.Y][p.X] = letter - 32
			case stack[p.Y][p.X] > 1:
				c := stack[p.Y][p.X]
				if c > 9 {
					c = 9
				}
				grid[p.Y][p.X] = byte('0' + c)
			default:
				grid[p.Y][p.X] = letter
			}
		}
	}

	b.WriteString("Board:\n")
	for y := h - 1; y >= 0; y-- {
		b.Write(grid[y])
		b.WriteByte('\n')
	}
	return b.String()
}

func snakeLetter(i int) byte {
	return byte('a' + i%26)
}
