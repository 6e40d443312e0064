package game

import "fmt"

// InvariantError reports a GameState that no sequence of legal ticks can
// produce. It signals a logic defect, not a game outcome.
type InvariantError struct {
	Turn   int32
	Snake  string
	Reason string
}

func (e *InvariantError) Error() string {
	if e.Snake == "" {
		return fmt.Sprintf("invariant violated at turn %d: %s", e.Turn, e.Reason)
	}
	return fmt.Sprintf("invariant violated at turn %d (snake %s): %s", e.Turn, e.Snake, e.Reason)
}

// Validate checks the structural invariants of s and returns an
// *InvariantError describing the first violation found.
func (s *GameState) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return &InvariantError{Turn: s.Turn, Reason: fmt.Sprintf("invalid board %dx%d", s.Width, s.Height)}
	}

	seen := make(map[string]struct{}, len(s.Snakes))
	for i := range s.Snakes {
		sn := &s.Snakes[i]
		if _, dup := seen[sn.ID]; dup {
			return &InvariantError{Turn: s.Turn, Snake: sn.ID, Reason: "duplicate snake id"}
		}
		seen[sn.ID] = struct{}{}

		if !sn.Alive {
			continue
		}
		if len(sn.Body) == 0 {
			return &InvariantError{Turn: s.Turn, Snake: sn.ID, Reason: "living snake has an empty body"}
		}
		for j, p := range sn.Body {
			if !s.InBounds(p) {
				return &InvariantError{Turn: s.Turn, Snake: sn.ID, Reason: fmt.Sprintf("segment %d at (%d,%d) is off the board", j, p.X, p.Y)}
			}
			if j == 0 {
				continue
			}
			prev := sn.Body[j-1]
			if p != prev && !p.Adjacent(prev) {
				return &InvariantError{Turn: s.Turn, Snake: sn.ID, Reason: fmt.Sprintf("segments %d and %d are not contiguous", j-1, j)}
			}
		}
	}

	food := make(map[Point]struct{}, len(s.Food))
	for _, f := range s.Food {
		if !s.InBounds(f) {
			return &InvariantError{Turn: s.Turn, Reason: fmt.Sprintf("food at (%d,%d) is off the board", f.X, f.Y)}
		}
		if _, dup := food[f]; dup {
			return &InvariantError{Turn: s.Turn, Reason: fmt.Sprintf("duplicate food at (%d,%d)", f.X, f.Y)}
		}
		food[f] = struct{}{}
	}
	return nil
}
