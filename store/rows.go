// Package store exports rollouts to Parquet and summarizes them with DuckDB.
//
// Nothing in the simulation core depends on it; the rollout CLI uses it to
// keep the transitions a pool produced.
package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/brensch/snekgym/env"
	"github.com/brensch/snekgym/game"
)

// Schema names written into every file's key/value metadata.
const (
	StepSchema    = "snekgym_step_v1"
	EpisodeSchema = "snekgym_episode_v1"
)

// StepRow is one transition of one slot: the state before the tick, the move
// every snake made, and what came of it.
//
// Coordinates follow the board: (0,0) is bottom-left.
type StepRow struct {
	EpisodeID string `parquet:"episode_id,dict"`
	Slot      int32  `parquet:"slot"`
	Episode   int64  `parquet:"episode"`
	Turn      int32  `parquet:"turn"`
	Width     int32  `parquet:"width"`
	Height    int32  `parquet:"height"`

	FoodX []int32 `parquet:"food_x"`
	FoodY []int32 `parquet:"food_y"`

	Snakes []StepSnake `parquet:"snakes"`

	Done bool `parquet:"done"`
}

type StepSnake struct {
	ID         string `parquet:"id,dict"`
	Controlled bool   `parquet:"controlled"`
	Alive      bool   `parquet:"alive"`
	Health     int32  `parquet:"health"`

	BodyX []int32 `parquet:"body_x"`
	BodyY []int32 `parquet:"body_y"`

	// Move is the move applied this tick: 0=Up, 1=Down, 2=Left, 3=Right, or
	// -1 for a snake that was already dead.
	Move int32 `parquet:"move"`
	// Reward is zero for scripted snakes.
	Reward float32 `parquet:"reward"`
	Ate    bool    `parquet:"ate"`
	Death  string  `parquet:"death,dict"`
}

// EpisodeRow summarizes one finished episode.
type EpisodeRow struct {
	EpisodeID  string    `parquet:"episode_id"`
	Slot       int32     `parquet:"slot"`
	Episode    int64     `parquet:"episode"`
	Turns      int32     `parquet:"turns"`
	Snakes     int32     `parquet:"snakes"`
	Winner     string    `parquet:"winner,dict"`
	Truncated  bool      `parquet:"truncated"`
	Returns    []float32 `parquet:"returns"`
	Lengths    []int32   `parquet:"lengths"`
	Deaths     []string  `parquet:"deaths"`
	FinishedAt int64     `parquet:"finished_at_ms"`
}

// Tracker turns pool results into rows. It names every episode with a UUID
// and must be fed every step of every slot, in order.
type Tracker struct {
	controlled int
	episodeIDs []string
	now        func() time.Time
}

func NewTracker(numEnvs, controlled int) *Tracker {
	t := &Tracker{
		controlled: controlled,
		episodeIDs: make([]string, numEnvs),
		now:        time.Now,
	}
	for i := range t.episodeIDs {
		t.episodeIDs[i] = uuid.NewString()
	}
	return t
}

// EpisodeID is the ID of the episode slot is currently playing.
func (t *Tracker) EpisodeID(slot int) string { return t.episodeIDs[slot] }

// Step records slot's transition from before. rewards holds the controlled
// snakes' rewards and info the post-tick Info reported by the pool. When
// done, the episode row is returned too and the slot gets a new episode ID.
//
// Moves are recovered from the head positions in info, so before must be
// the state the tick was applied to.
func (t *Tracker) Step(slot int, before *game.GameState, rewards []float32, done bool, info env.Info) (StepRow, *EpisodeRow) {
	row := StepRow{
		EpisodeID: t.episodeIDs[slot],
		Slot:      int32(slot),
		Episode:   info.Episode,
		Turn:      before.Turn,
		Width:     before.Width,
		Height:    before.Height,
		FoodX:     make([]int32, len(before.Food)),
		FoodY:     make([]int32, len(before.Food)),
		Snakes:    make([]StepSnake, len(before.Snakes)),
		Done:      done,
	}
	for i, f := range before.Food {
		row.FoodX[i], row.FoodY[i] = f.X, f.Y
	}

	for i := range before.Snakes {
		s := &before.Snakes[i]
		ss := StepSnake{
			ID:         s.ID,
			Controlled: i < t.controlled,
			Alive:      s.Alive,
			Health:     s.Health,
			BodyX:      make([]int32, len(s.Body)),
			BodyY:      make([]int32, len(s.Body)),
			Move:       -1,
		}
		for j, p := range s.Body {
			ss.BodyX[j], ss.BodyY[j] = p.X, p.Y
		}
		if i < len(info.Snakes) {
			after := info.Snakes[i]
			if s.Alive && len(s.Body) > 0 {
				if m, ok := game.DirectionOf(s.Body[0], after.Head); ok {
					ss.Move = int32(m)
				}
			}
			ss.Ate = after.Ate
			if !after.Alive && s.Alive {
				ss.Death = after.Death.String()
			}
		}
		if i < t.controlled && i < len(rewards) {
			ss.Reward = rewards[i]
		}
		row.Snakes[i] = ss
	}

	if !done {
		return row, nil
	}

	ep := &EpisodeRow{
		EpisodeID:  t.episodeIDs[slot],
		Slot:       int32(slot),
		Episode:    info.Episode,
		Turns:      info.Turn,
		Snakes:     int32(len(info.Snakes)),
		Winner:     info.Winner,
		Truncated:  info.Truncated,
		Returns:    append([]float32(nil), info.Return...),
		Lengths:    make([]int32, len(info.Snakes)),
		Deaths:     make([]string, len(info.Snakes)),
		FinishedAt: t.now().UnixMilli(),
	}
	for i, s := range info.Snakes {
		ep.Lengths[i] = int32(s.Length)
		ep.Deaths[i] = s.Death.String()
	}
	t.episodeIDs[slot] = uuid.NewString()
	return row, ep
}
