package encode

import "github.com/brensch/snekgym/rules"

// RewardWeights shapes the per-tick scalar reward of a controlled snake.
type RewardWeights struct {
	Survive float32 // every tick the snake is alive at the end of
	Eat     float32 // ticks the snake ate and survived
	Die     float32 // the tick the snake is eliminated
	Step    float32 // every tick the snake took part in, alive or not at the end
	Win     float32 // the tick the snake becomes the sole survivor
}

var DefaultRewardWeights = RewardWeights{
	Survive: 0.01,
	Eat:     0.1,
	Die:     -1,
	Step:    0,
	Win:     1,
}

// Reward scores one snake's event for a tick. Snakes that were already dead
// before the tick score zero.
func (w RewardWeights) Reward(ev rules.Event, won bool) float32 {
	if !ev.WasAlive {
		return 0
	}
	r := w.Step
	if ev.Died {
		return r + w.Die
	}
	r += w.Survive
	if ev.Ate {
		r += w.Eat
	}
	if won {
		r += w.Win
	}
	return r
}
