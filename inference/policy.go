package inference

import (
	"math"
	"math/rand"

	"github.com/brensch/snekgym/game"
	"github.com/brensch/snekgym/policy"
	"github.com/brensch/snekgym/rules"
)

// Predictor is satisfied by Client and ClientPool.
type Predictor interface {
	Predict(state *game.GameState, snake int) ([PolicySize]float32, float32, error)
}

// Policy plays the network's choice among the safe moves. With Temperature
// zero it takes the highest logit; otherwise it samples from the softmax of
// the logits divided by Temperature.
type Policy struct {
	Net         Predictor
	Temperature float64
}

var _ policy.Policy = (*Policy)(nil)

func (p *Policy) Act(state *game.GameState, snake int, rng *rand.Rand) (game.Move, error) {
	logits, _, err := p.Net.Predict(state, snake)
	if err != nil {
		return 0, err
	}
	moves := rules.LegalMovesWithTailDecrement(state, snake)
	if len(moves) == 0 {
		moves = []game.Move{game.MoveUp, game.MoveDown, game.MoveLeft, game.MoveRight}
	}
	if p.Temperature <= 0 {
		best := moves[0]
		for _, m := range moves[1:] {
			if logits[m] > logits[best] {
				best = m
			}
		}
		return best, nil
	}

	maxLogit := math.Inf(-1)
	for _, m := range moves {
		maxLogit = math.Max(maxLogit, float64(logits[m]))
	}
	weights := make([]float64, len(moves))
	var total float64
	for i, m := range moves {
		weights[i] = math.Exp((float64(logits[m]) - maxLogit) / p.Temperature)
		total += weights[i]
	}
	r := rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r < 0 {
			return moves[i], nil
		}
	}
	return moves[len(moves)-1], nil
}
