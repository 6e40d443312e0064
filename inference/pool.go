package inference

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/brensch/snekgym/encode"
	"github.com/brensch/snekgym/game"
)

// ClientPool spreads Predict calls round robin over several sessions, each
// with its own batching loop.
type ClientPool struct {
	clients []*Client
	rr      atomic.Uint64
}

func NewClientPool(modelPath string, sessions int, enc *encode.Encoder, cfg ClientConfig) (*ClientPool, error) {
	if sessions <= 0 {
		sessions = 1
	}
	clients := make([]*Client, 0, sessions)
	for i := range sessions {
		c, err := NewClient(modelPath, enc, cfg)
		if err != nil {
			for _, created := range clients {
				_ = created.Close()
			}
			return nil, fmt.Errorf("create onnx client %d/%d: %w", i+1, sessions, err)
		}
		clients = append(clients, c)
	}
	return &ClientPool{clients: clients}, nil
}

func (p *ClientPool) Predict(state *game.GameState, snake int) ([PolicySize]float32, float32, error) {
	if len(p.clients) == 0 {
		return [PolicySize]float32{}, 0, errors.New("onnx pool has no clients")
	}
	idx := int((p.rr.Add(1) - 1) % uint64(len(p.clients)))
	return p.clients[idx].Predict(state, snake)
}

func (p *ClientPool) Stats() RuntimeStats {
	var sum RuntimeStats
	for _, c := range p.clients {
		st := c.Stats()
		sum.TotalBatches += st.TotalBatches
		sum.TotalItems += st.TotalItems
		sum.TotalRunNanos += st.TotalRunNanos
		sum.QueueLen += st.QueueLen
		sum.LastBatchSize = max(sum.LastBatchSize, st.LastBatchSize)
	}
	if sum.TotalBatches > 0 {
		sum.AvgBatchSize = float64(sum.TotalItems) / float64(sum.TotalBatches)
		sum.AvgRunMs = float64(sum.TotalRunNanos) / 1e6 / float64(sum.TotalBatches)
	}
	return sum
}

func (p *ClientPool) Close() error {
	var errs []error
	for _, c := range p.clients {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
