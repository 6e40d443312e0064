package vecenv

import (
	"sync/atomic"
	"time"
)

type counters struct {
	steps     atomic.Int64
	envSteps  atomic.Int64
	episodes  atomic.Int64
	resets    atomic.Int64
	failures  atomic.Int64
	stepNanos atomic.Int64
}

// Stats is a snapshot of pool throughput counters.
type Stats struct {
	Steps    int64 // successful Step calls
	EnvSteps int64 // instance ticks across all slots
	Episodes int64 // finished episodes
	Resets   int64
	Failures int64 // failed Step calls

	TotalStepNanos int64
	AvgStepLatency time.Duration
}

func (p *Pool) Stats() Stats {
	s := Stats{
		Steps:          p.stats.steps.Load(),
		EnvSteps:       p.stats.envSteps.Load(),
		Episodes:       p.stats.episodes.Load(),
		Resets:         p.stats.resets.Load(),
		Failures:       p.stats.failures.Load(),
		TotalStepNanos: p.stats.stepNanos.Load(),
	}
	if s.Steps > 0 {
		s.AvgStepLatency = time.Duration(s.TotalStepNanos / s.Steps)
	}
	return s
}

// StepsPerSecond is the instance tick rate over the time spent inside Step.
func (s Stats) StepsPerSecond() float64 {
	if s.TotalStepNanos <= 0 {
		return 0
	}
	return float64(s.EnvSteps) / (float64(s.TotalStepNanos) / 1e9)
}
