package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/brensch/snekgym/config"
	"github.com/brensch/snekgym/env"
	"github.com/brensch/snekgym/game"
	"github.com/brensch/snekgym/policy"
	"github.com/brensch/snekgym/store"
	"github.com/brensch/snekgym/vecenv"
)

// chunk is everything one pool step produced.
type chunk struct {
	steps    []store.StepRow
	episodes []store.EpisodeRow
}

type episodeUpdate struct {
	Slot    int
	Episode int64
	Turns   int32
	Winner  string
	Return  float32
}

type generator struct {
	pool    *vecenv.Pool
	cfg     config.Config
	policy  policy.Policy
	tracker *store.Tracker
	logger  *slog.Logger

	maxSteps int64
	maxEps   int64
	trace    bool

	out      chan chunk
	episodes chan episodeUpdate
	finished chan struct{}
}

// run steps the pool until a limit is hit or ctx ends. It always closes out
// and finished so the writer can flush.
func (g *generator) run(ctx context.Context) error {
	defer close(g.finished)
	defer close(g.out)

	b, err := g.pool.ResetAll()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	n := g.pool.NumEnvs()
	rngs := make([]*rand.Rand, n)
	for i := range rngs {
		// Offset from the instance seeds so the controlled policy does not
		// replay the opponents' draws.
		rngs[i] = rand.New(rand.NewSource(g.cfg.SeedFor(i) + 7))
	}
	before := make([]*game.GameState, n)
	actions := make(vecenv.ActionBatch, n)
	for i := range actions {
		actions[i] = make([]game.Move, g.pool.Controlled())
	}

	var steps, episodes int64
	for {
		if ctx.Err() != nil {
			g.logger.Info("Shutdown requested; flushing", "steps", steps, "episodes", episodes)
			return nil
		}
		if g.maxSteps > 0 && steps >= g.maxSteps {
			return nil
		}
		if g.maxEps > 0 && episodes >= g.maxEps {
			return nil
		}

		for i := range before {
			before[i] = g.pool.State(i)
		}
		if g.trace {
			fmt.Fprintf(os.Stderr, "slot 0 turn %d\n%s\n", before[0].Turn, before[0].Dump())
		}
		if err := g.act(ctx, before, b.Infos, actions, rngs); err != nil {
			return err
		}

		b, err = g.pool.Step(actions)
		if err != nil {
			return fmt.Errorf("step %d: %w", steps, err)
		}
		steps++

		c := chunk{steps: make([]store.StepRow, 0, n)}
		for i := range n {
			row, ep := g.tracker.Step(i, before[i], b.SlotRewards(i), b.Dones[i], b.Infos[i])
			c.steps = append(c.steps, row)
			if ep == nil {
				continue
			}
			episodes++
			c.episodes = append(c.episodes, *ep)
			g.logger.Debug("Episode finished", "slot", i, "episode", ep.Episode, "turns", ep.Turns, "winner", ep.Winner)

			u := episodeUpdate{Slot: i, Episode: ep.Episode, Turns: ep.Turns, Winner: ep.Winner}
			if len(ep.Returns) > 0 {
				u.Return = ep.Returns[0]
			}
			select {
			case g.episodes <- u:
			default:
			}
		}

		select {
		case g.out <- c:
		case <-ctx.Done():
			return nil
		}
	}
}

// act fills actions for every controlled snake. Slots are independent, so
// policies run concurrently; each slot draws from its own rng. Policies pick
// board moves, which are mirrored into the frame of each slot's last
// observation.
func (g *generator) act(ctx context.Context, states []*game.GameState, infos []env.Info, actions vecenv.ActionBatch, rngs []*rand.Rand) error {
	eg, _ := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.WorkerCount())
	for i, state := range states {
		eg.Go(func() error {
			for j := range actions[i] {
				if j >= len(state.Snakes) || !state.Snakes[j].Alive {
					actions[i][j] = game.MoveUp
					continue
				}
				m, err := g.policy.Act(state, j, rngs[i])
				if err != nil {
					return fmt.Errorf("slot %d snake %d: %w", i, j, err)
				}
				if o := infos[i].Orientation; j < len(o) {
					m = o[j].Move(m)
				}
				actions[i][j] = m
			}
			return nil
		})
	}
	return eg.Wait()
}

// writeLoop drains in until it is closed, then publishes the last files.
func writeLoop(sink *store.Sink, in <-chan chunk, logger *slog.Logger) error {
	var (
		rows     int64
		episodes int64
	)
	for c := range in {
		if err := sink.WriteSteps(c.steps); err != nil {
			drain(in)
			_, _ = sink.Close()
			return err
		}
		if err := sink.WriteEpisodes(c.episodes); err != nil {
			drain(in)
			_, _ = sink.Close()
			return err
		}
		rows += int64(len(c.steps))
		episodes += int64(len(c.episodes))
	}
	files, err := sink.Close()
	logger.Info("Parquet flush done", "files", len(files), "step_rows", rows, "episodes", episodes)
	return err
}

func drain(in <-chan chunk) {
	go func() {
		for range in {
		}
	}()
}
