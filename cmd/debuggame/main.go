// Command debuggame plays one episode on a single instance, printing every
// turn, and saves it as a parquet file that rolloutstats can read.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brensch/snekgym/config"
	"github.com/brensch/snekgym/env"
	"github.com/brensch/snekgym/game"
	"github.com/brensch/snekgym/inference"
	"github.com/brensch/snekgym/logging"
	"github.com/brensch/snekgym/policy"
	"github.com/brensch/snekgym/store"
)

func main() {
	cfg := config.Default()
	cfg.NumEnvs = 1
	cfg.Controlled = 1

	fs := flag.NewFlagSet("debuggame", flag.ExitOnError)
	cfg.BindFlags(fs)
	outDir := fs.String("out-dir", filepath.Join("data", "debug_games"), "Output directory for the episode")
	policyName := fs.String("policy", "greedy", "Policy for the controlled snakes (random-safe, greedy, forward, onnx)")
	modelPath := fs.String("onnx-model", os.Getenv(config.EnvPrefix+"ONNX_MODEL"), "ONNX model for the onnx policy or opponent")
	boards := fs.Bool("boards", false, "Print the board every turn")
	timeout := fs.Duration("timeout", 5*time.Minute, "Give up after this long")
	_ = fs.Parse(os.Args[1:])

	logger, err := logging.New(os.Stderr, "text", "info")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var net *inference.ClientPool
	if *policyName == config.OpponentONNX || cfg.Opponent == config.OpponentONNX {
		if *modelPath == "" {
			logger.Error("The onnx policy needs -onnx-model")
			os.Exit(2)
		}
		enc := cfg.NewEncoder()
		net, err = inference.NewClientPool(*modelPath, 1, enc, inference.ClientConfig{BatchSize: 1, Logger: logger})
		if err != nil {
			logger.Error("Failed to load model", "model", *modelPath, "error", err)
			os.Exit(1)
		}
		defer net.Close()
	}

	pick := func(name string) (policy.Policy, error) {
		if name == config.OpponentONNX {
			return &inference.Policy{Net: net}, nil
		}
		p, ok := policy.ByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown policy %q", name)
		}
		return p, nil
	}
	controlled, err := pick(*policyName)
	if err != nil {
		logger.Error("Bad policy", "error", err)
		os.Exit(2)
	}
	var opponent policy.Policy
	if cfg.Controlled < cfg.Snakes {
		if opponent, err = pick(cfg.Opponent); err != nil {
			logger.Error("Bad opponent", "error", err)
			os.Exit(2)
		}
	}

	var trace io.Writer = os.Stdout
	res, err := play(ctx, cfg, controlled, opponent, trace, *boards, logger)
	if err != nil {
		logger.Error("Failed to play debug game", "error", err)
		os.Exit(1)
	}
	logger.Info("Game complete", "turns", res.episode.Turns, "winner", res.episode.Winner, "truncated", res.episode.Truncated)

	path, err := res.write(*outDir)
	if err != nil {
		logger.Error("Failed to write debug game", "error", err)
		os.Exit(1)
	}
	logger.Info("Debug game written", "dir", path)
}

type played struct {
	steps   []store.StepRow
	episode store.EpisodeRow
}

// write saves the episode under outDir in the layout Sink uses and returns
// the directory.
func (p played) write(outDir string) (string, error) {
	dir := filepath.Join(outDir, p.episode.EpisodeID)
	if _, err := store.WriteFileAtomic(filepath.Join(dir, store.StepsDir), "steps", store.StepSchema, p.steps); err != nil {
		return "", err
	}
	if _, err := store.WriteFileAtomic(filepath.Join(dir, store.EpisodesDir), "episodes", store.EpisodeSchema, []store.EpisodeRow{p.episode}); err != nil {
		return "", err
	}
	return dir, nil
}

// play runs one episode of cfg to the end.
func play(ctx context.Context, cfg config.Config, controlled, opponent policy.Policy, trace io.Writer, boards bool, logger *slog.Logger) (played, error) {
	cfg.AutoReset = false
	in, err := env.New(cfg, 0, cfg.SeedFor(0), opponent, env.WithLogger(logger))
	if err != nil {
		return played{}, err
	}
	if _, err := in.Reset(); err != nil {
		return played{}, err
	}

	rng := rand.New(rand.NewSource(cfg.SeedFor(0) + 7))
	tr := store.NewTracker(1, cfg.Controlled)
	actions := make([]game.Move, cfg.Controlled)
	var out played

	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		before := in.State()
		if boards {
			fmt.Fprintln(trace, before.Dump())
		}
		for j := range actions {
			actions[j] = game.MoveUp
			if !before.Snakes[j].Alive {
				continue
			}
			m, err := controlled.Act(before, j, rng)
			if err != nil {
				return out, fmt.Errorf("snake %d: %w", j, err)
			}
			// The policy reads the board; the instance reads the view.
			actions[j] = in.Orientations()[j].Move(m)
		}

		res, err := in.Step(actions)
		if err != nil {
			return out, err
		}
		row, ep := tr.Step(0, before, res.Rewards, res.Done, res.Info)
		out.steps = append(out.steps, row)

		moves := make([]string, 0, len(row.Snakes))
		for _, s := range row.Snakes {
			if s.Move < 0 {
				continue
			}
			moves = append(moves, fmt.Sprintf("%s→%s", s.ID, game.Move(s.Move)))
		}
		fmt.Fprintf(trace, "  Turn %3d | %d alive | %s\n", res.Info.Turn, res.Info.AliveCount, strings.Join(moves, ", "))

		if ep != nil {
			out.episode = *ep
			return out, nil
		}
		if res.Done {
			return out, errors.New("episode ended without a summary")
		}
	}
}
