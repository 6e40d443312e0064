// Command rollout drives a vectorized snake pool with scripted or ONNX
// policies and writes every transition to Parquet.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/brensch/snekgym/config"
	"github.com/brensch/snekgym/inference"
	"github.com/brensch/snekgym/logging"
	"github.com/brensch/snekgym/policy"
	"github.com/brensch/snekgym/store"
	"github.com/brensch/snekgym/vecenv"
)

type options struct {
	outDir      string
	rowsPerFile int
	maxSteps    int64
	maxEpisodes int64
	policy      string

	onnxModel        string
	onnxSessions     int
	onnxBatchSize    int
	onnxBatchTimeout time.Duration
	temperature      float64
	disableCUDA      bool

	logFormat  string
	logLevel   string
	logFile    string
	statsEvery time.Duration
	tui        bool
	trace      bool
}

func main() {
	cfg := config.Default()
	var opts options

	fs := flag.NewFlagSet("rollout", flag.ExitOnError)
	cfg.BindFlags(fs)
	fs.StringVar(&opts.outDir, "out-dir", "data/rollouts", "Directory for step and episode parquet files")
	fs.IntVar(&opts.rowsPerFile, "rows-per-file", 50000, "Rows per parquet file before rotating")
	fs.Int64Var(&opts.maxSteps, "max-steps", 0, "Stop after this many pool steps (0 = until interrupted)")
	fs.Int64Var(&opts.maxEpisodes, "max-episodes", 0, "Stop after this many finished episodes (0 = until interrupted)")
	fs.StringVar(&opts.policy, "policy", "random-safe", "Policy for the controlled snakes (random-safe, greedy, forward, onnx)")
	fs.StringVar(&opts.onnxModel, "onnx-model", os.Getenv(config.EnvPrefix+"ONNX_MODEL"), "ONNX model used by the onnx policy")
	fs.IntVar(&opts.onnxSessions, "onnx-sessions", 1, "ONNX Runtime sessions, each with its own batching loop")
	fs.IntVar(&opts.onnxBatchSize, "onnx-batch-size", inference.DefaultBatchSize, "ONNX inference batch size")
	fs.DurationVar(&opts.onnxBatchTimeout, "onnx-batch-timeout", inference.DefaultBatchTimeout, "Max wait to fill an ONNX batch")
	fs.Float64Var(&opts.temperature, "temperature", 0, "Sample ONNX moves at this temperature (0 = argmax)")
	fs.BoolVar(&opts.disableCUDA, "disable-cuda", false, "Run ONNX on the CPU even when CUDA is available")
	fs.StringVar(&opts.logFormat, "log-format", "text", "Log format: text, logfmt, json or pretty")
	fs.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	fs.StringVar(&opts.logFile, "log-file", "", "Write logs here instead of stderr (default rollout.log with -tui)")
	fs.DurationVar(&opts.statsEvery, "stats-every", 2*time.Second, "Interval between throughput log lines")
	fs.BoolVar(&opts.tui, "tui", false, "Show a live dashboard instead of logging stats")
	fs.BoolVar(&opts.trace, "trace", false, "Print slot 0's board before every step")
	_ = fs.Parse(os.Args[1:])

	logger, closeLog, err := openLogger(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Error("Rollout failed", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func openLogger(opts options) (*slog.Logger, func(), error) {
	var w io.Writer = os.Stderr
	closeFn := func() {}
	path := opts.logFile
	if path == "" && opts.tui {
		path = "rollout.log"
	}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closeFn = func() { _ = f.Close() }
	}
	logger, err := logging.New(w, opts.logFormat, opts.logLevel)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return logger, closeFn, nil
}

func run(ctx context.Context, cfg config.Config, opts options, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var (
		net        *inference.ClientPool
		controlled policy.Policy
		poolOpts   = []vecenv.Option{vecenv.WithLogger(logger)}
	)
	needsNet := opts.policy == config.OpponentONNX ||
		(cfg.Opponent == config.OpponentONNX && cfg.Controlled < cfg.Snakes)
	if needsNet {
		if opts.onnxModel == "" {
			return errors.New("the onnx policy needs -onnx-model")
		}
		enc := cfg.NewEncoder()
		var err error
		net, err = inference.NewClientPool(opts.onnxModel, opts.onnxSessions, enc, inference.ClientConfig{
			BatchSize:    opts.onnxBatchSize,
			BatchTimeout: opts.onnxBatchTimeout,
			DisableCUDA:  opts.disableCUDA,
			Logger:       logger,
		})
		if err != nil {
			return err
		}
		defer net.Close()
		logger.Info("ONNX model loaded", "model", opts.onnxModel, "sessions", opts.onnxSessions)
	}

	if opts.policy == config.OpponentONNX {
		controlled = &inference.Policy{Net: net, Temperature: opts.temperature}
	} else {
		p, ok := policy.ByName(opts.policy)
		if !ok {
			return fmt.Errorf("unknown policy %q", opts.policy)
		}
		controlled = p
	}
	if cfg.Opponent == config.OpponentONNX && net != nil {
		poolOpts = append(poolOpts, vecenv.WithOpponent(&inference.Policy{Net: net, Temperature: opts.temperature}))
	}

	pool, err := vecenv.New(cfg, poolOpts...)
	if err != nil {
		return err
	}
	defer pool.Close()

	sink, err := store.NewSink(opts.outDir, opts.rowsPerFile, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gen := &generator{
		pool:     pool,
		cfg:      cfg,
		policy:   controlled,
		tracker:  store.NewTracker(pool.NumEnvs(), pool.Controlled()),
		logger:   logger,
		maxSteps: opts.maxSteps,
		maxEps:   opts.maxEpisodes,
		trace:    opts.trace,
		out:      make(chan chunk, 16),
		episodes: make(chan episodeUpdate, 64),
		finished: make(chan struct{}),
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return gen.run(gctx) })
	g.Go(func() error { return writeLoop(sink, gen.out, logger) })
	g.Go(func() error {
		if opts.tui {
			m := newDashboard(pool, net, gen.episodes, gen.finished)
			prog := tea.NewProgram(m, tea.WithContext(gctx))
			_, err := prog.Run()
			// q in the dashboard stops the rollout.
			cancel()
			if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		reportLoop(gctx, pool, net, gen.finished, opts.statsEvery, logger)
		return nil
	})

	err = g.Wait()
	st := pool.Stats()
	logger.Info("Rollout finished",
		"steps", st.Steps,
		"env_steps", st.EnvSteps,
		"episodes", st.Episodes,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"env_steps_per_sec", fmt.Sprintf("%.0f", st.StepsPerSecond()),
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func reportLoop(ctx context.Context, pool *vecenv.Pool, net *inference.ClientPool, finished <-chan struct{}, every time.Duration, logger *slog.Logger) {
	if every <= 0 {
		every = 2 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-finished:
			return
		case <-ticker.C:
			st := pool.Stats()
			attrs := []any{
				"steps", st.Steps,
				"episodes", st.Episodes,
				"env_steps_per_sec", fmt.Sprintf("%.0f", st.StepsPerSecond()),
				"avg_step", st.AvgStepLatency,
			}
			if net != nil {
				rt := net.Stats()
				attrs = append(attrs, "batch_avg", fmt.Sprintf("%.1f", rt.AvgBatchSize), "run_avg_ms", fmt.Sprintf("%.2f", rt.AvgRunMs), "queue", rt.QueueLen)
			}
			logger.Info("Stats", attrs...)
		}
	}
}
