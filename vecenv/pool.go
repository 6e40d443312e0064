// Package vecenv runs N independent snake games behind one batched
// step/reset interface, ticking them on a bounded set of worker goroutines.
package vecenv

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/brensch/snekgym/config"
	"github.com/brensch/snekgym/encode"
	"github.com/brensch/snekgym/env"
	"github.com/brensch/snekgym/game"
	"github.com/brensch/snekgym/policy"
)

var (
	ErrClosed = errors.New("pool is closed")
	// ErrNotReset is returned by Step before the first ResetAll and after a
	// Step that failed while ticking.
	ErrNotReset = errors.New("pool has not been reset")
)

// ActionBatch holds the moves of every slot: ActionBatch[i] are the moves of
// the controlled snakes of instance i.
type ActionBatch [][]game.Move

// Batch is the result of a pool call. Slot i always belongs to instance i.
// The pool alternates between two Batches, so contents are only valid until
// the next call; use Clone to keep them.
type Batch struct {
	// Obs is [N][Controlled][Channels][Height][Width], flattened.
	Obs []float32
	// Rewards is [N][Controlled], flattened.
	Rewards []float32
	Dones   []bool
	Infos   []env.Info

	obsPerSlot int
	controlled int
}

// SlotObs is the observation block of slot i.
func (b *Batch) SlotObs(i int) []float32 {
	return b.Obs[i*b.obsPerSlot : (i+1)*b.obsPerSlot]
}

// SlotRewards is the reward of every controlled snake of slot i.
func (b *Batch) SlotRewards(i int) []float32 {
	return b.Rewards[i*b.controlled : (i+1)*b.controlled]
}

func (b *Batch) Clone() *Batch {
	out := *b
	out.Obs = append([]float32(nil), b.Obs...)
	out.Rewards = append([]float32(nil), b.Rewards...)
	out.Dones = append([]bool(nil), b.Dones...)
	out.Infos = append([]env.Info(nil), b.Infos...)
	return &out
}

type taskKind uint8

const (
	taskPrepare taskKind = iota
	taskCommit
	taskReset
	taskResetDone
)

type task struct {
	slot    int
	kind    taskKind
	actions []game.Move
	batch   *Batch
}

type result struct {
	slot int
	err  error
}

type Option func(*options)

type options struct {
	logger   *slog.Logger
	opponent func(slot int) policy.Policy
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOpponent drives every scripted snake with p. p must be safe for
// concurrent use.
func WithOpponent(p policy.Policy) Option {
	return func(o *options) { o.opponent = func(int) policy.Policy { return p } }
}

// WithOpponentFactory gives each slot its own opponent policy.
func WithOpponentFactory(f func(slot int) policy.Policy) Option {
	return func(o *options) { o.opponent = f }
}

// Pool owns NumEnvs instances. Its methods serialize on an internal lock;
// the parallelism is inside each call.
type Pool struct {
	cfg    config.Config
	envs   []*env.Instance
	logger *slog.Logger

	tasks   chan task
	results chan result
	wg      sync.WaitGroup

	// Step writes into spare and swaps it with batch once every slot has
	// ticked. broken holds the error of a Step that failed mid tick.
	mu     sync.Mutex
	batch  *Batch
	spare  *Batch
	reset  bool
	closed bool
	broken error

	stats counters
}

// New validates cfg, builds every instance and starts the workers.
func New(cfg config.Config, opts ...Option) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.opponent == nil && cfg.Controlled < cfg.Snakes {
		name := cfg.Opponent
		p, ok := policy.ByName(name)
		if !ok {
			return nil, fmt.Errorf("opponent %q needs WithOpponent", name)
		}
		o.opponent = func(int) policy.Policy { return p }
	}

	p := &Pool{
		cfg:     cfg,
		envs:    make([]*env.Instance, cfg.NumEnvs),
		logger:  o.logger,
		tasks:   make(chan task, cfg.NumEnvs),
		results: make(chan result, cfg.NumEnvs),
	}
	for i := range p.envs {
		var opp policy.Policy
		if o.opponent != nil {
			opp = o.opponent(i)
		}
		in, err := env.New(cfg, i, cfg.SeedFor(i), opp, env.WithLogger(o.logger))
		if err != nil {
			return nil, fmt.Errorf("create instance %d: %w", i, err)
		}
		p.envs[i] = in
	}

	obsPerSlot := p.envs[0].ObservationSize()
	p.batch = newBatch(cfg.NumEnvs, obsPerSlot, cfg.Controlled)
	p.spare = newBatch(cfg.NumEnvs, obsPerSlot, cfg.Controlled)

	workers := cfg.WorkerCount()
	for w := 0; w < workers; w++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.logger.Info("Pool started",
		"envs", cfg.NumEnvs,
		"workers", workers,
		"board", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"snakes", cfg.Snakes,
		"controlled", cfg.Controlled,
		"auto_reset", cfg.AutoReset,
	)
	return p, nil
}

func newBatch(n, obsPerSlot, controlled int) *Batch {
	return &Batch{
		Obs:        make([]float32, n*obsPerSlot),
		Rewards:    make([]float32, n*controlled),
		Dones:      make([]bool, n),
		Infos:      make([]env.Info, n),
		obsPerSlot: obsPerSlot,
		controlled: controlled,
	}
}

func (p *Pool) NumEnvs() int { return len(p.envs) }

// ObservationShape is the shape of one controlled snake's observation.
func (p *Pool) ObservationShape() [3]int { return p.envs[0].Encoder().Shape() }

// Controlled is the number of observations and rewards per slot.
func (p *Pool) Controlled() int { return p.cfg.Controlled }

// State returns the game of slot i. It must not be modified or read while a
// pool call is in flight.
func (p *Pool) State(i int) *game.GameState { return p.envs[i].State() }

// ResetAll starts a new episode in every slot.
func (p *Pool) ResetAll() (*Batch, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if err := p.run(taskReset, nil, p.batch); err != nil {
		return nil, err
	}
	p.reset = true
	p.broken = nil
	return p.batch, nil
}

// ResetDone resets only the slots whose episode has ended; the other slots
// keep their last observation. With AutoReset on there is rarely anything to
// do.
func (p *Pool) ResetDone() (*Batch, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if err := p.ready(); err != nil {
		return nil, err
	}
	if err := p.run(taskResetDone, nil, p.batch); err != nil {
		return nil, err
	}
	return p.batch, nil
}

// Step advances every slot by one tick. With AutoReset a slot that finishes
// reports Done, its terminal Info and reward, and the first observation of
// its next episode, whose orientation is in Info.Orientation. Any slot
// failing fails the whole call.
//
// Every slot settles its moves, opponent included, before any slot ticks, so
// an opponent error leaves all slots and the last Batch untouched and the
// call can be retried. A failure while ticking leaves the pool unusable
// until ResetAll.
func (p *Pool) Step(actions ActionBatch) (*Batch, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if err := p.ready(); err != nil {
		return nil, err
	}
	if len(actions) != len(p.envs) {
		return nil, fmt.Errorf("action batch has %d slots, pool has %d", len(actions), len(p.envs))
	}

	start := time.Now()
	if err := p.run(taskPrepare, actions, nil); err != nil {
		p.stats.failures.Add(1)
		return nil, err
	}
	if err := p.run(taskCommit, nil, p.spare); err != nil {
		p.stats.failures.Add(1)
		p.broken = err
		p.logger.Error("Step failed after ticking, pool needs ResetAll", "error", err)
		return nil, err
	}
	p.batch, p.spare = p.spare, p.batch
	p.stats.steps.Add(1)
	p.stats.envSteps.Add(int64(len(p.envs)))
	p.stats.stepNanos.Add(time.Since(start).Nanoseconds())
	return p.batch, nil
}

// Close stops the workers. Later calls return ErrClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.wg.Wait()
	p.logger.Info("Pool closed", "steps", p.stats.steps.Load(), "episodes", p.stats.episodes.Load())
	return nil
}

func (p *Pool) ready() error {
	if !p.reset {
		return ErrNotReset
	}
	if p.broken != nil {
		return fmt.Errorf("%w: last step failed: %w", ErrNotReset, p.broken)
	}
	return nil
}

// run sends one task per slot and waits for every result.
func (p *Pool) run(kind taskKind, actions ActionBatch, b *Batch) error {
	for i := range p.envs {
		t := task{slot: i, kind: kind, batch: b}
		if actions != nil {
			t.actions = actions[i]
		}
		p.tasks <- t
	}

	var errs []error
	for range p.envs {
		r := <-p.results
		if r.err != nil {
			errs = append(errs, r.err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		p.results <- result{slot: t.slot, err: p.handle(t)}
	}
}

func (p *Pool) handle(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Worker panic", "slot", t.slot, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("slot %d: worker panic: %v", t.slot, r)
		}
	}()

	in := p.envs[t.slot]
	if t.kind == taskPrepare {
		if err := in.Prepare(t.actions); err != nil {
			return fmt.Errorf("slot %d: %w", t.slot, err)
		}
		return nil
	}

	b := t.batch
	obs := b.SlotObs(t.slot)
	rewards := b.SlotRewards(t.slot)

	switch t.kind {
	case taskResetDone:
		if !in.Done() {
			return nil
		}
		fallthrough
	case taskReset:
		if err := in.ResetInto(obs); err != nil {
			return fmt.Errorf("slot %d: %w", t.slot, err)
		}
		p.stats.resets.Add(1)
		clear(rewards)
		b.Dones[t.slot] = false
		b.Infos[t.slot] = in.Info()
		return nil
	}

	res, err := in.Commit(obs)
	if err != nil {
		return fmt.Errorf("slot %d: %w", t.slot, err)
	}
	copy(rewards, res.Rewards)
	b.Dones[t.slot] = res.Done
	b.Infos[t.slot] = res.Info
	if !res.Done {
		return nil
	}

	p.stats.episodes.Add(1)
	if !p.cfg.AutoReset {
		return nil
	}
	if err := in.ResetInto(obs); err != nil {
		return fmt.Errorf("slot %d: auto reset: %w", t.slot, err)
	}
	// Obs is the next episode's first observation.
	b.Infos[t.slot].Orientation = append(b.Infos[t.slot].Orientation[:0], in.Orientations()...)
	p.stats.resets.Add(1)
	return nil
}

// Encoder returns the encoder shared in shape by every slot.
func (p *Pool) Encoder() *encode.Encoder { return p.envs[0].Encoder() }
