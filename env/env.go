// Package env runs one snake game as a reinforcement-learning environment:
// reset, step with actions for the controlled snakes, observe, reward.
package env

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/brensch/snekgym/config"
	"github.com/brensch/snekgym/encode"
	"github.com/brensch/snekgym/game"
	"github.com/brensch/snekgym/policy"
	"github.com/brensch/snekgym/rules"
)

var (
	// ErrEpisodeOver is returned by Step once the episode has ended. Reset
	// first.
	ErrEpisodeOver = errors.New("episode is over")
	// ErrFatal wraps a broken game state. The instance refuses every further
	// Step and Reset.
	ErrFatal = errors.New("instance is fatally broken")
	// ErrNotPrepared is returned by Commit without a successful Prepare.
	ErrNotPrepared = errors.New("no prepared moves")
)

// policySalt separates the opponent RNG stream from the game stream.
const policySalt = 0x5DEECE66D

// orientSalt seeds the stream random observation orientations draw from.
const orientSalt = 0x2545F4914F6CDD1D

// noMove is corrected to the snake's heading by the rules engine.
const noMove = game.Move(game.NumMoves)

// Observation is Controlled consecutive [C,H,W] planes, one per controlled
// snake.
type Observation []float32

type SnakeInfo struct {
	ID             string
	Alive          bool
	Length         int
	Health         int32
	Ate            bool
	Death          game.DeathCause
	EliminatedTurn int32
	Head           game.Point
}

type Info struct {
	Slot       int
	Episode    int64
	Turn       int32
	AliveCount int
	// Truncated is set when the turn cap ended an episode that still had a
	// contest going.
	Truncated bool
	// Winner is the ID of the sole survivor of a multi-snake game.
	Winner string
	// Return is the running episode return of each controlled snake.
	Return []float32
	// Orientation mirrors each controlled snake's observation. Actions for
	// that snake are read in the same frame.
	Orientation []encode.Orientation
	Snakes      []SnakeInfo
}

// Result of one Step. Obs and Rewards belong to the instance and are
// overwritten by the next Step or Reset.
type Result struct {
	Obs     Observation
	Rewards []float32
	Done    bool
	Info    Info
}

type Option func(*Instance)

func WithLogger(l *slog.Logger) Option {
	return func(in *Instance) {
		if l != nil {
			in.logger = l
		}
	}
}

// Instance is one independent game. It is not safe for concurrent use.
type Instance struct {
	index     int
	cfg       config.Config
	engine    *rules.Engine
	enc       *encode.Encoder
	rng       *rand.Rand
	policyRng *rand.Rand
	orientRng *rand.Rand
	opponent  policy.Policy
	ids       []string
	logger    *slog.Logger

	state    *game.GameState
	episode  int64
	done     bool
	fatal    error
	prepared bool

	moves   []game.Move
	obs     Observation
	rewards []float32
	returns []float32
	orients []encode.Orientation
}

// New builds instance index of a pool. opponent drives the snakes past
// cfg.Controlled and may be nil when every snake is controlled.
func New(cfg config.Config, index int, seed int64, opponent policy.Policy, opts ...Option) (*Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opponent == nil && cfg.Controlled < cfg.Snakes {
		return nil, fmt.Errorf("instance %d: %d scripted snakes need an opponent policy", index, cfg.Snakes-cfg.Controlled)
	}
	settings := cfg.Rules()
	in := &Instance{
		index:     index,
		cfg:       cfg,
		engine:    rules.NewEngine(settings),
		enc:       cfg.NewEncoder(),
		rng:       rand.New(rand.NewSource(seed)),
		policyRng: rand.New(rand.NewSource(seed ^ policySalt)),
		orientRng: rand.New(rand.NewSource(seed ^ orientSalt)),
		opponent:  opponent,
		ids:       cfg.SnakeIDs(),
		logger:    slog.New(slog.DiscardHandler),
		moves:     make([]game.Move, cfg.Snakes),
		rewards:   make([]float32, cfg.Controlled),
		returns:   make([]float32, cfg.Controlled),
		orients:   make([]encode.Orientation, cfg.Controlled),
		done:      true,
	}
	in.obs = make(Observation, in.ObservationSize())
	for _, opt := range opts {
		opt(in)
	}
	in.logger = in.logger.With("slot", index)
	return in, nil
}

// ObservationSize is the number of floats Reset and Step write.
func (in *Instance) ObservationSize() int { return in.cfg.Controlled * in.enc.Size() }

func (in *Instance) Encoder() *encode.Encoder { return in.enc }

// State is the current game. Callers must not modify it.
func (in *Instance) State() *game.GameState { return in.state }

func (in *Instance) Done() bool { return in.done }

// Orientations is the orientation of each controlled snake's latest
// observation. Callers must not modify it.
func (in *Instance) Orientations() []encode.Orientation { return in.orients }

func (in *Instance) Episode() int64 { return in.episode }

// Err is the fatal error of a broken instance, nil otherwise.
func (in *Instance) Err() error { return in.fatal }

// Reset starts a new episode and returns its first observation.
func (in *Instance) Reset() (Observation, error) {
	if err := in.ResetInto(in.obs); err != nil {
		return nil, err
	}
	return in.obs, nil
}

// ResetInto is Reset writing the observation into obs.
func (in *Instance) ResetInto(obs []float32) error {
	if in.fatal != nil {
		return in.fatal
	}
	state, err := in.engine.NewGame(int32(in.cfg.Width), int32(in.cfg.Height), in.ids, in.rng)
	if err != nil {
		return fmt.Errorf("instance %d: new game: %w", in.index, err)
	}
	in.state = state
	in.done = false
	in.prepared = false
	in.episode++
	clear(in.returns)
	in.observe(obs)
	return nil
}

// Step applies actions for the controlled snakes, in snake order. Fewer
// actions than controlled snakes is allowed; the rest keep their heading, as
// do dead snakes and invalid moves.
func (in *Instance) Step(actions []game.Move) (Result, error) {
	res, err := in.StepInto(actions, in.obs)
	if err != nil {
		return Result{}, err
	}
	res.Obs = in.obs
	return res, nil
}

// StepInto is Step writing the observation into obs instead of the
// instance's own buffer.
func (in *Instance) StepInto(actions []game.Move, obs []float32) (Result, error) {
	if err := in.Prepare(actions); err != nil {
		return Result{}, err
	}
	return in.Commit(obs)
}

// Prepare fixes the moves of the next Commit: actions for the controlled
// snakes and the opponent's choice for the others. The game is left as it
// was, so a failed Prepare can simply be retried.
func (in *Instance) Prepare(actions []game.Move) error {
	in.prepared = false
	if in.fatal != nil {
		return in.fatal
	}
	if in.done || in.state == nil {
		return ErrEpisodeOver
	}
	if len(actions) > in.cfg.Controlled {
		return fmt.Errorf("instance %d: %d actions for %d controlled snakes", in.index, len(actions), in.cfg.Controlled)
	}

	for i := range in.moves {
		in.moves[i] = noMove
	}
	for i, m := range actions {
		in.moves[i] = in.orients[i].Move(m)
	}
	for i := in.cfg.Controlled; i < len(in.state.Snakes); i++ {
		if !in.state.Snakes[i].Alive {
			continue
		}
		m, err := in.opponent.Act(in.state, i, in.policyRng)
		if err != nil {
			return fmt.Errorf("instance %d: opponent %s: %w", in.index, in.ids[i], err)
		}
		in.moves[i] = m
	}
	in.prepared = true
	return nil
}

// Commit ticks the game with the moves of the last Prepare and writes the
// new observation into obs.
func (in *Instance) Commit(obs []float32) (Result, error) {
	if in.fatal != nil {
		return Result{}, in.fatal
	}
	if !in.prepared {
		return Result{}, fmt.Errorf("instance %d: %w", in.index, ErrNotPrepared)
	}
	in.prepared = false

	next, report, err := in.tick()
	if err != nil {
		in.fatal = fmt.Errorf("%w: instance %d: %w", ErrFatal, in.index, err)
		in.done = true
		in.logger.Error("Instance failed", "episode", in.episode, "turn", in.state.Turn, "error", err)
		return Result{}, in.fatal
	}
	in.state = next

	done := next.Over
	if !done && in.cfg.EndOnControlledDeath {
		done = true
		for i := 0; i < in.cfg.Controlled; i++ {
			if next.Snakes[i].Alive {
				done = false
				break
			}
		}
	}

	winner := -1
	if len(next.Snakes) > 1 && next.AliveCount() == 1 {
		for i := range next.Snakes {
			if next.Snakes[i].Alive {
				winner = i
			}
		}
	}

	for i := range in.rewards {
		in.rewards[i] = in.cfg.Rewards.Reward(report.Events[i], i == winner)
		in.returns[i] += in.rewards[i]
	}

	in.done = done
	in.observe(obs)

	info := in.info(&report)
	if winner >= 0 {
		info.Winner = next.Snakes[winner].ID
	}
	if done {
		info.Truncated = in.cfg.MaxTicks > 0 && next.Turn >= int32(in.cfg.MaxTicks) && winner < 0 && next.AliveCount() > 0
		in.logger.Debug("Episode finished",
			"episode", in.episode,
			"turn", next.Turn,
			"alive", info.AliveCount,
			"winner", info.Winner,
			"truncated", info.Truncated,
		)
	}

	return Result{Rewards: in.rewards, Done: done, Info: info}, nil
}

// tick turns a rules panic into an error.
func (in *Instance) tick() (next *game.GameState, report rules.Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("rules panic: %v", r)
		}
	}()
	next, report = in.engine.Tick(in.state, in.moves, in.rng)
	return next, report, nil
}

func (in *Instance) observe(obs []float32) {
	size := in.enc.Size()
	for i := 0; i < in.cfg.Controlled; i++ {
		if in.cfg.Orientation == config.OrientationRandom {
			in.orients[i] = encode.Orientation(in.orientRng.Intn(encode.NumOrientations))
		}
		in.enc.EncodeOriented(in.state, i, in.orients[i], obs[i*size:(i+1)*size])
	}
}

// Info describes the current state as of the last Reset or Step.
func (in *Instance) Info() Info {
	if in.state == nil {
		return Info{Slot: in.index}
	}
	return in.info(nil)
}

func (in *Instance) info(report *rules.Report) Info {
	s := in.state
	info := Info{
		Slot:        in.index,
		Episode:     in.episode,
		Turn:        s.Turn,
		AliveCount:  s.AliveCount(),
		Return:      append([]float32(nil), in.returns...),
		Orientation: append([]encode.Orientation(nil), in.orients...),
		Snakes:      make([]SnakeInfo, len(s.Snakes)),
	}
	for i := range s.Snakes {
		sn := &s.Snakes[i]
		si := SnakeInfo{
			ID:             sn.ID,
			Alive:          sn.Alive,
			Length:         len(sn.Body),
			Health:         sn.Health,
			Death:          sn.Death,
			EliminatedTurn: sn.EliminatedTurn,
		}
		if report != nil && i < len(report.Events) {
			si.Ate = report.Events[i].Ate
		}
		if len(sn.Body) > 0 {
			si.Head = sn.Body[0]
		}
		info.Snakes[i] = si
	}
	return info
}
