// Package config holds the knobs of a vectorized snake pool and binds them
// to command-line flags with SNEKGYM_* environment defaults.
package config

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/brensch/snekgym/encode"
	"github.com/brensch/snekgym/policy"
	"github.com/brensch/snekgym/rules"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// OpponentONNX selects the ONNX Runtime policy for scripted snakes. The
// caller wires the model; config only checks the name.
const OpponentONNX = "onnx"

// Observation orientations.
const (
	OrientationFixed = "fixed"
	// OrientationRandom mirrors each observation by a random orientation
	// drawn per snake per turn. Actions are read in the mirrored frame.
	OrientationRandom = "random"
)

// seedStride spreads per-slot seeds derived from Seed.
const seedStride = 1000003

type Config struct {
	Width  int
	Height int

	NumEnvs int
	// Snakes per game; the first Controlled take trainer actions and the rest
	// follow Opponent.
	Snakes     int
	Controlled int
	Opponent   string
	// Workers bounds the goroutines stepping instances. Zero means GOMAXPROCS.
	Workers int

	MaxTicks       int
	StartingHealth int
	MaxHealth      int
	HealthDecay    int
	StartingLength int

	InitialFood      int
	MinimumFood      int
	FoodSpawnChance  int
	FoodSpawnCap     int
	FoodSpawnRetries int
	ReplaceEaten     bool

	Rewards encode.RewardWeights

	// Egocentric centres observations on each controlled snake's head.
	Egocentric  bool
	Orientation string

	Seed int64
	// Seeds, when set, gives every slot its own seed and must have NumEnvs
	// entries.
	Seeds []int64

	// AutoReset resets finished slots inside Step. Without it the caller
	// must ResetDone before stepping those slots again.
	AutoReset bool
	// EndOnControlledDeath ends the episode once every controlled snake is
	// dead, even if scripted snakes are still playing.
	EndOnControlledDeath bool
}

func Default() Config {
	return Config{
		Width:                11,
		Height:               11,
		NumEnvs:              64,
		Snakes:               4,
		Controlled:           4,
		Opponent:             "random-safe",
		Workers:              0,
		MaxTicks:             int(rules.DefaultSettings.MaxTicks),
		StartingHealth:       int(rules.DefaultSettings.StartingHealth),
		MaxHealth:            int(rules.DefaultSettings.MaxHealth),
		HealthDecay:          int(rules.DefaultSettings.HealthDecay),
		StartingLength:       rules.DefaultSettings.StartingLength,
		InitialFood:          rules.DefaultSettings.InitialFood,
		MinimumFood:          rules.DefaultFoodSettings.MinimumFood,
		FoodSpawnChance:      rules.DefaultFoodSettings.FoodSpawnChance,
		FoodSpawnCap:         rules.DefaultFoodSettings.SpawnCap,
		FoodSpawnRetries:     rules.DefaultFoodSettings.SpawnRetries,
		ReplaceEaten:         rules.DefaultFoodSettings.ReplaceEaten,
		Rewards:              encode.DefaultRewardWeights,
		Orientation:          OrientationFixed,
		Seed:                 1,
		AutoReset:            true,
		EndOnControlledDeath: false,
	}
}

// Validate reports every problem at once, joined under ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Width < 1 || c.Height < 1 {
		bad("board %dx%d must be at least 1x1", c.Width, c.Height)
	}
	if c.NumEnvs < 1 {
		bad("num envs %d must be positive", c.NumEnvs)
	}
	if c.Snakes < 1 || c.Snakes > 1<<15-1 {
		bad("snakes %d out of range", c.Snakes)
	} else if c.Width >= 1 && c.Height >= 1 && c.Snakes > c.Width*c.Height {
		bad("%d snakes do not fit on a %dx%d board", c.Snakes, c.Width, c.Height)
	}
	if c.Controlled < 1 || c.Controlled > c.Snakes {
		bad("controlled %d must be between 1 and snakes (%d)", c.Controlled, c.Snakes)
	}
	if c.Controlled < c.Snakes && c.Opponent != OpponentONNX {
		if _, ok := policy.ByName(c.Opponent); !ok {
			bad("unknown opponent policy %q", c.Opponent)
		}
	}
	if c.Workers < 0 {
		bad("workers %d must not be negative", c.Workers)
	}
	if c.MaxTicks < 0 {
		bad("max ticks %d must not be negative", c.MaxTicks)
	}
	if c.MaxHealth < 1 {
		bad("max health %d must be positive", c.MaxHealth)
	}
	if c.StartingHealth < 1 || c.StartingHealth > c.MaxHealth {
		bad("starting health %d must be between 1 and max health (%d)", c.StartingHealth, c.MaxHealth)
	}
	if c.HealthDecay < 0 {
		bad("health decay %d must not be negative", c.HealthDecay)
	}
	if c.StartingLength < 1 {
		bad("starting length %d must be positive", c.StartingLength)
	}
	if c.MinimumFood < 0 || c.FoodSpawnCap < 0 || c.FoodSpawnRetries < 0 {
		bad("food counts must not be negative")
	}
	if c.FoodSpawnChance < 0 || c.FoodSpawnChance > 100 {
		bad("food spawn chance %d must be a percentage", c.FoodSpawnChance)
	}
	if c.FoodSpawnCap > 0 && c.MinimumFood > c.FoodSpawnCap {
		bad("minimum food %d exceeds the spawn cap %d", c.MinimumFood, c.FoodSpawnCap)
	}
	for _, w := range []struct {
		name string
		v    float32
	}{
		{"survive", c.Rewards.Survive},
		{"eat", c.Rewards.Eat},
		{"die", c.Rewards.Die},
		{"step", c.Rewards.Step},
		{"win", c.Rewards.Win},
	} {
		if f := float64(w.v); math.IsNaN(f) || math.IsInf(f, 0) {
			bad("reward weight %s is %v, must be finite", w.name, w.v)
		}
	}
	if c.Orientation != OrientationFixed && c.Orientation != OrientationRandom {
		bad("orientation %q must be %s or %s", c.Orientation, OrientationFixed, OrientationRandom)
	}
	if len(c.Seeds) > 0 && len(c.Seeds) != c.NumEnvs {
		bad("%d seeds given for %d envs", len(c.Seeds), c.NumEnvs)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// NewEncoder builds the observation encoder for the board and view knobs.
func (c *Config) NewEncoder() *encode.Encoder {
	var opts []encode.Option
	if c.Egocentric {
		opts = append(opts, encode.WithEgocentric())
	}
	return encode.New(int32(c.Width), int32(c.Height), int32(c.MaxHealth), opts...)
}

// Rules converts the game knobs into engine settings.
func (c *Config) Rules() rules.Settings {
	return rules.Settings{
		MaxHealth:      int32(c.MaxHealth),
		StartingHealth: int32(c.StartingHealth),
		HealthDecay:    int32(c.HealthDecay),
		StartingLength: c.StartingLength,
		InitialFood:    c.InitialFood,
		MaxTicks:       int32(c.MaxTicks),
		Food: rules.FoodSettings{
			ReplaceEaten:    c.ReplaceEaten,
			MinimumFood:     c.MinimumFood,
			FoodSpawnChance: c.FoodSpawnChance,
			SpawnCap:        c.FoodSpawnCap,
			SpawnRetries:    c.FoodSpawnRetries,
		},
	}
}

// SeedFor returns the seed of slot i.
func (c *Config) SeedFor(i int) int64 {
	if i < len(c.Seeds) {
		return c.Seeds[i]
	}
	return c.Seed + int64(i)*seedStride
}

// WorkerCount resolves Workers, never exceeding NumEnvs.
func (c *Config) WorkerCount() int {
	n := c.Workers
	if n == 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if n > c.NumEnvs {
		n = c.NumEnvs
	}
	if n < 1 {
		n = 1
	}
	return n
}

// SnakeIDs names the snakes of one game: c0..cN for controlled snakes and
// o0..oM for scripted ones.
func (c *Config) SnakeIDs() []string {
	ids := make([]string, c.Snakes)
	for i := range ids {
		if i < c.Controlled {
			ids[i] = fmt.Sprintf("c%d", i)
		} else {
			ids[i] = fmt.Sprintf("o%d", i-c.Controlled)
		}
	}
	return ids
}
