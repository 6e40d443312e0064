package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "SNEKGYM_"

// BindFlags registers every field on fs. Defaults come from the current
// values of c, overridden by SNEKGYM_* environment variables; parsed flags
// win over both.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.Width, "width", getEnvIntOrDefault("WIDTH", c.Width), "Board width")
	fs.IntVar(&c.Height, "height", getEnvIntOrDefault("HEIGHT", c.Height), "Board height")
	fs.IntVar(&c.NumEnvs, "envs", getEnvIntOrDefault("ENVS", c.NumEnvs), "Number of game instances in the pool")
	fs.IntVar(&c.Snakes, "snakes", getEnvIntOrDefault("SNAKES", c.Snakes), "Snakes per game")
	fs.IntVar(&c.Controlled, "controlled", getEnvIntOrDefault("CONTROLLED", c.Controlled), "Snakes per game driven by the trainer")
	fs.StringVar(&c.Opponent, "opponent", getEnvOrDefault("OPPONENT", c.Opponent), "Policy for the remaining snakes (random-safe, greedy, forward, onnx)")
	fs.IntVar(&c.Workers, "workers", getEnvIntOrDefault("WORKERS", c.Workers), "Worker goroutines stepping instances (0 = GOMAXPROCS)")

	fs.IntVar(&c.MaxTicks, "max-ticks", getEnvIntOrDefault("MAX_TICKS", c.MaxTicks), "Turn cap per episode (0 = none)")
	fs.IntVar(&c.StartingHealth, "starting-health", getEnvIntOrDefault("STARTING_HEALTH", c.StartingHealth), "Health at spawn")
	fs.IntVar(&c.MaxHealth, "max-health", getEnvIntOrDefault("MAX_HEALTH", c.MaxHealth), "Health after eating")
	fs.IntVar(&c.HealthDecay, "health-decay", getEnvIntOrDefault("HEALTH_DECAY", c.HealthDecay), "Health lost per turn")
	fs.IntVar(&c.StartingLength, "starting-length", getEnvIntOrDefault("STARTING_LENGTH", c.StartingLength), "Body length at spawn")

	fs.IntVar(&c.InitialFood, "initial-food", getEnvIntOrDefault("INITIAL_FOOD", c.InitialFood), "Food placed at reset (-1 = one per snake)")
	fs.IntVar(&c.MinimumFood, "min-food", getEnvIntOrDefault("MIN_FOOD", c.MinimumFood), "Food the board is topped up to every turn")
	fs.IntVar(&c.FoodSpawnChance, "food-chance", getEnvIntOrDefault("FOOD_CHANCE", c.FoodSpawnChance), "Percent chance of one extra food per turn")
	fs.IntVar(&c.FoodSpawnCap, "food-cap", getEnvIntOrDefault("FOOD_CAP", c.FoodSpawnCap), "Maximum food on the board (0 = none)")
	fs.IntVar(&c.FoodSpawnRetries, "food-retries", getEnvIntOrDefault("FOOD_RETRIES", c.FoodSpawnRetries), "Random draws per food before scanning free cells")
	fs.BoolVar(&c.ReplaceEaten, "replace-eaten", getEnvBoolOrDefault("REPLACE_EATEN", c.ReplaceEaten), "Spawn one food for every food eaten")

	float32Var(fs, &c.Rewards.Survive, "reward-survive", getEnvFloatOrDefault("REWARD_SURVIVE", c.Rewards.Survive), "Reward per tick survived")
	float32Var(fs, &c.Rewards.Eat, "reward-eat", getEnvFloatOrDefault("REWARD_EAT", c.Rewards.Eat), "Reward for eating")
	float32Var(fs, &c.Rewards.Die, "reward-die", getEnvFloatOrDefault("REWARD_DIE", c.Rewards.Die), "Reward on elimination")
	float32Var(fs, &c.Rewards.Step, "reward-step", getEnvFloatOrDefault("REWARD_STEP", c.Rewards.Step), "Reward added every tick")
	float32Var(fs, &c.Rewards.Win, "reward-win", getEnvFloatOrDefault("REWARD_WIN", c.Rewards.Win), "Bonus for the sole survivor")

	fs.BoolVar(&c.Egocentric, "egocentric", getEnvBoolOrDefault("EGOCENTRIC", c.Egocentric), "Centre observations on the snake's head")
	fs.StringVar(&c.Orientation, "orientation", getEnvOrDefault("ORIENTATION", c.Orientation), "Observation orientation: fixed or random mirroring")

	fs.Int64Var(&c.Seed, "seed", getEnvInt64OrDefault("SEED", c.Seed), "Base seed; slot i uses seed + i*1000003")
	if v := os.Getenv(EnvPrefix + "SEEDS"); v != "" {
		if seeds, err := parseSeeds(v); err == nil {
			c.Seeds = seeds
		}
	}
	fs.Func("seeds", "Comma separated per-slot seeds (overrides -seed)", func(s string) error {
		seeds, err := parseSeeds(s)
		if err != nil {
			return err
		}
		c.Seeds = seeds
		return nil
	})

	fs.BoolVar(&c.AutoReset, "auto-reset", getEnvBoolOrDefault("AUTO_RESET", c.AutoReset), "Reset finished slots inside Step")
	fs.BoolVar(&c.EndOnControlledDeath, "end-on-controlled-death", getEnvBoolOrDefault("END_ON_CONTROLLED_DEATH", c.EndOnControlledDeath), "End an episode once every controlled snake is dead")
}

func parseSeeds(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	seeds := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("seed %q: %w", p, err)
		}
		seeds = append(seeds, v)
	}
	return seeds, nil
}

type float32Value struct{ p *float32 }

func (f float32Value) String() string {
	if f.p == nil {
		return "0"
	}
	return strconv.FormatFloat(float64(*f.p), 'g', -1, 32)
}

func (f float32Value) Set(s string) error {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return err
	}
	*f.p = float32(v)
	return nil
}

func float32Var(fs *flag.FlagSet, p *float32, name string, value float32, usage string) {
	*p = value
	fs.Var(float32Value{p}, name, usage)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64OrDefault(key string, defaultVal int64) int64 {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloatOrDefault(key string, defaultVal float32) float32 {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if f, err := strconv.ParseFloat(val, 32); err == nil {
			return float32(f)
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}
