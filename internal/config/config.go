package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"distributed-actor-rl/internal/comm"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Common CommonConfig `yaml:"common"`
	Actor  ActorConfig  `yaml:"actor"`
}

type CommonConfig struct {
	// SavePath is the root for actor logs and metric plots.
	SavePath string `yaml:"save_path"`
}

type ActorConfig struct {
	ActorType     string      `yaml:"actor_type"`
	ImportNames   []string    `yaml:"import_names"`
	PrintFreq     int         `yaml:"print_freq"`
	PlotMetrics   bool        `yaml:"plot_metrics"`
	TrajLen       int         `yaml:"traj_len"`
	Seed          int64       `yaml:"seed"`
	Communication comm.Config `yaml:"communication"`
}

func Default() *Config {
	return &Config{
		Common: CommonConfig{SavePath: "results"},
		Actor: ActorConfig{
			ActorType:     "cartpole",
			ImportNames:   []string{"builtin"},
			PrintFreq:     50,
			TrajLen:       64,
			Communication: comm.DefaultConfig(),
		},
	}
}

// Load reads a YAML file over the defaults, then applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the process environment.
func (c *Config) ApplyEnv() {
	c.Common.SavePath = getenv("SAVE_PATH", c.Common.SavePath)
	c.Actor.ActorType = getenv("ACTOR_TYPE", c.Actor.ActorType)
	c.Actor.PrintFreq = getenvInt("PRINT_FREQ", c.Actor.PrintFreq)
	c.Actor.TrajLen = getenvInt("TRAJ_LEN", c.Actor.TrajLen)
	c.Actor.Seed = getenvInt64("SEED", c.Actor.Seed)
	c.Actor.Communication.Type = getenv("COMM_TYPE", c.Actor.Communication.Type)
	c.Actor.Communication.CoordinatorURL = getenv("COORDINATOR_URL", c.Actor.Communication.CoordinatorURL)
	c.Actor.Communication.RedisAddr = getenv("REDIS_ADDR", c.Actor.Communication.RedisAddr)
}

func (c *Config) Validate() error {
	switch {
	case c.Actor.ActorType == "":
		return fmt.Errorf("%w: actor.actor_type is required", ErrInvalidConfig)
	case c.Actor.PrintFreq < 1:
		return fmt.Errorf("%w: actor.print_freq must be >= 1", ErrInvalidConfig)
	case c.Actor.TrajLen < 1:
		return fmt.Errorf("%w: actor.traj_len must be >= 1", ErrInvalidConfig)
	case c.Actor.Communication.Retries < 0:
		return fmt.Errorf("%w: actor.communication.retries must be >= 0", ErrInvalidConfig)
	}
	return nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
