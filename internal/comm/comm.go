// Package comm moves jobs, agent parameters, trajectories and results
// between an actor and the coordinator.
package comm

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"distributed-actor-rl/internal/buffer"
)

const (
	ModeHTTP          = "http"
	ModeRedis         = "redis"
	ModeSingleMachine = "single_machine"
)

var (
	ErrUnknownMode              = errors.New("unknown communication mode")
	ErrSingleMachineUnsupported = errors.New("single machine communication is not supported")
	ErrCommUnavailable          = errors.New("coordinator unavailable")
	ErrNoJobAvailable           = errors.New("no job available")
	ErrSendFailed               = errors.New("send failed")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Helper is the transport contract an actor depends on.
type Helper interface {
	// InitService checks the coordinator is reachable.
	InitService(ctx context.Context) error
	// CloseService releases the connection. Safe to call more than once.
	CloseService() error
	// GetJob waits for the next job, giving up with ErrNoJobAvailable.
	GetJob(ctx context.Context) (Job, error)
	GetAgentUpdateInfo(ctx context.Context) (AgentUpdateInfo, error)
	SendTrajMetadata(ctx context.Context, meta buffer.TrajMetadata) error
	SendTrajStepData(ctx context.Context, data buffer.TrajStepData) error
	SendResult(ctx context.Context, result JobResult) error
}

// Config selects and tunes a Helper.
type Config struct {
	Type           string        `yaml:"type"`
	CoordinatorURL string        `yaml:"coordinator_url"`
	RedisAddr      string        `yaml:"redis_addr"`
	RedisPrefix    string        `yaml:"redis_prefix"`
	Retries        int           `yaml:"retries"`
	Backoff        time.Duration `yaml:"backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Timeout        time.Duration `yaml:"timeout"`
	JobRetries     int           `yaml:"job_retries"`
}

func DefaultConfig() Config {
	return Config{
		Type:           ModeHTTP,
		CoordinatorURL: "http://localhost:9001",
		RedisAddr:      "localhost:6379",
		RedisPrefix:    "actor",
		Retries:        3,
		Backoff:        500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Timeout:        10 * time.Second,
		JobRetries:     20,
	}
}

// Resolve checks that mode names a usable strategy without building it.
func Resolve(mode string) error {
	switch mode {
	case ModeHTTP, ModeRedis:
		return nil
	case ModeSingleMachine:
		return ErrSingleMachineUnsupported
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// New builds the Helper named by cfg.Type for the given actor.
func New(cfg Config, actorID string) (Helper, error) {
	if err := Resolve(cfg.Type); err != nil {
		return nil, err
	}
	if cfg.Type == ModeRedis {
		return NewRedisHelper(cfg, actorID), nil
	}
	return NewHTTPHelper(cfg, actorID), nil
}
