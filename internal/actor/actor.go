// Package actor runs one rollout worker: it fetches jobs from the
// coordinator, steps an environment with an agent, records per-stage
// timings and ships trajectories and job results back.
//
// The run loop lives in Controller. What is actually run (environment,
// agent, trajectory packing) is supplied by an Implementation created
// through a Registry from configuration.
package actor

import (
	"context"
	"errors"
	"fmt"

	"distributed-actor-rl/internal/buffer"
	"distributed-actor-rl/internal/comm"
	"distributed-actor-rl/internal/env"
)

var (
	ErrConfiguration         = errors.New("actor configuration error")
	ErrUnknownActorType      = errors.New("unknown actor type")
	ErrDuplicateRegistration = errors.New("actor type already registered")
	ErrUnknownModule         = errors.New("unknown actor module")
	ErrClosed                = errors.New("actor closed")
	ErrRunning               = errors.New("actor already running")
)

// Implementation is the capability set a concrete actor type provides.
// The Controller calls every method from its own goroutine.
type Implementation interface {
	fmt.Stringer

	// Env returns the environment manager stepped by the run loop.
	Env() env.Manager
	// InitWithJob prepares a new job: typically refresh the agent and
	// reset the environment with the job's seed.
	InitWithJob(ctx context.Context, job comm.Job) error
	AgentInference(obs env.Observation) (env.Action, error)
	EnvStep(action env.Action) (env.Timestep, error)
	// ProcessTimestep consumes one timestep, usually appending it to the
	// trajectory buffer and flushing when a segment is full.
	ProcessTimestep(ctx context.Context, ts env.Timestep) error
	// PackTrajectory turns the buffered steps into a segment and clears
	// the buffer.
	PackTrajectory() (buffer.TrajMetadata, buffer.TrajStepData)
	UpdateAgent(info comm.AgentUpdateInfo) error
	// Reset runs after every episode: flush what is left and get ready for
	// the next episode.
	Reset(ctx context.Context) error
	// JobResult summarizes the job once all its episodes have run.
	JobResult() comm.JobResult
}

// Deps are handed to a Factory when an actor is constructed.
type Deps struct {
	ID     string
	Comm   comm.Helper
	Logger Logger
}

// State is the controller's lifecycle stage.
type State int32

const (
	StateUninitialized State = iota
	StateServiceReady
	StateJobActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateServiceReady:
		return "SERVICE_READY"
	case StateJobActive:
		return "JOB_ACTIVE"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
