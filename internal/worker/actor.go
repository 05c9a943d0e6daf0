// Package worker provides the built-in "cartpole" actor type: a cart-pole
// environment driven by a linear softmax policy, shipping trajectory
// segments of traj_len steps.
package worker

import (
	"context"
	"fmt"
	mrand "math/rand"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"

	"distributed-actor-rl/internal/actor"
	"distributed-actor-rl/internal/buffer"
	"distributed-actor-rl/internal/cartpole"
	"distributed-actor-rl/internal/comm"
	"distributed-actor-rl/internal/config"
	"distributed-actor-rl/internal/env"
)

// ActorType is the registry name of the cart-pole actor.
const ActorType = "cartpole"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Register adds the built-in actor types to reg.
func Register(reg *actor.Registry) error {
	return reg.Register(ActorType, NewCartpoleActor)
}

type CartpoleActor struct {
	id      string
	comm    comm.Helper
	logger  actor.Logger
	trajLen int

	env    *cartpole.Env
	policy *Policy

	job comm.Job

	// pending inference output for the step being taken
	obs     []float64
	action  int
	logProb float64
	value   float64

	steps         []buffer.Step
	episodeID     int
	segment       int
	episodeReward float64

	episodeRewards []float64
	totalSteps     int
}

var _ actor.Implementation = (*CartpoleActor)(nil)

func NewCartpoleActor(cfg *config.Config, deps actor.Deps) (actor.Implementation, error) {
	if deps.Comm == nil {
		return nil, fmt.Errorf("cartpole actor: no communication helper")
	}
	seed := cfg.Actor.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &CartpoleActor{
		id:      deps.ID,
		comm:    deps.Comm,
		logger:  deps.Logger,
		trajLen: cfg.Actor.TrajLen,
		env:     cartpole.NewEnv(mrand.New(mrand.NewSource(seed))),
		policy:  NewPolicy(DefaultWeights(), rand.NewSource(uint64(seed))),
		steps:   make([]buffer.Step, 0, cfg.Actor.TrajLen),
	}, nil
}

func (a *CartpoleActor) String() string { return "CartpoleActor" }

func (a *CartpoleActor) Env() env.Manager { return a.env }

// Policy exposes the current policy.
func (a *CartpoleActor) Policy() *Policy { return a.policy }

func (a *CartpoleActor) InitWithJob(ctx context.Context, job comm.Job) error {
	a.job = job
	a.steps = a.steps[:0]
	a.episodeID = 0
	a.segment = 0
	a.episodeReward = 0
	a.episodeRewards = a.episodeRewards[:0]
	a.totalSteps = 0

	info, err := a.comm.GetAgentUpdateInfo(ctx)
	if err != nil {
		return fmt.Errorf("fetch agent: %w", err)
	}
	if err := a.UpdateAgent(info); err != nil {
		return err
	}
	return a.env.Reset(job.EnvSeed)
}

func (a *CartpoleActor) AgentInference(obs env.Observation) (env.Action, error) {
	state, ok := obs.([]float64)
	if !ok || len(state) != cartpole.ObsSize {
		return nil, fmt.Errorf("cartpole actor: unexpected observation %T", obs)
	}
	a.obs = state
	a.action, a.logProb, a.value = a.policy.Action(state)
	return a.action, nil
}

func (a *CartpoleActor) EnvStep(action env.Action) (env.Timestep, error) {
	return a.env.Step(action)
}

// ProcessTimestep appends the step and ships a segment once traj_len steps
// are buffered.
func (a *CartpoleActor) ProcessTimestep(ctx context.Context, ts env.Timestep) error {
	a.steps = append(a.steps, buffer.Step{
		Obs:     a.obs,
		Action:  a.action,
		Reward:  ts.Reward,
		Done:    ts.Done,
		LogProb: a.logProb,
		Value:   a.value,
	})
	a.episodeReward += ts.Reward
	a.totalSteps++
	if len(a.steps) >= a.trajLen {
		return a.flush(ctx)
	}
	return nil
}

func (a *CartpoleActor) PackTrajectory() (buffer.TrajMetadata, buffer.TrajStepData) {
	steps := make([]buffer.Step, len(a.steps))
	copy(steps, a.steps)
	a.steps = a.steps[:0]

	info := a.env.Info()
	meta := buffer.TrajMetadata{
		ActorID:       a.id,
		JobID:         a.job.ID,
		EpisodeID:     a.episodeID,
		Segment:       a.segment,
		Length:        len(steps),
		EpisodeReward: a.episodeReward,
		Done:          len(steps) > 0 && steps[len(steps)-1].Done,
		ObsInfo:       info.Obs,
		ActionInfo:    info.Action,
		PolicyVersion: a.policy.Version,
		CreatedAtMs:   time.Now().UnixMilli(),
	}
	data := buffer.TrajStepData{
		ActorID:   a.id,
		JobID:     a.job.ID,
		EpisodeID: a.episodeID,
		Segment:   a.segment,
		Steps:     steps,
	}
	a.segment++
	return meta, data
}

// flush sends the buffered steps, metadata first.
func (a *CartpoleActor) flush(ctx context.Context) error {
	if len(a.steps) == 0 {
		return nil
	}
	meta, data := a.PackTrajectory()
	if err := a.comm.SendTrajMetadata(ctx, meta); err != nil {
		return err
	}
	return a.comm.SendTrajStepData(ctx, data)
}

// UpdateAgent installs newer weights. Empty or stale updates are ignored.
func (a *CartpoleActor) UpdateAgent(info comm.AgentUpdateInfo) error {
	if info.Empty() || info.Version <= a.policy.Version {
		return nil
	}
	var weights PolicyWeights
	if err := json.Unmarshal(info.Weights, &weights); err != nil {
		return fmt.Errorf("%w: %v", ErrBadWeights, err)
	}
	if err := weights.Validate(); err != nil {
		return err
	}
	a.policy.Weights = weights
	a.policy.Version = info.Version
	if a.logger != nil {
		a.logger.Infof("ACTOR(%s): policy updated to version %d", a.id, info.Version)
	}
	return nil
}

// Reset ships the rest of the episode and starts the next one. Episodes of
// a job use consecutive seeds starting at the job's env_seed.
func (a *CartpoleActor) Reset(ctx context.Context) error {
	if err := a.flush(ctx); err != nil {
		return err
	}
	a.episodeRewards = append(a.episodeRewards, a.episodeReward)
	a.episodeReward = 0
	a.episodeID++
	a.segment = 0
	return a.env.Reset(a.job.EnvSeed + int64(a.episodeID))
}

func (a *CartpoleActor) JobResult() comm.JobResult {
	rewards := make([]float64, len(a.episodeRewards))
	copy(rewards, a.episodeRewards)
	var mean float64
	if len(rewards) > 0 {
		mean = stat.Mean(rewards, nil)
	}
	return comm.JobResult{
		Episodes:       len(rewards),
		EpisodeRewards: rewards,
		MeanReward:     mean,
		TotalSteps:     a.totalSteps,
	}
}
