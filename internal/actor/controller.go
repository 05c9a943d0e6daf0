package actor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"distributed-actor-rl/internal/comm"
	"distributed-actor-rl/internal/config"
	"distributed-actor-rl/internal/env"
	"distributed-actor-rl/internal/metrics"
)

// Names of the metrics recorded for every job.
const (
	VarAgentTime    = "agent_time"
	VarEnvTime      = "env_time"
	VarTimestepSize = "timestep_size"
	VarNormEnvTime  = "norm_env_time"
)

const bytesPerMB = 1024 * 1024

// minTimestepMB floors the size used to normalize env_time at one byte, so
// an empty timestep cannot divide by zero.
const minTimestepMB = 1.0 / bytesPerMB

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Controller drives one actor through
// UNINITIALIZED -> SERVICE_READY -> JOB_ACTIVE -> CLOSED.
//
// Run must be called from a single goroutine. Close may be called from any
// goroutine; it takes effect between episodes.
type Controller struct {
	id     string
	cfg    *config.Config
	impl   Implementation
	comm   comm.Helper
	logger Logger

	agentTimer *metrics.Timer
	envTimer   *metrics.Timer
	record     *metrics.VariableRecord

	state   atomic.Int32
	endFlag atomic.Bool
	running atomic.Bool

	closeOnce sync.Once

	job       comm.Job
	jobStart  time.Time
	episodes  int
	iterCount int
	jobsDone  int
}

// Option customizes construction, mostly for tests.
type Option func(*options)

type options struct {
	comm   comm.Helper
	logger Logger
}

// WithComm uses h instead of building a helper from configuration.
func WithComm(h comm.Helper) Option {
	return func(o *options) { o.comm = h }
}

// WithLogger uses l instead of the per-actor log file.
func WithLogger(l Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds a controller around the implementation produced by factory.
// The communication mode is validated before anything else is created.
func New(cfg *config.Config, factory Factory, opts ...Option) (*Controller, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: nil factory", ErrConfiguration)
	}
	if err := comm.Resolve(cfg.Actor.Communication.Type); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	uid, err := uuid.NewUUID()
	if err != nil {
		return nil, fmt.Errorf("generate actor id: %w", err)
	}
	c := &Controller{
		id:         uid.String(),
		cfg:        cfg,
		agentTimer: metrics.NewTimer(),
		envTimer:   metrics.NewTimer(),
		record:     metrics.NewVariableRecord(cfg.Actor.PrintFreq),
	}

	c.logger = o.logger
	if c.logger == nil {
		fl, err := NewFileLogger(filepath.Join(cfg.Common.SavePath, "log"), c.id)
		if err != nil {
			return nil, err
		}
		c.logger = fl
	}

	c.comm = o.comm
	if c.comm == nil {
		h, err := comm.New(cfg.Actor.Communication, c.id)
		if err != nil {
			c.closeLogger()
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		c.comm = h
	}

	impl, err := factory(cfg, Deps{ID: c.id, Comm: c.comm, Logger: c.logger})
	if err != nil {
		_ = c.comm.CloseService()
		c.closeLogger()
		return nil, fmt.Errorf("create actor %s: %w", cfg.Actor.ActorType, err)
	}
	c.impl = impl
	c.logger.Infof("ACTOR(%s): created %s, communication=%s", c.id, impl, cfg.Actor.Communication.Type)
	return c, nil
}

func (c *Controller) ID() string { return c.id }

func (c *Controller) State() State { return State(c.state.Load()) }

// Iteration is the number of steps taken in the current job.
func (c *Controller) Iteration() int { return c.iterCount }

// Record exposes the current job's metrics.
func (c *Controller) Record() *metrics.VariableRecord { return c.record }

func (c *Controller) String() string {
	return fmt.Sprintf("ACTOR(%s)[%s]", c.id, c.impl)
}

// Run connects to the coordinator and works through jobs until Close is
// called, ctx is cancelled or an error occurs. Errors are returned as they
// happened; the service is closed on every exit path and the controller
// cannot be run again.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer func() {
		c.endFlag.Store(true)
		c.running.Store(false)
		c.closeService()
	}()
	if c.endFlag.Load() {
		return ErrClosed
	}

	if err := c.comm.InitService(ctx); err != nil {
		return err
	}
	c.state.Store(int32(StateServiceReady))

	job, err := c.comm.GetJob(ctx)
	if err != nil {
		return err
	}
	if err := c.initWithJob(ctx, job); err != nil {
		return err
	}

	for !c.endFlag.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.runEpisode(ctx); err != nil {
			return err
		}
		if err := c.impl.Reset(ctx); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		c.episodes++
		// a close between episodes still reports what the job has done
		if c.episodes < c.job.Episodes() && !c.endFlag.Load() {
			continue
		}

		if err := c.finishJob(ctx); err != nil {
			return err
		}
		if c.endFlag.Load() {
			break
		}
		job, err := c.comm.GetJob(ctx)
		if err != nil {
			return err
		}
		if err := c.initWithJob(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

// Close asks the actor to stop once the current episode is over. If no run
// loop is active the service is closed right away. Safe to call repeatedly
// and in any state.
func (c *Controller) Close() error {
	c.endFlag.Store(true)
	if !c.running.Load() {
		c.closeService()
	}
	return nil
}

func (c *Controller) closeService() {
	c.closeOnce.Do(func() {
		if err := c.comm.CloseService(); err != nil {
			c.logger.Warningf("ACTOR(%s): close service: %v", c.id, err)
		}
		c.state.Store(int32(StateClosed))
		c.logger.Infof("ACTOR(%s): closed after %d jobs", c.id, c.jobsDone)
		c.closeLogger()
	})
}

func (c *Controller) closeLogger() {
	if closer, ok := c.logger.(io.Closer); ok {
		_ = closer.Close()
	}
}

func (c *Controller) initWithJob(ctx context.Context, job comm.Job) error {
	c.job = job
	c.jobStart = time.Now()
	c.episodes = 0
	c.iterCount = 0
	c.record = metrics.NewVariableRecord(c.cfg.Actor.PrintFreq)
	for _, name := range []string{VarAgentTime, VarEnvTime, VarTimestepSize, VarNormEnvTime} {
		if err := c.record.Register(name); err != nil {
			return err
		}
	}
	c.logger.Infof("ACTOR(%s): JOB INFO:\n%s", c.id, job)

	if err := c.impl.InitWithJob(ctx, job); err != nil {
		return fmt.Errorf("init job %s: %w", job.ID, err)
	}
	c.state.Store(int32(StateJobActive))
	return nil
}

// runEpisode steps the environment until it reports done.
func (c *Controller) runEpisode(ctx context.Context) error {
	manager := c.impl.Env()
	for {
		obs := manager.NextObs()
		action, err := c.agentInference(obs)
		if err != nil {
			return fmt.Errorf("agent inference: %w", err)
		}
		ts, err := c.envStep(action)
		if err != nil {
			return fmt.Errorf("env step: %w", err)
		}
		if err := c.impl.ProcessTimestep(ctx, ts); err != nil {
			return fmt.Errorf("process timestep: %w", err)
		}
		c.iterAfterHook()
		if manager.Done() {
			return nil
		}
	}
}

func (c *Controller) agentInference(obs env.Observation) (env.Action, error) {
	var action env.Action
	err := c.agentTimer.Time(func() error {
		var err error
		action, err = c.impl.AgentInference(obs)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := c.record.Update(map[string]float64{VarAgentTime: c.agentTimer.Value()}); err != nil {
		return nil, err
	}
	return action, nil
}

func (c *Controller) envStep(action env.Action) (env.Timestep, error) {
	var ts env.Timestep
	err := c.envTimer.Time(func() error {
		var err error
		ts, err = c.impl.EnvStep(action)
		return err
	})
	if err != nil {
		return env.Timestep{}, err
	}
	envTime := c.envTimer.Value()
	values := map[string]float64{VarEnvTime: envTime}
	if size, ok := timestepMB(ts); ok {
		values[VarTimestepSize] = size
		values[VarNormEnvTime] = normEnvTime(envTime, size)
	} else {
		c.logger.Warningf("ACTOR(%s): timestep not encodable, size metrics skipped", c.id)
	}
	if err := c.record.Update(values); err != nil {
		return env.Timestep{}, err
	}
	return ts, nil
}

// timestepMB is the size of the encoded timestep in megabytes. ok is false
// when the timestep cannot be encoded.
func timestepMB(ts env.Timestep) (size float64, ok bool) {
	raw, err := json.Marshal(ts)
	if err != nil {
		return 0, false
	}
	return float64(len(raw)) / bytesPerMB, true
}

func normEnvTime(envTime, sizeMB float64) float64 {
	return envTime / max(sizeMB, minTimestepMB)
}

func (c *Controller) iterAfterHook() {
	if c.iterCount%c.cfg.Actor.PrintFreq == 0 {
		bar := strings.Repeat("=", 35)
		c.logger.Infof("ACTOR(%s):\n%sTimeStep%d%s %s", c.id, bar, c.iterCount, bar, c.record.SummaryText())
	}
	c.iterCount++
}

func (c *Controller) finishJob(ctx context.Context) error {
	result := c.impl.JobResult()
	result.ActorID = c.id
	result.JobID = c.job.ID
	result.DurationMs = time.Since(c.jobStart).Milliseconds()
	if err := c.comm.SendResult(ctx, result); err != nil {
		return fmt.Errorf("send result for job %s: %w", c.job.ID, err)
	}
	c.jobsDone++
	c.logger.Infof("ACTOR(%s): JOB %s DONE episodes=%d steps=%d mean_reward=%.3f",
		c.id, c.job.ID, result.Episodes, result.TotalSteps, result.MeanReward)

	if c.cfg.Actor.PlotMetrics {
		if err := c.plotMetrics(); err != nil {
			c.logger.Warningf("ACTOR(%s): plot metrics: %v", c.id, err)
		}
	}
	return nil
}

func (c *Controller) plotMetrics() error {
	dir := filepath.Join(c.cfg.Common.SavePath, "plots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	file := filepath.Join(dir, fmt.Sprintf("actor.%s.%s.png", c.id, c.job.ID))
	return c.record.Plot(fmt.Sprintf("actor %s job %s", c.id, c.job.ID), file)
}
