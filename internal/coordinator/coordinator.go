// Package coordinator hands out jobs to actors, serves agent parameters and
// collects the trajectories and job results actors send back. Trajectory
// segments are joined (metadata + step data) and kept in a replay buffer
// until a learner dequeues them.
package coordinator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"distributed-actor-rl/internal/buffer"
	"distributed-actor-rl/internal/comm"
)

var (
	ErrNoJob           = errors.New("no job available")
	ErrUnknownSegment  = errors.New("step data without metadata")
	ErrSegmentMismatch = errors.New("step count does not match metadata")
	ErrInvalidConfig   = errors.New("invalid coordinator config")
)

const resultHistory = 1024

type Config struct {
	Port           int    `yaml:"port"`
	Capacity       int    `yaml:"capacity"`
	Policy         string `yaml:"policy"`
	EpisodesPerJob int    `yaml:"episodes_per_job"`
	// MaxJobs stops issuing jobs once reached. 0 means unlimited.
	MaxJobs  int   `yaml:"max_jobs"`
	BaseSeed int64 `yaml:"base_seed"`
}

func DefaultConfig() Config {
	return Config{
		Port:           9001,
		Capacity:       2048,
		Policy:         buffer.PolicyFIFO,
		EpisodesPerJob: 1,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be > 0", ErrInvalidConfig)
	case c.EpisodesPerJob < 1:
		return fmt.Errorf("%w: episodes_per_job must be >= 1", ErrInvalidConfig)
	case c.MaxJobs < 0:
		return fmt.Errorf("%w: max_jobs must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// Coordinator holds the shared state behind the HTTP API and the Redis
// bridge. It is safe for concurrent use.
type Coordinator struct {
	replay  *buffer.ReplayBuffer
	metrics *Metrics

	lock           *sync.Mutex
	episodesPerJob int
	maxJobs        int
	nextSeed       int64
	jobsIssued     int
	agent          comm.AgentUpdateInfo
	pending        map[string]buffer.TrajMetadata
	results        []comm.JobResult
	resultsTotal   int
	segments       int
}

func New(cfg Config) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	replay, err := buffer.NewReplayBuffer(cfg.Capacity, cfg.Policy)
	if err != nil {
		return nil, err
	}
	c := &Coordinator{
		replay:         replay,
		lock:           new(sync.Mutex),
		episodesPerJob: cfg.EpisodesPerJob,
		maxJobs:        cfg.MaxJobs,
		nextSeed:       cfg.BaseSeed,
		pending:        make(map[string]buffer.TrajMetadata),
		results:        make([]comm.JobResult, 0),
	}
	c.metrics = newMetrics(c)
	return c, nil
}

func (c *Coordinator) Replay() *buffer.ReplayBuffer { return c.replay }

func (c *Coordinator) Metrics() *Metrics { return c.metrics }

// NextJob issues a new job for actorID. Every job gets a fresh seed.
func (c *Coordinator) NextJob(actorID string) (comm.Job, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.maxJobs > 0 && c.jobsIssued >= c.maxJobs {
		return comm.Job{}, ErrNoJob
	}
	job := comm.Job{
		ID:            uuid.NewString(),
		ActorID:       actorID,
		EnvSeed:       c.nextSeed,
		EpisodeNum:    c.episodesPerJob,
		PolicyVersion: c.agent.Version,
		CreatedAtMs:   time.Now().UnixMilli(),
	}
	c.nextSeed += int64(c.episodesPerJob)
	c.jobsIssued++
	c.metrics.jobsIssued.Inc()
	return job, nil
}

func (c *Coordinator) Agent() comm.AgentUpdateInfo {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.agent
}

// PublishAgent stores new weights under the next version and returns it.
func (c *Coordinator) PublishAgent(weights []byte) int64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.agent = comm.AgentUpdateInfo{
		Version: c.agent.Version + 1,
		Weights: append([]byte(nil), weights...),
	}
	c.metrics.agentVersion.Set(float64(c.agent.Version))
	return c.agent.Version
}

// AddMetadata records a segment's metadata until its step data arrives.
func (c *Coordinator) AddMetadata(meta buffer.TrajMetadata) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.pending[meta.Key()] = meta
}

// AddStepData joins data with its metadata and enqueues the trajectory.
// It reports whether the trajectory was kept; a full buffer drops it.
func (c *Coordinator) AddStepData(data buffer.TrajStepData) (bool, error) {
	c.lock.Lock()
	meta, ok := c.pending[data.Key()]
	if !ok {
		c.lock.Unlock()
		return false, fmt.Errorf("%w: %s", ErrUnknownSegment, data.Key())
	}
	delete(c.pending, data.Key())
	if meta.Length != len(data.Steps) {
		c.lock.Unlock()
		return false, fmt.Errorf("%w: %s has %d steps, metadata says %d",
			ErrSegmentMismatch, data.Key(), len(data.Steps), meta.Length)
	}
	c.segments++
	c.lock.Unlock()
	c.metrics.segments.Inc()
	c.metrics.steps.Add(float64(len(data.Steps)))

	item := buffer.Item{
		Trajectory: buffer.Trajectory{Meta: meta, Steps: data.Steps},
		EnqueuedAt: time.Now(),
	}
	if err := c.replay.Enqueue(item); err != nil {
		if errors.Is(err, buffer.ErrBufferFull) {
			c.metrics.dropped.Inc()
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Coordinator) AddResult(result comm.JobResult) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.results = append(c.results, result)
	if len(c.results) > resultHistory {
		c.results = c.results[len(c.results)-resultHistory:]
	}
	c.resultsTotal++
	c.metrics.results.Inc()
	c.metrics.meanReward.Set(result.MeanReward)
}

// Results returns up to n of the most recent job results, oldest first.
func (c *Coordinator) Results(n int) []comm.JobResult {
	c.lock.Lock()
	defer c.lock.Unlock()
	if n <= 0 || n > len(c.results) {
		n = len(c.results)
	}
	out := make([]comm.JobResult, n)
	copy(out, c.results[len(c.results)-n:])
	return out
}

func (c *Coordinator) EpisodesPerJob() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.episodesPerJob
}

func (c *Coordinator) SetEpisodesPerJob(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: episodes_per_job must be >= 1", ErrInvalidConfig)
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	c.episodesPerJob = n
	return nil
}

type Stats struct {
	QueueLength     int     `json:"queue_length"`
	Capacity        int     `json:"capacity"`
	Policy          string  `json:"policy"`
	Dropped         int     `json:"dropped"`
	PendingSegments int     `json:"pending_segments"`
	Segments        int     `json:"segments"`
	JobsIssued      int     `json:"jobs_issued"`
	Results         int     `json:"results"`
	MeanReward      float64 `json:"mean_reward"`
	AgentVersion    int64   `json:"agent_version"`
}

// Stats summarizes the coordinator. MeanReward averages the retained job
// results.
func (c *Coordinator) Stats() Stats {
	c.lock.Lock()
	defer c.lock.Unlock()
	var mean float64
	if len(c.results) > 0 {
		rewards := make([]float64, len(c.results))
		for i, r := range c.results {
			rewards[i] = r.MeanReward
		}
		mean = stat.Mean(rewards, nil)
	}
	return Stats{
		QueueLength:     c.replay.Size(),
		Capacity:        c.replay.Capacity(),
		Policy:          c.replay.Policy(),
		Dropped:         c.replay.Dropped(),
		PendingSegments: len(c.pending),
		Segments:        c.segments,
		JobsIssued:      c.jobsIssued,
		Results:         c.resultsTotal,
		MeanReward:      mean,
		AgentVersion:    c.agent.Version,
	}
}
