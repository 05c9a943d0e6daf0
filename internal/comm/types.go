package comm

import (
	stdjson "encoding/json"
	"fmt"
	"time"
)

// Job is a unit of work assigned to one actor by the coordinator.
type Job struct {
	ID            string            `json:"job_id"`
	ActorID       string            `json:"actor_id"`
	EnvSeed       int64             `json:"env_seed"`
	EpisodeNum    int               `json:"episode_num"`
	PolicyVersion int64             `json:"policy_version"`
	CreatedAtMs   int64             `json:"created_at_ms"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// Episodes is the number of episodes to run for this job, at least one.
func (j Job) Episodes() int {
	if j.EpisodeNum < 1 {
		return 1
	}
	return j.EpisodeNum
}

func (j Job) String() string {
	return fmt.Sprintf("job_id=%s actor_id=%s env_seed=%d episodes=%d policy_version=%d created_at=%s",
		j.ID, j.ActorID, j.EnvSeed, j.Episodes(), j.PolicyVersion,
		time.UnixMilli(j.CreatedAtMs).UTC().Format(time.RFC3339))
}

// AgentUpdateInfo carries the latest agent parameters. Weights are opaque to
// the transport; an empty Weights means no parameters have been published.
type AgentUpdateInfo struct {
	Version int64              `json:"version"`
	Weights stdjson.RawMessage `json:"weights,omitempty"`
}

func (a AgentUpdateInfo) Empty() bool {
	return len(a.Weights) == 0
}

// JobResult summarizes a finished job.
type JobResult struct {
	ActorID        string    `json:"actor_id"`
	JobID          string    `json:"job_id"`
	Episodes       int       `json:"episodes"`
	EpisodeRewards []float64 `json:"episode_rewards"`
	MeanReward     float64   `json:"mean_reward"`
	TotalSteps     int       `json:"total_steps"`
	DurationMs     int64     `json:"duration_ms"`
}
