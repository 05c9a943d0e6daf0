package buffer

import (
	"fmt"

	"distributed-actor-rl/internal/env"
)

// Step is one recorded transition. Observations are flat vectors and
// actions are discrete indices.
type Step struct {
	Obs     []float64 `json:"obs"`
	Action  int       `json:"action"`
	Reward  float64   `json:"reward"`
	Done    bool      `json:"done"`
	LogProb float64   `json:"log_prob"`
	Value   float64   `json:"value"`
}

// TrajMetadata describes a trajectory segment. It is sent before the
// matching TrajStepData.
type TrajMetadata struct {
	ActorID       string          `json:"actor_id"`
	JobID         string          `json:"job_id"`
	EpisodeID     int             `json:"episode_id"`
	Segment       int             `json:"segment"`
	Length        int             `json:"length"`
	EpisodeReward float64         `json:"episode_reward"`
	Done          bool            `json:"done"`
	ObsInfo       env.ElementInfo `json:"obs_info"`
	ActionInfo    env.ElementInfo `json:"action_info"`
	PolicyVersion int64           `json:"policy_version"`
	CreatedAtMs   int64           `json:"created_at_ms"`
}

type TrajStepData struct {
	ActorID   string `json:"actor_id"`
	JobID     string `json:"job_id"`
	EpisodeID int    `json:"episode_id"`
	Segment   int    `json:"segment"`
	Steps     []Step `json:"steps"`
}

// Key identifies a segment across its metadata and step data.
func (m TrajMetadata) Key() string {
	return segmentKey(m.ActorID, m.JobID, m.EpisodeID, m.Segment)
}

func (d TrajStepData) Key() string {
	return segmentKey(d.ActorID, d.JobID, d.EpisodeID, d.Segment)
}

func segmentKey(actorID, jobID string, episode, segment int) string {
	return fmt.Sprintf("%s/%s/%d/%d", actorID, jobID, episode, segment)
}

// Trajectory is a segment with its metadata, as consumed by the learner.
type Trajectory struct {
	Meta  TrajMetadata `json:"meta"`
	Steps []Step       `json:"steps"`
}

type DequeueResponse struct {
	Trajectories []Trajectory `json:"trajectories"`
}
