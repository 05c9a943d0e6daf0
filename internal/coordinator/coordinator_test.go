package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distributed-actor-rl/internal/buffer"
	"distributed-actor-rl/internal/comm"
)

func newCoordinator(t *testing.T, mutate func(*Config)) *Coordinator {
	cfg := DefaultConfig()
	cfg.Capacity = 4
	cfg.EpisodesPerJob = 3
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func segment(job string, seg, length int) (buffer.TrajMetadata, buffer.TrajStepData) {
	meta := buffer.TrajMetadata{ActorID: "a", JobID: job, Segment: seg, Length: length}
	data := buffer.TrajStepData{ActorID: "a", JobID: job, Segment: seg, Steps: make([]buffer.Step, length)}
	return meta, data
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	for _, mutate := range []func(*Config){
		func(c *Config) { c.Capacity = 0 },
		func(c *Config) { c.EpisodesPerJob = 0 },
		func(c *Config) { c.MaxJobs = -1 },
	} {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	}
	cfg := DefaultConfig()
	cfg.Policy = "lifo"
	_, err := New(cfg)
	assert.ErrorIs(t, err, buffer.ErrInvalidPolicy)
}

func TestNextJob(t *testing.T) {
	c := newCoordinator(t, func(cfg *Config) {
		cfg.MaxJobs = 2
		cfg.BaseSeed = 100
	})

	first, err := c.NextJob("actor-1")
	require.NoError(t, err)
	second, err := c.NextJob("actor-2")
	require.NoError(t, err)
	_, err = c.NextJob("actor-3")
	assert.ErrorIs(t, err, ErrNoJob)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "actor-1", first.ActorID)
	assert.Equal(t, 3, first.EpisodeNum)
	assert.Equal(t, int64(100), first.EnvSeed)
	assert.Equal(t, int64(103), second.EnvSeed)
	assert.Equal(t, 2, c.Stats().JobsIssued)
}

func TestAgentVersions(t *testing.T) {
	c := newCoordinator(t, nil)
	assert.True(t, c.Agent().Empty())

	assert.Equal(t, int64(1), c.PublishAgent([]byte(`{"b":[0,1]}`)))
	assert.Equal(t, int64(2), c.PublishAgent([]byte(`{"b":[1,0]}`)))
	info := c.Agent()
	assert.Equal(t, int64(2), info.Version)
	assert.JSONEq(t, `{"b":[1,0]}`, string(info.Weights))

	job, err := c.NextJob("a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), job.PolicyVersion)
}

func TestSegmentsJoinIntoReplay(t *testing.T) {
	c := newCoordinator(t, nil)

	meta, data := segment("j1", 0, 5)
	_, err := c.AddStepData(data)
	assert.ErrorIs(t, err, ErrUnknownSegment)

	c.AddMetadata(meta)
	assert.Equal(t, 1, c.Stats().PendingSegments)
	kept, err := c.AddStepData(data)
	require.NoError(t, err)
	assert.True(t, kept)

	stats := c.Stats()
	assert.Equal(t, 0, stats.PendingSegments)
	assert.Equal(t, 1, stats.QueueLength)

	item, err := c.Replay().Dequeue()
	require.NoError(t, err)
	assert.Equal(t, "j1", item.Trajectory.Meta.JobID)
	assert.Len(t, item.Trajectory.Steps, 5)
}

func TestSegmentLengthMismatch(t *testing.T) {
	c := newCoordinator(t, nil)
	meta, data := segment("j1", 0, 5)
	meta.Length = 4
	c.AddMetadata(meta)
	_, err := c.AddStepData(data)
	assert.ErrorIs(t, err, ErrSegmentMismatch)
	assert.Equal(t, 0, c.Replay().Size())
	stats := c.Stats()
	assert.Equal(t, 0, stats.Segments)
	assert.Equal(t, 0, stats.PendingSegments)

	meta, data = segment("j1", 1, 3)
	c.AddMetadata(meta)
	kept, err := c.AddStepData(data)
	require.NoError(t, err)
	assert.True(t, kept)
	assert.Equal(t, 1, c.Stats().Segments)
}

func TestFullReplayDrops(t *testing.T) {
	c := newCoordinator(t, func(cfg *Config) { cfg.Capacity = 1 })
	for seg := 0; seg < 3; seg++ {
		meta, data := segment("j1", seg, 1)
		c.AddMetadata(meta)
		kept, err := c.AddStepData(data)
		require.NoError(t, err)
		assert.Equal(t, seg == 0, kept)
	}
	stats := c.Stats()
	assert.Equal(t, 1, stats.QueueLength)
	assert.Equal(t, 2, stats.Dropped)

	values, err := c.Metrics().Gather()
	require.NoError(t, err)
	assert.Equal(t, 2.0, values["coordinator_segments_dropped_total"])
	assert.Equal(t, 1.0, values["coordinator_replay_queue_length"])
}

func TestResults(t *testing.T) {
	c := newCoordinator(t, nil)
	c.AddResult(comm.JobResult{JobID: "j1", MeanReward: 10})
	c.AddResult(comm.JobResult{JobID: "j2", MeanReward: 20})

	stats := c.Stats()
	assert.Equal(t, 2, stats.Results)
	assert.InDelta(t, 15.0, stats.MeanReward, 1e-9)

	last := c.Results(1)
	require.Len(t, last, 1)
	assert.Equal(t, "j2", last[0].JobID)
	assert.Len(t, c.Results(0), 2)
}
