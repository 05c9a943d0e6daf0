package coordinator_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distributed-actor-rl/internal/actor"
	"distributed-actor-rl/internal/buffer"
	"distributed-actor-rl/internal/comm"
	"distributed-actor-rl/internal/config"
	"distributed-actor-rl/internal/coordinator"
	"distributed-actor-rl/internal/worker"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func startServer(t *testing.T, mutate func(*coordinator.Config)) (*coordinator.Coordinator, *httptest.Server) {
	cfg := coordinator.DefaultConfig()
	cfg.EpisodesPerJob = 2
	if mutate != nil {
		mutate(&cfg)
	}
	coord, err := coordinator.New(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(coordinator.NewServer(coord, 0).Handler())
	t.Cleanup(srv.Close)
	return coord, srv
}

func do(t *testing.T, method, url, body string) (int, []byte) {
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func TestHealthAndJobs(t *testing.T) {
	_, srv := startServer(t, func(cfg *coordinator.Config) { cfg.MaxJobs = 1 })

	status, body := do(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", string(body))

	status, body = do(t, http.MethodGet, srv.URL+"/job?actor_id=a1", "")
	require.Equal(t, http.StatusOK, status)
	var job comm.Job
	require.NoError(t, json.Unmarshal(body, &job))
	assert.Equal(t, "a1", job.ActorID)
	assert.Equal(t, 2, job.EpisodeNum)
	assert.NotEmpty(t, job.ID)

	status, _ = do(t, http.MethodGet, srv.URL+"/job?actor_id=a1", "")
	assert.Equal(t, http.StatusNoContent, status)
}

func TestAgentEndpoints(t *testing.T) {
	_, srv := startServer(t, nil)

	status, _ := do(t, http.MethodGet, srv.URL+"/agent", "")
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = do(t, http.MethodPost, srv.URL+"/agent", "not json")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := do(t, http.MethodPost, srv.URL+"/agent", `{"b":[0,1]}`)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"version":1}`, string(body))

	cfg := comm.DefaultConfig()
	cfg.CoordinatorURL = srv.URL
	h := comm.NewHTTPHelper(cfg, "a1")
	defer h.CloseService()
	info, err := h.GetAgentUpdateInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Version)
	assert.JSONEq(t, `{"b":[0,1]}`, string(info.Weights))
}

func TestTrajectoryEndpoints(t *testing.T) {
	_, srv := startServer(t, nil)

	meta := buffer.TrajMetadata{ActorID: "a", JobID: "j", Length: 2}
	data := buffer.TrajStepData{ActorID: "a", JobID: "j", Steps: make([]buffer.Step, 2)}
	rawMeta, _ := json.Marshal(meta)
	rawData, _ := json.Marshal(data)

	status, _ := do(t, http.MethodPost, srv.URL+"/traj/stepdata", string(rawData))
	assert.Equal(t, http.StatusConflict, status)

	status, _ = do(t, http.MethodPost, srv.URL+"/traj/metadata", string(rawMeta))
	assert.Equal(t, http.StatusAccepted, status)
	status, body := do(t, http.MethodPost, srv.URL+"/traj/stepdata", string(rawData))
	assert.Equal(t, http.StatusAccepted, status)
	assert.JSONEq(t, `{"dropped":false}`, string(body))

	status, body = do(t, http.MethodGet, srv.URL+"/dequeue?batch_size=5", "")
	require.Equal(t, http.StatusOK, status)
	var resp buffer.DequeueResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Len(t, resp.Trajectories, 1)
	assert.Equal(t, "j", resp.Trajectories[0].Meta.JobID)

	status, _ = do(t, http.MethodGet, srv.URL+"/dequeue", "")
	assert.Equal(t, http.StatusNoContent, status)
}

func TestConfigEndpoint(t *testing.T) {
	coord, srv := startServer(t, nil)

	status, _ := do(t, http.MethodPost, srv.URL+"/config", `{"policy":"freshness","episodes_per_job":4}`)
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, buffer.PolicyFreshness, coord.Replay().Policy())
	assert.Equal(t, 4, coord.EpisodesPerJob())

	status, _ = do(t, http.MethodPost, srv.URL+"/config", `{"policy":"lifo"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = do(t, http.MethodPost, srv.URL+"/config", `{"policy":7}`)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = do(t, http.MethodPost, srv.URL+"/config", `{"episodes_per_job":0}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := do(t, http.MethodGet, srv.URL+"/config", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"policy":"freshness","capacity":2048,"episodes_per_job":4}`, string(body))
}

// An actor talks to a real coordinator over HTTP until jobs run out.
func TestActorAgainstCoordinator(t *testing.T) {
	coord, srv := startServer(t, func(cfg *coordinator.Config) { cfg.MaxJobs = 2 })

	cfg := config.Default()
	cfg.Common.SavePath = t.TempDir()
	cfg.Actor.PrintFreq = 25
	cfg.Actor.TrajLen = 10
	cfg.Actor.Seed = 9
	cfg.Actor.Communication.CoordinatorURL = srv.URL
	cfg.Actor.Communication.Backoff = time.Millisecond
	cfg.Actor.Communication.MaxBackoff = 2 * time.Millisecond
	cfg.Actor.Communication.JobRetries = 2

	reg := actor.NewRegistry(actor.StaticLoader{"builtin": worker.Register})
	ctrl, err := reg.Create(cfg)
	require.NoError(t, err)

	err = ctrl.Run(context.Background())
	assert.ErrorIs(t, err, comm.ErrNoJobAvailable)
	assert.Equal(t, actor.StateClosed, ctrl.State())

	stats := coord.Stats()
	assert.Equal(t, 2, stats.JobsIssued)
	assert.Equal(t, 2, stats.Results)
	assert.Equal(t, 0, stats.PendingSegments)
	assert.Equal(t, stats.Segments, stats.QueueLength)
	assert.Greater(t, stats.MeanReward, 0.0)

	results := coord.Results(0)
	require.Len(t, results, 2)
	steps := 0
	for _, r := range results {
		assert.Equal(t, ctrl.ID(), r.ActorID)
		assert.Equal(t, 2, r.Episodes)
		steps += r.TotalSteps
	}
	items := coord.Replay().DequeueBatch(stats.QueueLength)
	received := 0
	for _, item := range items {
		assert.LessOrEqual(t, len(item.Trajectory.Steps), 10)
		received += len(item.Trajectory.Steps)
	}
	assert.Equal(t, steps, received)

	status, body := do(t, http.MethodGet, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "coordinator_job_results_total 2")
}
