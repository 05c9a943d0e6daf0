package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
common:
  save_path: /tmp/run
actor:
  actor_type: cartpole
  import_names: [builtin]
  print_freq: 10
  traj_len: 32
  communication:
    type: redis
    redis_addr: redis:6379
    retries: 5
    backoff: 250ms
    job_retries: 7
`

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "actor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/run", cfg.Common.SavePath)
	assert.Equal(t, 10, cfg.Actor.PrintFreq)
	assert.Equal(t, 32, cfg.Actor.TrajLen)
	assert.Equal(t, "redis", cfg.Actor.Communication.Type)
	assert.Equal(t, 250*time.Millisecond, cfg.Actor.Communication.Backoff)
	assert.Equal(t, 7, cfg.Actor.Communication.JobRetries)
	// untouched keys keep their defaults
	assert.Equal(t, 10*time.Second, cfg.Actor.Communication.Timeout)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COMM_TYPE", "http")
	t.Setenv("PRINT_FREQ", "3")
	t.Setenv("TRAJ_LEN", "not-a-number")
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "http", cfg.Actor.Communication.Type)
	assert.Equal(t, 3, cfg.Actor.PrintFreq)
	assert.Equal(t, 32, cfg.Actor.TrajLen)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Actor.PrintFreq = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = Default()
	cfg.Actor.ActorType = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	_, err := Load(writeConfig(t, "actor: [not, a, map]"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
