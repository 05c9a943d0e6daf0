package comm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"distributed-actor-rl/internal/buffer"
)

// RedisHelper exchanges data with the coordinator through shared Redis
// keys:
//
//	<prefix>:jobs           list, jobs popped with BLPOP
//	<prefix>:agent          string, latest AgentUpdateInfo
//	<prefix>:traj:metadata  list, RPUSH of TrajMetadata
//	<prefix>:traj:stepdata  list, RPUSH of TrajStepData
//	<prefix>:results        list, RPUSH of JobResult
//
// Command retries are delegated to the go-redis client.
type RedisHelper struct {
	cfg     Config
	actorID string
	client  *redis.Client

	closeOnce sync.Once
	closeErr  error
}

var _ Helper = (*RedisHelper)(nil)

func NewRedisHelper(cfg Config, actorID string) *RedisHelper {
	// go-redis treats 0 as "use the default", -1 disables retries.
	maxRetries := cfg.Retries
	if maxRetries == 0 {
		maxRetries = -1
	}
	client := redis.NewClient(&redis.Options{
		Addr:            cfg.RedisAddr,
		MaxRetries:      maxRetries,
		MinRetryBackoff: cfg.Backoff,
		MaxRetryBackoff: cfg.MaxBackoff,
		DialTimeout:     cfg.Timeout,
	})
	return &RedisHelper{
		cfg:     cfg,
		actorID: actorID,
		client:  client,
	}
}

// RedisKeys names the shared keys under one prefix.
type RedisKeys struct {
	Prefix string
}

func (k RedisKeys) key(name string) string {
	prefix := k.Prefix
	if prefix == "" {
		prefix = "actor"
	}
	return prefix + ":" + name
}

// Jobs is the list jobs are popped from.
func (k RedisKeys) Jobs() string { return k.key("jobs") }

// Agent holds the latest agent parameters.
func (k RedisKeys) Agent() string { return k.key("agent") }

func (k RedisKeys) Metadata() string { return k.key("traj:metadata") }
func (k RedisKeys) StepData() string { return k.key("traj:stepdata") }
func (k RedisKeys) Results() string  { return k.key("results") }

func (r *RedisHelper) Keys() RedisKeys { return RedisKeys{Prefix: r.cfg.RedisPrefix} }

func (r *RedisHelper) InitService(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCommUnavailable, r.cfg.RedisAddr, err)
	}
	return nil
}

func (r *RedisHelper) CloseService() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.client.Close()
	})
	return r.closeErr
}

func (r *RedisHelper) GetJob(ctx context.Context) (Job, error) {
	// BLPOP has one second resolution.
	block := r.cfg.Backoff
	if block < time.Second {
		block = time.Second
	}
	attempts := jobAttempts(r.cfg)
	var lastErr error
	for i := 0; i < attempts; i++ {
		res, err := r.client.BLPop(ctx, block, r.Keys().Jobs()).Result()
		if errors.Is(err, redis.Nil) {
			lastErr = nil
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			lastErr = err
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return Job{}, fmt.Errorf("decode job: %w", err)
		}
		if job.ActorID == "" {
			job.ActorID = r.actorID
		}
		return job, nil
	}
	if lastErr != nil {
		return Job{}, fmt.Errorf("%w after %d attempts: %v", ErrNoJobAvailable, attempts, lastErr)
	}
	return Job{}, fmt.Errorf("%w after %d attempts", ErrNoJobAvailable, attempts)
}

func (r *RedisHelper) GetAgentUpdateInfo(ctx context.Context) (AgentUpdateInfo, error) {
	raw, err := r.client.Get(ctx, r.Keys().Agent()).Bytes()
	if errors.Is(err, redis.Nil) {
		return AgentUpdateInfo{}, nil
	}
	if err != nil {
		return AgentUpdateInfo{}, fmt.Errorf("%w: %v", ErrCommUnavailable, err)
	}
	var info AgentUpdateInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return AgentUpdateInfo{}, fmt.Errorf("decode agent info: %w", err)
	}
	return info, nil
}

func (r *RedisHelper) SendTrajMetadata(ctx context.Context, meta buffer.TrajMetadata) error {
	return r.push(ctx, r.Keys().Metadata(), meta)
}

func (r *RedisHelper) SendTrajStepData(ctx context.Context, data buffer.TrajStepData) error {
	return r.push(ctx, r.Keys().StepData(), data)
}

func (r *RedisHelper) SendResult(ctx context.Context, result JobResult) error {
	return r.push(ctx, r.Keys().Results(), result)
}

func (r *RedisHelper) push(ctx context.Context, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.client.RPush(ctx, key, body).Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSendFailed, key, err)
	}
	return nil
}
