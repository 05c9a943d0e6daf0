package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"distributed-actor-rl/internal/buffer"
	"distributed-actor-rl/internal/comm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Bridge serves actors running with the redis communication mode. Each
// Sync keeps the jobs list topped up, publishes the agent parameters and
// drains the trajectory and result lists into the coordinator.
type Bridge struct {
	coord  *Coordinator
	client *redis.Client
	keys   comm.RedisKeys

	// QueueDepth is the number of jobs kept waiting in Redis.
	QueueDepth int
	Interval   time.Duration

	published int64
	// step data drained before its metadata
	waiting []buffer.TrajStepData
}

const maxWaiting = 1024

func NewBridge(coord *Coordinator, client *redis.Client, prefix string) *Bridge {
	return &Bridge{
		coord:      coord,
		client:     client,
		keys:       comm.RedisKeys{Prefix: prefix},
		QueueDepth: 4,
		Interval:   200 * time.Millisecond,
	}
}

// Run calls Sync every Interval until ctx is done. Sync errors are logged.
func (b *Bridge) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()
	for {
		if err := b.Sync(ctx); err != nil && ctx.Err() == nil {
			glog.Warningf("redis bridge: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *Bridge) Sync(ctx context.Context) error {
	if err := b.publishAgent(ctx); err != nil {
		return err
	}
	if err := b.fillJobs(ctx); err != nil {
		return err
	}
	// metadata first so the step data drained next can be joined
	if err := b.drain(ctx, b.keys.Metadata(), b.ingestMetadata); err != nil {
		return err
	}
	b.retryWaiting()
	if err := b.drain(ctx, b.keys.StepData(), b.ingestStepData); err != nil {
		return err
	}
	return b.drain(ctx, b.keys.Results(), b.ingestResult)
}

func (b *Bridge) publishAgent(ctx context.Context) error {
	info := b.coord.Agent()
	if info.Empty() || info.Version <= b.published {
		return nil
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	if err := b.client.Set(ctx, b.keys.Agent(), raw, 0).Err(); err != nil {
		return fmt.Errorf("publish agent: %w", err)
	}
	b.published = info.Version
	return nil
}

func (b *Bridge) fillJobs(ctx context.Context) error {
	queued, err := b.client.LLen(ctx, b.keys.Jobs()).Result()
	if err != nil {
		return fmt.Errorf("jobs length: %w", err)
	}
	for i := int(queued); i < b.QueueDepth; i++ {
		job, err := b.coord.NextJob("")
		if errors.Is(err, ErrNoJob) {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err := json.Marshal(job)
		if err != nil {
			return err
		}
		if err := b.client.RPush(ctx, b.keys.Jobs(), raw).Err(); err != nil {
			return fmt.Errorf("push job: %w", err)
		}
	}
	return nil
}

func (b *Bridge) drain(ctx context.Context, key string, ingest func([]byte) error) error {
	for {
		raw, err := b.client.LPop(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("pop %s: %w", key, err)
		}
		if err := ingest(raw); err != nil {
			glog.Warningf("redis bridge: skipping entry of %s: %v", key, err)
		}
	}
}

func (b *Bridge) ingestMetadata(raw []byte) error {
	var meta buffer.TrajMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return err
	}
	b.coord.AddMetadata(meta)
	return nil
}

func (b *Bridge) ingestStepData(raw []byte) error {
	var data buffer.TrajStepData
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}
	return b.addStepData(data)
}

// addStepData parks data whose metadata has not been drained yet.
func (b *Bridge) addStepData(data buffer.TrajStepData) error {
	_, err := b.coord.AddStepData(data)
	if errors.Is(err, ErrUnknownSegment) {
		b.wait(data)
		return nil
	}
	return err
}

func (b *Bridge) wait(data buffer.TrajStepData) {
	if len(b.waiting) >= maxWaiting {
		glog.Warningf("redis bridge: dropping step data %s, metadata never arrived", b.waiting[0].Key())
		b.waiting = b.waiting[1:]
	}
	b.waiting = append(b.waiting, data)
}

func (b *Bridge) retryWaiting() {
	waiting := b.waiting
	b.waiting = nil
	for _, data := range waiting {
		if err := b.addStepData(data); err != nil {
			glog.Warningf("redis bridge: skipping step data %s: %v", data.Key(), err)
		}
	}
}

// Waiting is the number of step data entries still missing metadata.
func (b *Bridge) Waiting() int { return len(b.waiting) }

func (b *Bridge) ingestResult(raw []byte) error {
	var result comm.JobResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}
	b.coord.AddResult(result)
	return nil
}
