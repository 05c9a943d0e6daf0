package comm

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-resty/resty/v2"

	"distributed-actor-rl/internal/buffer"
)

// HTTPHelper talks to the coordinator's REST API.
//
// Every request is retried by the client on transport errors, 5xx and 429
// responses. GetJob additionally polls while the coordinator answers
// 204 No Content.
type HTTPHelper struct {
	cfg     Config
	actorID string
	client  *resty.Client

	closeOnce sync.Once
}

var _ Helper = (*HTTPHelper)(nil)

func NewHTTPHelper(cfg Config, actorID string) *HTTPHelper {
	client := resty.New().
		SetBaseURL(cfg.CoordinatorURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(cfg.Backoff).
		SetRetryMaxWaitTime(cfg.MaxBackoff).
		SetHeader("X-Actor-ID", actorID).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode() >= http.StatusInternalServerError ||
				resp.StatusCode() == http.StatusTooManyRequests
		})
	return &HTTPHelper{
		cfg:     cfg,
		actorID: actorID,
		client:  client,
	}
}

func (h *HTTPHelper) InitService(ctx context.Context) error {
	resp, err := h.client.R().SetContext(ctx).Get("/healthz")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCommUnavailable, h.cfg.CoordinatorURL, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: %s: healthz returned %d", ErrCommUnavailable, h.cfg.CoordinatorURL, resp.StatusCode())
	}
	return nil
}

func (h *HTTPHelper) CloseService() error {
	h.closeOnce.Do(func() {
		h.client.GetClient().CloseIdleConnections()
	})
	return nil
}

func (h *HTTPHelper) GetJob(ctx context.Context) (Job, error) {
	wait := newBackoff(h.cfg)
	attempts := jobAttempts(h.cfg)
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := wait.wait(ctx); err != nil {
				return Job{}, err
			}
		}
		resp, err := h.client.R().
			SetContext(ctx).
			SetQueryParam("actor_id", h.actorID).
			Get("/job")
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			lastErr = err
			continue
		}
		switch resp.StatusCode() {
		case http.StatusOK:
			var job Job
			if err := json.Unmarshal(resp.Body(), &job); err != nil {
				return Job{}, fmt.Errorf("decode job: %w", err)
			}
			return job, nil
		case http.StatusNoContent:
			lastErr = nil
		default:
			lastErr = fmt.Errorf("coordinator returned %d", resp.StatusCode())
		}
	}
	if lastErr != nil {
		return Job{}, fmt.Errorf("%w after %d attempts: %v", ErrNoJobAvailable, attempts, lastErr)
	}
	return Job{}, fmt.Errorf("%w after %d attempts", ErrNoJobAvailable, attempts)
}

func (h *HTTPHelper) GetAgentUpdateInfo(ctx context.Context) (AgentUpdateInfo, error) {
	resp, err := h.client.R().SetContext(ctx).Get("/agent")
	if err != nil {
		return AgentUpdateInfo{}, fmt.Errorf("%w: %v", ErrCommUnavailable, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		var info AgentUpdateInfo
		if err := json.Unmarshal(resp.Body(), &info); err != nil {
			return AgentUpdateInfo{}, fmt.Errorf("decode agent info: %w", err)
		}
		return info, nil
	case http.StatusNoContent:
		return AgentUpdateInfo{}, nil
	default:
		return AgentUpdateInfo{}, fmt.Errorf("agent info: coordinator returned %d", resp.StatusCode())
	}
}

func (h *HTTPHelper) SendTrajMetadata(ctx context.Context, meta buffer.TrajMetadata) error {
	return h.post(ctx, "/traj/metadata", meta)
}

func (h *HTTPHelper) SendTrajStepData(ctx context.Context, data buffer.TrajStepData) error {
	return h.post(ctx, "/traj/stepdata", data)
}

func (h *HTTPHelper) SendResult(ctx context.Context, result JobResult) error {
	return h.post(ctx, "/result", result)
}

func (h *HTTPHelper) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSendFailed, path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %s: coordinator returned %d", ErrSendFailed, path, resp.StatusCode())
	}
	return nil
}
