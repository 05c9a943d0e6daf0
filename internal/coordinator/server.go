package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"

	"distributed-actor-rl/internal/buffer"
	"distributed-actor-rl/internal/comm"
)

// Server exposes a Coordinator over HTTP.
type Server struct {
	Port   int
	coord  *Coordinator
	router *gin.Engine
	server *http.Server
}

func NewServer(coord *Coordinator, port int) *Server {
	s := &Server{
		Port:  port,
		coord: coord,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/job", s.handleJob)
	r.GET("/agent", s.handleGetAgent)
	r.POST("/agent", s.handlePostAgent)
	r.POST("/traj/metadata", s.handleMetadata)
	r.POST("/traj/stepdata", s.handleStepData)
	r.POST("/result", s.handleResult)
	r.GET("/results", s.handleResults)
	r.GET("/dequeue", s.handleDequeue)
	r.GET("/stats", s.handleStats)
	r.GET("/config", s.handleGetConfig)
	r.POST("/config", s.handlePostConfig)
	r.GET("/metrics", gin.WrapH(coord.Metrics().Handler()))
	s.router = r

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Stop is called.
func (s *Server) Start() error {
	glog.Infof("coordinator listening on :%d", s.Port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleJob(c *gin.Context) {
	actorID := c.Query("actor_id")
	if actorID == "" {
		actorID = c.GetHeader("X-Actor-ID")
	}
	job, err := s.coord.NextJob(actorID)
	if errors.Is(err, ErrNoJob) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	glog.V(1).Infof("issued %s", job)
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleGetAgent(c *gin.Context) {
	info := s.coord.Agent()
	if info.Empty() {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, info)
}

// handlePostAgent takes the raw weights document as the body.
func (s *Server) handlePostAgent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty weights"})
		return
	}
	if !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "weights must be JSON"})
		return
	}
	version := s.coord.PublishAgent(body)
	glog.Infof("published agent version %d", version)
	c.JSON(http.StatusOK, gin.H{"version": version})
}

func (s *Server) handleMetadata(c *gin.Context) {
	var meta buffer.TrajMetadata
	if err := c.ShouldBindJSON(&meta); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to unmarshal request"})
		return
	}
	s.coord.AddMetadata(meta)
	c.Status(http.StatusAccepted)
}

func (s *Server) handleStepData(c *gin.Context) {
	var data buffer.TrajStepData
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to unmarshal request"})
		return
	}
	kept, err := s.coord.AddStepData(data)
	switch {
	case errors.Is(err, ErrUnknownSegment), errors.Is(err, ErrSegmentMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !kept {
		glog.Warningf("replay buffer full, dropped %s", data.Key())
	}
	c.JSON(http.StatusAccepted, gin.H{"dropped": !kept})
}

func (s *Server) handleResult(c *gin.Context) {
	var result comm.JobResult
	if err := c.ShouldBindJSON(&result); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to unmarshal request"})
		return
	}
	s.coord.AddResult(result)
	glog.Infof("job %s from %s: episodes=%d mean_reward=%.3f",
		result.JobID, result.ActorID, result.Episodes, result.MeanReward)
	c.Status(http.StatusAccepted)
}

func (s *Server) handleResults(c *gin.Context) {
	n, _ := strconv.Atoi(c.Query("n"))
	c.JSON(http.StatusOK, gin.H{"results": s.coord.Results(n)})
}

func (s *Server) handleDequeue(c *gin.Context) {
	batchSize := 0
	if value := c.Query("batch_size"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			batchSize = parsed
		}
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	if capacity := s.coord.Replay().Capacity(); batchSize > capacity {
		batchSize = capacity
	}

	items := s.coord.Replay().DequeueBatch(batchSize)
	if len(items) == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	response := buffer.DequeueResponse{Trajectories: make([]buffer.Trajectory, 0, len(items))}
	for _, item := range items {
		response.Trajectories = append(response.Trajectories, item.Trajectory)
	}
	c.JSON(http.StatusOK, response)
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.coord.Stats())
}

type configPayload struct {
	Policy         *string `json:"policy,omitempty"`
	EpisodesPerJob *int    `json:"episodes_per_job,omitempty"`
}

func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"policy":           s.coord.Replay().Policy(),
		"capacity":         s.coord.Replay().Capacity(),
		"episodes_per_job": s.coord.EpisodesPerJob(),
	})
}

func (s *Server) handlePostConfig(c *gin.Context) {
	var payload configPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to unmarshal request"})
		return
	}
	if payload.Policy != nil {
		if err := s.coord.Replay().SetPolicy(*payload.Policy); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if payload.EpisodesPerJob != nil {
		if err := s.coord.SetEpisodesPerJob(*payload.EpisodesPerJob); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	c.Status(http.StatusNoContent)
}
