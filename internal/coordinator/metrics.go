package coordinator

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the Prometheus collectors of one coordinator. They live in
// their own registry so several coordinators can coexist in a process.
type Metrics struct {
	registry *prometheus.Registry

	jobsIssued   prometheus.Counter
	segments     prometheus.Counter
	steps        prometheus.Counter
	dropped      prometheus.Counter
	results      prometheus.Counter
	meanReward   prometheus.Gauge
	agentVersion prometheus.Gauge
}

func newMetrics(c *Coordinator) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_jobs_issued_total",
			Help: "Jobs handed out to actors.",
		}),
		segments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_segments_received_total",
			Help: "Trajectory segments joined from metadata and step data.",
		}),
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_steps_received_total",
			Help: "Environment steps received in trajectory segments.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_segments_dropped_total",
			Help: "Segments dropped because the replay buffer was full.",
		}),
		results: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_job_results_total",
			Help: "Job results reported by actors.",
		}),
		meanReward: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coordinator_last_mean_reward",
			Help: "Mean episode reward of the latest job result.",
		}),
		agentVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coordinator_agent_version",
			Help: "Version of the published agent parameters.",
		}),
	}
	queue := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "coordinator_replay_queue_length",
		Help: "Trajectories waiting in the replay buffer.",
	}, func() float64 { return float64(c.replay.Size()) })

	m.registry.MustRegister(
		m.jobsIssued, m.segments, m.steps, m.dropped,
		m.results, m.meanReward, m.agentVersion, queue,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Gather() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(families))
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				out[f.GetName()] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[f.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	return out, nil
}
