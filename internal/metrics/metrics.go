// Package metrics exposes Prometheus counters for the agent scheduler and
// command queue. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Namespace = "ggmhub"

type Metrics struct {
	registry        *prometheus.Registry
	agentRuns       *prometheus.CounterVec
	agentDuration   *prometheus.HistogramVec
	commands        *prometheus.CounterVec
	commandsSkipped prometheus.Counter
	pollErrors      prometheus.Counter
}

// New registers the hub collectors on a fresh registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		agentRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "agent_runs_total",
				Help:      "Agent executions by agent type and terminal status",
			},
			[]string{"agent_type", "status"},
		),
		agentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "agent_run_duration_seconds",
				Help:      "Duration of agent executions",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"agent_type"},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "commands_total",
				Help:      "Remote commands processed by command name and terminal status",
			},
			[]string{"command", "status"},
		),
		commandsSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "commands_skipped_total",
				Help:      "Remote commands skipped because they were already processed",
			},
		),
		pollErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "queue_poll_errors_total",
				Help:      "Command queue polls that failed to reach the shared store",
			},
		),
	}

	reg.MustRegister(
		m.agentRuns,
		m.agentDuration,
		m.commands,
		m.commandsSkipped,
		m.pollErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) AgentRun(agentType, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.agentRuns.WithLabelValues(agentType, status).Inc()
	m.agentDuration.WithLabelValues(agentType).Observe(duration.Seconds())
}

func (m *Metrics) Command(command, status string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, status).Inc()
}

func (m *Metrics) CommandSkipped() {
	if m == nil {
		return
	}
	m.commandsSkipped.Inc()
}

func (m *Metrics) PollError() {
	if m == nil {
		return
	}
	m.pollErrors.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
