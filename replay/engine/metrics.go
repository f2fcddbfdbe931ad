package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports session lifecycle counters as Prometheus instruments,
// namespaced "replay_engine_". Attach via WithMetrics.
type Metrics struct {
	sessionsStarted   prometheus.Counter
	sessionsCompleted prometheus.Counter
	sessionsFailed    prometheus.Counter
	checkpointsSaved  prometheus.Counter
}

// NewMetrics registers the engine's counters against registry. A nil
// registry uses prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		sessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "replay_engine", Name: "sessions_started_total", Help: "Replay sessions started.",
		}),
		sessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "replay_engine", Name: "sessions_completed_total", Help: "Replay sessions that reached Completed.",
		}),
		sessionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "replay_engine", Name: "sessions_failed_total", Help: "Replay sessions that reached Failed.",
		}),
		checkpointsSaved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "replay_engine", Name: "checkpoints_saved_total", Help: "Checkpoints saved across all sessions.",
		}),
	}
}
