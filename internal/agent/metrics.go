package agent

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts the loop's guard-rail activity.
type Metrics struct {
	Turns               prometheus.Counter
	DoomLoopRejections  prometheus.Counter
	FailureTerminations prometheus.Counter
	ProviderRetries     prometheus.Counter
	Compactions         prometheus.Counter
}

// NewMetrics registers the loop counters on reg. A nil registerer yields
// unregistered (but still usable) counters, which keeps tests quiet.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Turns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coreagent_turns_total",
			Help: "Provider request/response turns executed.",
		}),
		DoomLoopRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coreagent_doom_loop_rejections_total",
			Help: "Tool calls rejected by the doom-loop detector.",
		}),
		FailureTerminations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coreagent_failure_terminations_total",
			Help: "Turns terminated by the per-tool failure budget.",
		}),
		ProviderRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coreagent_provider_retries_total",
			Help: "Provider requests retried after retriable errors or empty responses.",
		}),
		Compactions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coreagent_context_compactions_total",
			Help: "Context compactions performed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Turns, m.DoomLoopRejections, m.FailureTerminations, m.ProviderRetries, m.Compactions)
	}
	return m
}

func (m *Metrics) inc(c prometheus.Counter) {
	if m != nil && c != nil {
		c.Inc()
	}
}
