package relay

import (
	"github.com/LeeDigitalWorks/ctxrelay/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HooksInstalled tracks the number of hooks applied to scheduled tasks
	HooksInstalled = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ctxrelay",
		Subsystem: "relay",
		Name:      "hooks_installed",
		Help:      "Number of installed schedule hooks",
	}, []string{"registry"})

	// TasksDecorated tracks tasks passed through the hook registry
	TasksDecorated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ctxrelay",
		Subsystem: "relay",
		Name:      "tasks_decorated_total",
		Help:      "Total number of tasks decorated by the hook registry",
	}, []string{"registry"})
)

func init() {
	debug.Registry().MustRegister(
		HooksInstalled,
		TasksDecorated,
	)
}
