package filter

import (
	"github.com/LeeDigitalWorks/ctxrelay/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	stackBlocking = "blocking"
	stackAsync    = "async"
)

var (
	// FilterRunsTotal tracks filter invocations
	FilterRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ctxrelay",
		Subsystem: "filter",
		Name:      "runs_total",
		Help:      "Number of requests processed by filters",
	}, []string{"stack", "filter"}) // stack: blocking/async

	// FilterErrorsTotal tracks filters that returned or signalled an error
	FilterErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ctxrelay",
		Subsystem: "filter",
		Name:      "errors_total",
		Help:      "Number of errors seen by filters",
	}, []string{"stack", "filter"})

	// FilterRunDuration tracks the time spent inside a filter and its downstream
	FilterRunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ctxrelay",
		Subsystem: "filter",
		Name:      "run_duration_seconds",
		Help:      "Duration of filter runs in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stack"})

	// FilterContextCancelled tracks requests whose context ended inside a filter
	FilterContextCancelled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ctxrelay",
		Subsystem: "filter",
		Name:      "context_cancelled_total",
		Help:      "Number of times filter context was cancelled",
	}, []string{"filter", "error"})

	// FilterSignalsTotal tracks terminal signals of filtered pipelines
	FilterSignalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ctxrelay",
		Subsystem: "filter",
		Name:      "signals_total",
		Help:      "Terminal signals of filtered pipelines",
	}, []string{"filter", "signal"}) // signal: complete/error/cancel

	// ScopeBindingsActive tracks bindings made by async filters and not yet released
	ScopeBindingsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ctxrelay",
		Subsystem: "filter",
		Name:      "scope_bindings_active",
		Help:      "Initiating-scope bindings awaiting their terminal signal",
	}, []string{"filter"})
)

func init() {
	debug.Registry().MustRegister(
		FilterRunsTotal,
		FilterErrorsTotal,
		FilterRunDuration,
		FilterContextCancelled,
		FilterSignalsTotal,
		ScopeBindingsActive,
	)
}
