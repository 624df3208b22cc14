// Package metrics holds the Prometheus collectors exported by foamtail.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "foamtail"

var (
	LinesAnalyzed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lines_analyzed_total",
		Help:      "Number of log lines handed to the analyzer.",
	})
	TimeChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "time_changes_total",
		Help:      "Number of simulation time changes propagated to matchers.",
	})
	TriggerFires = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trigger_fires_total",
		Help:      "Number of time triggers fired.",
	})
	ParseErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "parse_errors_total",
		Help:      "Matches that could not be converted, by matcher.",
	}, []string{"matcher"})
	OpenFiles = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_files",
		Help:      "Output files currently holding a handle.",
	})
	FileEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "file_evictions_total",
		Help:      "Output files temporarily closed to respect the open file limit.",
	})
)

// Registry contains every foamtail collector.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		LinesAnalyzed,
		TimeChanges,
		TriggerFires,
		ParseErrors,
		OpenFiles,
		FileEvictions,
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
