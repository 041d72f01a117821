// Package metrics records operation outcomes for pipeline dashboards.
//
// The CLI is short-lived, so instead of serving /metrics it writes the
// registry to a node_exporter textfile-collector file on exit.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blackwell-systems/localstack-control-plane/internal/errs"
)

// Component label values.
const (
	ComponentLauncher  = "launcher"
	ComponentState     = "state"
	ComponentEphemeral = "ephemeral"
)

// Registry holds every collector of this package.
var Registry = prometheus.NewRegistry()

var (
	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "localstack_ci_operations_total",
			Help: "Total number of control-plane operations by outcome.",
		},
		[]string{"component", "operation", "result"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "localstack_ci_operation_duration_seconds",
			Help:    "Duration of control-plane operations, in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"component", "operation"},
	)

	readinessPolls = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "localstack_ci_ephemeral_readiness_polls",
			Help:    "Status checks issued while waiting for an ephemeral instance to become ready.",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)

	runningServices = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "localstack_ci_running_services",
			Help: "Number of backend containers started and not yet stopped by this process.",
		},
	)
)

var knownOperations = map[string][]string{
	ComponentLauncher:  {"start", "stop"},
	ComponentState:     {"save", "load", "reset"},
	ComponentEphemeral: {"create", "list", "logs", "delete"},
}

func init() {
	Registry.MustRegister(operationsTotal)
	Registry.MustRegister(operationDuration)
	Registry.MustRegister(readinessPolls)
	Registry.MustRegister(runningServices)

	// Pre-initialize success series so they show up as 0 before first use.
	for component, ops := range knownOperations {
		for _, op := range ops {
			operationsTotal.WithLabelValues(component, op, ResultOK)
		}
	}
}

// ResultOK is the result label of a successful operation.
const ResultOK = "ok"

// Result turns an error into a bounded-cardinality label value.
func Result(err error) string {
	if err == nil {
		return ResultOK
	}
	return strings.ReplaceAll(errs.KindOf(err).String(), " ", "_")
}

// Observe records one finished operation.
func Observe(component, operation string, start time.Time, err error) {
	operationsTotal.WithLabelValues(component, operation, Result(err)).Inc()
	operationDuration.WithLabelValues(component, operation).Observe(time.Since(start).Seconds())
}

// ObservePolls records how many status checks a readiness wait took.
func ObservePolls(n int) {
	readinessPolls.Observe(float64(n))
}

// ServiceStarted and ServiceStopped track live backend containers.
func ServiceStarted() { runningServices.Inc() }

func ServiceStopped() { runningServices.Dec() }

// WriteTextfile writes the registry in text exposition format to path.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
