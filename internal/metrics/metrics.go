// Package metrics holds the Prometheus collectors for the sync engine and the
// daemon. Collectors register on the default registry at init.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "hostkeep"

	subsystemSync   = "sync"
	subsystemDaemon = "daemon"
)

var (
	loadsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemSync,
			Name:      "loads_started_total",
			Help:      "Fetches started by scoped loaders",
		},
		[]string{"resource"},
	)

	loadsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemSync,
			Name:      "loads_failed_total",
			Help:      "Fetches whose error was published to the view",
		},
		[]string{"resource"},
	)

	staleDiscards = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemSync,
			Name:      "stale_discards_total",
			Help:      "Fetch or mutation results dropped because scope or mount state moved on",
		},
		[]string{"resource"},
	)

	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemSync,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of fetch calls made by scoped loaders",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"resource"},
	)

	mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemSync,
			Name:      "mutations_total",
			Help:      "Optimistic mutations by outcome",
		},
		[]string{"resource", "outcome"},
	)

	reorders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemSync,
			Name:      "reorder_changes_total",
			Help:      "Position changes produced by list reorders",
		},
		[]string{"resource"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemDaemon,
			Name:      "http_requests_total",
			Help:      "Requests served by the daemon API",
		},
		[]string{"route", "method", "code"},
	)
)

const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
)

func LoadStarted(resource string) {
	loadsStarted.WithLabelValues(resource).Inc()
}

func LoadFailed(resource string) {
	loadsFailed.WithLabelValues(resource).Inc()
}

func StaleDiscard(resource string) {
	staleDiscards.WithLabelValues(resource).Inc()
}

func ObserveFetch(resource string, d time.Duration) {
	fetchDuration.WithLabelValues(resource).Observe(d.Seconds())
}

func Mutation(resource, outcome string) {
	mutations.WithLabelValues(resource, outcome).Inc()
}

func ReorderChanges(resource string, n int) {
	reorders.WithLabelValues(resource).Add(float64(n))
}

func HTTPRequest(route, method string, code int) {
	httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
}

// StaleDiscards is exposed for tests that assert on discard accounting.
func StaleDiscards(resource string) prometheus.Counter {
	return staleDiscards.WithLabelValues(resource)
}

func MutationCounter(resource, outcome string) prometheus.Counter {
	return mutations.WithLabelValues(resource, outcome)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
