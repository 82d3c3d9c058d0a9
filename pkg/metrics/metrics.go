package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsOpen is the number of live ServerIO connections.
	ConnectionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vaultline_connections_open",
			Help: "Number of currently open ServerIO connections",
		},
	)

	// CommandsDispatchedTotal counts every command the worker
	// dispatcher has handled, by command name and whether it
	// completed successfully.
	CommandsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultline_commands_dispatched_total",
			Help: "Total number of commands dispatched by name and outcome",
		},
		[]string{"command", "completed"},
	)

	// CommandDispatchDuration is the dispatcher handler latency,
	// labeled by command name.
	CommandDispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vaultline_command_dispatch_duration_seconds",
			Help:    "Time taken to execute a worker command handler in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	// StorageBytesWrittenTotal counts bytes accepted by STORAGE_WRITE
	// across all storage sinks.
	StorageBytesWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultline_storage_bytes_written_total",
			Help: "Total bytes written to storage sinks",
		},
	)

	// JobsByState is the current count of jobs in each job.State.
	JobsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vaultline_jobs_by_state",
			Help: "Number of jobs currently in each state",
		},
		[]string{"state"},
	)

	// AuthorizeAttemptsTotal counts AUTHORIZE retry attempts by
	// outcome, per spec §7's retry semantics.
	AuthorizeAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultline_authorize_attempts_total",
			Help: "Total number of AUTHORIZE attempts by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(ConnectionsOpen)
	prometheus.MustRegister(CommandsDispatchedTotal)
	prometheus.MustRegister(CommandDispatchDuration)
	prometheus.MustRegister(StorageBytesWrittenTotal)
	prometheus.MustRegister(JobsByState)
	prometheus.MustRegister(AuthorizeAttemptsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing command dispatch.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec
// with the given label values.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
