package worker

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors the API Dispatcher and Task
// Engine record against.
type Metrics struct {
	CallsTotal       *prometheus.CounterVec
	CallDuration     *prometheus.HistogramVec
	TasksOffloaded   prometheus.Counter
	TasksTimedOut    prometheus.Counter
	WorkerCrashes    prometheus.Counter
	StreamsAborted   prometheus.Counter
	SubscribersDrops prometheus.Counter
}

// NewMetrics registers a fresh set of collectors against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the default
// global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neemata",
			Name:      "calls_total",
			Help:      "Total procedure calls by procedure and outcome.",
		}, []string{"procedure", "outcome"}),
		CallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "neemata",
			Name:      "call_duration_seconds",
			Help:      "Procedure call duration in seconds.",
		}, []string{"procedure"}),
		TasksOffloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neemata",
			Name:      "tasks_offloaded_total",
			Help:      "Total tasks offloaded to a task worker.",
		}),
		TasksTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neemata",
			Name:      "tasks_timed_out_total",
			Help:      "Total tasks that exceeded their deadline.",
		}),
		WorkerCrashes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neemata",
			Name:      "worker_crashes_total",
			Help:      "Total supervised worker process crashes.",
		}),
		StreamsAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neemata",
			Name:      "streams_aborted_total",
			Help:      "Total streams that transitioned to errored.",
		}),
		SubscribersDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neemata",
			Name:      "subscription_drops_total",
			Help:      "Total subscription deliveries dropped due to backpressure.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.CallsTotal, m.CallDuration, m.TasksOffloaded, m.TasksTimedOut, m.WorkerCrashes, m.StreamsAborted, m.SubscribersDrops)
	}
	return m
}
