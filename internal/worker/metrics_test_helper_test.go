package worker

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// testMetrics returns a Metrics instance registered against a fresh,
// per-test Prometheus registry so collector names never collide across
// package tests.
func testMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(prometheus.NewRegistry())
}
