package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.EventRecorded("code_change", 0.01)
	m.EventDropped("queue_full")
	m.AppendFailed(0.01)
	m.Mutation("apply_hint", nil)
}

func TestCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.EventRecorded("code_change", 0.002)
	m.EventRecorded("code_change", 0.003)
	m.EventDropped("queue_full")
	m.Mutation("apply_hint", nil)
	m.Mutation("apply_hint", errors.New("boom"))

	if got := testutil.ToFloat64(m.EventsRecorded.WithLabelValues("code_change")); got != 2 {
		t.Fatalf("recorded = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.EventsDropped.WithLabelValues("queue_full")); got != 1 {
		t.Fatalf("dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RegistryMutations.WithLabelValues("apply_hint", "error")); got != 1 {
		t.Fatalf("mutation errors = %v, want 1", got)
	}
}
