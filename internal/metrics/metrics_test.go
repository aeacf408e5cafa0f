package metrics

import (
	"sync"
	"testing"
)

func TestIncAndValue(t *testing.T) {
	m := New(Config{Enabled: true})

	for i := 0; i < 3; i++ {
		m.Inc(MetricLoginSuccess)
	}
	m.Inc(MetricLoginFailure)

	if got := m.Value(MetricLoginSuccess); got != 3 {
		t.Fatalf("login success = %d, want 3", got)
	}
	if got := m.Value(MetricLoginFailure); got != 1 {
		t.Fatalf("login failure = %d, want 1", got)
	}
	if got := m.Value(MetricRefreshSuccess); got != 0 {
		t.Fatalf("untouched counter = %d, want 0", got)
	}
}

func TestDisabledMetricsNoOp(t *testing.T) {
	m := New(Config{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if m.Enabled() {
		t.Fatal("disabled metrics reported enabled")
	}
	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("disabled Inc recorded %d", got)
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLoginSuccess)
	if nilMetrics.Enabled() {
		t.Fatal("nil metrics reported enabled")
	}
	if nilMetrics.Value(MetricLoginSuccess) != 0 {
		t.Fatal("nil metrics returned nonzero value")
	}
}

func TestTakeSnapshotIsCopy(t *testing.T) {
	m := New(Config{Enabled: true})
	m.Inc(MetricSessionCreated)
	m.Inc(MetricSessionCreated)

	snap := m.TakeSnapshot()
	if snap.Counters[MetricSessionCreated] != 2 {
		t.Fatalf("snapshot = %d, want 2", snap.Counters[MetricSessionCreated])
	}
	if len(snap.Counters) != int(MetricIDCount) {
		t.Fatalf("snapshot has %d entries, want %d", len(snap.Counters), MetricIDCount)
	}

	m.Inc(MetricSessionCreated)
	if snap.Counters[MetricSessionCreated] != 2 {
		t.Fatal("snapshot mutated by later increment")
	}
}

func TestIncOutOfRangeIgnored(t *testing.T) {
	m := New(Config{Enabled: true})
	m.Inc(MetricIDCount)
	m.Inc(MetricIDCount + 100)
	if got := m.Value(MetricIDCount + 100); got != 0 {
		t.Fatalf("out-of-range counter = %d", got)
	}
}

func TestConcurrentIncrements(t *testing.T) {
	m := New(Config{Enabled: true})

	const workers, perWorker = 16, 500
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricLoginSuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricLoginSuccess); got != workers*perWorker {
		t.Fatalf("concurrent count = %d, want %d", got, workers*perWorker)
	}
}
