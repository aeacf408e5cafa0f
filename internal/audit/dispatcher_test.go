package audit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// collectSink records events under a lock and can be made to block.
type collectSink struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
}

func (s *collectSink) Emit(_ context.Context, event Event) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *collectSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestDispatcherDeliversAll(t *testing.T) {
	sink := &collectSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: EventLoginFailure, UserID: "u", Timestamp: time.Now()})
	}
	d.Close()

	events := sink.snapshot()
	if len(events) != 5 {
		t.Fatalf("delivered %d events, want 5", len(events))
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &collectSink{block: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// First event occupies the sink, second fills the buffer, the rest
	// must be dropped rather than blocking the caller.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: EventLoginFailure})
	}

	if d.Dropped() == 0 {
		t.Fatal("expected dropped events with a full buffer")
	}

	close(sink.block)
	d.Close()
}

func TestDispatcherCloseDrains(t *testing.T) {
	sink := &collectSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)

	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), Event{EventType: EventLogout})
	}
	d.Close()

	if got := len(sink.snapshot()); got != 50 {
		t.Fatalf("close lost events: delivered %d, want 50", got)
	}

	// Emit after close is a no-op, not a panic.
	d.Emit(context.Background(), Event{EventType: EventLogout})
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &collectSink{})
	if d != nil {
		t.Fatal("disabled dispatcher should be nil")
	}

	// All methods must be nil-safe.
	d.Emit(context.Background(), Event{EventType: EventLoginSuccess})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
}
