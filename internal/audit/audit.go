// Package audit defines the structured security-event model and the sinks
// that receive events from the service's async dispatcher.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event names emitted by the authentication service.
const (
	EventRegister             = "auth.register"
	EventLoginSuccess         = "auth.login.success"
	EventLoginFailure         = "auth.login.failure"
	EventLoginLocked          = "auth.login.locked"
	EventLoginRateLimited     = "auth.login.rate_limited"
	EventRefreshSuccess       = "auth.refresh.success"
	EventRefreshFailure       = "auth.refresh.failure"
	EventRefreshReuse         = "auth.refresh.reuse"
	EventLogout               = "auth.logout"
	EventLogoutAll            = "auth.logout_all"
	EventSessionRevoked       = "auth.session.revoked"
	EventPasswordChanged      = "auth.password.changed"
	EventPasswordResetRequest = "auth.password.reset_request"
	EventPasswordResetDone    = "auth.password.reset_done"
	EventPasswordResetFailed  = "auth.password.reset_failed"
	EventEmailVerified        = "auth.email.verified"
)

// Event is the canonical audit record. Metadata keys are free-form but must
// never contain raw passwords or token material.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events. Implementations must be safe for
// concurrent use and must never block indefinitely.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// ZerologSink forwards audit events to a zerolog logger. Failures become
// warn-level entries, successes info-level.
type ZerologSink struct {
	logger zerolog.Logger
}

func NewZerologSink(logger zerolog.Logger) *ZerologSink {
	return &ZerologSink{logger: logger}
}

func (s *ZerologSink) Emit(_ context.Context, event Event) {
	if s == nil {
		return
	}

	var entry *zerolog.Event
	if event.Success {
		entry = s.logger.Info()
	} else {
		entry = s.logger.Warn()
	}

	entry = entry.
		Time("ts", event.Timestamp).
		Str("event", event.EventType).
		Bool("success", event.Success)
	if event.UserID != "" {
		entry = entry.Str("user_id", event.UserID)
	}
	if event.IP != "" {
		entry = entry.Str("ip", event.IP)
	}
	if event.Error != "" {
		entry = entry.Str("error", event.Error)
	}
	for k, v := range event.Metadata {
		entry = entry.Str(k, v)
	}
	entry.Msg("audit")
}
