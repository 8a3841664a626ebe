// Package audit emits structured security events. Every outcome of a login,
// refresh, or reset operation produces exactly one event with a stable type,
// so downstream alerting can key off event_type without parsing messages.
package audit

import (
	"context"
	"sync"

	"github.com/aussiebroadwan/doorman/pkg/slogx"
)

type EventType string

const (
	EventLoginSuccess      EventType = "login_success"
	EventLoginFailure      EventType = "login_failure"
	EventLockoutTriggered  EventType = "lockout_triggered"
	EventRefreshRotated    EventType = "refresh_rotated"
	EventRefreshFailure    EventType = "refresh_failure"
	EventRefreshReuse      EventType = "refresh_reuse_detected"
	EventRefreshRevoked    EventType = "refresh_revoked"
	EventRefreshRevokedAll EventType = "refresh_revoked_all"
	EventResetRequested    EventType = "reset_requested"
	EventResetCompleted    EventType = "reset_completed"
	EventResetFailed       EventType = "reset_failed"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event carries the precise outcome of a security-relevant operation. The
// Reason field holds detail that is deliberately withheld from clients.
type Event struct {
	Type        EventType
	Severity    Severity
	PrincipalID string
	Email       string
	SourceIP    string
	Reason      string
	Count       int64 // bulk operations (revoke-all) report how many rows they touched
}

// Emitter is the narrow sink interface the services depend on. The default
// implementation writes to slog; deployments can swap in a metrics or SIEM
// forwarder.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// LogEmitter writes events through the contextual slog logger.
type LogEmitter struct{}

func (LogEmitter) Emit(ctx context.Context, e Event) {
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}

	attrs := []any{
		"event_type", string(e.Type),
		"severity", string(e.Severity),
	}
	if e.PrincipalID != "" {
		attrs = append(attrs, "principal_id", e.PrincipalID)
	}
	if e.Email != "" {
		attrs = append(attrs, "email", e.Email)
	}
	if e.SourceIP != "" {
		attrs = append(attrs, "source_ip", e.SourceIP)
	}
	if e.Reason != "" {
		attrs = append(attrs, "reason", e.Reason)
	}
	if e.Count != 0 {
		attrs = append(attrs, "count", e.Count)
	}

	log := slogx.FromContext(ctx)
	switch e.Severity {
	case SeverityCritical:
		log.Error("security_event", attrs...)
	case SeverityWarning:
		log.Warn("security_event", attrs...)
	default:
		log.Info("security_event", attrs...)
	}
}

var _ Emitter = LogEmitter{}

// Recorder is an Emitter that captures events for assertions in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a snapshot of everything emitted so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Last returns the most recent event of the given type, if any.
func (r *Recorder) Last(t EventType) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return Event{}, false
}
