// Package audit provides the append-only audit trail consumed by both the
// credential service and the rotation engine. Events are fanned out to every
// configured sink; a failing sink never blocks the caller's operation.
package audit

import (
	"log/slog"
	"sync"
	"time"
)

// Event types emitted by the credential middleware and rotation engine.
const (
	EventAccessGranted   = "ACCESS_GRANTED"
	EventAccessDenied    = "ACCESS_DENIED"
	EventCredentialIssue = "CREDENTIAL_ISSUED"
	EventCredentialSweep = "CREDENTIAL_SWEPT"
	EventRevocation      = "CREDENTIAL_REVOKED"
	EventRotation        = "SECRET_ROTATION"
)

// Event is a single append-only audit entry. Events are never mutated or
// deleted once recorded.
type Event struct {
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Context   map[string]string `json:"context,omitempty"`
}

// Sink receives audit events. Implementations must be safe for concurrent
// use.
type Sink interface {
	Write(ev Event) error
}

// Log fans events out to its sinks.
type Log struct {
	mu    sync.RWMutex
	sinks []Sink
	now   func() time.Time
}

// NewLog creates an audit log with the given sinks.
func NewLog(sinks ...Sink) *Log {
	return &Log{sinks: sinks, now: time.Now}
}

// AddSink attaches an additional sink.
func (l *Log) AddSink(s Sink) {
	l.mu.Lock()
	l.sinks = append(l.sinks, s)
	l.mu.Unlock()
}

// Record appends an event. Sink errors are swallowed: the audit trail is
// best-effort and must never fail the operation being audited.
func (l *Log) Record(eventType, message string, context map[string]string) {
	if l == nil {
		return
	}
	ev := Event{
		Type:      eventType,
		Message:   message,
		Timestamp: l.now().UTC(),
		Context:   context,
	}

	l.mu.RLock()
	sinks := l.sinks
	l.mu.RUnlock()

	for _, s := range sinks {
		_ = s.Write(ev)
	}
}

// SlogSink writes audit events as structured log records.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink wraps a slog logger as an audit sink.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Write(ev Event) error {
	attrs := make([]any, 0, 2+2*len(ev.Context))
	attrs = append(attrs, "event", ev.Type, "timestamp", ev.Timestamp.Format(time.RFC3339))
	for k, v := range ev.Context {
		attrs = append(attrs, k, v)
	}
	s.logger.Info(ev.Message, attrs...)
	return nil
}
