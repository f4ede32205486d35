// Package alert carries structured operational events to the operator.
// Alerting transport is pluggable; the engine only depends on Sink.
package alert

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"catalyst/internal/logger"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one structured alert. Context keys are free-form but small:
// symbol, order IDs, states.
type Event struct {
	Severity Severity
	Subject  string
	Context  map[string]string
	At       time.Time
}

func (e Event) String() string {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(string(e.Severity)), e.Subject)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, e.Context[k])
	}
	return b.String()
}

// Sink receives events. Implementations must be safe for concurrent use
// and must not block the caller for long; the engine emits from its hot
// paths.
type Sink interface {
	Emit(e Event)
}

// LogSink writes events to the process log. Always present, so no event
// is lost when no transport is configured.
type LogSink struct{}

func (LogSink) Emit(e Event) {
	switch e.Severity {
	case SeverityCritical:
		logger.Errorf("alert: %s", e)
	case SeverityWarning:
		logger.Warnf("alert: %s", e)
	default:
		logger.Infof("alert: %s", e)
	}
}

// Multi fans an event out to several sinks.
type Multi []Sink

func (m Multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// Recorder keeps events in memory for tests and the admin API.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// BySubject returns recorded events matching subject.
func (r *Recorder) BySubject(subject string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Subject == subject {
			out = append(out, e)
		}
	}
	return out
}

// New stamps an event with the current time.
func New(sev Severity, subject string, kv ...string) Event {
	ctx := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		ctx[kv[i]] = kv[i+1]
	}
	return Event{Severity: sev, Subject: subject, Context: ctx, At: time.Now()}
}
