package history

import (
	"context"
	"time"
)

// EventType defines the kind of bootstrap/lifecycle event.
type EventType string

const (
	EventBootstrapStarted EventType = "bootstrap_started"
	EventBootstrapFailed  EventType = "bootstrap_failed"
	EventDepPresent       EventType = "dep_present"
	EventDepInstalled     EventType = "dep_installed"
	EventDepInstallFailed EventType = "dep_install_failed"
	EventMonitorStarted   EventType = "monitor_started"
	EventMonitorStopped   EventType = "monitor_stopped"
	EventMainStarted      EventType = "main_started"
	EventMainExited       EventType = "main_exited"
)

// Event is one row of the launch history.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Process    string    `json:"process,omitempty"` // monitor, main, or a package name
	PID        int       `json:"pid,omitempty"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for launch history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// NopSink discards every event; used when history is not configured.
type NopSink struct{}

func (NopSink) Send(context.Context, Event) error { return nil }
func (NopSink) Close() error                      { return nil }
