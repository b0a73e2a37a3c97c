package session

import "fmt"

// StatusKind enumerates a session's lifecycle position. Failed carries a
// Reason, held alongside the kind in Status.
type StatusKind string

const (
	StatusInitializing StatusKind = "initializing"
	StatusActive       StatusKind = "active"
	StatusPaused       StatusKind = "paused"
	StatusCompleted    StatusKind = "completed"
	StatusFailed       StatusKind = "failed"
)

// Status is a session's durable lifecycle status. Reason is populated only
// when Kind is StatusFailed.
type Status struct {
	Kind   StatusKind
	Reason string
}

func (s Status) String() string {
	if s.Kind == StatusFailed && s.Reason != "" {
		return fmt.Sprintf("failed(%s)", s.Reason)
	}
	return string(s.Kind)
}

// Failed builds a Status carrying a human-readable reason.
func Failed(reason string) Status {
	return Status{Kind: StatusFailed, Reason: reason}
}
