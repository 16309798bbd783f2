package history

import (
	"strings"
	"time"
)

// Status is a step of the ingestion state machine.
type Status string

const (
	StatusAwaitingUpload Status = "awaiting_upload"
	StatusDownloading    Status = "downloading"
	StatusTranscoding    Status = "transcoding"
	StatusRegistering    Status = "registering"
	StatusDone           Status = "done"
	StatusFailed         Status = "failed"
	StatusExpired        Status = "expired"
)

// DaemonRestartReason is recorded against ingestions that were in flight when
// the previous daemon process stopped.
const DaemonRestartReason = "interrupted by daemon restart"

var allStatuses = []Status{
	StatusAwaitingUpload,
	StatusDownloading,
	StatusTranscoding,
	StatusRegistering,
	StatusDone,
	StatusFailed,
	StatusExpired,
}

// AllStatuses returns every status in state machine order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a string into a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transition follows s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusExpired:
		return true
	default:
		return false
	}
}

// Source records which surface started an ingestion.
type Source string

const (
	SourceChat Source = "chat"
	SourceCLI  Source = "cli"
)

// Attempt is one ingestion request and its latest state.
type Attempt struct {
	ID           string
	Key          string
	Category     string
	Requester    string
	Conversation string
	Source       Source
	Replace      bool
	Status       Status
	Asset        string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Transition is a single recorded state change.
type Transition struct {
	Status Status
	Detail string
	At     time.Time
}
