// Package capture talks to the external capture agent that runs the actual
// stream downloads. This service never launches capture processes itself; it
// asks the agent to start a capture into a target file and watches for the
// session to end.
package capture

import (
	"context"
	"fmt"
)

// Outcome is how a capture session ended, as reported by the agent.
type Outcome string

const (
	// OutcomeCompleted means the stream ended cleanly.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed means the agent hit an I/O or platform error.
	OutcomeFailed Outcome = "failed"
	// OutcomeStopped means Stop was requested and honored.
	OutcomeStopped Outcome = "stopped"
)

// Result is the terminal report for one capture session.
type Result struct {
	Outcome  Outcome
	FileSize int64
	// AgentError and PlatformError are the two sections of a structured
	// failure detail; both may be set.
	AgentError    string
	PlatformError string
}

// ErrorMessage renders the multi-section failure text stored on a failed
// recording. Empty for non-failed outcomes.
func (r Result) ErrorMessage() string {
	if r.Outcome != OutcomeFailed {
		return ""
	}
	msg := ""
	if r.AgentError != "" {
		msg += "[capture] " + r.AgentError
	}
	if r.PlatformError != "" {
		if msg != "" {
			msg += "\n"
		}
		msg += "[platform] " + r.PlatformError
	}
	if msg == "" {
		msg = "[capture] unknown failure"
	}
	return msg
}

// StartRequest describes one capture to launch.
type StartRequest struct {
	Platform        string   `json:"platform"`
	StreamerID      string   `json:"streamer_id"`
	Quality         []string `json:"quality"` // ordered fallback chain
	CustomArguments string   `json:"custom_arguments,omitempty"`
	OutputPath      string   `json:"output_path"`
}

// Session is a handle on one running capture.
type Session interface {
	// Done is closed with the terminal result exactly once.
	Done() <-chan Result
	// Stop asks the agent to end the capture. Safe to call more than once.
	Stop(ctx context.Context) error
}

// Agent starts capture sessions.
type Agent interface {
	Start(ctx context.Context, req StartRequest) (Session, error)
}

// StartError wraps an agent-side start failure.
type StartError struct {
	Platform   string
	StreamerID string
	Err        error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start capture %s/%s: %v", e.Platform, e.StreamerID, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }
