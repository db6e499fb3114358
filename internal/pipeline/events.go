package pipeline

import (
	"github.com/scanforge/serialscan/internal/quality"
	"github.com/scanforge/serialscan/internal/validator"
)

// EventKind labels a session progress event.
type EventKind string

const (
	// EventFrame reports an admitted frame finished processing.
	EventFrame EventKind = "frame"
	// EventCandidate reports a buffered candidate.
	EventCandidate EventKind = "candidate"
	// EventQuality carries a capture-condition report.
	EventQuality EventKind = "quality"
	// EventBorderline asks for confirmation of a borderline decision.
	EventBorderline EventKind = "borderline"
	// EventDecision carries the terminal session decision.
	EventDecision EventKind = "decision"
	// EventSubmitError reports a submission collaborator failure.
	EventSubmitError EventKind = "submit-error"
)

// Event is one session progress notification. The event stream is lossy
// for non-terminal events: a slow consumer drops frame and quality events
// but always receives the decision.
type Event struct {
	Kind       EventKind         `json:"kind"`
	Frame      int               `json:"frame,omitempty"`
	Candidate  string            `json:"candidate,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
	Quality    *quality.Report   `json:"quality,omitempty"`
	Result     *validator.Result `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
}
