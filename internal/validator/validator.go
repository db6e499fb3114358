// Package validator turns a session's best candidate into a terminal
// scanning decision. The decision function is pure: the same text and
// confidence always yield the same level.
package validator

import (
	"github.com/scanforge/serialscan/internal/serial"
)

// Level is a terminal session decision.
type Level string

const (
	LevelAccept     Level = "ACCEPT"
	LevelBorderline Level = "BORDERLINE"
	LevelReject     Level = "REJECT"
)

// Reason qualifies a decision for logging and the UI layer.
type Reason string

const (
	ReasonHighConfidence Reason = "high-confidence"
	ReasonNeedsConfirm   Reason = "needs-confirmation"
	ReasonLowConfidence  Reason = "low-confidence"
	ReasonInvalidFormat  Reason = "invalid-format"
	ReasonNoDetection    Reason = "no-detection"
	ReasonConfirmed      Reason = "user-confirmed"
	ReasonDenied         Reason = "user-denied"
)

// Config holds the decision thresholds.
type Config struct {
	AcceptThreshold     float64 // confidence for immediate acceptance (default: 0.90)
	BorderlineThreshold float64 // lower bound of the confirm/deny band (default: 0.70)
}

// DefaultConfig returns validator defaults.
func DefaultConfig() Config {
	return Config{
		AcceptThreshold:     0.90,
		BorderlineThreshold: 0.70,
	}
}

// Validate checks threshold ordering.
func (c Config) Validate() error {
	if c.BorderlineThreshold < 0 || c.AcceptThreshold > 1 || c.BorderlineThreshold >= c.AcceptThreshold {
		return errThresholdOrder
	}
	return nil
}

// Result is the session outcome handed to the submission collaborator and
// the UI layer.
type Result struct {
	Serial     string  `json:"serial"`
	Confidence float64 `json:"confidence"`
	Level      Level   `json:"level"`
	Reason     Reason  `json:"reason"`
}

// Validator applies the decision thresholds.
type Validator struct {
	config Config
}

// New creates a validator.
func New(config Config) *Validator {
	return &Validator{config: config}
}

// Decide maps a candidate's corrected text and confidence to a decision
// level. Malformed text rejects regardless of confidence; a confidence at
// or above the accept threshold accepts; the borderline band suspends the
// session pending confirmation; everything else rejects.
func (v *Validator) Decide(text string, confidence float64) Result {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	if !serial.Matches(text) {
		return Result{Serial: text, Confidence: confidence, Level: LevelReject, Reason: ReasonInvalidFormat}
	}
	switch {
	case confidence >= v.config.AcceptThreshold:
		return Result{Serial: text, Confidence: confidence, Level: LevelAccept, Reason: ReasonHighConfidence}
	case confidence >= v.config.BorderlineThreshold:
		return Result{Serial: text, Confidence: confidence, Level: LevelBorderline, Reason: ReasonNeedsConfirm}
	default:
		return Result{Serial: text, Confidence: confidence, Level: LevelReject, Reason: ReasonLowConfidence}
	}
}

// NoDetection is the decision for a session that buffered no candidate.
func (v *Validator) NoDetection() Result {
	return Result{Level: LevelReject, Reason: ReasonNoDetection}
}

// Confirm resolves a borderline decision as accepted, keeping the serial
// and confidence. Non-borderline results pass through unchanged.
func (v *Validator) Confirm(r Result) Result {
	if r.Level != LevelBorderline {
		return r
	}
	r.Level = LevelAccept
	r.Reason = ReasonConfirmed
	return r
}

// Deny resolves a borderline decision as rejected.
func (v *Validator) Deny(r Result) Result {
	if r.Level != LevelBorderline {
		return r
	}
	r.Level = LevelReject
	r.Reason = ReasonDenied
	return r
}
