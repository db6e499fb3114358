// Package common provides shared utilities including stage timing.
package common

import (
	"fmt"
	"sync"
	"time"
)

// Timer provides timing utilities for per-stage latency measurement.
type Timer struct {
	start    time.Time
	name     string
	duration time.Duration
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// NewNamedTimer creates a new timer with the given name.
func NewNamedTimer(name string) *Timer {
	return &Timer{name: name, start: time.Now()}
}

// Stop stops the timer and returns the elapsed duration.
func (t *Timer) Stop() time.Duration {
	t.duration = time.Since(t.start)
	return t.duration
}

// Duration returns the recorded duration (only valid after Stop()).
func (t *Timer) Duration() time.Duration {
	return t.duration
}

// Name returns the timer name (empty string if unnamed).
func (t *Timer) Name() string {
	return t.name
}

// String returns a formatted string representation of the timer.
func (t *Timer) String() string {
	if t.name != "" {
		return fmt.Sprintf("%s: %v", t.name, t.duration)
	}
	return fmt.Sprintf("%v", t.duration)
}

// StageTimings accumulates per-stage durations across the frames of a
// scanning session. Safe for concurrent use.
type StageTimings struct {
	mu     sync.Mutex
	totals map[string]time.Duration
	counts map[string]int
}

// NewStageTimings creates an empty accumulator.
func NewStageTimings() *StageTimings {
	return &StageTimings{
		totals: make(map[string]time.Duration),
		counts: make(map[string]int),
	}
}

// Record adds one observation for a stage.
func (s *StageTimings) Record(stage string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals[stage] += d
	s.counts[stage]++
}

// Average returns the mean duration for a stage, or 0 if unobserved.
func (s *StageTimings) Average(stage string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.counts[stage]
	if n == 0 {
		return 0
	}
	return s.totals[stage] / time.Duration(n)
}

// AveragesMs returns the mean duration per stage in milliseconds.
func (s *StageTimings) AveragesMs() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.totals))
	for stage, total := range s.totals {
		if n := s.counts[stage]; n > 0 {
			out[stage] = float64(total.Microseconds()) / float64(n) / 1000.0
		}
	}
	return out
}

// Snapshot returns a copy of the accumulated totals and counts.
func (s *StageTimings) Snapshot() (map[string]time.Duration, map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals := make(map[string]time.Duration, len(s.totals))
	counts := make(map[string]int, len(s.counts))
	for k, v := range s.totals {
		totals[k] = v
	}
	for k, v := range s.counts {
		counts[k] = v
	}
	return totals, counts
}
