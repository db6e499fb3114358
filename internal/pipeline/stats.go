package pipeline

import (
	"sync/atomic"

	"github.com/scanforge/serialscan/internal/common"
)

// Stats is the analytics bookkeeping updated on the low-priority lane.
// Counters are atomic so snapshots never block frame processing.
type Stats struct {
	framesSeen atomic.Int64
	// framesProcessed counts frames whose handling fully completed:
	// dropped at ingress, skipped by admission, or scanned to the end of
	// the stage walk. It trails framesScanned, which increments at stage
	// entry, and is what callers wait on to drain a session.
	framesProcessed atomic.Int64
	framesDropped   atomic.Int64
	framesSkipped   atomic.Int64
	framesScanned   atomic.Int64
	candidates      atomic.Int64
	modelFailures   atomic.Int64
	timings         *common.StageTimings
}

// NewStats creates an empty stats collector.
func NewStats() *Stats {
	return &Stats{timings: common.NewStageTimings()}
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	FramesSeen      int64              `json:"framesSeen"`
	FramesProcessed int64              `json:"framesProcessed"`
	FramesDropped   int64              `json:"framesDropped"`
	FramesSkipped   int64              `json:"framesSkipped"`
	FramesScanned   int64              `json:"framesScanned"`
	Candidates      int64              `json:"candidates"`
	ModelFailures   int64              `json:"modelFailures"`
	StageAverages   map[string]float64 `json:"stageAveragesMs"`
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		FramesSeen:      s.framesSeen.Load(),
		FramesProcessed: s.framesProcessed.Load(),
		FramesDropped:   s.framesDropped.Load(),
		FramesSkipped:   s.framesSkipped.Load(),
		FramesScanned:   s.framesScanned.Load(),
		Candidates:      s.candidates.Load(),
		ModelFailures:   s.modelFailures.Load(),
		StageAverages:   s.timings.AveragesMs(),
	}
}

// Timings exposes the per-stage latency accumulator.
func (s *Stats) Timings() *common.StageTimings { return s.timings }
