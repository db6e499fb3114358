package stabilizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/serialscan/internal/utils"
)

func TestPositionFilterFirstObservation(t *testing.T) {
	f := NewPositionFilter(DefaultFilterConfig())

	_, ok := f.Center()
	assert.False(t, ok)

	box := utils.NewBox(100, 50, 300, 70)
	roi := f.Observe(box, 640, 480)

	c, ok := f.Center()
	require.True(t, ok)
	assert.InDelta(t, 200, c.X, 1e-9, "first observation seeds the state directly")
	assert.InDelta(t, 60, c.Y, 1e-9)

	// ROI keeps the box size plus the 10% margin on each side.
	assert.InDelta(t, box.Width()*1.2, roi.Width(), 1e-9)
	assert.InDelta(t, box.Height()*1.2, roi.Height(), 1e-9)
}

func TestPositionFilterSmoothsJitter(t *testing.T) {
	f := NewPositionFilter(DefaultFilterConfig())

	f.Observe(utils.NewBox(100, 50, 300, 70), 640, 480)
	f.Observe(utils.NewBox(110, 50, 310, 70), 640, 480)

	c, ok := f.Center()
	require.True(t, ok)
	assert.Greater(t, c.X, 200.0, "center moves toward the new measurement")
	assert.Less(t, c.X, 210.0, "but not all the way")
}

func TestPositionFilterROIClamped(t *testing.T) {
	f := NewPositionFilter(DefaultFilterConfig())
	roi := f.Observe(utils.NewBox(0, 0, 200, 20), 640, 480)
	assert.GreaterOrEqual(t, roi.MinX, 0.0)
	assert.GreaterOrEqual(t, roi.MinY, 0.0)
	assert.LessOrEqual(t, roi.MaxX, 640.0)
	assert.LessOrEqual(t, roi.MaxY, 480.0)
}

func TestStabilityScore(t *testing.T) {
	f := NewPositionFilter(DefaultFilterConfig())
	assert.Zero(t, f.Stability(), "needs a full window of centers")

	steady := utils.NewBox(100, 50, 300, 70)
	for range 3 {
		f.Observe(steady, 640, 480)
	}
	steadyScore := f.Stability()
	assert.Greater(t, steadyScore, 0.9, "a motionless target scores near 1")

	f.Reset()
	f.Observe(utils.NewBox(0, 0, 200, 20), 640, 480)
	f.Observe(utils.NewBox(200, 200, 400, 220), 640, 480)
	f.Observe(utils.NewBox(50, 400, 250, 420), 640, 480)
	movingScore := f.Stability()
	assert.Less(t, movingScore, steadyScore)
	assert.GreaterOrEqual(t, movingScore, 0.0)
	assert.LessOrEqual(t, movingScore, 1.0)
}

func TestPositionFilterReset(t *testing.T) {
	f := NewPositionFilter(DefaultFilterConfig())
	f.Observe(utils.NewBox(100, 50, 300, 70), 640, 480)
	f.Reset()

	_, ok := f.Center()
	assert.False(t, ok)
	assert.Zero(t, f.Stability())
}

func frame(text string, conf float64) FrameResult {
	return FrameResult{Text: text, Confidence: conf, Timestamp: time.Now()}
}

func TestHistoryAppendAndBest(t *testing.T) {
	h := NewHistory(5, DefaultEarlyExit)
	assert.True(t, h.Empty())
	_, ok := h.Best()
	assert.False(t, ok)

	assert.False(t, h.Append(frame("C02X1234ABCD", 0.76)))
	assert.False(t, h.Append(frame("C02X1234ABCD", 0.78)))
	assert.False(t, h.Append(frame("C02X1234ABCD", 0.77)))

	best, ok := h.Best()
	require.True(t, ok)
	assert.InDelta(t, 0.78, best.Confidence, 1e-9)
	assert.Equal(t, 3, h.Len())
}

func TestHistoryEarlyExit(t *testing.T) {
	h := NewHistory(5, DefaultEarlyExit)
	assert.False(t, h.Append(frame("C02X1234ABCD", 0.89)))
	assert.True(t, h.Append(frame("C02X1234ABCD", 0.90)), "early exit is inclusive")
}

func TestHistoryWindowEviction(t *testing.T) {
	h := NewHistory(3, DefaultEarlyExit)
	h.Append(frame("OLD000000000", 0.99))
	h.Append(frame("A", 0.1))
	h.Append(frame("B", 0.2))
	h.Append(frame("C", 0.3))

	assert.Equal(t, 3, h.Len(), "buffer never exceeds its window")
	best, ok := h.Best()
	require.True(t, ok)
	assert.Equal(t, "C", best.Text, "the evicted entry no longer wins")

	snap := h.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "A", snap[0].Text)
	assert.Equal(t, "C", snap[2].Text)
}

func TestHistoryConsensus(t *testing.T) {
	h := NewHistory(5, DefaultEarlyExit)
	h.Append(frame("C02X1234ABCD", 0.76))
	h.Append(frame("C02X1234ABCD", 0.78))
	h.Append(frame("C02X1234ABCD", 0.77))

	best, consistent, mean := h.Consensus()
	assert.Equal(t, "C02X1234ABCD", best.Text)
	assert.Equal(t, 3, consistent)
	assert.InDelta(t, 0.77, mean, 1e-9)
}

func TestHistoryConsensusMixedTexts(t *testing.T) {
	h := NewHistory(5, DefaultEarlyExit)
	h.Append(frame("C02X1234ABCD", 0.80))
	h.Append(frame("C02X1234A8CD", 0.70))
	h.Append(frame("C02X1234ABCD", 0.75))

	best, consistent, mean := h.Consensus()
	assert.Equal(t, "C02X1234ABCD", best.Text)
	assert.Equal(t, 2, consistent)
	assert.InDelta(t, 0.775, mean, 1e-9)
}

func TestHistoryReset(t *testing.T) {
	h := NewHistory(5, DefaultEarlyExit)
	h.Append(frame("C02X1234ABCD", 0.8))
	h.Reset()
	assert.True(t, h.Empty())
	_, ok := h.Best()
	assert.False(t, ok)
}
