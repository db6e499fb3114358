package stabilizer

import "time"

// FrameResult is one accepted per-frame candidate.
type FrameResult struct {
	Text       string
	Confidence float64
	Timestamp  time.Time
}

// History is a fixed-capacity ring buffer of FrameResults in arrival
// order. The buffer never holds more than its window; the oldest entry is
// overwritten once full. Owned exclusively by one session.
type History struct {
	buf   []FrameResult
	n     int
	w     int
	early float64
}

// DefaultWindow is the default rolling-history size.
const DefaultWindow = 5

// DefaultEarlyExit is the single-frame confidence that ends a session
// before its budgets are spent.
const DefaultEarlyExit = 0.9

// NewHistory creates a rolling history with the given window and
// early-exit confidence. Non-positive values fall back to the defaults.
func NewHistory(window int, earlyExit float64) *History {
	if window <= 0 {
		window = DefaultWindow
	}
	if earlyExit <= 0 {
		earlyExit = DefaultEarlyExit
	}
	return &History{buf: make([]FrameResult, window), early: earlyExit}
}

// Append records a frame result and reports whether its confidence
// triggers an early session exit.
func (h *History) Append(r FrameResult) bool {
	h.buf[h.w] = r
	h.w = (h.w + 1) % len(h.buf)
	if h.n < len(h.buf) {
		h.n++
	}
	return r.Confidence >= h.early
}

// Len returns the number of buffered results.
func (h *History) Len() int { return h.n }

// Empty reports whether no frame produced an accepted candidate.
func (h *History) Empty() bool { return h.n == 0 }

// Best returns the highest-confidence buffered result; ok is false when
// the buffer is empty. On ties the earlier arrival wins.
func (h *History) Best() (FrameResult, bool) {
	if h.n == 0 {
		return FrameResult{}, false
	}
	best := h.at(0)
	for i := 1; i < h.n; i++ {
		if r := h.at(i); r.Confidence > best.Confidence {
			best = r
		}
	}
	return best, true
}

// Consensus counts how many buffered results carry the same text as the
// best candidate and returns that count plus their mean confidence.
func (h *History) Consensus() (best FrameResult, consistent int, meanConf float64) {
	b, ok := h.Best()
	if !ok {
		return FrameResult{}, 0, 0
	}
	var sum float64
	for i := range h.n {
		if r := h.at(i); r.Text == b.Text {
			consistent++
			sum += r.Confidence
		}
	}
	return b, consistent, sum / float64(consistent)
}

// Snapshot returns the buffered results oldest-first.
func (h *History) Snapshot() []FrameResult {
	out := make([]FrameResult, h.n)
	for i := range h.n {
		out[i] = h.at(i)
	}
	return out
}

// Reset clears the buffer for session reuse.
func (h *History) Reset() {
	h.n = 0
	h.w = 0
}

// at returns the i-th result oldest-first.
func (h *History) at(i int) FrameResult {
	if h.n < len(h.buf) {
		return h.buf[i]
	}
	return h.buf[(h.w+i)%len(h.buf)]
}
