// Package stabilizer smooths per-frame detections across a scanning
// session. A constant-velocity position filter tracks the serial region
// between frames and predicts the next region of interest, and a bounded
// frame history accumulates accepted candidates for consensus selection.
package stabilizer

import (
	"math"

	"github.com/scanforge/serialscan/internal/utils"
)

// FilterConfig holds position-filter tunables.
type FilterConfig struct {
	ProcessNoise     float64 // estimate-error growth per predict step (default: 1.0)
	MeasurementNoise float64 // detection center jitter (default: 2.0)
	ROIMargin        float64 // fractional expansion of the predicted region (default: 0.10)
}

// DefaultFilterConfig returns position-filter defaults.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		ProcessNoise:     1.0,
		MeasurementNoise: 2.0,
		ROIMargin:        0.10,
	}
}

// axis is a 1-D constant-velocity Kalman filter.
type axis struct {
	pos float64
	vel float64
	p   float64 // estimate error
}

func (a *axis) update(z, processNoise, measurementNoise float64) {
	predicted := a.pos + a.vel
	a.p += processNoise

	gain := a.p / (a.p + measurementNoise)
	residual := z - predicted
	a.pos = predicted + gain*residual
	a.vel += gain * residual
	a.p *= 1 - gain
}

// stabilityWindow is the number of smoothed centers the frame-stability
// score is computed over.
const stabilityWindow = 3

// PositionFilter tracks the center of the highest-confidence detection
// across frames. State is (x, y, vx, vy); each Observe blends a
// constant-velocity prediction with the measured center. Not safe for
// concurrent use; each session owns exactly one filter.
type PositionFilter struct {
	config      FilterConfig
	x, y        axis
	initialized bool

	centers [stabilityWindow]utils.Point
	nCenter int
	wCenter int
}

// NewPositionFilter creates a position filter.
func NewPositionFilter(config FilterConfig) *PositionFilter {
	return &PositionFilter{config: config}
}

// Observe feeds the detection box of the current frame into the filter
// and returns the next frame's region of interest: the smoothed center
// with the observed box size, expanded by the configured margin and
// clamped to the frame.
func (f *PositionFilter) Observe(box utils.Box, frameW, frameH float64) utils.Box {
	c := box.Center()
	if !f.initialized {
		f.x = axis{pos: c.X, p: 1}
		f.y = axis{pos: c.Y, p: 1}
		f.initialized = true
	} else {
		f.x.update(c.X, f.config.ProcessNoise, f.config.MeasurementNoise)
		f.y.update(c.Y, f.config.ProcessNoise, f.config.MeasurementNoise)
	}

	f.centers[f.wCenter] = utils.Point{X: f.x.pos, Y: f.y.pos}
	f.wCenter = (f.wCenter + 1) % stabilityWindow
	if f.nCenter < stabilityWindow {
		f.nCenter++
	}

	roi := utils.NewBoxFromCenter(f.x.pos, f.y.pos, box.Width(), box.Height())
	return roi.Expand(f.config.ROIMargin, frameW, frameH)
}

// Center returns the current smoothed center; ok is false before the
// first observation.
func (f *PositionFilter) Center() (utils.Point, bool) {
	if !f.initialized {
		return utils.Point{}, false
	}
	return utils.Point{X: f.x.pos, Y: f.y.pos}, true
}

// Stability scores frame steadiness in [0,1] from the variance of the
// last smoothed centers; a motionless target scores 1.
func (f *PositionFilter) Stability() float64 {
	if f.nCenter < stabilityWindow {
		return 0
	}
	var mx, my float64
	for i := range f.nCenter {
		mx += f.centers[i].X
		my += f.centers[i].Y
	}
	n := float64(f.nCenter)
	mx /= n
	my /= n

	var v float64
	for i := range f.nCenter {
		dx := f.centers[i].X - mx
		dy := f.centers[i].Y - my
		v += dx*dx + dy*dy
	}
	v /= n
	return 1 / (1 + math.Sqrt(v))
}

// Reset clears all filter state for session reuse.
func (f *PositionFilter) Reset() {
	*f = PositionFilter{config: f.config}
}
