// Package quality estimates per-frame capture conditions: focus,
// lighting and glare. These analyses run on a lower-priority lane and are
// capped to the first frames of a session; their results inform UI hints
// and analytics, never the scan decision itself.
package quality

import (
	"image"
	"sync"

	"github.com/disintegration/imaging"
)

// analysisWidth is the downsample width used before measurement; quality
// metrics are scale-tolerant and the smaller image bounds the cost.
const analysisWidth = 128

// Report holds the capture-condition estimates for one frame.
type Report struct {
	Sharpness     float64 `json:"sharpness"`     // Laplacian response variance, higher is sharper
	Luminance     float64 `json:"luminance"`     // mean luma in [0,1]
	GlareFraction float64 `json:"glareFraction"` // fraction of near-saturated pixels
	LowLight      bool    `json:"lowLight"`
	Glare         bool    `json:"glare"`
}

// Config holds analyzer thresholds.
type Config struct {
	LowLightLuminance float64 // mean luma below this flags low light (default: 0.25)
	GlareLuma         float64 // per-pixel luma counted as glare (default: 0.95)
	GlareFraction     float64 // saturated fraction that flags glare (default: 0.05)
	MaxFrames         int     // analyses per session (default: 3)
}

// DefaultConfig returns analyzer defaults.
func DefaultConfig() Config {
	return Config{
		LowLightLuminance: 0.25,
		GlareLuma:         0.95,
		GlareFraction:     0.05,
		MaxFrames:         3,
	}
}

// Analyze measures a single frame.
func Analyze(img image.Image, config Config) Report {
	small := imaging.Resize(img, analysisWidth, 0, imaging.Box)
	gray := imaging.Grayscale(small)
	bounds := gray.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w < 3 || h < 3 {
		return Report{}
	}

	luma := make([]float64, w*h)
	var lumaSum float64
	glareCount := 0
	for y := range h {
		for x := range w {
			r, _, _, _ := gray.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			v := float64(r>>8) / 255.0
			luma[y*w+x] = v
			lumaSum += v
			if v >= config.GlareLuma {
				glareCount++
			}
		}
	}
	n := float64(w * h)
	meanLuma := lumaSum / n
	glareFrac := float64(glareCount) / n

	// 4-neighbor Laplacian; variance of the response tracks focus.
	var lapSum, lapSqSum float64
	inner := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			lap := 4*luma[y*w+x] - luma[y*w+x-1] - luma[y*w+x+1] - luma[(y-1)*w+x] - luma[(y+1)*w+x]
			lapSum += lap
			lapSqSum += lap * lap
			inner++
		}
	}
	mean := lapSum / float64(inner)
	variance := lapSqSum/float64(inner) - mean*mean
	if variance < 0 {
		variance = 0
	}

	return Report{
		Sharpness:     variance,
		Luminance:     meanLuma,
		GlareFraction: glareFrac,
		LowLight:      meanLuma < config.LowLightLuminance,
		Glare:         glareFrac >= config.GlareFraction,
	}
}

// Analyzer caps analyses to the first MaxFrames frames of a session.
// Safe for concurrent use from the analysis lane.
type Analyzer struct {
	config Config

	mu       sync.Mutex
	analyzed int
	last     Report
	haveLast bool
}

// NewAnalyzer creates a session-scoped analyzer.
func NewAnalyzer(config Config) *Analyzer {
	if config.MaxFrames <= 0 {
		config.MaxFrames = DefaultConfig().MaxFrames
	}
	return &Analyzer{config: config}
}

// Analyze measures the frame unless the per-session cap is spent; ok
// reports whether an analysis ran.
func (a *Analyzer) Analyze(img image.Image) (Report, bool) {
	a.mu.Lock()
	if a.analyzed >= a.config.MaxFrames {
		a.mu.Unlock()
		return Report{}, false
	}
	a.analyzed++
	a.mu.Unlock()

	r := Analyze(img, a.config)

	a.mu.Lock()
	a.last = r
	a.haveLast = true
	a.mu.Unlock()
	return r, true
}

// Last returns the most recent report.
func (a *Analyzer) Last() (Report, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last, a.haveLast
}

// Reset re-arms the analyzer for a new session.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.analyzed = 0
	a.haveLast = false
	a.last = Report{}
}
