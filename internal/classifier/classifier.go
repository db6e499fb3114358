// Package classifier scores whether a recognized string is a plausible
// Apple-style serial number. A deterministic pre-filter rejects obvious
// non-serials before the scoring model is invoked, keeping model calls off
// the per-frame hot path for junk strings.
package classifier

import (
	"context"
	"errors"
	"log/slog"

	"github.com/scanforge/serialscan/internal/onnx"
	"github.com/scanforge/serialscan/internal/scanerr"
	"github.com/scanforge/serialscan/internal/serial"
	"github.com/scanforge/serialscan/internal/utils"
)

var errEmptyOutput = errors.New("model returned an empty output tensor")

// Score is the classifier output.
type Score struct {
	Probability float64 // serial likelihood in [0,1]
	PreFiltered bool    // true when stage 1 rejected without a model call
}

// Config holds classifier thresholds.
type Config struct {
	AcceptThreshold     float64 // probability above which a string is a serial (default: 0.80)
	StabilizedThreshold float64 // relaxed bound once >=3 consistent frames agree (default: 0.75)
}

// DefaultConfig returns classifier defaults.
func DefaultConfig() Config {
	return Config{
		AcceptThreshold:     0.80,
		StabilizedThreshold: 0.75,
	}
}

// Classifier scores candidate strings via an injected model Runner.
type Classifier struct {
	config Config
	runner onnx.Runner
}

// New creates a classifier. A nil runner is allowed; Classify then fails
// with ErrModelNotReady and the session cannot validate candidates.
func New(config Config, runner onnx.Runner) *Classifier {
	return &Classifier{config: config, runner: runner}
}

// Config returns the classifier configuration.
func (c *Classifier) Config() Config { return c.config }

// Ready reports whether the scoring model is available.
func (c *Classifier) Ready() bool { return c.runner != nil }

// PreFilter applies the deterministic stage-1 gate: exact length, minimum
// digit and letter counts, fully alphanumeric.
func PreFilter(text string) bool {
	return serial.ValidComposition(text)
}

// Classify scores a candidate string given its region geometry and OCR
// confidence. Strings failing the pre-filter short-circuit to probability
// 0.0 without invoking the model.
func (c *Classifier) Classify(ctx context.Context, text string, box utils.Box, ocrConfidence float64) (Score, error) {
	if !PreFilter(text) {
		return Score{Probability: 0.0, PreFiltered: true}, nil
	}
	if c.runner == nil {
		return Score{}, scanerr.ModelNotReady("format classifier")
	}

	features := ExtractFeatures(text, box.AspectRatio(), ocrConfidence)
	tensor, err := onnx.NewFeatureTensor(features)
	if err != nil {
		return Score{}, scanerr.InvalidInput(err.Error())
	}

	out, err := c.runner.Predict(ctx, tensor)
	if err != nil {
		return Score{}, scanerr.PredictionFailed("format classifier", err)
	}
	if len(out.Data) < 1 {
		return Score{}, scanerr.PredictionFailed("format classifier", errEmptyOutput)
	}

	p := float64(out.Data[0])
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	slog.Debug("Format classification", "text", text, "probability", p)
	return Score{Probability: p}, nil
}

// IsSerial applies the primary acceptance bar.
func (c *Classifier) IsSerial(s Score) bool {
	return s.Probability > c.config.AcceptThreshold
}

// IsSerialStabilized applies the relaxed bar usable once at least three
// consistent frames agree on the candidate.
func (c *Classifier) IsSerialStabilized(s Score) bool {
	return s.Probability >= c.config.StabilizedThreshold
}
