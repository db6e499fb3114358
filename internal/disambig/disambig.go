// Package disambig resolves visually confusable characters in recognized
// serial candidates. Up to four strategies vote per ambiguous character:
// a per-glyph classifier model, a positional prior over the serial
// structure, a contextual bigram check, and an ensemble of the agreeing
// strategies. The module degrades instead of failing: without glyph
// imagery or a loaded model it falls back to the prior and n-gram
// strategies alone.
package disambig

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/scanforge/serialscan/internal/mempool"
	"github.com/scanforge/serialscan/internal/onnx"
	"github.com/scanforge/serialscan/internal/serial"
	"github.com/scanforge/serialscan/internal/utils"
)

// charClasses is the character-model output alphabet, class index order.
const charClasses = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Config holds disambiguator tunables.
type Config struct {
	// AmbiguityThreshold is the confusable-character ratio above which
	// correction strategies run at all (default: 0.5).
	AmbiguityThreshold float64
	// ModelAcceptThreshold is the minimum per-glyph classifier confidence
	// for the model strategy to emit a candidate (default: 0.9).
	ModelAcceptThreshold float64
	// GlyphSize is the square input edge of the character model (default: 32).
	GlyphSize int
}

// DefaultConfig returns disambiguator defaults.
func DefaultConfig() Config {
	return Config{
		AmbiguityThreshold:   0.5,
		ModelAcceptThreshold: 0.9,
		GlyphSize:            32,
	}
}

// Correction records one applied character substitution.
type Correction struct {
	Position   int     `json:"position"`
	Original   string  `json:"original"`
	Corrected  string  `json:"corrected"`
	Confidence float64 `json:"confidence"`
	Method     Method  `json:"method"`
}

// Result is the outcome of a disambiguation pass.
type Result struct {
	Text        string       `json:"text"`
	Corrections []Correction `json:"corrections,omitempty"`
	Confidence  float64      `json:"confidence"`
}

// Disambiguator applies the correction strategies. The character model
// runner may be nil.
type Disambiguator struct {
	config Config
	runner onnx.Runner
}

// New creates a disambiguator. A nil runner disables the model strategy.
func New(config Config, runner onnx.Runner) *Disambiguator {
	return &Disambiguator{config: config, runner: runner}
}

// Ready reports whether the character model is available.
func (d *Disambiguator) Ready() bool { return d.runner != nil }

// Disambiguate corrects confusable characters in text. region is the
// cropped serial image and boxes the per-character glyph boxes in region
// coordinates; both may be nil/empty, in which case the model strategy is
// skipped. ambiguity is the confusable-character ratio computed by the
// caller (see serial.AmbiguityScore). Disambiguate never returns an error.
func (d *Disambiguator) Disambiguate(ctx context.Context, region image.Image, text string, boxes []utils.Box, ambiguity float64) Result {
	if ambiguity <= d.config.AmbiguityThreshold {
		return Result{Text: text, Confidence: 1 - ambiguity}
	}

	runes := []rune(text)
	out := make([]rune, len(runes))
	copy(out, runes)

	var corrections []Correction
	for pos, r := range runes {
		if !serial.IsAmbiguous(r) {
			continue
		}

		var cands []Candidate
		if c, ok := d.modelStrategy(ctx, region, boxes, pos); ok {
			cands = append(cands, c)
		}
		if c, ok := positionalStrategy(r, pos); ok {
			cands = append(cands, c)
		}
		if c, ok := ngramStrategy(r, pos, runes); ok {
			cands = append(cands, c)
		}

		best, ok := rank(cands)
		if !ok {
			continue
		}
		out[pos] = best.Corrected
		corrections = append(corrections, Correction{
			Position:   pos,
			Original:   string(r),
			Corrected:  string(best.Corrected),
			Confidence: best.Confidence,
			Method:     best.Method,
		})
	}

	conf := 1.0
	if len(corrections) > 0 {
		var sum float64
		for _, c := range corrections {
			sum += c.Confidence
		}
		conf = sum / float64(len(corrections))
	}

	corrected := string(out)
	if corrected != text {
		slog.Debug("Disambiguation applied",
			"original", text, "corrected", corrected, "corrections", len(corrections))
	}
	return Result{Text: corrected, Corrections: corrections, Confidence: conf}
}

// modelStrategy crops the glyph at pos and runs the character classifier.
// Any failure disables the strategy for this character only.
func (d *Disambiguator) modelStrategy(ctx context.Context, region image.Image, boxes []utils.Box, pos int) (Candidate, bool) {
	if d.runner == nil || region == nil || pos >= len(boxes) {
		return Candidate{}, false
	}
	glyph := utils.CropBox(region, boxes[pos])
	if glyph.Bounds().Empty() {
		return Candidate{}, false
	}

	size := d.config.GlyphSize
	resized := imaging.Resize(glyph, size, size, imaging.Lanczos)
	data, w, h, err := utils.NormalizeGray(resized)
	if err != nil {
		return Candidate{}, false
	}
	defer mempool.PutFloat32(data)

	input, err := onnx.NewImageTensor(data[:w*h], 1, h, w)
	if err != nil {
		return Candidate{}, false
	}
	out, err := d.runner.Predict(ctx, input)
	if err != nil {
		slog.Debug("Character model prediction failed", "error", err)
		return Candidate{}, false
	}
	if len(out.Data) < len(charClasses) {
		return Candidate{}, false
	}

	idx, conf := classProbability(out.Data[:len(charClasses)])
	if idx < 0 || conf < d.config.ModelAcceptThreshold {
		return Candidate{}, false
	}
	return Candidate{
		Corrected:  rune(charClasses[idx]),
		Confidence: conf,
		Method:     MethodModel,
	}, true
}

// classProbability returns the argmax class and its probability, applying
// a stable softmax when the outputs are not already probabilities.
func classProbability(scores []float32) (int, float64) {
	if len(scores) == 0 {
		return -1, 0
	}
	idx := 0
	maxV := scores[0]
	minV := scores[0]
	var sum float64
	for i, v := range scores {
		sum += float64(v)
		if v > maxV {
			maxV = v
			idx = i
		}
		if v < minV {
			minV = v
		}
	}
	if sum > 0.99 && sum < 1.01 && minV >= 0 && maxV <= 1 {
		return idx, float64(scores[idx])
	}
	var denom float64
	for _, v := range scores {
		denom += math.Exp(float64(v - maxV))
	}
	if denom == 0 {
		return idx, 0
	}
	return idx, math.Exp(float64(scores[idx]-maxV)) / denom
}

// Describe renders the corrections in a compact audit form.
func (r Result) Describe() string {
	if len(r.Corrections) == 0 {
		return "no corrections"
	}
	parts := make([]string, 0, len(r.Corrections))
	for _, c := range r.Corrections {
		if c.Original == c.Corrected {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s>%s@%d", c.Original, c.Corrected, c.Position))
	}
	if len(parts) == 0 {
		return "no corrections"
	}
	return strings.Join(parts, ",")
}
