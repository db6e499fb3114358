// Package recognizer is the text recognition adapter: the only point where
// an OCR engine is invoked. The pipeline consumes the Engine interface and
// treats the implementation as a black box returning a string plus
// per-character geometry and confidence.
package recognizer

import (
	"context"
	"image"
	"log/slog"
	"time"

	"github.com/scanforge/serialscan/internal/mempool"
	"github.com/scanforge/serialscan/internal/onnx"
	"github.com/scanforge/serialscan/internal/scanerr"
	"github.com/scanforge/serialscan/internal/utils"
)

// Accuracy selects the recognition speed/quality trade-off.
type Accuracy string

const (
	AccuracyFast     Accuracy = "fast"
	AccuracyAccurate Accuracy = "accurate"
)

// RecognizedText is the adapter output for one cropped region.
type RecognizedText struct {
	Text         string
	CharBoxes    []utils.Box // per-character boxes, crop-relative
	CharConfs    []float64   // per-character confidences in [0,1]
	Confidence   float64     // mean character confidence
	ProcessingNs int64
}

// Engine is the recognition contract consumed by the pipeline.
type Engine interface {
	// Recognize extracts text from a cropped serial-label region.
	Recognize(ctx context.Context, region image.Image) (RecognizedText, error)
}

// Config holds configuration for the CTC recognizer.
type Config struct {
	ImageHeight int      // input height for fast mode (default: 32)
	TallHeight  int      // input height for accurate mode (default: 48)
	MaxWidth    int      // width clamp after height normalization (0 = none)
	Accuracy    Accuracy // fast or accurate
}

// DefaultConfig returns recognizer defaults.
func DefaultConfig() Config {
	return Config{
		ImageHeight: 32,
		TallHeight:  48,
		MaxWidth:    640,
		Accuracy:    AccuracyAccurate,
	}
}

// CTCRecognizer is the ONNX-backed Engine implementation: a height
// normalized grayscale crop through a CTC sequence model, greedy decoded
// against the restricted serial charset.
type CTCRecognizer struct {
	config  Config
	runner  onnx.Runner
	charset *Charset
}

// NewCTC creates the default recognition engine.
func NewCTC(config Config, runner onnx.Runner, charset *Charset) (*CTCRecognizer, error) {
	if charset == nil {
		charset = DefaultSerialCharset()
	}
	if config.ImageHeight <= 0 {
		config.ImageHeight = 32
	}
	if config.TallHeight <= 0 {
		config.TallHeight = config.ImageHeight
	}
	slog.Debug("Initializing CTC recognizer",
		"image_height", config.ImageHeight,
		"accuracy", string(config.Accuracy),
		"charset_size", charset.Size())
	return &CTCRecognizer{config: config, runner: runner, charset: charset}, nil
}

// Charset returns the engine's restricted character set.
func (r *CTCRecognizer) Charset() *Charset { return r.charset }

// inputHeight maps the accuracy level to the model input height.
func (r *CTCRecognizer) inputHeight() int {
	if r.config.Accuracy == AccuracyAccurate {
		return r.config.TallHeight
	}
	return r.config.ImageHeight
}

// Recognize extracts text and per-glyph geometry from a cropped region.
func (r *CTCRecognizer) Recognize(ctx context.Context, region image.Image) (RecognizedText, error) {
	if region == nil {
		return RecognizedText{}, scanerr.InvalidInput("nil region image")
	}
	if r.runner == nil {
		return RecognizedText{}, scanerr.ModelNotReady("text recognizer")
	}
	bounds := region.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return RecognizedText{}, scanerr.InvalidInput("empty region crop")
	}

	start := time.Now()
	height := r.inputHeight()
	resized := utils.ResizeHeight(region, height, r.config.MaxWidth)

	data, w, h, err := utils.NormalizeGray(resized)
	if err != nil {
		return RecognizedText{}, scanerr.InvalidInput(err.Error())
	}
	defer mempool.PutFloat32(data)

	tensor, err := onnx.NewImageTensor(data, 1, h, w)
	if err != nil {
		return RecognizedText{}, scanerr.InvalidInput(err.Error())
	}

	out, err := r.runner.Predict(ctx, tensor)
	if err != nil {
		return RecognizedText{}, scanerr.PredictionFailed("text recognizer", err)
	}

	decoded := DecodeCTCGreedy(out.Data, out.Shape, r.charset.BlankIndex())
	if decoded == nil {
		return RecognizedText{}, scanerr.PredictionFailed("text recognizer", errUndecodable)
	}

	// Map collapsed timesteps back to crop-relative pixel columns. The
	// width ratio between the original crop and the resized input restores
	// original coordinates.
	scaleX := float64(bounds.Dx()) / float64(w)
	text, boxes, confs := r.charset.Render(decoded, scaleX, float64(bounds.Dy()), w)

	return RecognizedText{
		Text:         text,
		CharBoxes:    boxes,
		CharConfs:    confs,
		Confidence:   meanConfidence(confs),
		ProcessingNs: time.Since(start).Nanoseconds(),
	}, nil
}

func meanConfidence(confs []float64) float64 {
	if len(confs) == 0 {
		return 0
	}
	var s float64
	for _, c := range confs {
		s += c
	}
	return s / float64(len(confs))
}
