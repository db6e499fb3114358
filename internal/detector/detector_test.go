package detector

import (
	"context"
	"image/color"
	"math"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/serialscan/internal/onnx"
	"github.com/scanforge/serialscan/internal/scanerr"
	"github.com/scanforge/serialscan/internal/utils"
)

func cand(x1, y1, x2, y2, conf float64) Candidate {
	return Candidate{Box: utils.NewBox(x1, y1, x2, y2), Confidence: conf}
}

func TestNonMaxSuppressionKeepsBestOfOverlap(t *testing.T) {
	cands := []Candidate{
		cand(0, 0, 100, 10, 0.7),
		cand(5, 0, 105, 10, 0.9), // heavy overlap with the first
		cand(300, 0, 400, 10, 0.6),
	}
	kept := NonMaxSuppression(cands, 0.45)
	require.Len(t, kept, 2)
	assert.InDelta(t, 0.9, kept[0].Confidence, 1e-9)
	assert.InDelta(t, 0.6, kept[1].Confidence, 1e-9)
}

func TestNonMaxSuppressionIdempotent(t *testing.T) {
	cands := []Candidate{
		cand(0, 0, 100, 10, 0.7),
		cand(5, 0, 105, 10, 0.9),
		cand(40, 0, 140, 10, 0.8),
		cand(300, 0, 400, 10, 0.6),
		cand(310, 0, 410, 10, 0.61),
	}
	once := NonMaxSuppression(cands, 0.45)
	twice := NonMaxSuppression(once, 0.45)
	assert.Equal(t, once, twice)
}

func TestNonMaxSuppressionConfidenceMonotonic(t *testing.T) {
	// Raising a surviving candidate's confidence, geometry fixed, never
	// evicts it from the surviving set.
	cands := []Candidate{
		cand(0, 0, 100, 10, 0.7),
		cand(200, 0, 300, 10, 0.5),
	}
	before := NonMaxSuppression(cands, 0.45)
	require.Len(t, before, 2)

	cands[1].Confidence = 0.95
	after := NonMaxSuppression(cands, 0.45)
	require.Len(t, after, 2)
	assert.InDelta(t, 0.95, after[0].Confidence, 1e-9)
}

func TestNonMaxSuppressionDeterministicTieBreak(t *testing.T) {
	cands := []Candidate{
		cand(200, 0, 300, 10, 0.8),
		cand(0, 0, 100, 10, 0.8),
	}
	kept := NonMaxSuppression(cands, 0.45)
	require.Len(t, kept, 2)
	assert.Equal(t, 0.0, kept[0].Box.MinX, "equal confidences order by position")
}

func TestGeometryGates(t *testing.T) {
	gate := DefaultGeometryGate()
	const frameHeight = 480

	tests := []struct {
		name string
		c    Candidate
		pass bool
	}{
		{"serial-shaped box", cand(0, 0, 240, 20, 0.9), true},
		{"aspect too square", cand(0, 0, 60, 20, 0.9), false},
		{"aspect too elongated", cand(0, 0, 500, 20, 0.9), false},
		{"too tall for frame", cand(0, 0, 400, 40, 0.9), false},
		{"too short for frame", cand(0, 0, 40, 4, 0.9), false},
		{"below min pixel width", cand(0, 0, 19, 2, 0.9), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyGeometryGates([]Candidate{tt.c}, gate, frameHeight)
			assert.Equal(t, tt.pass, len(got) == 1)
		})
	}
}

func TestFuseBoostsOverlapping(t *testing.T) {
	cfg := DefaultFusionConfig()
	cands := []Candidate{
		cand(0, 0, 240, 20, 0.7),
		cand(300, 100, 540, 120, 0.7),
	}
	ocr := []utils.Box{utils.NewBox(10, 0, 250, 20)}

	fused := FuseWithOCRBoxes(cands, ocr, cfg)
	require.Len(t, fused, 2)
	assert.InDelta(t, 0.7*1.2, fused[0].Confidence, 1e-9)
	assert.InDelta(t, 0.7, fused[1].Confidence, 1e-9, "unfused candidate untouched")
}

func TestFuseClampsAndDrops(t *testing.T) {
	cfg := DefaultFusionConfig()
	cfg.DropUnfused = true
	cands := []Candidate{
		cand(0, 0, 240, 20, 0.95),
		cand(300, 100, 540, 120, 0.7),
	}
	ocr := []utils.Box{utils.NewBox(0, 0, 240, 20)}

	fused := FuseWithOCRBoxes(cands, ocr, cfg)
	require.Len(t, fused, 1)
	assert.Equal(t, 1.0, fused[0].Confidence, "boost clamps at 1.0")
}

func TestFuseDisabledPassthrough(t *testing.T) {
	cfg := DefaultFusionConfig()
	cfg.Enabled = false
	cands := []Candidate{cand(0, 0, 240, 20, 0.7)}
	assert.Equal(t, cands, FuseWithOCRBoxes(cands, []utils.Box{utils.NewBox(0, 0, 240, 20)}, cfg))
}

// fixedRunner returns a canned output tensor.
type fixedRunner struct {
	out onnx.Tensor
	err error
}

func (f *fixedRunner) Predict(_ context.Context, _ onnx.Tensor) (onnx.Tensor, error) {
	if f.err != nil {
		return onnx.Tensor{}, f.err
	}
	return f.out, nil
}
func (f *fixedRunner) InputShape() []int64 { return []int64{1, 3, 416, 416} }
func (f *fixedRunner) Close() error        { return nil }

// forwardRow maps a frame-space box into the letterbox coordinates of a
// srcW x srcH source, the inverse of what decodeOutput undoes.
func forwardRow(srcW, srcH, input int, box utils.Box, conf float32) []float32 {
	scale := math.Min(float64(input)/float64(srcW), float64(input)/float64(srcH))
	newW := int(math.Round(float64(srcW) * scale))
	newH := int(math.Round(float64(srcH) * scale))
	offX := float64((input - newW) / 2)
	offY := float64((input - newH) / 2)
	c := box.Center()
	return []float32{
		float32(c.X*scale + offX),
		float32(c.Y*scale + offY),
		float32(box.Width() * scale),
		float32(box.Height() * scale),
		conf,
		0,
	}
}

func TestDetectMapsBoxesBackToFrame(t *testing.T) {
	target := utils.NewBox(130, 205, 370, 225)
	runner := &fixedRunner{out: onnx.Tensor{
		Data:  forwardRow(640, 480, 416, target, 0.9),
		Shape: []int64{1, 1, 6},
	}}

	d, err := New(DefaultConfig(), runner)
	require.NoError(t, err)
	require.True(t, d.Ready())

	img := imaging.New(640, 480, color.Gray{Y: 128})
	res, err := d.Detect(context.Background(), img, nil)
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)

	got := res.Candidates[0].Box
	assert.InDelta(t, target.MinX, got.MinX, 0.5)
	assert.InDelta(t, target.MinY, got.MinY, 0.5)
	assert.InDelta(t, target.MaxX, got.MaxX, 0.5)
	assert.InDelta(t, target.MaxY, got.MaxY, 0.5)
	assert.Equal(t, 640, res.ImageWidth)
	assert.Equal(t, 480, res.ImageHeight)
}

func TestDetectDropsLowConfidence(t *testing.T) {
	target := utils.NewBox(130, 205, 370, 225)
	runner := &fixedRunner{out: onnx.Tensor{
		Data:  forwardRow(640, 480, 416, target, 0.3),
		Shape: []int64{1, 1, 6},
	}}
	d, err := New(DefaultConfig(), runner)
	require.NoError(t, err)

	res, err := d.Detect(context.Background(), imaging.New(640, 480, color.Gray{Y: 128}), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
}

func TestDetectNilRunner(t *testing.T) {
	d, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	assert.False(t, d.Ready())

	_, err = d.Detect(context.Background(), imaging.New(64, 64, color.Black), nil)
	assert.ErrorIs(t, err, scanerr.ErrModelNotReady)
}

func TestDetectNilImage(t *testing.T) {
	d, err := New(DefaultConfig(), &fixedRunner{})
	require.NoError(t, err)
	_, err = d.Detect(context.Background(), nil, nil)
	assert.ErrorIs(t, err, scanerr.ErrInvalidInput)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.InputSize = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.NMSThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Gate.MinAspectRatio = 30
	assert.Error(t, cfg.Validate())
}
