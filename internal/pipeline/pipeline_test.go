package pipeline

import (
	"context"
	"image"
	"image/color"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/serialscan/internal/models"
	"github.com/scanforge/serialscan/internal/onnx"
	"github.com/scanforge/serialscan/internal/recognizer"
	"github.com/scanforge/serialscan/internal/utils"
	"github.com/scanforge/serialscan/internal/validator"
)

const (
	frameW = 640
	frameH = 480
)

// letterboxRow forward-maps a source-space box into the letterbox
// coordinates the detection model reports, mirroring utils.Letterbox.
func letterboxRow(srcW, srcH, input int, box utils.Box, conf float32) []float32 {
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

// scriptedDetRunner replays one detection row per call; the last row
// repeats once the script is exhausted.
type scriptedDetRunner struct {
	rows [][]float32
	call int
}

func (r *scriptedDetRunner) Predict(_ context.Context, _ onnx.Tensor) (onnx.Tensor, error) {
	i := r.call
	if i >= len(r.rows) {
		i = len(r.rows) - 1
	}
	r.call++
	row := r.rows[i]
	if len(row) == 0 {
		return onnx.Tensor{Data: []float32{0, 0, 0, 0, 0, 0}, Shape: []int64{1, 1, 6}}, nil
	}
	return onnx.Tensor{Data: row, Shape: []int64{1, 1, 6}}, nil
}

func (r *scriptedDetRunner) InputShape() []int64 { return []int64{1, 3, 416, 416} }
func (r *scriptedDetRunner) Close() error        { return nil }

// scriptedClfRunner replays one format probability per call.
type scriptedClfRunner struct {
	probs []float32
	call  int
}

func (r *scriptedClfRunner) Predict(_ context.Context, _ onnx.Tensor) (onnx.Tensor, error) {
	i := r.call
	if i >= len(r.probs) {
		i = len(r.probs) - 1
	}
	r.call++
	return onnx.Tensor{Data: []float32{r.probs[i]}, Shape: []int64{1, 1}}, nil
}

func (r *scriptedClfRunner) InputShape() []int64 { return []int64{1, 18} }
func (r *scriptedClfRunner) Close() error        { return nil }

// scriptedEngine replays recognized text without touching a model.
type scriptedEngine struct {
	texts []string
	confs []float64
	call  int
}

func (e *scriptedEngine) Recognize(_ context.Context, region image.Image) (recognizer.RecognizedText, error) {
	i := e.call
	if i >= len(e.texts) {
		i = len(e.texts) - 1
	}
	e.call++
	b := region.Bounds()
	return recognizer.RecognizedText{
		Text:       e.texts[i],
		CharBoxes:  charBoxes(float64(b.Dx()), float64(b.Dy())),
		Confidence: e.confs[i],
	}, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinFrameInterval = 0
	cfg.TimeBudget = 2 * time.Second
	cfg.FrameQueue = 8
	return cfg
}

// fullFrameBox is the serial region the detection stubs report:
// aspect 12, normalized height 0.0417, inside the geometry gates.
func fullFrameBox() utils.Box { return utils.NewBox(130, 205, 370, 225) }

func testFrame() Frame {
	return Frame{Image: imaging.New(frameW, frameH, color.Gray{Y: 128}), Timestamp: time.Now()}
}

func charBoxes(cropW, cropH float64) []utils.Box {
	boxes := make([]utils.Box, 12)
	step := cropW / 12
	for i := range boxes {
		boxes[i] = utils.NewBox(float64(i)*step, 0, float64(i+1)*step, cropH)
	}
	return boxes
}

func buildTestPipeline(t *testing.T, cfg Config, det *scriptedDetRunner, clf *scriptedClfRunner, engine recognizer.Engine, submitted *atomic.Int64) *Pipeline {
	t.Helper()
	registry := NewRegistry(t.TempDir(), onnx.ModelOptions{})
	registry.Register(models.RoleDetector, det)
	registry.Register(models.RoleClassifier, clf)

	p, err := NewBuilder().
		WithConfig(cfg).
		WithRegistry(registry).
		WithEngine(engine).
		WithSubmitter(SubmitterFunc(func(_ context.Context, r validator.Result) error {
			submitted.Add(1)
			return nil
		})).
		Build()
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}
