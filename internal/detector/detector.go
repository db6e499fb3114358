// Package detector locates candidate serial-bearing rectangles in a frame
// using a region detection model, then narrows the set with geometry gates,
// non-maximum suppression and optional OCR box fusion.
package detector

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

// Detector performs serial-region detection via an injected model Runner.
type Detector struct {
	config Config
	runner onnx.Runner
}

// New creates a detector bound to a scoring model. A nil runner is allowed;
// Detect then fails with ErrModelNotReady until SetRunner is called, which
// lets a session start in degraded mode.
func New(config Config, runner onnx.Runner) (*Detector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	slog.Debug("Initializing detector",
		"input_size", config.InputSize,
		"conf_threshold", config.ConfThreshold,
		"nms_threshold", config.NMSThreshold,
		"fusion_enabled", config.Fusion.Enabled)
	return &Detector{config: config, runner: runner}, nil
}

// Config returns a copy of the detector configuration.
func (d *Detector) Config() Config { return d.config }

// Ready reports whether the scoring model is available.
func (d *Detector) Ready() bool { return d.runner != nil }

// Detect runs region detection on a frame. When roi is non-nil, detection
// is restricted to that sub-rectangle and resulting boxes are mapped back
// to full-frame coordinates.
func (d *Detector) Detect(ctx context.Context, img image.Image, roi *utils.Box) (Result, error) {
	if img == nil {
		return Result{}, scanerr.InvalidInput("nil frame image")
	}
	if d.runner == nil {
		return Result{}, scanerr.ModelNotReady("region detector")
	}

	start := time.Now()
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	// Narrow to the stabilized ROI when the caller supplies one.
	target := img
	var offX, offY float64
	if roi != nil {
		cropped := utils.CropBox(img, *roi)
		cb := cropped.Bounds()
		if cb.Dx() > 0 && cb.Dy() > 0 {
			target = cropped
			offX = roi.MinX
			offY = roi.MinY
			if offX < 0 {
				offX = 0
			}
			if offY < 0 {
				offY = 0
			}
		}
	}
	tb := target.Bounds()
	tw, th := tb.Dx(), tb.Dy()

	lb, err := utils.Letterbox(target, d.config.InputSize)
	if err != nil {
		return Result{}, scanerr.InvalidInput(err.Error())
	}

	data, w, h, err := utils.NormalizeImage(lb.Image)
	if err != nil {
		return Result{}, scanerr.InvalidInput(err.Error())
	}
	defer mempool.PutFloat32(data)

	tensor, err := onnx.NewImageTensor(data, 3, h, w)
	if err != nil {
		return Result{}, scanerr.InvalidInput(err.Error())
	}

	out, err := d.runner.Predict(ctx, tensor)
	if err != nil {
		return Result{}, scanerr.PredictionFailed("region detector", err)
	}

	cands, err := decodeOutput(out, lb, tw, th, d.config.ConfThreshold)
	if err != nil {
		return Result{}, scanerr.PredictionFailed("region detector", err)
	}

	// Geometry gates use the full frame height so the normalized-height
	// band stays meaningful when detection ran on a cropped ROI.
	if roi != nil {
		for i := range cands {
			cands[i].Box = cands[i].Box.Offset(offX, offY)
		}
	}
	cands = applyGeometryGates(cands, d.config.Gate, origH)
	cands = NonMaxSuppression(cands, d.config.NMSThreshold)

	return Result{
		Candidates:   cands,
		ImageWidth:   origW,
		ImageHeight:  origH,
		ProcessingNs: time.Since(start).Nanoseconds(),
	}, nil
}

// Fuse applies OCR box fusion to a detection result, re-running NMS since
// boosted confidences can change suppression order.
func (d *Detector) Fuse(res Result, ocrBoxes []utils.Box) Result {
	fused := FuseWithOCRBoxes(res.Candidates, ocrBoxes, d.config.Fusion)
	res.Candidates = NonMaxSuppression(fused, d.config.NMSThreshold)
	return res
}
