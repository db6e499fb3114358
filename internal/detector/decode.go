package detector

import (
	"fmt"

	"github.com/scanforge/serialscan/internal/onnx"
	"github.com/scanforge/serialscan/internal/utils"
)

// rowStride is the per-detection layout of the raw model output:
// center-x, center-y, width, height, confidence, class index.
const rowStride = 6

// decodeOutput converts the raw detection tensor into pixel-space
// candidates for the original image. Raw rows are in letterbox coordinates;
// the letterbox transform is inverted here. Rows below the confidence
// threshold are dropped immediately.
func decodeOutput(out onnx.Tensor, lb utils.LetterboxResult, origW, origH int, confThreshold float64) ([]Candidate, error) {
	if len(out.Shape) < 2 {
		return nil, fmt.Errorf("unexpected output rank %d", len(out.Shape))
	}
	stride := int(out.Shape[len(out.Shape)-1])
	if stride < rowStride {
		return nil, fmt.Errorf("unexpected output stride %d, want >= %d", stride, rowStride)
	}
	if len(out.Data)%stride != 0 {
		return nil, fmt.Errorf("output length %d not divisible by stride %d", len(out.Data), stride)
	}
	if lb.Scale <= 0 {
		return nil, fmt.Errorf("invalid letterbox scale %f", lb.Scale)
	}

	n := len(out.Data) / stride
	cands := make([]Candidate, 0, n)
	for i := range n {
		row := out.Data[i*stride : (i+1)*stride]
		conf := float64(row[4])
		if conf < confThreshold {
			continue
		}
		if conf > 1 {
			conf = 1
		}

		// Undo the letterbox: subtract padding, divide by scale.
		cx := (float64(row[0]) - lb.OffsetX) / lb.Scale
		cy := (float64(row[1]) - lb.OffsetY) / lb.Scale
		w := float64(row[2]) / lb.Scale
		h := float64(row[3]) / lb.Scale
		if w <= 0 || h <= 0 {
			continue
		}

		box := utils.NewBoxFromCenter(cx, cy, w, h)
		box = clampBox(box, float64(origW), float64(origH))
		if box.Width() <= 0 || box.Height() <= 0 {
			continue
		}

		cands = append(cands, Candidate{
			Box:        box,
			Confidence: conf,
			ClassIndex: int(row[5]),
		})
	}
	return cands, nil
}

func clampBox(b utils.Box, maxW, maxH float64) utils.Box {
	if b.MinX < 0 {
		b.MinX = 0
	}
	if b.MinY < 0 {
		b.MinY = 0
	}
	if b.MaxX > maxW {
		b.MaxX = maxW
	}
	if b.MaxY > maxH {
		b.MaxY = maxH
	}
	return b
}
