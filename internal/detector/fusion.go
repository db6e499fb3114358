package detector

import (
	"github.com/scanforge/serialscan/internal/utils"
)

// FuseWithOCRBoxes cross-checks detections against word boxes reported by
// the text recognizer on a previous pass. A detection overlapping an OCR
// box above the fusion IoU threshold has its confidence boosted (clamped to
// 1.0); with DropUnfused set, detections with no overlap are removed.
func FuseWithOCRBoxes(cands []Candidate, ocrBoxes []utils.Box, cfg FusionConfig) []Candidate {
	if !cfg.Enabled || len(ocrBoxes) == 0 {
		return cands
	}

	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		fused := false
		for _, ob := range ocrBoxes {
			if utils.IoU(c.Box, ob) >= cfg.IoUThreshold {
				fused = true
				break
			}
		}
		switch {
		case fused:
			c.Confidence *= cfg.Boost
			if c.Confidence > 1.0 {
				c.Confidence = 1.0
			}
			out = append(out, c)
		case !cfg.DropUnfused:
			out = append(out, c)
		}
	}
	return out
}
