package detector

// applyGeometryGates filters candidates whose shape cannot plausibly be a
// serial label: aspect ratio outside the elongated-text band, height out of
// proportion to the frame, or too small to recognize.
func applyGeometryGates(cands []Candidate, gate GeometryGate, frameHeight int) []Candidate {
	if frameHeight <= 0 {
		return nil
	}
	kept := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if passesGate(c, gate, float64(frameHeight)) {
			kept = append(kept, c)
		}
	}
	return kept
}

func passesGate(c Candidate, gate GeometryGate, frameHeight float64) bool {
	w := c.Box.Width()
	h := c.Box.Height()
	if w < gate.MinPixelWidth || h < gate.MinPixelHeight {
		return false
	}
	ar := c.Box.AspectRatio()
	if ar < gate.MinAspectRatio || ar > gate.MaxAspectRatio {
		return false
	}
	normH := h / frameHeight
	if normH < gate.MinNormHeight || normH > gate.MaxNormHeight {
		return false
	}
	return true
}
