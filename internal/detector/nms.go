package detector

import (
	"sort"

	"github.com/scanforge/serialscan/internal/utils"
)

// NonMaxSuppression performs greedy non-maximum suppression over candidates
// sorted by descending confidence, suppressing any box whose IoU with an
// already-selected box exceeds iouThreshold.
//
// The operation is idempotent: running it again on its own output with the
// same threshold yields the identical set.
func NonMaxSuppression(cands []Candidate, iouThreshold float64) []Candidate {
	if len(cands) <= 1 {
		return sortByConfidence(cands)
	}

	sorted := sortByConfidence(cands)
	suppressed := make([]bool, len(sorted))
	kept := make([]Candidate, 0, len(sorted))

	for a := range sorted {
		if suppressed[a] {
			continue
		}
		kept = append(kept, sorted[a])
		for b := a + 1; b < len(sorted); b++ {
			if suppressed[b] {
				continue
			}
			if utils.IoU(sorted[a].Box, sorted[b].Box) > iouThreshold {
				suppressed[b] = true
			}
		}
	}
	return kept
}

// sortByConfidence returns a copy sorted by descending confidence. Ties
// break on box position for deterministic ordering.
func sortByConfidence(cands []Candidate) []Candidate {
	out := make([]Candidate, len(cands))
	copy(out, cands)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if out[i].Box.MinX != out[j].Box.MinX {
			return out[i].Box.MinX < out[j].Box.MinX
		}
		return out[i].Box.MinY < out[j].Box.MinY
	})
	return out
}
