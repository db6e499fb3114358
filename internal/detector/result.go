package detector

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/scanforge/serialscan/internal/utils"
)

// Candidate is a single detected serial-label region.
type Candidate struct {
	Box        utils.Box
	Confidence float64
	ClassIndex int
}

// Result holds all surviving candidates for one frame.
type Result struct {
	Candidates   []Candidate
	ImageWidth   int
	ImageHeight  int
	ProcessingNs int64 // inference + postprocessing time in nanoseconds
}

// Best returns the highest-confidence candidate, or false when empty.
func (r Result) Best() (Candidate, bool) {
	if len(r.Candidates) == 0 {
		return Candidate{}, false
	}
	best := r.Candidates[0]
	for _, c := range r.Candidates[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	return best, true
}

// ResultJSON is a serializable representation of detected regions.
type ResultJSON struct {
	Width   int             `json:"width"`
	Height  int             `json:"height"`
	Regions []CandidateJSON `json:"regions"`
}

type CandidateJSON struct {
	Confidence float64 `json:"confidence"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	W          int     `json:"w"`
	H          int     `json:"h"`
}

// ToJSON converts a result to indented JSON.
func (r Result) ToJSON() ([]byte, error) {
	out := ResultJSON{Width: r.ImageWidth, Height: r.ImageHeight}
	out.Regions = make([]CandidateJSON, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		out.Regions = append(out.Regions, CandidateJSON{
			Confidence: c.Confidence,
			X:          int(c.Box.MinX),
			Y:          int(c.Box.MinY),
			W:          int(c.Box.Width()),
			H:          int(c.Box.Height()),
		})
	}
	return json.MarshalIndent(out, "", "  ")
}

// ResultFromJSON parses a serialized result.
func ResultFromJSON(data []byte) (ResultJSON, error) {
	var res ResultJSON
	err := json.Unmarshal(data, &res)
	return res, err
}

// ValidateCandidates performs basic sanity checks against image dimensions.
func ValidateCandidates(cands []Candidate, width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.New("invalid image dimensions for validation")
	}
	for i, c := range cands {
		if c.Confidence < 0 || c.Confidence > 1 {
			return fmt.Errorf("candidate %d confidence out of range: %f", i, c.Confidence)
		}
		if c.Box.Width() <= 0 || c.Box.Height() <= 0 {
			return fmt.Errorf("candidate %d has non-positive box size", i)
		}
		if c.Box.MinX < 0 || c.Box.MinY < 0 || c.Box.MaxX > float64(width) || c.Box.MaxY > float64(height) {
			return fmt.Errorf("candidate %d box out of bounds", i)
		}
	}
	return nil
}
