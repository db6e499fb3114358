package recognizer

import (
	"errors"
	"math"
)

var errUndecodable = errors.New("output tensor is not a decodable CTC sequence")

// Decoded holds a greedy CTC decode: collapsed class indices, their
// per-character probabilities, and the timestep each collapsed character
// was first emitted at (used to approximate glyph geometry).
type Decoded struct {
	Indices   []int
	Probs     []float64
	Timesteps []int
	TotalT    int
}

// argmax returns the index of the max value and the value.
func argmax(v []float32) (int, float32) {
	if len(v) == 0 {
		return -1, 0
	}
	idx := 0
	maxVal := v[0]
	for i := 1; i < len(v); i++ {
		if v[i] > maxVal {
			maxVal = v[i]
			idx = i
		}
	}
	return idx, maxVal
}

// probOfIndex computes the probability of v[idx] among v. If the values
// already look like probabilities (sum around 1, all in [0,1]), they are
// used directly; otherwise a stable softmax is applied.
func probOfIndex(v []float32, idx int) float64 {
	if len(v) == 0 || idx < 0 || idx >= len(v) {
		return 0
	}
	var sum float64
	minV, maxV := v[0], v[0]
	for _, x := range v {
		sum += float64(x)
		if x < minV {
			minV = x
		}
		if x > maxV {
			maxV = x
		}
	}
	if sum > 0.99 && sum < 1.01 && minV >= 0 && maxV <= 1 {
		return float64(v[idx])
	}
	m := maxV
	var denom float64
	for _, x := range v {
		denom += math.Exp(float64(x - m))
	}
	if denom == 0 {
		return 0
	}
	return math.Exp(float64(v[idx]-m)) / denom
}

// DecodeCTCGreedy decodes logits of shape [N, T, C] (trailing size-1 dims
// tolerated) with greedy CTC decoding: per-timestep argmax, then collapse
// of repeats and blanks. Only the first batch entry is decoded.
func DecodeCTCGreedy(logits []float32, shape []int64, blank int) *Decoded {
	if len(shape) < 3 {
		return nil
	}
	dims := append([]int64(nil), shape...)
	for len(dims) > 3 && dims[len(dims)-1] == 1 {
		dims = dims[:len(dims)-1]
	}
	tDim := int(dims[1])
	cDim := int(dims[2])
	if int(dims[0]) < 1 || tDim <= 0 || cDim <= 0 || len(logits) < tDim*cDim {
		return nil
	}

	out := &Decoded{TotalT: tDim}
	prev := -1
	for t := range tDim {
		cls := logits[t*cDim : (t+1)*cDim]
		idx, _ := argmax(cls)
		if idx == blank {
			prev = idx
			continue
		}
		if idx == prev {
			continue
		}
		out.Indices = append(out.Indices, idx)
		out.Probs = append(out.Probs, probOfIndex(cls, idx))
		out.Timesteps = append(out.Timesteps, t)
		prev = idx
	}
	return out
}

// SequenceConfidence returns the average of per-character probabilities;
// 0 if empty.
func SequenceConfidence(charProbs []float64) float64 {
	if len(charProbs) == 0 {
		return 0
	}
	var s float64
	for _, p := range charProbs {
		s += p
	}
	return s / float64(len(charProbs))
}
