package disambig

// Method identifies the strategy that produced a correction.
type Method string

const (
	MethodModel      Method = "model"
	MethodPositional Method = "positional-prior"
	MethodNGram      Method = "n-gram"
	MethodEnsemble   Method = "ensemble"
)

// Candidate is one strategy's proposal for a single character.
type Candidate struct {
	Corrected  rune
	Confidence float64
	Method     Method
}

// positionalStrategy proposes the fixed substitution for r when a prior
// exists for the substituted digit at this position.
func positionalStrategy(r rune, pos int) (Candidate, bool) {
	sub, ok := substitutions[r]
	if !ok {
		return Candidate{}, false
	}
	prior, ok := positionalPrior(pos, sub)
	if !ok {
		return Candidate{}, false
	}
	return Candidate{Corrected: sub, Confidence: prior, Method: MethodPositional}, true
}

// ngramStrategy checks the 2-character window ending at the substituted
// candidate against the bigram table. With no table hit it falls back to a
// weak digit-substitution prior after position 2, and otherwise keeps the
// original character at low confidence. It always yields a candidate.
func ngramStrategy(r rune, pos int, text []rune) (Candidate, bool) {
	sub, hasSub := substitutions[r]
	if hasSub && pos > 0 && pos < len(text) {
		window := string([]rune{text[pos-1], sub})
		if score, ok := bigramScores[window]; ok {
			return Candidate{Corrected: sub, Confidence: score, Method: MethodNGram}, true
		}
	}
	if hasSub && pos > 2 {
		return Candidate{Corrected: sub, Confidence: 0.6, Method: MethodNGram}, true
	}
	return Candidate{Corrected: r, Confidence: 0.3, Method: MethodNGram}, true
}

// rank picks the winning candidate. If at least two strategies agree on
// the same corrected character, the ensemble result wins with confidence
// min(0.95, average*1.1); otherwise the single highest-confidence
// candidate is kept.
func rank(cands []Candidate) (Candidate, bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}

	var ensemble Candidate
	haveEnsemble := false
	for i := range cands {
		agree := []Candidate{cands[i]}
		for j := range cands {
			if j != i && cands[j].Corrected == cands[i].Corrected {
				agree = append(agree, cands[j])
			}
		}
		if len(agree) < 2 {
			continue
		}
		var sum float64
		for _, a := range agree {
			sum += a.Confidence
		}
		conf := sum / float64(len(agree)) * 1.1
		if conf > 0.95 {
			conf = 0.95
		}
		if !haveEnsemble || conf > ensemble.Confidence {
			ensemble = Candidate{Corrected: cands[i].Corrected, Confidence: conf, Method: MethodEnsemble}
			haveEnsemble = true
		}
	}
	if haveEnsemble {
		return ensemble, true
	}

	best := cands[0]
	for _, c := range cands[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	return best, true
}
