package disambig

// substitutions maps visually confusable letters to the digit they most
// commonly stand in for under OCR misreads.
var substitutions = map[rune]rune{
	'O': '0',
	'I': '1',
	'L': '1',
	'S': '5',
	'B': '8',
}

// positionalPriors holds per-position likelihoods for substituted digits,
// seeded from the structure of known serials: plant prefixes put digits
// right after the leading letter, the middle block mixes freely, the
// trailing model block leans toward letters.
//
// TODO: retune these from labeled scan data once enough sessions are
// collected; current values are structural estimates.
var positionalPriors = map[int]map[rune]float64{
	1: {'0': 0.85, '1': 0.75},
	2: {'0': 0.85, '1': 0.70, '5': 0.55},
	3: {'0': 0.65, '1': 0.65, '5': 0.60, '8': 0.60},
	4: {'0': 0.65, '1': 0.65, '5': 0.60, '8': 0.60},
	5: {'0': 0.60, '1': 0.60, '5': 0.55, '8': 0.55},
	6: {'0': 0.60, '1': 0.60, '5': 0.55, '8': 0.55},
	7: {'0': 0.60, '1': 0.60, '5': 0.55, '8': 0.55},
}

// bigramScores scores 2-character windows against common serial prefixes.
// The window is the preceding character plus the substituted candidate.
var bigramScores = map[string]float64{
	"F1": 0.85,
	"G1": 0.85,
	"C0": 0.80,
	"D0": 0.70,
	"F0": 0.70,
	"G0": 0.70,
}

// positionalPrior returns the prior for digit r at position pos.
func positionalPrior(pos int, r rune) (float64, bool) {
	priors, ok := positionalPriors[pos]
	if !ok {
		return 0, false
	}
	p, ok := priors[r]
	return p, ok
}
