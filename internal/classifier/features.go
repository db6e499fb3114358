package classifier

import (
	"unicode"

	"github.com/scanforge/serialscan/internal/serial"
)

// FeatureCount is the fixed feature vector length: one encoding per serial
// character plus six summary statistics.
const FeatureCount = serial.Length + 6

// expectedMaxAspect normalizes the region aspect ratio feature; serial
// labels top out around 20:1.
const expectedMaxAspect = 20.0

// encodeChar maps a character to a normalized value. Digits land in
// [0,0.5], letters in [0.5,1.0], anything else at 0 — the two bands keep
// digit/letter identity visible to the model.
func encodeChar(r rune) float32 {
	switch {
	case unicode.IsDigit(r):
		return float32(r-'0') / 9.0 * 0.5
	case r >= 'A' && r <= 'Z':
		return float32(r-'A')/25.0*0.5 + 0.5
	case r >= 'a' && r <= 'z':
		return float32(r-'a')/25.0*0.5 + 0.5
	default:
		return 0
	}
}

// ExtractFeatures builds the fixed-length feature vector for the format
// model: per-character encodings of the first 12 characters followed by
// digit ratio, letter ratio, normalized aspect ratio, OCR confidence,
// ambiguous-character ratio and the regex-match flag.
func ExtractFeatures(text string, aspectRatio, ocrConfidence float64) []float32 {
	features := make([]float32, FeatureCount)

	runes := []rune(text)
	for i := 0; i < serial.Length && i < len(runes); i++ {
		features[i] = encodeChar(runes[i])
	}

	total := len(runes)
	digits, letters, _ := serial.Composition(text)
	var digitRatio, letterRatio float64
	if total > 0 {
		digitRatio = float64(digits) / float64(total)
		letterRatio = float64(letters) / float64(total)
	}

	normAspect := aspectRatio / expectedMaxAspect
	if normAspect > 1 {
		normAspect = 1
	}
	if normAspect < 0 {
		normAspect = 0
	}
	if ocrConfidence < 0 {
		ocrConfidence = 0
	}
	if ocrConfidence > 1 {
		ocrConfidence = 1
	}

	regexFlag := float32(0)
	if serial.Matches(text) {
		regexFlag = 1
	}

	features[serial.Length+0] = float32(digitRatio)
	features[serial.Length+1] = float32(letterRatio)
	features[serial.Length+2] = float32(normAspect)
	features[serial.Length+3] = float32(ocrConfidence)
	features[serial.Length+4] = float32(serial.AmbiguityScore(text))
	features[serial.Length+5] = regexFlag
	return features
}
