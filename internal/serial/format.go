// Package serial holds the shared definition of what an Apple-style serial
// number looks like: length, composition, pattern and the visually
// confusable character set.
package serial

import (
	"regexp"
	"strings"
	"unicode"
)

// Length is the expected serial number length.
const Length = 12

// MinDigits and MinLetters bound the character composition.
const (
	MinDigits  = 3
	MinLetters = 3
)

// Pattern matches a full serial: 12 uppercase alphanumerics.
var Pattern = regexp.MustCompile(`^[0-9A-Z]{12}$`)

// Ambiguous is the set of characters visually confusable with another
// character under common fonts and imaging conditions.
const Ambiguous = "0O1IL5S8B"

// IsAmbiguous reports whether r belongs to the confusable set.
func IsAmbiguous(r rune) bool {
	return strings.ContainsRune(Ambiguous, r)
}

// AmbiguityScore returns the fraction of characters in s that are in the
// confusable set; 0 for an empty string.
func AmbiguityScore(s string) float64 {
	if s == "" {
		return 0
	}
	n := 0
	for _, r := range s {
		if IsAmbiguous(r) {
			n++
		}
	}
	return float64(n) / float64(len([]rune(s)))
}

// Composition counts digits, letters and other characters in s.
func Composition(s string) (digits, letters, other int) {
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsLetter(r):
			letters++
		default:
			other++
		}
	}
	return digits, letters, other
}

// ValidComposition reports whether s satisfies the serial composition
// rules: exact length, all alphanumeric, and the minimum digit/letter mix.
func ValidComposition(s string) bool {
	if len([]rune(s)) != Length {
		return false
	}
	digits, letters, other := Composition(s)
	return other == 0 && digits >= MinDigits && letters >= MinLetters
}

// Matches reports whether s matches the full serial pattern and
// composition rules.
func Matches(s string) bool {
	return Pattern.MatchString(s) && ValidComposition(s)
}
