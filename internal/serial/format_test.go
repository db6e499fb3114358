package serial

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidComposition(t *testing.T) {
	assert.True(t, ValidComposition("C02X1234ABCD"))
	assert.True(t, ValidComposition("F1G2H3JKLMNP"))

	assert.False(t, ValidComposition("C02X1234ABC"), "eleven characters")
	assert.False(t, ValidComposition("CABCDEFGHJ12"), "only two digits")
	assert.False(t, ValidComposition("0123456789X0"), "only one letter")
	assert.False(t, ValidComposition("C02X 234ABCD"), "whitespace")
	assert.False(t, ValidComposition(""))
}

func TestMatchesRequiresUppercase(t *testing.T) {
	assert.True(t, Matches("C02X1234ABCD"))
	assert.False(t, Matches("c02x1234abcd"))
	assert.False(t, Matches("C02X1234ABC$"))
}

func TestAmbiguityScore(t *testing.T) {
	assert.Equal(t, 0.0, AmbiguityScore(""))
	assert.Equal(t, 0.0, AmbiguityScore("XYZ234"))
	assert.Equal(t, 1.0, AmbiguityScore("0O1IL5S8B"))
	assert.InDelta(t, 0.5, AmbiguityScore("O1XY"), 1e-9)
}

func TestComposition(t *testing.T) {
	d, l, o := Composition("C02X1234ABCD")
	assert.Equal(t, 6, d)
	assert.Equal(t, 6, l)
	assert.Equal(t, 0, o)

	d, l, o = Composition("A1-")
	assert.Equal(t, 1, d)
	assert.Equal(t, 1, l)
	assert.Equal(t, 1, o)
}
