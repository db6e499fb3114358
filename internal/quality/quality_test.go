package quality

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatImage(c color.Color) image.Image {
	return imaging.New(160, 120, c)
}

// checkerboard produces a maximally high-frequency pattern.
func checkerboard() image.Image {
	img := image.NewGray(image.Rect(0, 0, 160, 120))
	for y := range 120 {
		for x := range 160 {
			if (x+y)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func TestAnalyzeFlatImageIsBlurry(t *testing.T) {
	r := Analyze(flatImage(color.Gray{Y: 128}), DefaultConfig())
	assert.InDelta(t, 0, r.Sharpness, 1e-6, "a flat image has zero Laplacian variance")
	assert.False(t, r.LowLight)
	assert.False(t, r.Glare)
}

func TestAnalyzeSharpnessOrdering(t *testing.T) {
	sharp := Analyze(checkerboard(), DefaultConfig())
	blurred := Analyze(imaging.Blur(checkerboard(), 3.0), DefaultConfig())
	assert.Greater(t, sharp.Sharpness, blurred.Sharpness)
}

func TestAnalyzeLowLight(t *testing.T) {
	dark := Analyze(flatImage(color.Gray{Y: 20}), DefaultConfig())
	assert.True(t, dark.LowLight)
	assert.Less(t, dark.Luminance, 0.25)

	lit := Analyze(flatImage(color.Gray{Y: 180}), DefaultConfig())
	assert.False(t, lit.LowLight)
}

func TestAnalyzeGlare(t *testing.T) {
	white := Analyze(flatImage(color.White), DefaultConfig())
	assert.True(t, white.Glare)
	assert.InDelta(t, 1.0, white.GlareFraction, 0.01)

	gray := Analyze(flatImage(color.Gray{Y: 128}), DefaultConfig())
	assert.False(t, gray.Glare)
	assert.Zero(t, gray.GlareFraction)
}

func TestAnalyzerSessionCap(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())
	img := flatImage(color.Gray{Y: 128})

	for i := range 3 {
		_, ok := a.Analyze(img)
		assert.True(t, ok, "frame %d within the cap", i)
	}
	_, ok := a.Analyze(img)
	assert.False(t, ok, "cap spent")

	last, ok := a.Last()
	require.True(t, ok)
	assert.False(t, last.LowLight)

	a.Reset()
	_, ok = a.Analyze(img)
	assert.True(t, ok, "reset re-arms the analyzer")
}
