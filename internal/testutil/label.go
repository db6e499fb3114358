// Package testutil renders synthetic serial-label frames so tests can
// feed realistic camera input without fixture files.
package testutil

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// LabelFrame renders text centered on a w by h gray camera frame, dark
// glyphs on a light band the way an etched serial label photographs.
func LabelFrame(w, h int, text string) *image.NRGBA {
	img := imaging.New(w, h, color.Gray{Y: 128})

	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: face,
	}
	tw := d.MeasureString(text)
	x := (fixed.I(w) - tw) / 2
	y := fixed.I(h/2 + face.Height/2)

	// Light band behind the glyphs.
	bandTop := h/2 - face.Height
	bandBottom := h/2 + face.Height
	bandLeft := x.Floor() - 4
	bandRight := (x + tw).Ceil() + 4
	for py := bandTop; py < bandBottom; py++ {
		for px := bandLeft; px < bandRight; px++ {
			if px >= 0 && px < w && py >= 0 && py < h {
				img.Set(px, py, color.Gray{Y: 230})
			}
		}
	}

	d.Dot = fixed.Point26_6{X: x, Y: y}
	d.DrawString(text)
	return img
}
