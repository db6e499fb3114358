package utils

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/scanforge/serialscan/internal/mempool"
)

// LetterboxResult records how an image was fitted into the model input so
// that detections can be mapped back into source pixel coordinates.
type LetterboxResult struct {
	Image   image.Image
	Scale   float64 // applied uniform scale
	OffsetX float64 // left padding in target pixels
	OffsetY float64 // top padding in target pixels
}

// Letterbox resizes img to fit a target square while preserving aspect
// ratio, padding the remainder with black. Standard preprocessing for the
// region detection model.
func Letterbox(img image.Image, target int) (LetterboxResult, error) {
	if img == nil {
		return LetterboxResult{}, errors.New("input image is nil")
	}
	if target <= 0 {
		return LetterboxResult{}, fmt.Errorf("invalid letterbox target: %d", target)
	}

	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return LetterboxResult{}, errors.New("invalid image dimensions")
	}

	scale := math.Min(float64(target)/float64(w), float64(target)/float64(h))
	newW := int(math.Round(float64(w) * scale))
	newH := int(math.Round(float64(h) * scale))
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	resized := imaging.Resize(img, newW, newH, imaging.Lanczos)
	canvas := imaging.New(target, target, color.Black)
	offX := (target - newW) / 2
	offY := (target - newH) / 2
	out := imaging.Paste(canvas, resized, image.Pt(offX, offY))

	return LetterboxResult{
		Image:   out,
		Scale:   scale,
		OffsetX: float64(offX),
		OffsetY: float64(offY),
	}, nil
}

// NormalizeImage converts an image to a float32 NCHW tensor with values in
// [0,1]. Returns the data plus width and height.
func NormalizeImage(img image.Image) ([]float32, int, int, error) {
	if img == nil {
		return nil, 0, 0, errors.New("input image is nil")
	}

	nrgba := imaging.Clone(img)
	bounds := nrgba.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, 0, 0, errors.New("invalid image dimensions")
	}

	data := mempool.GetFloat32(3 * width * height)
	plane := width * height
	for y := range height {
		for x := range width {
			r, g, b, _ := nrgba.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			idx := y*width + x
			data[idx] = float32(r>>8) / 255.0
			data[plane+idx] = float32(g>>8) / 255.0
			data[2*plane+idx] = float32(b>>8) / 255.0
		}
	}
	return data, width, height, nil
}

// NormalizeGray converts an image to a single-channel float32 tensor with
// values in [0,1], used by the recognition and character models.
func NormalizeGray(img image.Image) ([]float32, int, int, error) {
	if img == nil {
		return nil, 0, 0, errors.New("input image is nil")
	}
	gray := imaging.Grayscale(img)
	bounds := gray.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, 0, 0, errors.New("invalid image dimensions")
	}

	data := mempool.GetFloat32(width * height)
	for y := range height {
		for x := range width {
			r, _, _, _ := gray.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			data[y*width+x] = float32(r>>8) / 255.0
		}
	}
	return data, width, height, nil
}

// CropBox crops an image using a float Box, clamped to the image bounds.
func CropBox(img image.Image, box Box) image.Image {
	rect := box.ToRect(img.Bounds()).Intersect(img.Bounds())
	if rect.Empty() {
		return imaging.New(0, 0, color.Transparent)
	}
	return imaging.Crop(img, rect)
}

// ResizeHeight resizes an image to the given height, preserving aspect
// ratio, optionally clamping the resulting width.
func ResizeHeight(img image.Image, height, maxWidth int) image.Image {
	bounds := img.Bounds()
	if bounds.Dy() == 0 {
		return img
	}
	w := int(math.Round(float64(bounds.Dx()) * float64(height) / float64(bounds.Dy())))
	if w < 1 {
		w = 1
	}
	if maxWidth > 0 && w > maxWidth {
		w = maxWidth
	}
	return imaging.Resize(img, w, height, imaging.Lanczos)
}
