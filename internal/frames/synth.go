package frames

import (
	"image"
	"image/color"
	"image/draw"
	"math/rand"
)

// Solid returns a w×h image filled with c
func Solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

// Noise returns a w×h image of uniform RGB noise from a fixed seed
func Noise(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(rng.Intn(256))
		img.Pix[i+1] = uint8(rng.Intn(256))
		img.Pix[i+2] = uint8(rng.Intn(256))
		img.Pix[i+3] = 255
	}
	return img
}

// WithSquare copies bg and paints a size×size square of c with its top-left
// corner at (x, y)
func WithSquare(bg *image.RGBA, x, y, size int, c color.Color) *image.RGBA {
	img := image.NewRGBA(bg.Bounds())
	copy(img.Pix, bg.Pix)
	draw.Draw(img, image.Rect(x, y, x+size, y+size), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

// MovingObjectClip renders a grey w×h background at fps for seconds. During
// [0, objectUntil) a bright square crosses the frame left to right; after
// that the background is static. objectUntil <= 0 yields a fully static clip.
func MovingObjectClip(w, h int, fps, seconds, objectUntil float64) []*image.RGBA {
	grey := color.RGBA{R: 128, G: 128, B: 128, A: 255}
	bright := color.RGBA{R: 255, G: 240, B: 40, A: 255}
	bg := Solid(w, h, grey)

	total := int(seconds*fps + 0.5)
	size := h / 4
	if size < 2 {
		size = 2
	}
	moving := int(objectUntil*fps + 0.5)
	step := 0
	if moving > 1 {
		step = (w - size) / (moving - 1)
	}

	out := make([]*image.RGBA, 0, total)
	for i := 0; i < total; i++ {
		if i < moving {
			out = append(out, WithSquare(bg, i*step, (h-size)/2, size, bright))
			continue
		}
		out = append(out, bg)
	}
	return out
}
