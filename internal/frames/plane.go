package frames

import (
	"image"

	"github.com/disintegration/imaging"
)

// Plane is a single-channel float image, row-major
type Plane struct {
	W, H int
	Pix  []float64
}

// NewPlane allocates a zeroed w×h plane
func NewPlane(w, h int) *Plane {
	return &Plane{W: w, H: h, Pix: make([]float64, w*h)}
}

// At returns the value at (x, y) with coordinates clamped to the plane
func (p *Plane) At(x, y int) float64 {
	if x < 0 {
		x = 0
	} else if x >= p.W {
		x = p.W - 1
	}
	if y < 0 {
		y = 0
	} else if y >= p.H {
		y = p.H - 1
	}
	return p.Pix[y*p.W+x]
}

// Mean returns the arithmetic mean of the plane
func (p *Plane) Mean() float64 {
	if len(p.Pix) == 0 {
		return 0
	}
	var sum float64
	for _, v := range p.Pix {
		sum += v
	}
	return sum / float64(len(p.Pix))
}

// LumaPlane resizes img to width×height and returns its luma (0..255).
// A zero height keeps the aspect ratio.
func LumaPlane(img image.Image, width, height int) *Plane {
	b := img.Bounds()
	if width <= 0 {
		width = b.Dx()
	}
	var nrgba *image.NRGBA
	if width == b.Dx() && (height == 0 || height == b.Dy()) {
		nrgba = imaging.Clone(img)
	} else {
		nrgba = imaging.Resize(img, width, height, imaging.Linear)
	}

	rb := nrgba.Bounds()
	p := NewPlane(rb.Dx(), rb.Dy())
	for y := 0; y < p.H; y++ {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := 0; x < p.W; x++ {
			r := float64(row[x*4])
			g := float64(row[x*4+1])
			bl := float64(row[x*4+2])
			p.Pix[y*p.W+x] = 0.299*r + 0.587*g + 0.114*bl
		}
	}
	return p
}
