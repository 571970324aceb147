package report

import (
	"image"
	"image/color"
	"math"
)

// jet is the 256-entry JET colormap, blue (cold) to red (hot)
var jet = func() [256]color.RGBA {
	var lut [256]color.RGBA
	for i := range lut {
		v := float64(i) / 255
		lut[i] = color.RGBA{
			R: jetChannel(1.5 - math.Abs(4*v-3)),
			G: jetChannel(1.5 - math.Abs(4*v-2)),
			B: jetChannel(1.5 - math.Abs(4*v-1)),
			A: 255,
		}
	}
	return lut
}()

func jetChannel(v float64) uint8 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return uint8(math.Round(v * 255))
}

// Blend colours heat through the JET map and mixes it over src with weight
// alpha. heat and src must have the same size.
func Blend(src *image.RGBA, heat *image.Gray, alpha float64) *image.RGBA {
	b := src.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	a := alpha
	inv := 1 - alpha
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			so := src.PixOffset(b.Min.X+x, b.Min.Y+y)
			c := jet[heat.Pix[y*heat.Stride+x]]
			do := out.PixOffset(x, y)
			out.Pix[do] = mix(src.Pix[so], c.R, inv, a)
			out.Pix[do+1] = mix(src.Pix[so+1], c.G, inv, a)
			out.Pix[do+2] = mix(src.Pix[so+2], c.B, inv, a)
			out.Pix[do+3] = 255
		}
	}
	return out
}

func mix(s, h uint8, inv, a float64) uint8 {
	v := math.Round(float64(s)*inv + float64(h)*a)
	if v > 255 {
		v = 255
	}
	return uint8(v)
}
