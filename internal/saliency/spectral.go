// Package saliency computes spectral-residual saliency maps and reduces them
// to a per-frame concentration score.
package saliency

import (
	"math"
	"math/cmplx"

	"github.com/keagan/adattention/internal/frames"
	"gonum.org/v1/gonum/dsp/fourier"
)

// logFloor is added to the amplitude before taking the log. It has to sit on
// the scale of the spectrum: a tiny floor turns empty bins into deep negative
// spikes that dominate the residual.
const logFloor = 1.0

// spectralResidual runs the Hou & Zhang spectral residual transform on p and
// returns the squared reconstruction magnitude (before blurring).
func spectralResidual(p *frames.Plane, smoothKernel int) []float64 {
	w, h := p.W, p.H
	data := make([]complex128, w*h)
	for i, v := range p.Pix {
		data[i] = complex(v, 0)
	}

	f := newFFT2(w, h)
	f.forward(data)

	logAmp := make([]float64, w*h)
	phase := make([]float64, w*h)
	for i, c := range data {
		logAmp[i] = math.Log(cmplx.Abs(c) + logFloor)
		phase[i] = cmplx.Phase(c)
	}

	smoothed := boxFilter(logAmp, w, h, smoothKernel)

	for i := range data {
		residual := logAmp[i] - smoothed[i]
		data[i] = cmplx.Rect(math.Exp(residual), phase[i])
	}

	f.inverse(data)

	out := make([]float64, w*h)
	for i, c := range data {
		m := cmplx.Abs(c)
		out[i] = m * m
	}
	return out
}

// fft2 applies separable 2D transforms with gonum's 1D complex FFT. It holds
// scratch buffers and is not safe for concurrent use.
type fft2 struct {
	w, h     int
	rows     *fourier.CmplxFFT
	cols     *fourier.CmplxFFT
	rowBuf   []complex128
	colBuf   []complex128
	colTrans []complex128
}

func newFFT2(w, h int) *fft2 {
	return &fft2{
		w:        w,
		h:        h,
		rows:     fourier.NewCmplxFFT(w),
		cols:     fourier.NewCmplxFFT(h),
		rowBuf:   make([]complex128, w),
		colBuf:   make([]complex128, h),
		colTrans: make([]complex128, h),
	}
}

func (f *fft2) forward(data []complex128) {
	f.apply(data, false)
}

// inverse is unnormalized; callers rescale as needed
func (f *fft2) inverse(data []complex128) {
	f.apply(data, true)
}

func (f *fft2) apply(data []complex128, inverse bool) {
	for y := 0; y < f.h; y++ {
		row := data[y*f.w : (y+1)*f.w]
		if inverse {
			f.rows.Sequence(f.rowBuf, row)
		} else {
			f.rows.Coefficients(f.rowBuf, row)
		}
		copy(row, f.rowBuf)
	}

	for x := 0; x < f.w; x++ {
		for y := 0; y < f.h; y++ {
			f.colBuf[y] = data[y*f.w+x]
		}
		if inverse {
			f.cols.Sequence(f.colTrans, f.colBuf)
		} else {
			f.cols.Coefficients(f.colTrans, f.colBuf)
		}
		for y := 0; y < f.h; y++ {
			data[y*f.w+x] = f.colTrans[y]
		}
	}
}
