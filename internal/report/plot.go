package report

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	curveColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	windowColor = color.RGBA{R: 255, G: 191, B: 0, A: 64}
	momentColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// PlotCurve draws the attention curve as a PNG of widthIn×heightIn inches,
// shading the early window and marking key moments.
func PlotCurve(w io.Writer, sc *Scorecard, widthIn, heightIn float64) error {
	if len(sc.Curve) == 0 {
		return fmt.Errorf("empty curve")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Attention curve (overall %.3f)", sc.OverallScore)
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "attention"
	p.Y.Min, p.Y.Max = 0, 1

	last := sc.Curve[len(sc.Curve)-1].T
	p.X.Min = 0
	p.X.Max = math.Max(last, 1)

	if sc.EarlyWindow > 0 {
		edge := math.Min(sc.EarlyWindow, p.X.Max)
		window, err := plotter.NewPolygon(plotter.XYs{{X: 0, Y: 0}, {X: edge, Y: 0}, {X: edge, Y: 1}, {X: 0, Y: 1}})
		if err != nil {
			return fmt.Errorf("early window: %w", err)
		}
		window.Color = windowColor
		window.LineStyle.Width = 0
		p.Add(window)
		p.Legend.Add(fmt.Sprintf("early window (%.1fs)", sc.EarlyWindow), window)
	}

	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(sc.Curve))
	for i, pt := range sc.Curve {
		pts[i].X = pt.T
		pts[i].Y = pt.Score
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("curve line: %w", err)
	}
	line.Color = curveColor
	line.Width = vg.Points(2)
	p.Add(line)
	p.Legend.Add("attention", line)

	if len(sc.KeyMomentDetails) > 0 {
		marks := make(plotter.XYs, len(sc.KeyMomentDetails))
		for i, km := range sc.KeyMomentDetails {
			marks[i].X = km.T
			marks[i].Y = km.Score
		}
		scatter, err := plotter.NewScatter(marks)
		if err != nil {
			return fmt.Errorf("key moments: %w", err)
		}
		scatter.GlyphStyle.Color = momentColor
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(4)
		p.Add(scatter)
		p.Legend.Add("key moments", scatter)
	}
	p.Legend.Top = true

	wt, err := p.WriterTo(vg.Length(widthIn)*vg.Inch, vg.Length(heightIn)*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("plot writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write plot: %w", err)
	}
	return nil
}
