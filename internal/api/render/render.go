// Package render draws 2-D projections as labelled PNG scatter plots.
package render

import (
	"fmt"
	"image/color"
	"io"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/projection"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Size is the width and height of rendered images.
const Size = 6 * vg.Inch

var pointColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}

// ScatterPNG writes proj as a PNG scatter plot with one labelled point per
// token.
func ScatterPNG(w io.Writer, proj *projection.Projection, title string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Principal Component 1"
	p.Y.Label.Text = "Principal Component 2"
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(proj.Points))
	labels := make([]string, len(proj.Points))
	for i, pt := range proj.Points {
		xys[i] = plotter.XY{X: pt.X, Y: pt.Y}
		labels[i] = pt.Token
	}

	scatter, err := plotter.NewScatter(xys)
	if err != nil {
		return fmt.Errorf("building scatter: %w", err)
	}
	scatter.GlyphStyle.Color = pointColor
	scatter.GlyphStyle.Radius = vg.Points(4)
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}

	names, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
	if err != nil {
		return fmt.Errorf("building labels: %w", err)
	}
	for i := range names.TextStyle {
		names.TextStyle[i].XAlign = text.XCenter
		names.TextStyle[i].YAlign = text.YBottom
	}
	names.Offset = vg.Point{Y: vg.Points(6)}

	p.Add(scatter, names)
	padAxes(p, xys)

	wt, err := p.WriterTo(Size, Size, "png")
	if err != nil {
		return fmt.Errorf("rendering plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("writing png: %w", err)
	}
	return nil
}

// padAxes widens the axis ranges so labels near the edge are not clipped and
// a degenerate axis (all points on one line) still has extent.
func padAxes(p *plot.Plot, xys plotter.XYs) {
	xmin, xmax, ymin, ymax := plotter.XYRange(xys)
	pad := func(lo, hi float64) (float64, float64) {
		span := hi - lo
		if span == 0 {
			span = 1
		}
		return lo - 0.15*span, hi + 0.15*span
	}
	p.X.Min, p.X.Max = pad(xmin, xmax)
	p.Y.Min, p.Y.Max = pad(ymin, ymax)
}
