package chart

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/couchcryptid/covid-metrics-service/internal/domain"
)

// Default PNG dimensions.
const (
	DefaultWidth  = 12 * vg.Inch
	DefaultHeight = 6 * vg.Inch
)

// RenderPNG draws view as a PNG line chart of the given size. Undefined points
// break the line; composite series are dashed.
func RenderPNG(w io.Writer, view domain.View, width, height vg.Length) error {
	p := plot.New()
	p.Title.Text = Title(view.Selection)
	p.X.Label.Text = "date"
	p.Y.Label.Text = YAxisLabel(view)
	p.X.Tick.Marker = plot.TimeTicks{Format: domain.DateLayout}
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.Left = true

	for i, s := range view.Series {
		if s.Err != nil {
			continue
		}
		for j, seg := range segments(s.Points) {
			l, err := plotter.NewLine(seg)
			if err != nil {
				return fmt.Errorf("plot series %s: %w", s.Region, err)
			}
			l.Color = plotutil.Color(i)
			l.Width = vg.Points(1.5)
			if s.Hints.Dashed {
				l.Dashes = []vg.Length{vg.Points(6), vg.Points(3)}
			}
			p.Add(l)
			if j == 0 {
				p.Legend.Add(s.Region, l)
			}
		}
	}

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("encode png chart: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png chart: %w", err)
	}
	return nil
}

// segments splits points into runs of defined values with unix-second x.
func segments(points []domain.Point) []plotter.XYs {
	var out []plotter.XYs
	var cur plotter.XYs
	for _, pt := range points {
		if !pt.Defined {
			if len(cur) > 0 {
				out = append(out, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, plotter.XY{X: float64(pt.Date.Unix()), Y: pt.Value})
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}
