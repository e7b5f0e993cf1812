package chart

import (
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/couchcryptid/covid-metrics-service/internal/domain"
)

// gapValue is the ECharts marker for a missing data point.
const gapValue = "-"

// RenderHTML writes a self-contained ECharts page plotting every computed
// series of view. Undefined points render as gaps; composite series are dashed.
func RenderHTML(w io.Writer, view domain.View, subtitle string) error {
	line := charts.NewLine()
	if extra := unavailable(view); extra != "" {
		if subtitle != "" {
			subtitle += " | "
		}
		subtitle += extra
	}
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "COVID metrics", Width: "1100px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: Title(view.Selection), Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "date", Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Name: YAxisLabel(view), Type: "value"}),
	)

	axis := dates(view)
	labels := make([]string, len(axis))
	for i, d := range axis {
		labels[i] = d.Format(domain.DateLayout)
	}
	line.SetXAxis(labels)

	for _, s := range view.Series {
		if s.Err != nil {
			continue
		}
		style := opts.LineStyle{Width: 2}
		if s.Hints.Dashed {
			style.Type = "dashed"
		}
		line.AddSeries(s.Region, lineData(axis, s), charts.WithLineStyleOpts(style))
	}

	if err := line.Render(w); err != nil {
		return fmt.Errorf("render html chart: %w", err)
	}
	return nil
}

// lineData aligns a series onto the shared date axis.
func lineData(axis []time.Time, s domain.Series) []opts.LineData {
	byDate := make(map[time.Time]domain.Point, len(s.Points))
	for _, p := range s.Points {
		byDate[p.Date] = p
	}
	data := make([]opts.LineData, len(axis))
	for i, d := range axis {
		p, ok := byDate[d]
		if !ok || !p.Defined {
			data[i] = opts.LineData{Value: gapValue}
			continue
		}
		data[i] = opts.LineData{Value: p.Value}
	}
	return data
}
