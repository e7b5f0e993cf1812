// Package chart renders computed views as line charts: interactive HTML via
// go-echarts and static PNG via gonum/plot.
package chart

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/covid-metrics-service/internal/domain"
)

// Title describes the selection a view was computed for.
func Title(sel domain.Selection) string {
	var b strings.Builder
	b.WriteString(string(sel.Metric))
	b.WriteString(", ")
	b.WriteString(strings.ReplaceAll(string(sel.Mode), "_", " "))
	if sel.Mode == domain.ModeOtherRate {
		fmt.Fprintf(&b, " (per %s)", sel.RateBase)
	}
	if sel.Window > 1 {
		fmt.Fprintf(&b, ", %d-day average", sel.Window)
	}
	return b.String()
}

// YAxisLabel names the y values of a view from its series hints.
func YAxisLabel(view domain.View) string {
	unit, logScale := domain.UnitCount, false
	for _, s := range view.Series {
		if s.Err == nil {
			unit, logScale = s.Hints.Unit, s.Hints.LogScale
			break
		}
	}
	label := strings.ReplaceAll(string(unit), "_", " ")
	if logScale {
		return "log10 " + label
	}
	return label
}

// unavailable lists the series that failed, for display next to the chart.
func unavailable(view domain.View) string {
	var parts []string
	for _, s := range view.Series {
		if s.Err != nil {
			parts = append(parts, s.Err.Error())
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "unavailable: " + strings.Join(parts, "; ")
}

// dates returns every date present in any series, ascending.
func dates(view domain.View) []time.Time {
	seen := make(map[time.Time]struct{})
	var out []time.Time
	for _, s := range view.Series {
		for _, p := range s.Points {
			if _, ok := seen[p.Date]; ok {
				continue
			}
			seen[p.Date] = struct{}{}
			out = append(out, p.Date)
		}
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return out
}
