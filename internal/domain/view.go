package domain

import (
	"encoding/json"
	"math"
	"time"

	"github.com/montanaflynn/stats"
)

const (
	countPrecision      = 2
	perMillionPrecision = 0
	ratioPrecision      = 4

	// ratioClamp suppresses divide-by-near-zero artifacts: ratios above it become 0.
	ratioClamp = 0.99
)

// Reason explains why a point has no value.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonNonPositiveDenom Reason = "non_positive_denominator"
	ReasonLogDomain        Reason = "log_domain"
	ReasonWindowEdge       Reason = "window_edge"
)

// Point is one plotted value. Undefined points keep their date and carry a Reason.
type Point struct {
	Date    time.Time
	Value   float64
	Defined bool
	Reason  Reason
}

// MarshalJSON writes undefined values as null so charts render a gap.
func (p Point) MarshalJSON() ([]byte, error) {
	out := struct {
		Date   string   `json:"date"`
		Value  *float64 `json:"value"`
		Reason Reason   `json:"reason,omitempty"`
	}{Date: p.Date.Format(DateLayout), Reason: p.Reason}
	if p.Defined {
		v := p.Value
		out.Value = &v
	}
	return json.Marshal(out)
}

// Unit labels the y values of a series.
type Unit string

const (
	UnitCount      Unit = "count"
	UnitPerMillion Unit = "per_million"
	UnitRatio      Unit = "ratio"
)

// RenderHints tell a charting surface how to draw a series.
type RenderHints struct {
	Unit     Unit `json:"unit"`
	LogScale bool `json:"log_scale"`
	Dashed   bool `json:"dashed"`
}

// Series is the plotted output for one region. Err is a *RegionError when the
// region could not be computed; Points is then empty.
type Series struct {
	Region string
	Points []Point
	Hints  RenderHints
	Err    error
}

// View is the chart-ready result of ComputeView.
type View struct {
	Selection Selection
	Series    []Series
}

// ComputeView derives one series per selected region, in selection order,
// followed by the composite series when Selection.Without is set. It is a pure
// function of its inputs. Selection errors fail the call; region errors are
// reported on the affected series only.
func ComputeView(t *Table, sel Selection) (View, error) {
	sel = sel.WithDefaults()
	if err := sel.Validate(); err != nil {
		return View{}, err
	}

	view := View{Selection: sel, Series: make([]Series, 0, len(sel.Regions)+1)}
	for _, name := range sel.Regions {
		region, ok := t.Region(name)
		if !ok {
			view.Series = append(view.Series, Series{
				Region: name,
				Hints:  hintsFor(sel, false),
				Err:    &RegionError{Region: name, Err: ErrUnknownRegion},
			})
			continue
		}
		view.Series = append(view.Series, computeSeries(region, t.Observations(name), sel, false))
	}

	if len(sel.Without) > 0 {
		region, obs, err := t.Composite(sel.Without)
		if err != nil {
			view.Series = append(view.Series, Series{
				Region: CompositeName(sel.Without),
				Hints:  hintsFor(sel, true),
				Err:    err,
			})
		} else {
			view.Series = append(view.Series, computeSeries(region, obs, sel, true))
		}
	}
	return view, nil
}

func computeSeries(region Region, obs []Observation, sel Selection, composite bool) Series {
	s := Series{Region: region.Name, Hints: hintsFor(sel, composite)}

	points, err := derive(region, obs, sel)
	if err != nil {
		s.Err = err
		return s
	}
	if sel.Window > 1 {
		points = smooth(points, sel.Window, precisionFor(sel.Mode))
	}
	if sel.Scale == ScaleLog10 {
		points = log10(points)
	}
	s.Points = filterDates(points, sel.Start, sel.End)
	return s
}

// derive computes the raw metric values for every observation.
func derive(region Region, obs []Observation, sel Selection) ([]Point, error) {
	points := make([]Point, len(obs))
	switch sel.Mode {
	case ModeCumulative:
		for i, o := range obs {
			points[i] = defined(o.Date, round(cumulative(o, sel.Metric), countPrecision))
		}
	case ModeIncremental:
		for i, o := range obs {
			points[i] = defined(o.Date, round(incremental(o, sel.Metric), countPrecision))
		}
	case ModeRatePerMillion:
		if err := requirePopulation(region); err != nil {
			return nil, err
		}
		for i, o := range obs {
			v := 1_000_000 * cumulative(o, sel.Metric) / region.Population
			points[i] = defined(o.Date, round(v, perMillionPrecision))
		}
	case ModeOtherRate:
		if sel.RateBase == RateBasePopulation {
			if err := requirePopulation(region); err != nil {
				return nil, err
			}
		}
		for i, o := range obs {
			den := region.Population
			if sel.RateBase == RateBaseTests {
				den = o.CumulativeTests
			}
			if den <= 0 {
				points[i] = Point{Date: o.Date, Reason: ReasonNonPositiveDenom}
				continue
			}
			r := round(cumulative(o, sel.Metric)/den, ratioPrecision)
			if r > ratioClamp {
				r = 0
			}
			points[i] = defined(o.Date, r)
		}
	}
	return points, nil
}

func requirePopulation(region Region) error {
	if !region.HasPopulation {
		return &RegionError{Region: region.Name, Err: ErrMissingReference}
	}
	if region.Population <= 0 {
		return &RegionError{Region: region.Name, Err: ErrNonPositiveDenominator}
	}
	return nil
}

// smooth replaces each point with the mean of itself and the following
// window-1 points. The last window-1 points have no complete window.
func smooth(points []Point, window, places int) []Point {
	out := make([]Point, len(points))
	buf := make(stats.Float64Data, 0, window)
	for i := range points {
		out[i] = Point{Date: points[i].Date}
		if i+window > len(points) {
			out[i].Reason = ReasonWindowEdge
			continue
		}

		buf = buf[:0]
		reason := ReasonNone
		for _, p := range points[i : i+window] {
			if !p.Defined {
				reason = p.Reason
				if reason == ReasonNone {
					reason = ReasonWindowEdge
				}
				break
			}
			buf = append(buf, p.Value)
		}
		if reason != ReasonNone {
			out[i].Reason = reason
			continue
		}

		mean, err := stats.Mean(buf)
		if err != nil {
			out[i].Reason = ReasonWindowEdge
			continue
		}
		out[i].Value = round(mean, places)
		out[i].Defined = true
	}
	return out
}

// log10 maps defined positive values to their base-10 logarithm. Zero and
// negative values have no logarithm and become undefined.
func log10(points []Point) []Point {
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = p
		if !p.Defined {
			continue
		}
		if p.Value <= 0 {
			out[i] = Point{Date: p.Date, Reason: ReasonLogDomain}
			continue
		}
		out[i].Value = math.Log10(p.Value)
	}
	return out
}

// filterDates keeps points within [start, end]. Zero bounds are open.
func filterDates(points []Point, start, end time.Time) []Point {
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if !start.IsZero() && p.Date.Before(start) {
			continue
		}
		if !end.IsZero() && p.Date.After(end) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func cumulative(o Observation, m Metric) float64 {
	switch m {
	case MetricTests:
		return o.CumulativeTests
	case MetricPositive:
		return o.CumulativePositive
	case MetricHospitalized:
		return o.CumulativeHospitalized
	case MetricDeaths:
		return o.CumulativeDeaths
	case MetricTotal:
		return o.CumulativeTotal
	default:
		return 0
	}
}

func incremental(o Observation, m Metric) float64 {
	switch m {
	case MetricTests:
		return o.IncrementalTests
	case MetricPositive:
		return o.IncrementalPositive
	case MetricHospitalized:
		return o.IncrementalHospitalized
	case MetricDeaths:
		return o.IncrementalDeaths
	default:
		return 0
	}
}

func hintsFor(sel Selection, composite bool) RenderHints {
	h := RenderHints{Unit: UnitCount, LogScale: sel.Scale == ScaleLog10, Dashed: composite}
	switch sel.Mode {
	case ModeRatePerMillion:
		h.Unit = UnitPerMillion
	case ModeOtherRate:
		h.Unit = UnitRatio
	}
	return h
}

func precisionFor(m Mode) int {
	switch m {
	case ModeRatePerMillion:
		return perMillionPrecision
	case ModeOtherRate:
		return ratioPrecision
	default:
		return countPrecision
	}
}

func defined(date time.Time, v float64) Point {
	return Point{Date: date, Value: v, Defined: true}
}

func round(v float64, places int) float64 {
	r, err := stats.Round(v, places)
	if err != nil {
		return v
	}
	return r
}
