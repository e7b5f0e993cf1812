package domain

import (
	"fmt"
	"strings"
	"time"
)

// Metric names the observation column a view plots.
type Metric string

const (
	MetricTests        Metric = "tests"
	MetricPositive     Metric = "positive"
	MetricHospitalized Metric = "hospitalized"
	MetricDeaths       Metric = "deaths"
	MetricTotal        Metric = "total"
)

// Mode selects how a metric is derived.
type Mode string

const (
	ModeCumulative     Mode = "cumulative"
	ModeIncremental    Mode = "incremental"
	ModeRatePerMillion Mode = "rate_per_million"
	ModeOtherRate      Mode = "other_rate"
)

// RateBase is the denominator used by ModeOtherRate.
type RateBase string

const (
	RateBasePopulation RateBase = "population"
	RateBaseTests      RateBase = "tests"
)

// Scale is the y-axis transform applied after the metric is computed.
type Scale string

const (
	ScaleLinear Scale = "linear"
	ScaleLog10  Scale = "log10"
)

// MaxWindow bounds the moving-average window.
const MaxWindow = 90

// Selection is a request-scoped choice of what to plot.
type Selection struct {
	Regions  []string  `json:"regions"`
	Metric   Metric    `json:"metric"`
	Mode     Mode      `json:"mode"`
	RateBase RateBase  `json:"rate_base"`
	Scale    Scale     `json:"scale"`
	Window   int       `json:"window"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`

	// Without adds a composite "US without ..." series over the remaining states.
	Without []string `json:"without,omitempty"`
}

// WithDefaults fills unset fields: positive, cumulative, population base, linear scale.
// Start and End are truncated to UTC days.
func (s Selection) WithDefaults() Selection {
	if s.Metric == "" {
		s.Metric = MetricPositive
	}
	if s.Mode == "" {
		s.Mode = ModeCumulative
	}
	if s.RateBase == "" {
		s.RateBase = RateBasePopulation
	}
	if s.Scale == "" {
		s.Scale = ScaleLinear
	}
	s.Start = Day(s.Start)
	s.End = Day(s.End)
	return s
}

// Validate reports the first malformed field, wrapping ErrInvalidSelection.
func (s Selection) Validate() error {
	if len(s.Regions) == 0 && len(s.Without) == 0 {
		return invalidSelection("no regions selected")
	}
	for _, r := range s.Regions {
		if strings.TrimSpace(r) == "" {
			return invalidSelection("empty region name")
		}
	}
	switch s.Metric {
	case MetricTests, MetricPositive, MetricHospitalized, MetricDeaths, MetricTotal:
	default:
		return invalidSelection("unknown metric %q", s.Metric)
	}
	switch s.Mode {
	case ModeCumulative, ModeRatePerMillion, ModeOtherRate:
	case ModeIncremental:
		if s.Metric == MetricTotal {
			return invalidSelection("metric %q has no incremental series", s.Metric)
		}
	default:
		return invalidSelection("unknown mode %q", s.Mode)
	}
	switch s.RateBase {
	case RateBasePopulation, RateBaseTests:
	default:
		return invalidSelection("unknown rate base %q", s.RateBase)
	}
	switch s.Scale {
	case ScaleLinear, ScaleLog10:
	default:
		return invalidSelection("unknown scale %q", s.Scale)
	}
	if s.Window < 0 || s.Window > MaxWindow {
		return invalidSelection("window %d outside [0, %d]", s.Window, MaxWindow)
	}
	if !s.Start.IsZero() && !s.End.IsZero() && s.Start.After(s.End) {
		return invalidSelection("start %s after end %s", s.Start.Format(DateLayout), s.End.Format(DateLayout))
	}
	return nil
}

// Key identifies the selection for caching. Equal selections produce equal keys.
func (s Selection) Key() string {
	return fmt.Sprintf("%q|%s|%s|%s|%s|%d|%s|%s|%q",
		s.Regions, s.Metric, s.Mode, s.RateBase, s.Scale, s.Window,
		formatDay(s.Start), formatDay(s.End), s.Without)
}

// DateLayout is the ISO day format used in selections and API responses.
const DateLayout = "2006-01-02"

// ParseDay parses a DateLayout date for the named selection field. An empty
// or blank value is the zero time, meaning an open bound.
func ParseDay(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, invalidSelection("%s %q is not a YYYY-MM-DD date", field, s)
	}
	return d, nil
}

// SplitList splits a comma-separated list of region names, trimming each
// entry. Blank entries are kept so Validate can reject them.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// Day truncates t to midnight UTC of its calendar day. The zero time stays zero.
func Day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}
