package domain

import (
	"math"
	"slices"
	"strings"
)

// NormalizeStats summarizes a Normalize run.
type NormalizeStats struct {
	Rows       int `json:"rows"`
	Regions    int `json:"regions"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

// Build normalizes the feeds and joins the population reference.
func Build(src Sources) (*Table, NormalizeStats) {
	table, stats := Normalize(src.US, src.States, src.World)
	return table.WithPopulation(src.Population), stats
}

// Normalize unions the US, state and (optional) world feeds into one Table.
// It fills categorical defaults, orders each region by date, drops duplicate
// dates (first row wins), forward-fills cumulative gaps and derives missing
// increments from the cumulative columns. Rows without a date, or state and
// world rows without a region, are skipped.
func Normalize(us, states, world []SourceRecord) (*Table, NormalizeStats) {
	var stats NormalizeStats
	groups := make(map[string][]SourceRecord)
	var order []string

	add := func(recs []SourceRecord, area Area) {
		for _, rec := range recs {
			rec, ok := applyDefaults(rec, area)
			if !ok {
				stats.Skipped++
				continue
			}
			if _, seen := groups[rec.Region]; !seen {
				order = append(order, rec.Region)
			}
			groups[rec.Region] = append(groups[rec.Region], rec)
		}
	}
	add(us, AreaUS)
	add(states, AreaState)
	add(world, AreaWorld)

	regions := make([]Region, 0, len(order))
	series := make(map[string][]Observation, len(order))
	for _, name := range order {
		recs := groups[name]
		slices.SortStableFunc(recs, func(a, b SourceRecord) int { return a.Date.Compare(b.Date) })
		recs, dropped := dedupeDates(recs)
		stats.Duplicates += dropped

		obs := fillSeries(recs)
		series[name] = obs
		stats.Rows += len(obs)

		first := recs[0]
		region := Region{
			Name:      name,
			Area:      first.Area,
			FIPS:      regionFIPS(recs),
			FirstDate: obs[0].Date,
			LastDate:  obs[len(obs)-1].Date,
		}
		if p, ok := carriedPopulation(recs); ok {
			region.Population = p
			region.HasPopulation = true
			for i := range obs {
				obs[i].Population = p
			}
		}
		regions = append(regions, region)
	}
	stats.Regions = len(regions)

	return newTable(regions, series), stats
}

func applyDefaults(rec SourceRecord, area Area) (SourceRecord, bool) {
	if rec.Date.IsZero() {
		return rec, false
	}
	rec.Region = strings.TrimSpace(rec.Region)
	if rec.Region == "" {
		if area != AreaUS {
			return rec, false
		}
		rec.Region = USRegion
	}
	if rec.Area == "" {
		rec.Area = area
	}
	if strings.TrimSpace(rec.FIPS) == "" {
		rec.FIPS = DefaultFIPS
	}
	return rec, true
}

// regionFIPS returns the first FIPS code that is not the default placeholder.
func regionFIPS(recs []SourceRecord) string {
	for _, rec := range recs {
		if rec.FIPS != DefaultFIPS {
			return rec.FIPS
		}
	}
	return DefaultFIPS
}

// dedupeDates drops rows repeating the previous row's date. recs must be sorted.
func dedupeDates(recs []SourceRecord) ([]SourceRecord, int) {
	out := recs[:0:0]
	dropped := 0
	for i, rec := range recs {
		if i > 0 && rec.Date.Equal(recs[i-1].Date) {
			dropped++
			continue
		}
		out = append(out, rec)
	}
	return out, dropped
}

func fillSeries(recs []SourceRecord) []Observation {
	obs := make([]Observation, len(recs))
	var prev Observation
	for i, r := range recs {
		first := i == 0
		cur := Observation{
			Region:                 r.Region,
			Date:                   r.Date,
			CumulativeTests:        carry(r.Tests, prev.CumulativeTests),
			CumulativePositive:     carry(r.Positive, prev.CumulativePositive),
			CumulativeHospitalized: carry(r.Hospitalized, prev.CumulativeHospitalized),
			CumulativeDeaths:       carry(r.Deaths, prev.CumulativeDeaths),
			CumulativeTotal:        carry(r.Total, prev.CumulativeTotal),
		}
		cur.IncrementalTests = increment(r.TestsIncrease, cur.CumulativeTests, prev.CumulativeTests, first)
		cur.IncrementalPositive = increment(r.PositiveIncrease, cur.CumulativePositive, prev.CumulativePositive, first)
		cur.IncrementalHospitalized = increment(r.HospitalizedIncrease, cur.CumulativeHospitalized, prev.CumulativeHospitalized, first)
		cur.IncrementalDeaths = increment(r.DeathsIncrease, cur.CumulativeDeaths, prev.CumulativeDeaths, first)

		obs[i] = cur
		prev = cur
	}
	return obs
}

// carry returns v, or the previous value when v is missing.
func carry(v, prev float64) float64 {
	if isMissing(v) {
		return prev
	}
	return v
}

// increment returns v, or the day-over-day cumulative difference when v is missing.
func increment(v, cum, prevCum float64, first bool) float64 {
	if !isMissing(v) {
		return v
	}
	if first {
		return 0
	}
	return cum - prevCum
}

// carriedPopulation returns the latest population a feed reported for the region.
func carriedPopulation(recs []SourceRecord) (float64, bool) {
	for i := len(recs) - 1; i >= 0; i-- {
		if !isMissing(recs[i].Population) {
			return recs[i].Population, true
		}
	}
	return 0, false
}

func isMissing(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
