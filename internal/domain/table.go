package domain

import (
	"slices"
	"strings"
	"time"
)

// Table is an immutable set of per-region daily observations. Build one with
// [Normalize] or [Build]; methods return copies so callers cannot mutate it.
type Table struct {
	regions []Region
	index   map[string]int
	series  map[string][]Observation
}

func newTable(regions []Region, series map[string][]Observation) *Table {
	slices.SortFunc(regions, func(a, b Region) int { return strings.Compare(a.Name, b.Name) })
	index := make(map[string]int, len(regions))
	for i, r := range regions {
		index[r.Name] = i
	}
	return &Table{regions: regions, index: index, series: series}
}

// Regions returns every region sorted by name.
func (t *Table) Regions() []Region {
	if t == nil {
		return nil
	}
	return slices.Clone(t.regions)
}

// Region looks up a region by exact name.
func (t *Table) Region(name string) (Region, bool) {
	if t == nil {
		return Region{}, false
	}
	i, ok := t.index[name]
	if !ok {
		return Region{}, false
	}
	return t.regions[i], true
}

// Observations returns the region's observations in ascending date order.
func (t *Table) Observations(name string) []Observation {
	if t == nil {
		return nil
	}
	return slices.Clone(t.series[name])
}

// Len returns the total number of observations across all regions.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, s := range t.series {
		n += len(s)
	}
	return n
}

// DateRange returns the earliest and latest dates in the table.
func (t *Table) DateRange() (first, last time.Time) {
	if t == nil {
		return first, last
	}
	for _, r := range t.regions {
		if first.IsZero() || r.FirstDate.Before(first) {
			first = r.FirstDate
		}
		if r.LastDate.After(last) {
			last = r.LastDate
		}
	}
	return first, last
}

// WithPopulation returns a copy of the table with reference populations joined
// by region name. Reference rows override populations carried by the feeds;
// rows naming unknown regions are ignored.
func (t *Table) WithPopulation(refs []PopulationRecord) *Table {
	if t == nil {
		return nil
	}
	pops := make(map[string]float64, len(refs))
	for _, ref := range refs {
		name := strings.TrimSpace(ref.Region)
		if name == "" || isMissing(ref.Population) {
			continue
		}
		pops[name] = ref.Population
	}

	regions := slices.Clone(t.regions)
	series := make(map[string][]Observation, len(t.series))
	for i, r := range regions {
		if p, ok := pops[r.Name]; ok {
			regions[i].Population = p
			regions[i].HasPopulation = true
		}
		obs := slices.Clone(t.series[r.Name])
		for j := range obs {
			obs[j].Population = regions[i].Population
		}
		series[r.Name] = obs
	}
	return newTable(regions, series)
}

// Composite sums every state-area region not listed in exclude into a synthetic
// region named "US without <exclude>". Ratios derived from the result use the
// summed numerators and denominators.
func (t *Table) Composite(exclude []string) (Region, []Observation, error) {
	name := CompositeName(exclude)
	if t == nil {
		return Region{}, nil, &RegionError{Region: name, Err: ErrUnknownRegion}
	}

	excluded := make(map[string]bool, len(exclude))
	for _, code := range exclude {
		r, ok := t.Region(code)
		if !ok || r.Area != AreaState {
			return Region{}, nil, &RegionError{Region: code, Err: ErrUnknownRegion}
		}
		excluded[code] = true
	}

	comp := Region{Name: name, Area: AreaUS, FIPS: DefaultFIPS, HasPopulation: true}
	byDate := make(map[time.Time]*Observation)
	members := 0
	for _, r := range t.regions {
		if r.Area != AreaState || excluded[r.Name] {
			continue
		}
		members++
		comp.Population += r.Population
		comp.HasPopulation = comp.HasPopulation && r.HasPopulation
		for _, o := range t.series[r.Name] {
			acc, ok := byDate[o.Date]
			if !ok {
				acc = &Observation{Region: name, Date: o.Date}
				byDate[o.Date] = acc
			}
			addObservation(acc, o)
		}
	}
	if members == 0 {
		return Region{}, nil, &RegionError{Region: name, Err: ErrUnknownRegion}
	}
	if !comp.HasPopulation {
		comp.Population = 0
	}

	obs := make([]Observation, 0, len(byDate))
	for _, o := range byDate {
		o.Population = comp.Population
		obs = append(obs, *o)
	}
	slices.SortFunc(obs, func(a, b Observation) int { return a.Date.Compare(b.Date) })
	if len(obs) > 0 {
		comp.FirstDate = obs[0].Date
		comp.LastDate = obs[len(obs)-1].Date
	}
	return comp, obs, nil
}

// CompositeName is the display name of the composite over all states except exclude.
func CompositeName(exclude []string) string {
	return USRegion + " without " + strings.Join(exclude, ", ")
}

func addObservation(acc *Observation, o Observation) {
	acc.CumulativeTests += o.CumulativeTests
	acc.CumulativePositive += o.CumulativePositive
	acc.CumulativeHospitalized += o.CumulativeHospitalized
	acc.CumulativeDeaths += o.CumulativeDeaths
	acc.CumulativeTotal += o.CumulativeTotal
	acc.IncrementalTests += o.IncrementalTests
	acc.IncrementalPositive += o.IncrementalPositive
	acc.IncrementalHospitalized += o.IncrementalHospitalized
	acc.IncrementalDeaths += o.IncrementalDeaths
}
