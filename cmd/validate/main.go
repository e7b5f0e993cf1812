// Command validate checks a directory of feed CSVs (as written by genmock or
// downloaded from the live sources) against the invariants the service relies
// on: every feed parses, normalized series are ordered and duplicate-free,
// cumulative counts never go missing, population covers the state regions,
// and the derived views reconcile with the raw counts.
//
// Usage:
//
//	go run ./cmd/validate -dir data/mock
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/couchcryptid/covid-metrics-service/internal/adapter/source"
	"github.com/couchcryptid/covid-metrics-service/internal/domain"
)

// Feed file names inside the directory. world.csv and population.csv are optional.
const (
	usFile         = "us_daily.csv"
	statesFile     = "states_daily.csv"
	worldFile      = "world.csv"
	populationFile = "population.csv"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dir := flag.String("dir", "", "directory containing the feed CSV files")
	tolerance := flag.Float64("tolerance", 0.05, "allowed relative gap between US totals and summed states")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*dir, *tolerance))
}

func run(dir string, tolerance float64) int {
	fmt.Println("=== COVID Feed Integrity Validation ===")
	fmt.Println()

	src, err := loadSources(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load feeds: %v\n", err)
		return 1
	}
	table, stats := domain.Build(src)

	phases := []*phase{
		validateNormalization(table, stats),
		validatePopulation(table),
		validateNationalTotals(table, tolerance),
		validateViews(table),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d US, %d states, %d world, %d population\n",
		len(src.US), len(src.States), len(src.World), len(src.Population))
	fmt.Printf("Normalized: %d observations, %d regions, %d duplicates, %d skipped\n",
		stats.Rows, stats.Regions, stats.Duplicates, stats.Skipped)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadSources(dir string) (domain.Sources, error) {
	var src domain.Sources
	var err error
	if src.US, err = loadFeed(filepath.Join(dir, usFile), source.ParseUS, true); err != nil {
		return src, err
	}
	if src.States, err = loadFeed(filepath.Join(dir, statesFile), source.ParseStates, true); err != nil {
		return src, err
	}
	if src.World, err = loadFeed(filepath.Join(dir, worldFile), source.ParseWorld, false); err != nil {
		return src, err
	}
	if src.Population, err = loadFeed(filepath.Join(dir, populationFile), source.ParsePopulation, false); err != nil {
		return src, err
	}
	if src.Population == nil {
		src.Population = source.DefaultPopulation()
	}
	return src, nil
}

func loadFeed[T any](path string, parse func(io.Reader) ([]T, error), required bool) ([]T, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) && !required {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return rows, nil
}

// ── Phase 1: Normalization ──
// Every region is strictly date-ordered, starts and ends where its Region
// record says, and has no missing cumulative values.

func validateNormalization(table *domain.Table, stats domain.NormalizeStats) *phase {
	p := &phase{name: "Phase 1: Normalization"}

	if _, ok := table.Region(domain.USRegion); !ok {
		p.errorf("no %s region after normalization", domain.USRegion)
	}
	if table.Len() != stats.Rows {
		p.errorf("table holds %d observations, stats report %d", table.Len(), stats.Rows)
	}

	for _, region := range table.Regions() {
		obs := table.Observations(region.Name)
		if len(obs) == 0 {
			p.errorf("%s: region without observations", region.Name)
			continue
		}
		if !obs[0].Date.Equal(region.FirstDate) || !obs[len(obs)-1].Date.Equal(region.LastDate) {
			p.errorf("%s: date range %s..%s does not match observations", region.Name,
				region.FirstDate.Format(domain.DateLayout), region.LastDate.Format(domain.DateLayout))
		}
		for i, o := range obs {
			if i > 0 && !o.Date.After(obs[i-1].Date) {
				p.errorf("%s: %s not after %s", region.Name,
					o.Date.Format(domain.DateLayout), obs[i-1].Date.Format(domain.DateLayout))
			}
			for name, v := range map[string]float64{
				"positive": o.CumulativePositive,
				"tests":    o.CumulativeTests,
				"deaths":   o.CumulativeDeaths,
			} {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					p.errorf("%s %s: cumulative %s is missing after fill", region.Name, o.Date.Format(domain.DateLayout), name)
				}
			}
		}
	}
	return p
}

// ── Phase 2: Population ──
// The US and every state region carry a positive population.

func validatePopulation(table *domain.Table) *phase {
	p := &phase{name: "Phase 2: Population Coverage"}

	for _, region := range table.Regions() {
		if region.Area == domain.AreaWorld {
			continue
		}
		if !region.HasPopulation {
			p.errorf("%s: no population reference", region.Name)
		} else if region.Population <= 0 {
			p.errorf("%s: non-positive population %g", region.Name, region.Population)
		}
	}
	return p
}

// ── Phase 3: National totals ──
// On the last shared date the US feed is close to the sum of the states.

func validateNationalTotals(table *domain.Table, tolerance float64) *phase {
	p := &phase{name: "Phase 3: National Totals vs States"}

	us := table.Observations(domain.USRegion)
	if len(us) == 0 {
		p.errorf("no US observations")
		return p
	}
	_, states, err := table.Composite(nil)
	if err != nil {
		p.errorf("sum states: %v", err)
		return p
	}
	if len(states) == 0 {
		p.errorf("no state observations")
		return p
	}

	byDate := make(map[string]domain.Observation, len(states))
	for _, o := range states {
		byDate[o.Date.Format(domain.DateLayout)] = o
	}
	checked := 0
	for _, o := range us {
		key := o.Date.Format(domain.DateLayout)
		s, ok := byDate[key]
		if !ok {
			continue
		}
		checked++
		if gap := relativeGap(o.CumulativePositive, s.CumulativePositive); gap > tolerance {
			p.errorf("%s: US positive %g vs states %g (gap %.1f%%)", key, o.CumulativePositive, s.CumulativePositive, gap*100)
		}
	}
	if checked == 0 {
		p.errorf("US and state feeds share no dates")
	}
	return p
}

func relativeGap(a, b float64) float64 {
	den := math.Max(math.Abs(a), math.Abs(b))
	if den == 0 {
		return 0
	}
	return math.Abs(a-b) / den
}

// ── Phase 4: Views ──
// Rate-per-million reconciles with cumulative counts, and positivity stays in
// range for every region that has the needed references.

func validateViews(table *domain.Table) *phase {
	p := &phase{name: "Phase 4: View Reconciliation"}

	for _, region := range table.Regions() {
		sel := domain.Selection{Regions: []string{region.Name}}

		counts, err := domain.ComputeView(table, sel)
		if err != nil {
			p.errorf("%s: cumulative view: %v", region.Name, err)
			continue
		}

		sel.Mode = domain.ModeRatePerMillion
		rates, err := domain.ComputeView(table, sel)
		if err != nil {
			p.errorf("%s: rate view: %v", region.Name, err)
			continue
		}
		if rs := rates.Series[0]; rs.Err == nil {
			for i, pt := range rs.Points {
				want := counts.Series[0].Points[i].Value * 1e6 / region.Population
				if math.Abs(pt.Value-want) > 0.5 {
					p.errorf("%s %s: rate %g, expected %g", region.Name, pt.Date.Format(domain.DateLayout), pt.Value, want)
				}
			}
		} else if region.Area != domain.AreaWorld {
			p.errorf("%s: rate view: %v", region.Name, rs.Err)
		}

		sel.Mode, sel.RateBase = domain.ModeOtherRate, domain.RateBaseTests
		positivity, err := domain.ComputeView(table, sel)
		if err != nil {
			p.errorf("%s: positivity view: %v", region.Name, err)
			continue
		}
		for _, pt := range positivity.Series[0].Points {
			if pt.Defined && (pt.Value < 0 || pt.Value > 1) {
				p.errorf("%s %s: positivity %g outside [0, 1]", region.Name, pt.Date.Format(domain.DateLayout), pt.Value)
			}
		}
	}
	return p
}
