// Command genmock writes deterministic synthetic feed CSVs in the same layouts
// as the live sources, plus a sources.toml catalog pointing at them, so the
// dashboard can run offline.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -days 90 -seed 7
//	SOURCES_FILE=data/mock/sources.toml go run ./cmd/dashboard
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/couchcryptid/covid-metrics-service/internal/adapter/source"
	"github.com/couchcryptid/covid-metrics-service/internal/config"
	"github.com/couchcryptid/covid-metrics-service/internal/domain"
)

var states = []struct {
	code string
	fips string
}{
	{"CA", "06"}, {"CT", "09"}, {"FL", "12"}, {"MA", "25"},
	{"NJ", "34"}, {"NY", "36"}, {"TX", "48"}, {"WA", "53"},
}

var countries = []struct {
	iso, name  string
	population float64
}{
	{"DEU", "Germany", 83783945},
	{"ESP", "Spain", 46754783},
	{"ITA", "Italy", 60461828},
}

// day is one generated date of cumulative counts and their increments.
type day struct {
	date                                      time.Time
	positive, tests, hospitalized, deaths     float64
	dPositive, dTests, dHospitalized, dDeaths float64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory for the generated feeds")
	start := flag.String("start", "2020-03-01", "first date (YYYY-MM-DD)")
	days := flag.Int("days", 60, "number of days per region")
	seed := flag.Uint64("seed", 1, "random seed")
	gaps := flag.Float64("gaps", 0.05, "probability that a cell is left empty")
	flag.Parse()

	if *out == "" || *days <= 0 {
		flag.Usage()
		return fmt.Errorf("missing required flag -out or non-positive -days")
	}
	first, err := time.Parse(domain.DateLayout, *start)
	if err != nil {
		return fmt.Errorf("parse -start: %w", err)
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(*seed, *seed))
	pop := populationByRegion()

	stateSeries := make(map[string][]day, len(states))
	for _, s := range states {
		stateSeries[s.code] = generate(rng, first, *days, pop[s.code])
	}
	us := sumSeries(stateSeries)

	if err := writeTracking(filepath.Join(*out, "us_daily.csv"), nil, map[string][]day{"": us}, rng, *gaps); err != nil {
		return fmt.Errorf("writing us feed: %w", err)
	}
	if err := writeTracking(filepath.Join(*out, "states_daily.csv"), fipsByCode(), stateSeries, rng, *gaps); err != nil {
		return fmt.Errorf("writing states feed: %w", err)
	}
	if err := writeWorld(filepath.Join(*out, "world.csv"), rng, first, *days); err != nil {
		return fmt.Errorf("writing world feed: %w", err)
	}
	if err := writePopulation(filepath.Join(*out, "population.csv")); err != nil {
		return fmt.Errorf("writing population: %w", err)
	}
	if err := writeCatalog(*out); err != nil {
		return fmt.Errorf("writing catalog: %w", err)
	}

	log.Printf("wrote %d states, %d countries, %d days to %s", len(states), len(countries), *days, *out)
	return nil
}

// generate draws a logistic epidemic curve scaled to population.
func generate(rng *rand.Rand, first time.Time, n int, population float64) []day {
	attack := 0.002 + rng.Float64()*0.018
	growth := 0.08 + rng.Float64()*0.17
	midpoint := 15 + rng.Float64()*30
	testsPerCase := 5 + rng.Float64()*7
	fatality := 0.02 + rng.Float64()*0.05

	series := make([]day, n)
	for i := range series {
		t := float64(i)
		positive := math.Round(population * attack / (1 + math.Exp(-growth*(t-midpoint))))
		d := day{
			date:         first.AddDate(0, 0, i),
			positive:     positive,
			tests:        math.Round(positive*testsPerCase + t*population*1e-5),
			hospitalized: math.Round(positive * 0.15),
			deaths:       math.Round(positive * fatality),
		}
		if i > 0 {
			prev := series[i-1]
			d.dPositive = d.positive - prev.positive
			d.dTests = d.tests - prev.tests
			d.dHospitalized = d.hospitalized - prev.hospitalized
			d.dDeaths = d.deaths - prev.deaths
		}
		series[i] = d
	}
	return series
}

func sumSeries(by map[string][]day) []day {
	var out []day
	for _, series := range by {
		if out == nil {
			out = make([]day, len(series))
			for i := range series {
				out[i].date = series[i].date
			}
		}
		for i, d := range series {
			out[i].positive += d.positive
			out[i].tests += d.tests
			out[i].hospitalized += d.hospitalized
			out[i].deaths += d.deaths
			out[i].dPositive += d.dPositive
			out[i].dTests += d.dTests
			out[i].dHospitalized += d.dHospitalized
			out[i].dDeaths += d.dDeaths
		}
	}
	return out
}

// writeTracking writes covidtracking-style rows, newest date first. A nil
// fips map omits the state and fips columns (national feed).
func writeTracking(path string, fips map[string]string, by map[string][]day, rng *rand.Rand, gaps float64) error {
	header := []string{"date", "positive", "totalTestResults", "hospitalizedCumulative", "death", "total",
		"positiveIncrease", "totalTestResultsIncrease", "hospitalizedIncrease", "deathIncrease"}
	if fips != nil {
		header = append([]string{"state", "fips"}, header...)
	}

	var rows [][]string
	n := 0
	for _, series := range by {
		n = len(series)
		break
	}
	for i := n - 1; i >= 0; i-- {
		for _, s := range states {
			code := s.code
			if fips == nil {
				code = ""
			}
			series, ok := by[code]
			if !ok {
				continue
			}
			d := series[i]
			cell := func(v float64) string {
				if i > 0 && rng.Float64() < gaps {
					return ""
				}
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
			row := []string{
				d.date.Format("20060102"),
				strconv.FormatFloat(d.positive, 'f', -1, 64),
				cell(d.tests),
				cell(d.hospitalized),
				cell(d.deaths),
				strconv.FormatFloat(d.tests, 'f', -1, 64),
				cell(d.dPositive),
				cell(d.dTests),
				cell(d.dHospitalized),
				cell(d.dDeaths),
			}
			if fips != nil {
				row = append([]string{code, fips[code]}, row...)
			}
			rows = append(rows, row)
			if fips == nil {
				break
			}
		}
	}
	return writeCSV(path, header, rows)
}

func writeWorld(path string, rng *rand.Rand, first time.Time, n int) error {
	header := []string{"iso_code", "location", "date", "total_cases", "new_cases", "total_deaths", "new_deaths",
		"total_tests", "new_tests", "population"}
	var rows [][]string
	for _, c := range countries {
		for _, d := range generate(rng, first, n, c.population) {
			rows = append(rows, []string{
				c.iso, c.name, d.date.Format(domain.DateLayout),
				formatCount(d.positive), formatCount(d.dPositive),
				formatCount(d.deaths), formatCount(d.dDeaths),
				"", "", // OWID often lacks test counts
				formatCount(c.population),
			})
		}
	}
	return writeCSV(path, header, rows)
}

func writePopulation(path string) error {
	var rows [][]string
	for _, r := range source.DefaultPopulation() {
		rows = append(rows, []string{r.Region, formatCount(r.Population)})
	}
	return writeCSV(path, []string{"region", "population"}, rows)
}

func writeCatalog(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	url := func(name string) string { return "file://" + filepath.ToSlash(filepath.Join(abs, name)) }
	catalog := config.Catalog{Sources: config.Sources{
		USURL:         url("us_daily.csv"),
		StatesURL:     url("states_daily.csv"),
		WorldURL:      url("world.csv"),
		PopulationURL: url("population.csv"),
	}}

	f, err := os.Create(filepath.Join(dir, "sources.toml"))
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(catalog)
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return f.Close()
}

func formatCount(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64)
}

func populationByRegion() map[string]float64 {
	out := make(map[string]float64)
	for _, r := range source.DefaultPopulation() {
		out[r.Region] = r.Population
	}
	return out
}

func fipsByCode() map[string]string {
	out := make(map[string]string, len(states))
	for _, s := range states {
		out[s.code] = s.fips
	}
	return out
}
