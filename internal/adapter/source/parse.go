package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/covid-metrics-service/internal/domain"
)

// Date layouts accepted in feed date columns. covidtracking uses 20200415,
// OWID uses 2020-04-15.
var dateLayouts = []string{"20060102", domain.DateLayout}

// csvTable addresses rows of a CSV stream by header name.
type csvTable struct {
	r     *csv.Reader
	index map[string]int
}

func newCSVTable(r io.Reader) (*csvTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("read header: empty feed")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	return &csvTable{r: cr, index: index}, nil
}

func (t *csvTable) has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// require fails when any of cols is missing from the header.
func (t *csvTable) require(cols ...string) error {
	for _, c := range cols {
		if !t.has(c) {
			return fmt.Errorf("missing column %q", c)
		}
	}
	return nil
}

// each calls fn for every data row. It stops at EOF or the first read error.
func (t *csvTable) each(fn func(row csvRow)) error {
	for {
		rec, err := t.r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read row: %w", err)
		}
		fn(csvRow{rec: rec, index: t.index})
	}
}

type csvRow struct {
	rec   []string
	index map[string]int
}

func (r csvRow) str(col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(r.rec) {
		return ""
	}
	return strings.TrimSpace(r.rec[i])
}

// num returns NaN for absent, empty or unparsable cells.
func (r csvRow) num(col string) float64 {
	s := r.str(col)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// numOr reads col, falling back to alt when col is missing.
func (r csvRow) numOr(col, alt string) float64 {
	if v := r.num(col); !math.IsNaN(v) {
		return v
	}
	return r.num(alt)
}

// date returns the zero time when the cell matches no known layout.
func (r csvRow) date(col string) time.Time {
	s := r.str(col)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.UTC()
		}
	}
	return time.Time{}
}

// ParseUS reads the national daily feed. Rows carry no region column; they are
// assigned to the US region during normalization.
func ParseUS(r io.Reader) ([]domain.SourceRecord, error) {
	return parseTracking(r, domain.AreaUS, false)
}

// ParseStates reads the per-state daily feed.
func ParseStates(r io.Reader) ([]domain.SourceRecord, error) {
	return parseTracking(r, domain.AreaState, true)
}

func parseTracking(r io.Reader, area domain.Area, keyed bool) ([]domain.SourceRecord, error) {
	t, err := newCSVTable(r)
	if err != nil {
		return nil, err
	}
	if err := t.require("date"); err != nil {
		return nil, err
	}
	if keyed {
		if err := t.require("state"); err != nil {
			return nil, err
		}
	}

	var out []domain.SourceRecord
	err = t.each(func(row csvRow) {
		rec := domain.NewSourceRecord(row.str("state"), area, row.date("date"))
		rec.FIPS = row.str("fips")
		rec.Tests = row.num("totalTestResults")
		rec.Positive = row.num("positive")
		rec.Hospitalized = row.numOr("hospitalizedCumulative", "hospitalized")
		rec.Deaths = row.num("death")
		rec.Total = row.num("total")
		rec.TestsIncrease = row.num("totalTestResultsIncrease")
		rec.PositiveIncrease = row.num("positiveIncrease")
		rec.HospitalizedIncrease = row.num("hospitalizedIncrease")
		rec.DeathsIncrease = row.num("deathIncrease")
		out = append(out, rec)
	})
	return out, err
}

// ParseWorld reads an OWID-layout country feed. Hospitalization and total are
// not published there and stay missing.
func ParseWorld(r io.Reader) ([]domain.SourceRecord, error) {
	t, err := newCSVTable(r)
	if err != nil {
		return nil, err
	}
	if err := t.require("location", "date"); err != nil {
		return nil, err
	}

	var out []domain.SourceRecord
	err = t.each(func(row csvRow) {
		rec := domain.NewSourceRecord(row.str("location"), domain.AreaWorld, row.date("date"))
		rec.FIPS = row.str("iso_code")
		rec.Tests = row.num("total_tests")
		rec.Positive = row.num("total_cases")
		rec.Deaths = row.num("total_deaths")
		rec.TestsIncrease = row.num("new_tests")
		rec.PositiveIncrease = row.num("new_cases")
		rec.DeathsIncrease = row.num("new_deaths")
		rec.Population = row.num("population")
		out = append(out, rec)
	})
	return out, err
}

// ParsePopulation reads a region,population reference table. Rows without a
// region or a parsable population are dropped.
func ParsePopulation(r io.Reader) ([]domain.PopulationRecord, error) {
	t, err := newCSVTable(r)
	if err != nil {
		return nil, err
	}
	if err := t.require("region", "population"); err != nil {
		return nil, err
	}

	var out []domain.PopulationRecord
	err = t.each(func(row csvRow) {
		name := row.str("region")
		pop := row.num("population")
		if name == "" || math.IsNaN(pop) {
			return
		}
		out = append(out, domain.PopulationRecord{Region: name, Population: pop})
	})
	return out, err
}
