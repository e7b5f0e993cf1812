package domain

import (
	"math"
	"time"
)

// Area classifies a region by the feed it came from.
type Area string

const (
	AreaUS    Area = "us"
	AreaState Area = "state"
	AreaWorld Area = "world"
)

// Default categorical values for rows whose feed omits them.
const (
	USRegion    = "US"
	DefaultFIPS = "00"
)

// SourceRecord is one parsed feed row. Numeric fields are NaN when the cell was
// empty or absent from the feed.
type SourceRecord struct {
	Region string
	Area   Area
	FIPS   string
	Date   time.Time

	Tests        float64
	Positive     float64
	Hospitalized float64
	Deaths       float64
	Total        float64

	TestsIncrease        float64
	PositiveIncrease     float64
	HospitalizedIncrease float64
	DeathsIncrease       float64

	// Population is only carried by the world feed.
	Population float64
}

// NewSourceRecord returns a record with every numeric field missing.
func NewSourceRecord(region string, area Area, date time.Time) SourceRecord {
	nan := math.NaN()
	return SourceRecord{
		Region:               region,
		Area:                 area,
		Date:                 date,
		Tests:                nan,
		Positive:             nan,
		Hospitalized:         nan,
		Deaths:               nan,
		Total:                nan,
		TestsIncrease:        nan,
		PositiveIncrease:     nan,
		HospitalizedIncrease: nan,
		DeathsIncrease:       nan,
		Population:           nan,
	}
}

// PopulationRecord is one row of the population reference table.
type PopulationRecord struct {
	Region     string
	Population float64
}

// Sources bundles the raw feeds for one load. World is optional.
type Sources struct {
	US         []SourceRecord
	States     []SourceRecord
	World      []SourceRecord
	Population []PopulationRecord
}

// Observation is one region on one date after normalization.
type Observation struct {
	Region string    `json:"region"`
	Date   time.Time `json:"date"`

	CumulativeTests        float64 `json:"cumulative_tests"`
	CumulativePositive     float64 `json:"cumulative_positive"`
	CumulativeHospitalized float64 `json:"cumulative_hospitalized"`
	CumulativeDeaths       float64 `json:"cumulative_deaths"`
	CumulativeTotal        float64 `json:"cumulative_total"`

	IncrementalTests        float64 `json:"incremental_tests"`
	IncrementalPositive     float64 `json:"incremental_positive"`
	IncrementalHospitalized float64 `json:"incremental_hospitalized"`
	IncrementalDeaths       float64 `json:"incremental_deaths"`

	Population float64 `json:"population"`
}

// Region describes a jurisdiction present in a Table.
type Region struct {
	Name string `json:"name"`
	Area Area   `json:"area"`
	FIPS string `json:"fips"`

	// HasPopulation is false when no reference row matched; Population is then 0
	// and per-capita metrics are undefined.
	HasPopulation bool    `json:"has_population"`
	Population    float64 `json:"population"`

	FirstDate time.Time `json:"first_date"`
	LastDate  time.Time `json:"last_date"`
}
