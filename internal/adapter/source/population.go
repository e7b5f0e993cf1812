package source

import (
	_ "embed"
	"strings"

	"github.com/couchcryptid/covid-metrics-service/internal/domain"
)

// populationCSV holds 2019 census estimates for the US, the states, DC and PR.
//
//go:embed population.csv
var populationCSV string

// DefaultPopulation returns the embedded population reference table.
func DefaultPopulation() []domain.PopulationRecord {
	recs, err := ParsePopulation(strings.NewReader(populationCSV))
	if err != nil {
		panic("source: embedded population table: " + err.Error())
	}
	return recs
}
