package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Catalog is the optional TOML file named by SOURCES_FILE:
//
//	[sources]
//	us = "https://covidtracking.com/api/us/daily.csv"
//	states = "file:///srv/feeds/states_daily.csv"
//	world = "https://covid.ourworldindata.org/data/owid-covid-data.csv"
//	population = "file:///srv/feeds/population.csv"
type Catalog struct {
	Sources Sources `toml:"sources"`
}

// LoadCatalog decodes a source catalog file.
func LoadCatalog(path string) (Catalog, error) {
	var c Catalog
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return Catalog{}, fmt.Errorf("decode sources file %s: %w", path, err)
	}
	return c, nil
}

// Apply overrides s with every URL the catalog sets.
func (c Catalog) Apply(s Sources) Sources {
	if c.Sources.USURL != "" {
		s.USURL = c.Sources.USURL
	}
	if c.Sources.StatesURL != "" {
		s.StatesURL = c.Sources.StatesURL
	}
	if c.Sources.WorldURL != "" {
		s.WorldURL = c.Sources.WorldURL
	}
	if c.Sources.PopulationURL != "" {
		s.PopulationURL = c.Sources.PopulationURL
	}
	return s
}
