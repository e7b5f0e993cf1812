// Package domain models daily COVID-19 testing, case and death series and the
// derived views plotted by the dashboard.
//
// # Data Sources
//
// Three public CSV feeds plus a population reference:
//
//	US daily      covidtracking.com/api/us/daily.csv      one row per date, national totals
//	States daily  covidtracking.com/api/states/daily.csv  one row per state per date
//	World daily   Our World in Data covid-data.csv        one row per country per date (optional)
//	Population    "region,population" CSV                 embedded default for US states
//
// # Feed Conventions
//
// covidtracking dates are integers in YYYYMMDD form and rows arrive newest first.
// OWID dates are ISO "YYYY-MM-DD". Cumulative columns:
//
//	totalTestResults  positive + negative results   -> tests
//	positive          confirmed positive results     -> positive
//	hospitalizedCumulative (or hospitalized)         -> hospitalized
//	death                                            -> deaths
//	total             positive + negative + pending  -> total
//
// Day-over-day columns carry an "Increase" suffix (positiveIncrease, ...). OWID uses
// total_cases/new_cases, total_tests/new_tests and total_deaths/new_deaths, and has no
// hospitalization or pending totals.
//
// Empty cells are common, especially early in a region's history. A missing value is
// held as NaN in a [SourceRecord] until [Normalize] fills it.
//
// # Normalization
//
// [Normalize] unions the feeds into one [Table] keyed by (region, date):
//
//	- the US feed has no state column; its rows become region "US"
//	- missing FIPS codes default to "00"
//	- rows sort by ascending date within each region; duplicate dates keep the first row
//	- cumulative gaps forward-fill, leading gaps become 0
//	- missing increments are the difference of consecutive cumulative values
//
// # Views
//
// [ComputeView] turns a Table and a [Selection] into one [Series] per requested region.
// Rate modes need a population; a region without one gets a [RegionError] on its series
// rather than NaN values. Points that cannot be computed (zero test denominator, log of a
// non-positive value, the tail of a moving average) stay in the series as undefined points
// with a [Reason].
//
// The moving average is aligned to the start of its window: the value at date d is the
// mean of d and the following window-1 dates, so the last window-1 points are undefined.
package domain
