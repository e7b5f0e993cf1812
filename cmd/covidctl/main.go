// Command covidctl loads the feeds once and prints or plots views from the
// command line, without running the service.
//
// Usage:
//
//	covidctl regions --sources data/mock/sources.toml
//	covidctl view --regions NY,NJ --mode rate_per_million --window 7
//	covidctl plot --regions NY --without NY --scale log10 --out ny.png
package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/covid-metrics-service/internal/adapter/source"
	"github.com/couchcryptid/covid-metrics-service/internal/config"
	"github.com/couchcryptid/covid-metrics-service/internal/domain"
	"github.com/couchcryptid/covid-metrics-service/internal/observability"
	"github.com/couchcryptid/covid-metrics-service/internal/pipeline"
)

var (
	sourcesFile   string
	usURL         string
	statesURL     string
	worldURL      string
	populationURL string

	selRegions  string
	selMetric   string
	selMode     string
	selRateBase string
	selScale    string
	selWindow   int
	selStart    string
	selEnd      string
	selWithout  string

	viewFormat string
	plotOut    string
)

// metrics registers the collectors once per process; the CLI never serves them.
var metrics = sync.OnceValue(observability.NewMetrics)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "covidctl",
		Short:         "Query COVID metric views from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&sourcesFile, "sources", "", "TOML source catalog (overrides SOURCE_* variables)")
	pf.StringVar(&usURL, "us", "", "US daily feed URL")
	pf.StringVar(&statesURL, "states", "", "states daily feed URL")
	pf.StringVar(&worldURL, "world", "", "world feed URL")
	pf.StringVar(&populationURL, "population", "", "population reference URL")

	rootCmd.AddCommand(newRegionsCmd())
	rootCmd.AddCommand(newViewCmd())
	rootCmd.AddCommand(newPlotCmd())

	return rootCmd
}

// addSelectionFlags registers the flags shared by view and plot.
func addSelectionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&selRegions, "regions", domain.USRegion, "comma-separated region names")
	f.StringVar(&selMetric, "metric", string(domain.MetricPositive), "tests|positive|hospitalized|deaths|total")
	f.StringVar(&selMode, "mode", string(domain.ModeCumulative), "cumulative|incremental|rate_per_million|other_rate")
	f.StringVar(&selRateBase, "rate-base", string(domain.RateBasePopulation), "population|tests (other_rate only)")
	f.StringVar(&selScale, "scale", string(domain.ScaleLinear), "linear|log10")
	f.IntVar(&selWindow, "window", 0, "moving-average window in days (0 or 1 disables)")
	f.StringVar(&selStart, "start", "", "first date (YYYY-MM-DD)")
	f.StringVar(&selEnd, "end", "", "last date (YYYY-MM-DD)")
	f.StringVar(&selWithout, "without", "", "add a composite of all states except these codes")
}

func selectionFromFlags() (domain.Selection, error) {
	sel := domain.Selection{
		Regions:  domain.SplitList(selRegions),
		Metric:   domain.Metric(selMetric),
		Mode:     domain.Mode(selMode),
		RateBase: domain.RateBase(selRateBase),
		Scale:    domain.Scale(selScale),
		Window:   selWindow,
		Without:  domain.SplitList(selWithout),
	}
	var err error
	if sel.Start, err = domain.ParseDay("--start", selStart); err != nil {
		return sel, err
	}
	if sel.End, err = domain.ParseDay("--end", selEnd); err != nil {
		return sel, err
	}
	return sel, sel.WithDefaults().Validate()
}

// loadSnapshot fetches the feeds once through the refresh pipeline.
func loadSnapshot(cmd *cobra.Command) (*domain.Snapshot, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if sourcesFile != "" {
		catalog, err := config.LoadCatalog(sourcesFile)
		if err != nil {
			return nil, err
		}
		cfg.Sources = catalog.Apply(cfg.Sources)
	}
	cfg.Sources = config.Catalog{Sources: config.Sources{
		USURL:         usURL,
		StatesURL:     statesURL,
		WorldURL:      worldURL,
		PopulationURL: populationURL,
	}}.Apply(cfg.Sources)

	logger := observability.NewLoggerTo(cmd.ErrOrStderr(), cfg)
	store := pipeline.NewStore(metrics())
	client := source.NewClient(cfg.Sources, cfg.SourceTimeout, metrics(), logger)
	p := pipeline.New(client, pipeline.NewTransformer(logger), store, logger, metrics(), 0)

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.SourceTimeout)
	defer cancel()
	if err := p.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("load feeds: %w", err)
	}
	return store.Current(), nil
}
