package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/covid-metrics-service/internal/domain"
)

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Print a computed view as a table or JSON",
		Args:  cobra.NoArgs,
		RunE:  runViewCmd,
	}
	addSelectionFlags(cmd)
	cmd.Flags().StringVar(&viewFormat, "format", "table", "table|json")
	return cmd
}

func runViewCmd(cmd *cobra.Command, _ []string) error {
	if viewFormat != "table" && viewFormat != "json" {
		return fmt.Errorf("invalid --format %q: want table or json", viewFormat)
	}
	sel, err := selectionFromFlags()
	if err != nil {
		return err
	}
	snap, err := loadSnapshot(cmd)
	if err != nil {
		return err
	}
	view, err := domain.ComputeView(snap.Table, sel)
	if err != nil {
		return err
	}

	for _, s := range view.Series {
		if s.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", s.Err)
		}
	}
	if viewFormat == "json" {
		return writeViewJSON(cmd.OutOrStdout(), view)
	}
	return writeViewTable(cmd.OutOrStdout(), view)
}

type seriesJSON struct {
	Region string             `json:"region"`
	Hints  domain.RenderHints `json:"hints"`
	Points []domain.Point     `json:"points"`
	Error  string             `json:"error,omitempty"`
}

func writeViewJSON(w io.Writer, view domain.View) error {
	out := make([]seriesJSON, 0, len(view.Series))
	for _, s := range view.Series {
		sj := seriesJSON{Region: s.Region, Hints: s.Hints, Points: s.Points}
		if s.Err != nil {
			sj.Error = s.Err.Error()
		}
		out = append(out, sj)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// writeViewTable prints one row per date and one column per computed series.
// Undefined points print as "-".
func writeViewTable(w io.Writer, view domain.View) error {
	var series []domain.Series
	for _, s := range view.Series {
		if s.Err == nil {
			series = append(series, s)
		}
	}

	values := make([]map[time.Time]domain.Point, len(series))
	seen := make(map[time.Time]bool)
	var dates []time.Time
	for i, s := range series {
		values[i] = make(map[time.Time]domain.Point, len(s.Points))
		for _, p := range s.Points {
			values[i][p.Date] = p
			if !seen[p.Date] {
				seen[p.Date] = true
				dates = append(dates, p.Date)
			}
		}
	}
	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "DATE\t")
	for _, s := range series {
		fmt.Fprintf(tw, "%s\t", s.Region)
	}
	fmt.Fprintln(tw)
	for _, d := range dates {
		fmt.Fprintf(tw, "%s\t", d.Format(domain.DateLayout))
		for i := range series {
			cell := "-"
			if p, ok := values[i][d]; ok && p.Defined {
				cell = strconv.FormatFloat(p.Value, 'f', -1, 64)
			}
			fmt.Fprintf(tw, "%s\t", cell)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
