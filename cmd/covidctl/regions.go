package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/covid-metrics-service/internal/domain"
)

func newRegionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List the regions in the loaded feeds",
		Args:  cobra.NoArgs,
		RunE:  runRegionsCmd,
	}
}

func runRegionsCmd(cmd *cobra.Command, _ []string) error {
	snap, err := loadSnapshot(cmd)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REGION\tAREA\tFIPS\tPOPULATION\tFIRST\tLAST")
	for _, r := range snap.Table.Regions() {
		pop := "-"
		if r.HasPopulation {
			pop = fmt.Sprintf("%.0f", r.Population)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Name, r.Area, r.FIPS, pop,
			r.FirstDate.Format(domain.DateLayout), r.LastDate.Format(domain.DateLayout))
	}
	return w.Flush()
}
