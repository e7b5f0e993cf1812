package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/covid-metrics-service/internal/adapter/chart"
	"github.com/couchcryptid/covid-metrics-service/internal/domain"
)

func newPlotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Render a view to a PNG or HTML chart file",
		Args:  cobra.NoArgs,
		RunE:  runPlotCmd,
	}
	addSelectionFlags(cmd)
	cmd.Flags().StringVar(&plotOut, "out", "view.png", "output file; .html renders an interactive chart")
	return cmd
}

func runPlotCmd(cmd *cobra.Command, _ []string) error {
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

	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(plotOut)) {
	case ".html", ".htm":
		err = chart.RenderHTML(&buf, view, "snapshot "+snap.ID)
	default:
		err = chart.RenderPNG(&buf, view, chart.DefaultWidth, chart.DefaultHeight)
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(plotOut, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", plotOut, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d series)\n", plotOut, len(view.Series))
	return nil
}
