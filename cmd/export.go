package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sisplade-cli/internal/dataset"
	"github.com/sells-group/sisplade-cli/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Rebuild the export of a stored run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		runID, _ := cmd.Flags().GetString("run")
		csvPath, _ := cmd.Flags().GetString("csv")
		xlsxPath, _ := cmd.Flags().GetString("xlsx")
		if csvPath == "" {
			csvPath = cfg.Output.CSVPath
		}
		if xlsxPath == "" {
			xlsxPath = cfg.Output.XLSXPath
		}

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ds, err := loadDataset(ctx, st, runID)
		if err != nil {
			return err
		}
		if err := writeExports(ds, csvPath, xlsxPath); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "exported %d rows from run %s\n", ds.Len(), runID)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("run", "", "run id to export")
	exportCmd.Flags().String("csv", "", "CSV output path (default output.csv_path)")
	exportCmd.Flags().String("xlsx", "", "XLSX output path (default output.xlsx_path, empty to skip)")
	_ = exportCmd.MarkFlagRequired("run")
	rootCmd.AddCommand(exportCmd)
}

// loadDataset rebuilds the dataset of a stored run.
func loadDataset(ctx context.Context, st store.Store, runID string) (*dataset.Dataset, error) {
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "export")
	}
	schema, err := dataset.NewSchema(run.StartYear, run.EndYear)
	if err != nil {
		return nil, err
	}
	recs, err := st.LoadRecords(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "export: load records")
	}
	ds := dataset.New(schema)
	for _, rec := range recs {
		if err := ds.Append(rec); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// writeExports writes the CSV and, when xlsxPath is set, the XLSX file
// concurrently.
func writeExports(ds *dataset.Dataset, csvPath, xlsxPath string) error {
	var g errgroup.Group
	g.Go(func() error {
		return dataset.WriteCSV(ds, csvPath)
	})
	if xlsxPath != "" {
		g.Go(func() error {
			return dataset.WriteXLSX(ds, xlsxPath)
		})
	}
	return g.Wait()
}
