package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sisplade-cli/internal/config"
	"github.com/sells-group/sisplade-cli/internal/pipeline"
	"github.com/sells-group/sisplade-cli/internal/scrape"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape every configured municipality and write the export",
	Long:  "Visits municipality ids site.id_start..site.id_end in order, collects income for each tracked year, and writes output.csv_path.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		renderer, err := newRenderer(cfg.Browser)
		if err != nil {
			return eris.Wrap(err, "scrape: start renderer")
		}

		st, err := initStore(ctx)
		if err != nil {
			renderer.Close() //nolint:errcheck
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		p, err := pipeline.New(cfg, renderer, st)
		if err != nil {
			renderer.Close() //nolint:errcheck
			return err
		}

		res, runErr := p.Run(ctx)
		if res != nil {
			printSummary(res)
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
}

// newRenderer returns a snapshot renderer when an offline directory is
// configured and a headless Chrome session otherwise.
func newRenderer(bc config.BrowserConfig) (scrape.Renderer, error) {
	if bc.OfflineDir != "" {
		zap.L().Info("scrape: using offline snapshots", zap.String("dir", bc.OfflineDir))
		return scrape.NewFileRenderer(bc.OfflineDir), nil
	}
	r, err := scrape.NewChromeRenderer(scrape.ChromeOptions{
		Headless:    bc.Headless,
		DisableGPU:  bc.DisableGPU,
		UserAgent:   bc.UserAgent,
		LoadTimeout: time.Duration(bc.LoadTimeoutSecs) * time.Second,
		TabTimeout:  time.Duration(bc.TabTimeoutSecs) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func printSummary(res *pipeline.Result) {
	fmt.Fprintf(os.Stderr, "rows: %d  collected: %d  failed: %d  absent cells: %d\n",
		res.Dataset.Len(), res.Collected, len(res.FailedIDs), res.Absent)
	if len(res.FailedIDs) > 0 {
		fmt.Fprintf(os.Stderr, "failed ids: %v\n", res.FailedIDs)
	}
	if res.RunID != "" {
		fmt.Fprintf(os.Stderr, "run: %s\n", res.RunID)
	}
	if res.OutputErr != nil {
		fmt.Fprintf(os.Stderr, "output error: %v\n", res.OutputErr)
	}
}
