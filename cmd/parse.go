package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/sisplade-cli/internal/extract"
	"github.com/sells-group/sisplade-cli/internal/scrape"
)

var parseCmd = &cobra.Command{
	Use:   "parse <file.html>",
	Short: "Run the page parsers against a saved document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := parseFile(args[0], extract.Selectors{
			Municipio:       cfg.Selectors.Municipio,
			IncomeContainer: cfg.Selectors.IncomeContainer,
		})
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
}

// parseResult reports what the parsers read from one document. Parser
// failures are reported in the Errors map instead of failing the command.
type parseResult struct {
	File      string            `json:"file"`
	Municipio *string           `json:"municipio"`
	Income    *string           `json:"income"`
	Blocked   string            `json:"blocked,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func parseFile(path string, sel extract.Selectors) (*parseResult, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "parse: read %s", path)
	}
	html := string(b)

	out := &parseResult{File: path, Errors: map[string]string{}}
	if blocked, kind := scrape.DetectBlock(html); blocked {
		out.Blocked = string(kind)
	}

	doc, err := extract.ParseDocument(html)
	if err != nil {
		return nil, err
	}
	if m, err := extract.ParseMunicipio(doc, sel); err != nil {
		out.Errors["municipio"] = err.Error()
	} else {
		out.Municipio = &m
	}
	if inc, err := extract.ParseIncome(doc, sel); err != nil {
		out.Errors["income"] = err.Error()
	} else {
		out.Income = &inc
	}
	return out, nil
}
