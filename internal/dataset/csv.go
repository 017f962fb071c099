package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sisplade-cli/internal/model"
	"github.com/sells-group/sisplade-cli/internal/scrape"
)

// WriteCSV writes the dataset as UTF-8 CSV to path, creating parent
// directories as needed. Failures are reported as scrape IO errors.
func WriteCSV(d *Dataset, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return scrape.NewIOError("dataset: create output dir", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return scrape.NewIOError("dataset: create csv", err)
	}
	defer f.Close() //nolint:errcheck

	if err := writeCSV(d, f); err != nil {
		return scrape.NewIOError("dataset: write csv", err)
	}
	if err := f.Close(); err != nil {
		return scrape.NewIOError("dataset: close csv", err)
	}
	return nil
}

func writeCSV(d *Dataset, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(d.schema.Columns()); err != nil {
		return eris.Wrap(err, "write header")
	}
	if err := cw.WriteAll(d.Rows()); err != nil {
		return eris.Wrap(err, "write rows")
	}
	return nil
}

// ReadCSV parses a file written by WriteCSV back into a dataset. Empty cells
// come back as absent. CSV cannot tell an extracted empty value from a
// missing one, so Value("") does not survive a round trip; use the run store
// or the XLSX export when that difference matters.
func ReadCSV(path string, schema Schema) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, scrape.NewIOError("dataset: open csv", err)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, scrape.NewIOError("dataset: read header", err)
	}
	if !slices.Equal(header, schema.Columns()) {
		return nil, eris.Errorf("dataset: header %v does not match columns %v", header, schema.Columns())
	}

	years := schema.Years()
	d := New(schema)
	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, scrape.NewIOError("dataset: read row", err)
		}
		id, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, eris.Wrapf(err, "dataset: line %d: bad id %q", line, row[0])
		}
		rec := model.NewMunicipalityRecord(id, years)
		rec.Municipio = cellFrom(row[1])
		for i, y := range years {
			rec.Income[y] = cellFrom(row[i+2])
		}
		if err := d.Append(rec); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func cellFrom(s string) model.Cell {
	if s == "" {
		return model.Absent()
	}
	return model.Value(s)
}
