package dataset

import (
	"os"
	"path/filepath"

	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/sisplade-cli/internal/model"
	"github.com/sells-group/sisplade-cli/internal/scrape"
)

// SheetName is the worksheet WriteXLSX writes to.
const SheetName = "ingresos"

// WriteXLSX writes the dataset as a single-sheet workbook. Absent cells are
// left blank; extracted empty strings are written as string cells.
func WriteXLSX(d *Dataset, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return scrape.NewIOError("dataset: create output dir", err)
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return scrape.NewIOError("dataset: add sheet", err)
	}

	header := sheet.AddRow()
	for _, col := range d.schema.Columns() {
		header.AddCell().SetString(col)
	}

	years := d.schema.Years()
	for _, rec := range d.records {
		row := sheet.AddRow()
		row.AddCell().SetInt(rec.ID)
		setCell(row.AddCell(), rec.Municipio)
		for _, y := range years {
			setCell(row.AddCell(), rec.Income[y])
		}
	}

	if err := f.Save(path); err != nil {
		return scrape.NewIOError("dataset: save xlsx", err)
	}
	return nil
}

func setCell(cell *xlsx.Cell, c model.Cell) {
	if c.IsAbsent() {
		return
	}
	cell.SetString(c.Text)
}
