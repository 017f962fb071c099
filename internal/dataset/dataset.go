// Package dataset accumulates municipality records under a fixed column
// schema and serializes them as CSV or XLSX.
package dataset

import (
	"maps"
	"slices"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sisplade-cli/internal/model"
)

// ErrSchemaMismatch is returned when a record's years differ from the schema's.
var ErrSchemaMismatch = eris.New("dataset: record years do not match schema")

// Schema is the ordered column set: id, Municipio, then one column per year.
type Schema struct {
	StartYear int
	EndYear   int
}

// NewSchema returns the schema covering startYear..endYear inclusive.
func NewSchema(startYear, endYear int) (Schema, error) {
	if startYear > endYear {
		return Schema{}, eris.Errorf("dataset: start year %d after end year %d", startYear, endYear)
	}
	return Schema{StartYear: startYear, EndYear: endYear}, nil
}

// Years returns the tracked years in column order.
func (s Schema) Years() []int {
	years := make([]int, 0, s.EndYear-s.StartYear+1)
	for y := s.StartYear; y <= s.EndYear; y++ {
		years = append(years, y)
	}
	return years
}

// Columns returns the header row.
func (s Schema) Columns() []string {
	cols := []string{"id", "Municipio"}
	for _, y := range s.Years() {
		cols = append(cols, strconv.Itoa(y))
	}
	return cols
}

// Dataset is an ordered collection of records sharing one schema.
type Dataset struct {
	schema  Schema
	records []model.MunicipalityRecord
}

// New creates an empty dataset.
func New(schema Schema) *Dataset {
	return &Dataset{schema: schema}
}

// Schema returns the dataset's schema.
func (d *Dataset) Schema() Schema { return d.schema }

// Append adds a copy of rec. Insertion order is preserved.
func (d *Dataset) Append(rec model.MunicipalityRecord) error {
	if !slices.Equal(slices.Sorted(maps.Keys(rec.Income)), d.schema.Years()) {
		return eris.Wrapf(ErrSchemaMismatch, "municipio %d has years %v", rec.ID, rec.Years())
	}
	d.records = append(d.records, rec.Clone())
	return nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.records) }

// Records returns copies of the records in insertion order.
func (d *Dataset) Records() []model.MunicipalityRecord {
	out := make([]model.MunicipalityRecord, len(d.records))
	for i, r := range d.records {
		out[i] = r.Clone()
	}
	return out
}

// AbsentCount returns the number of absent cells across all rows.
func (d *Dataset) AbsentCount() int {
	n := 0
	for _, r := range d.records {
		n += r.AbsentCount()
	}
	return n
}

// Rows renders every record as a row of strings, absent cells as "".
func (d *Dataset) Rows() [][]string {
	years := d.schema.Years()
	rows := make([][]string, 0, len(d.records))
	for _, r := range d.records {
		row := make([]string, 0, len(years)+2)
		row = append(row, strconv.Itoa(r.ID), r.Municipio.String())
		for _, y := range years {
			row = append(row, r.Income[y].String())
		}
		rows = append(rows, row)
	}
	return rows
}
