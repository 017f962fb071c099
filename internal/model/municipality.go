package model

import (
	"maps"
	"slices"
)

// Cell is a single extracted value. A zero Cell is absent: the extraction
// for that column failed. A valid Cell may still hold an empty string.
type Cell struct {
	Text  string `json:"text"`
	Valid bool   `json:"valid"`
}

// Value returns a present cell holding s.
func Value(s string) Cell {
	return Cell{Text: s, Valid: true}
}

// Absent returns the absent-value marker.
func Absent() Cell {
	return Cell{}
}

// IsAbsent reports whether the cell is the absent-value marker.
func (c Cell) IsAbsent() bool {
	return !c.Valid
}

// String renders the cell for tabular output. Absent cells render empty.
func (c Cell) String() string {
	if !c.Valid {
		return ""
	}
	return c.Text
}

// MunicipalityRecord holds the revenue figures collected for one municipality.
type MunicipalityRecord struct {
	ID        int          `json:"id"`
	Municipio Cell         `json:"municipio"`
	Income    map[int]Cell `json:"income"`
}

// NewMunicipalityRecord creates a record with every tracked year set to the
// absent marker. Extraction overwrites years as they succeed, so a tracked
// year is never missing from Income.
func NewMunicipalityRecord(id int, years []int) MunicipalityRecord {
	income := make(map[int]Cell, len(years))
	for _, y := range years {
		income[y] = Absent()
	}
	return MunicipalityRecord{ID: id, Municipio: Absent(), Income: income}
}

// Clone returns a deep copy of the record.
func (r MunicipalityRecord) Clone() MunicipalityRecord {
	out := r
	out.Income = maps.Clone(r.Income)
	if out.Income == nil {
		out.Income = map[int]Cell{}
	}
	return out
}

// Years returns the tracked years in ascending order.
func (r MunicipalityRecord) Years() []int {
	return slices.Sorted(maps.Keys(r.Income))
}

// AbsentYears returns the years whose income could not be extracted, ascending.
func (r MunicipalityRecord) AbsentYears() []int {
	var out []int
	for _, y := range r.Years() {
		if r.Income[y].IsAbsent() {
			out = append(out, y)
		}
	}
	return out
}

// AbsentCount returns the number of absent cells, municipio included.
func (r MunicipalityRecord) AbsentCount() int {
	n := len(r.AbsentYears())
	if r.Municipio.IsAbsent() {
		n++
	}
	return n
}

// YearTab maps a fiscal-year tab index on the municipality page to the
// calendar year it displays.
type YearTab struct {
	Index int `json:"index" yaml:"index" mapstructure:"index"`
	Year  int `json:"year" yaml:"year" mapstructure:"year"`
}

// DefaultYearTabs returns the fixed tab lookup for the deployed site. The
// default (unclicked) view shows the current year and is not listed here.
func DefaultYearTabs() []YearTab {
	return []YearTab{
		{Index: 1, Year: 2015},
		{Index: 2, Year: 2016},
		{Index: 3, Year: 2017},
		{Index: 4, Year: 2018},
		{Index: 5, Year: 2019},
		{Index: 6, Year: 2020},
	}
}
