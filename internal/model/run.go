package model

import "time"

// RunStatus represents the current state of a scrape run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is the persisted summary of one scrape over the identifier range.
type Run struct {
	ID         string    `json:"id"`
	Status     RunStatus `json:"status"`
	IDStart    int       `json:"id_start"`
	IDEnd      int       `json:"id_end"`
	StartYear  int       `json:"start_year"`
	EndYear    int       `json:"end_year"`
	Collected  int       `json:"collected"`
	Failed     int       `json:"failed"`
	Absent     int       `json:"absent"`
	OutputPath string    `json:"output_path,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RunScope is the identifier and year range a run covers.
type RunScope struct {
	IDStart   int `json:"id_start"`
	IDEnd     int `json:"id_end"`
	StartYear int `json:"start_year"`
	EndYear   int `json:"end_year"`
}

// Years returns the tracked years in ascending order.
func (s RunScope) Years() []int {
	years := make([]int, 0, s.EndYear-s.StartYear+1)
	for y := s.StartYear; y <= s.EndYear; y++ {
		years = append(years, y)
	}
	return years
}

// Scope returns the range the run covers.
func (r Run) Scope() RunScope {
	return RunScope{IDStart: r.IDStart, IDEnd: r.IDEnd, StartYear: r.StartYear, EndYear: r.EndYear}
}

// RunSummary holds the final counters recorded when a run finishes.
type RunSummary struct {
	Collected  int    `json:"collected"`
	Failed     int    `json:"failed"`
	Absent     int    `json:"absent"`
	OutputPath string `json:"output_path,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Failure is one logged extraction failure. Year is zero when the whole
// municipality failed.
type Failure struct {
	RunID       string    `json:"run_id"`
	MunicipioID int       `json:"municipio_id"`
	Year        int       `json:"year,omitempty"`
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}
