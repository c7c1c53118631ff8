// Package report holds the measured outcome of one memlab run and its
// protobuf encoding.
package report

import (
	"time"
)

// Report is the outcome of one run of the demonstration suite.
type Report struct {
	ID        uint64
	Instance  string
	StartedAt time.Time
	Duration  time.Duration
	Host      Host
	Sections  []Section
}

type Host struct {
	Hostname  string
	GoVersion string
	NumCPU    int
	RSSBytes  uint64
}

// Section is one numbered demonstration.
type Section struct {
	Number   int
	Title    string
	Duration time.Duration
	Metrics  []Metric
	Notes    []string
}

type Metric struct {
	Name  string
	Value float64
	Unit  string
}

// Section returns the section with the given number.
func (r *Report) Section(number int) (*Section, bool) {
	for i := range r.Sections {
		if r.Sections[i].Number == number {
			return &r.Sections[i], true
		}
	}
	return nil, false
}

// Add appends a metric and returns s for chaining.
func (s *Section) Add(name string, value float64, unit string) *Section {
	s.Metrics = append(s.Metrics, Metric{Name: name, Value: value, Unit: unit})
	return s
}

func (s *Section) Note(line string) *Section {
	s.Notes = append(s.Notes, line)
	return s
}

// Metric looks a metric up by name.
func (s *Section) Metric(name string) (Metric, bool) {
	for _, m := range s.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}
