package reflection

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// TimeEntry is one line of the time log.
type TimeEntry struct {
	Date  string  `yaml:"date"`
	Hours float64 `yaml:"hours"`
	Note  string  `yaml:"note"`
}

// Timelog reads work hours from a YAML list of entries with date (YYYY-MM-DD),
// hours and an optional note.
type Timelog struct {
	path string
}

// NewTimelog creates a time log reader. An empty path means no time is
// tracked.
func NewTimelog(path string) *Timelog {
	return &Timelog{path: path}
}

// Entries returns the entries dated within [from, to], sorted by date.
func (t *Timelog) Entries(from, to time.Time) ([]TimeEntry, error) {
	if t.path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(t.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read time log: %w", err)
	}

	var all []TimeEntry
	if err := yaml.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to parse time log: %w", err)
	}

	first, last := from.Format(dateLayout), to.Format(dateLayout)
	var in []TimeEntry
	for i, e := range all {
		if _, err := time.Parse(dateLayout, e.Date); err != nil {
			return nil, fmt.Errorf("time log entry %d: invalid date %q", i+1, e.Date)
		}
		if e.Hours < 0 {
			return nil, fmt.Errorf("time log entry %d: negative hours %v", i+1, e.Hours)
		}
		// ISO dates compare lexically
		if e.Date >= first && e.Date <= last {
			in = append(in, e)
		}
	}

	sort.SliceStable(in, func(i, j int) bool { return in[i].Date < in[j].Date })
	return in, nil
}

// TotalHours sums the hours of entries.
func TotalHours(entries []TimeEntry) float64 {
	var total float64
	for _, e := range entries {
		total += e.Hours
	}
	return total
}
