// Package source loads the ordered handle list that seeds the crawl.
package source

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/kestreldata/channelharvest/internal/harvest"
)

// handleColumn is the expected header name for the handle column.
const handleColumn = "channel_user"

// List is the in-memory, ordered input list. The position of each handle is
// its task identity, so the list is immutable after load.
type List struct {
	handles []string
}

// Load reads the CSV input. The handle column is "channel_user"; when the
// header lacks it, the first column whose values start with "@" is used
// instead.
func Load(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read input csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("input %s has no data rows", path)
	}

	col, err := findHandleColumn(rows)
	if err != nil {
		return nil, err
	}

	handles := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if col >= len(row) {
			handles = append(handles, "")
			continue
		}
		handles = append(handles, strings.TrimSpace(row[col]))
	}
	return &List{handles: handles}, nil
}

func findHandleColumn(rows [][]string) (int, error) {
	header := rows[0]
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), handleColumn) {
			return i, nil
		}
	}
	for i := range header {
		for _, row := range rows[1:] {
			if i < len(row) && strings.HasPrefix(strings.TrimSpace(row[i]), "@") {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("no handle column found (expected %q or a column of @handles)", handleColumn)
}

// Len returns the total number of input rows.
func (l *List) Len() int {
	return len(l.handles)
}

// Tasks returns the finite task sequence from the resume index to the end of
// the input. A run consumes the result once; it is not restartable
// mid-stream within a single run.
func (l *List) Tasks(from int) []harvest.Task {
	if from < 0 {
		from = 0
	}
	if from >= len(l.handles) {
		return nil
	}
	tasks := make([]harvest.Task, 0, len(l.handles)-from)
	for i := from; i < len(l.handles); i++ {
		tasks = append(tasks, harvest.Task{Index: i, Handle: l.handles[i]})
	}
	return tasks
}
