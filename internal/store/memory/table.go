package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/model"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/store"
)

// Table is an in-process ordered table. It is the store used in tests and
// in the "memory" backend.
type Table struct {
	mu   sync.Mutex
	rows [][]string
}

// NewTable returns a table whose first row is header, or the account header
// when none is given.
func NewTable(header ...string) *Table {
	if len(header) == 0 {
		header = model.Header
	}
	return &Table{rows: [][]string{clone(header)}}
}

func (t *Table) AppendRow(_ context.Context, cells []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rows = append(t.rows, clone(cells))
	return nil
}

func (t *Table) Rows(_ context.Context) ([][]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([][]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = clone(r)
	}
	return out, nil
}

func (t *Table) UpdateCells(_ context.Context, row, col int, values ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if col < 1 || len(values) == 0 {
		return fmt.Errorf("%w: column %d, %d values", store.ErrBadRow, col, len(values))
	}
	if row < 1 || row > len(t.rows) {
		return store.ErrNotFound
	}

	r := t.rows[row-1]
	last := col + len(values) - 1
	for len(r) < last {
		r = append(r, "")
	}
	copy(r[col-1:], values)
	t.rows[row-1] = r
	return nil
}

// Len is the number of rows including the header.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

func clone(cells []string) []string {
	out := make([]string, len(cells))
	copy(out, cells)
	return out
}
