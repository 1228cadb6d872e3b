package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not_found")
	ErrConflict = errors.New("conflict")
	ErrBadRow   = errors.New("bad_row")
)

// Table is an ordered-row table addressed like a spreadsheet: rows and
// columns are 1-based and row 1 is the header.
type Table interface {
	AppendRow(ctx context.Context, cells []string) error
	// Rows returns every row including the header.
	Rows(ctx context.Context) ([][]string, error)
	// UpdateCells writes values into consecutive columns of one row,
	// starting at col, as a single write.
	UpdateCells(ctx context.Context, row, col int, values ...string) error
}
