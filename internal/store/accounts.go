package store

import (
	"context"
	"fmt"

	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/model"
)

// AccountStore is the account persistence the workflows depend on.
type AccountStore interface {
	Append(ctx context.Context, a model.Account) error
	FindByName(ctx context.Context, name string) (Record, bool, error)
	FindByNameAndField(ctx context.Context, name string, field model.Field, value string) (Record, bool, error)
	UpdateField(ctx context.Context, row int, field model.Field, value string) error
	UpdateFields(ctx context.Context, row int, from model.Field, values ...string) error
}

// Record is an account together with its table row.
type Record struct {
	Row     int
	Account model.Account
}

// Accounts maps trainer accounts onto a Table. Every lookup scans all data
// rows; there is no locking between a lookup and a later write.
type Accounts struct {
	table Table
}

func NewAccounts(t Table) *Accounts {
	return &Accounts{table: t}
}

func (a *Accounts) Append(ctx context.Context, acc model.Account) error {
	if err := a.table.AppendRow(ctx, acc.Cells()); err != nil {
		return fmt.Errorf("append account: %w", err)
	}
	return nil
}

// All returns every data row in table order.
func (a *Accounts) All(ctx context.Context) ([]Record, error) {
	rows, err := a.table.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}

	out := make([]Record, 0, len(rows)-1)
	for i, cells := range rows[1:] {
		out = append(out, Record{Row: i + 2, Account: model.AccountFromCells(cells)})
	}
	return out, nil
}

func (a *Accounts) FindByName(ctx context.Context, name string) (Record, bool, error) {
	return a.find(ctx, func(acc model.Account) bool {
		return acc.TrainerName == name
	})
}

func (a *Accounts) FindByNameAndField(ctx context.Context, name string, field model.Field, value string) (Record, bool, error) {
	if !field.Valid() {
		return Record{}, false, fmt.Errorf("%w: field %d", ErrBadRow, field)
	}
	return a.find(ctx, func(acc model.Account) bool {
		return acc.TrainerName == name && acc.Get(field) == value
	})
}

func (a *Accounts) UpdateField(ctx context.Context, row int, field model.Field, value string) error {
	return a.UpdateFields(ctx, row, field, value)
}

// UpdateFields writes adjacent fields of one row, starting at from, in a
// single table write.
func (a *Accounts) UpdateFields(ctx context.Context, row int, from model.Field, values ...string) error {
	last := from + model.Field(len(values)) - 1
	if len(values) == 0 || !from.Valid() || !last.Valid() {
		return fmt.Errorf("%w: fields %d..%d", ErrBadRow, from, last)
	}
	if row < 2 {
		return fmt.Errorf("%w: row %d is not a data row", ErrBadRow, row)
	}
	if err := a.table.UpdateCells(ctx, row, int(from), values...); err != nil {
		return fmt.Errorf("update row %d: %w", row, err)
	}
	return nil
}

func (a *Accounts) find(ctx context.Context, match func(model.Account) bool) (Record, bool, error) {
	records, err := a.All(ctx)
	if err != nil {
		return Record{}, false, err
	}
	for _, r := range records {
		if match(r.Account) {
			return r, true, nil
		}
	}
	return Record{}, false, nil
}
