// Package postgres stores the account table in PostgreSQL, one SQL row per
// table row, ordered by insertion.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/model"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/store"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQL columns in table column order.
var columns = []string{"trainer_name", "pin_hash", "screenshot_url", "progress", "reset_code", "reset_code_hash"}

// gooseUpContext is a seam for tests.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

type Table struct {
	db *sql.DB
}

// Open connects, pings and migrates.
func Open(ctx context.Context, dsn string) (*Table, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctxPing); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	t := New(db)
	if err := t.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return t, nil
}

func New(db *sql.DB) *Table {
	return &Table{db: db}
}

func (t *Table) Close() error {
	return t.db.Close()
}

func (t *Table) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, t.db, "migrations")
}

func (t *Table) AppendRow(ctx context.Context, cells []string) error {
	if len(cells) > len(columns) {
		return fmt.Errorf("%w: %d cells, table has %d columns", store.ErrBadRow, len(cells), len(columns))
	}

	args := make([]any, len(columns))
	for i := range columns {
		if i < len(cells) {
			args[i] = cells[i]
		} else {
			args[i] = ""
		}
	}

	query := `INSERT INTO account_rows (` + strings.Join(columns, ", ") + `)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := t.db.ExecContext(ctx, query, args...); err != nil {
		return mapPgErr(err)
	}
	return nil
}

// Rows returns the fixed header followed by the stored rows.
func (t *Table) Rows(ctx context.Context) ([][]string, error) {
	query := `SELECT ` + strings.Join(columns, ", ") + ` FROM account_rows ORDER BY position`
	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()

	header := make([]string, len(model.Header))
	copy(header, model.Header)
	out := [][]string{header}

	for rows.Next() {
		cells := make([]string, len(columns))
		dest := make([]any, len(columns))
		for i := range cells {
			dest[i] = &cells[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, mapPgErr(err)
		}
		out = append(out, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgErr(err)
	}
	return out, nil
}

// UpdateCells addresses rows by their rank in insertion order, so row 2 is
// the oldest stored row. The header is not stored and cannot be updated.
func (t *Table) UpdateCells(ctx context.Context, row, col int, values ...string) error {
	if col < 1 || len(values) == 0 || col+len(values)-1 > len(columns) {
		return fmt.Errorf("%w: columns %d..%d", store.ErrBadRow, col, col+len(values)-1)
	}
	if row < 2 {
		return fmt.Errorf("%w: row %d", store.ErrBadRow, row)
	}

	set := make([]string, len(values))
	args := make([]any, 0, len(values)+1)
	for i, v := range values {
		set[i] = fmt.Sprintf("%s = $%d", columns[col-1+i], i+1)
		args = append(args, v)
	}
	args = append(args, row-2)

	query := fmt.Sprintf(`UPDATE account_rows SET %s
		WHERE position = (SELECT position FROM account_rows ORDER BY position OFFSET $%d LIMIT 1)`,
		strings.Join(set, ", "), len(values)+1)
	res, err := t.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapPgErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func mapPgErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return store.ErrConflict
		default:
			return fmt.Errorf("db_error %s: %s", pgErr.Code, pgErr.Message)
		}
	}
	return fmt.Errorf("db error: %w", err)
}
