// Package sheets stores the account table in the first worksheet of a Google
// spreadsheet through the Sheets v4 API.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/store"
)

const spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"

type Options struct {
	// SpreadsheetID wins over SpreadsheetName when both are set.
	SpreadsheetID   string
	SpreadsheetName string

	// Endpoints override the Google API roots; empty means production.
	SheetsEndpoint string
	DriveEndpoint  string
	// HTTPClient carries both the token exchange and the API calls.
	HTTPClient *http.Client
}

type Table struct {
	values *sheetsapi.SpreadsheetsValuesService

	spreadsheetID string
	title         string
}

// Open authenticates with the service account, resolves the spreadsheet and
// picks its first worksheet.
func Open(ctx context.Context, credentialsJSON []byte, opts Options) (*Table, error) {
	if opts.SpreadsheetID == "" && opts.SpreadsheetName == "" {
		return nil, errors.New("sheets: spreadsheet id or name is required")
	}

	conf, err := jwtConfig(credentialsJSON)
	if err != nil {
		return nil, err
	}

	base := opts.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	// The token source outlives ctx, so it gets its own background context.
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := conf.Client(tokenCtx)

	sheetsOpts := []option.ClientOption{option.WithHTTPClient(client)}
	if opts.SheetsEndpoint != "" {
		sheetsOpts = append(sheetsOpts, option.WithEndpoint(endpoint(opts.SheetsEndpoint)))
	}
	svc, err := sheetsapi.NewService(ctx, sheetsOpts...)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}

	t := &Table{values: svc.Spreadsheets.Values, spreadsheetID: opts.SpreadsheetID}

	if t.spreadsheetID == "" {
		driveOpts := []option.ClientOption{option.WithHTTPClient(client)}
		if opts.DriveEndpoint != "" {
			driveOpts = append(driveOpts, option.WithEndpoint(endpoint(opts.DriveEndpoint)))
		}
		files, err := drive.NewService(ctx, driveOpts...)
		if err != nil {
			return nil, fmt.Errorf("drive client: %w", err)
		}
		id, err := lookupSpreadsheet(ctx, files, opts.SpreadsheetName)
		if err != nil {
			return nil, err
		}
		t.spreadsheetID = id
	}

	doc, err := svc.Spreadsheets.Get(t.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, apiError("read spreadsheet", err)
	}
	if len(doc.Sheets) == 0 || doc.Sheets[0].Properties == nil {
		return nil, fmt.Errorf("spreadsheet %s has no worksheets: %w", t.spreadsheetID, store.ErrNotFound)
	}
	t.title = doc.Sheets[0].Properties.Title
	return t, nil
}

func (t *Table) SpreadsheetID() string { return t.spreadsheetID }
func (t *Table) SheetTitle() string    { return t.title }

func (t *Table) AppendRow(ctx context.Context, cells []string) error {
	vr := &sheetsapi.ValueRange{Values: [][]interface{}{toValues(cells)}}
	_, err := t.values.Append(t.spreadsheetID, t.rangeRef("A1"), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return apiError("append row", err)
	}
	return nil
}

func (t *Table) Rows(ctx context.Context) ([][]string, error) {
	vr, err := t.values.Get(t.spreadsheetID, t.rangeRef("")).
		MajorDimension("ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, apiError("read rows", err)
	}

	rows := make([][]string, len(vr.Values))
	for i, r := range vr.Values {
		cells := make([]string, len(r))
		for j, v := range r {
			cells[j] = cellString(v)
		}
		rows[i] = cells
	}
	return rows, nil
}

// UpdateCells writes values into one row starting at col. Several values go
// out as a single range update.
func (t *Table) UpdateCells(ctx context.Context, row, col int, values ...string) error {
	if row < 1 || col < 1 || len(values) == 0 {
		return fmt.Errorf("%w: cell (%d,%d)", store.ErrBadRow, row, col)
	}

	cell := ColumnLetters(col) + strconv.Itoa(row)
	if len(values) > 1 {
		cell += ":" + ColumnLetters(col+len(values)-1) + strconv.Itoa(row)
	}
	ref := t.rangeRef(cell)

	vr := &sheetsapi.ValueRange{Range: ref, Values: [][]interface{}{toValues(values)}}
	if _, err := t.values.Update(t.spreadsheetID, ref, vr).ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return apiError("update "+cell, err)
	}
	return nil
}

func lookupSpreadsheet(ctx context.Context, files *drive.Service, name string) (string, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escapeQuery(name), spreadsheetMimeType)
	list, err := files.Files.List().Q(q).Fields("files(id,name)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", apiError(fmt.Sprintf("find spreadsheet %q", name), err)
	}
	if len(list.Files) == 0 {
		return "", fmt.Errorf("find spreadsheet %q: %w", name, store.ErrNotFound)
	}
	return list.Files[0].Id, nil
}

// rangeRef quotes the worksheet title and appends an optional A1 cell.
func (t *Table) rangeRef(cell string) string {
	ref := "'" + strings.ReplaceAll(t.title, "'", "''") + "'"
	if cell != "" {
		ref += "!" + cell
	}
	return ref
}

// apiError maps a missing spreadsheet or range onto store.ErrNotFound and
// keeps the *googleapi.Error in the chain.
func apiError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%s: %w: %w", op, store.ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func endpoint(u string) string {
	return strings.TrimRight(u, "/") + "/"
}

func toValues(cells []string) []interface{} {
	out := make([]interface{}, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	return out
}

// ColumnLetters converts a 1-based column number to its A1 letters.
func ColumnLetters(col int) string {
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
