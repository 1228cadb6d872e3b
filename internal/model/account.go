package model

// Field is a 1-based column position in the account table.
type Field int

const (
	FieldTrainerName Field = iota + 1
	FieldPINHash
	FieldScreenshotURL
	FieldProgress
	FieldResetCode
	FieldResetCodeHash
)

const (
	ColumnCount     = int(FieldResetCodeHash)
	DefaultProgress = "0"
)

// Header is row 1 of the account table.
var Header = []string{"Trainer Name", "PIN Hash", "Screenshot", "Progress", "Reset Code", "Reset Code Hash"}

// Account is one trainer row. ResetCode is kept in plain text next to its
// digest; both are always written together.
type Account struct {
	TrainerName   string `json:"trainer_name"`
	PINHash       string `json:"-"`
	ScreenshotURL string `json:"screenshot_url"`
	Progress      string `json:"progress"`
	ResetCode     string `json:"-"`
	ResetCodeHash string `json:"-"`
}

func (a Account) Cells() []string {
	return []string{a.TrainerName, a.PINHash, a.ScreenshotURL, a.Progress, a.ResetCode, a.ResetCodeHash}
}

// AccountFromCells maps a table row to an Account. Missing trailing cells are
// treated as empty.
func AccountFromCells(cells []string) Account {
	get := func(f Field) string {
		i := int(f) - 1
		if i < len(cells) {
			return cells[i]
		}
		return ""
	}
	return Account{
		TrainerName:   get(FieldTrainerName),
		PINHash:       get(FieldPINHash),
		ScreenshotURL: get(FieldScreenshotURL),
		Progress:      get(FieldProgress),
		ResetCode:     get(FieldResetCode),
		ResetCodeHash: get(FieldResetCodeHash),
	}
}

func (a Account) Get(f Field) string {
	switch f {
	case FieldTrainerName:
		return a.TrainerName
	case FieldPINHash:
		return a.PINHash
	case FieldScreenshotURL:
		return a.ScreenshotURL
	case FieldProgress:
		return a.Progress
	case FieldResetCode:
		return a.ResetCode
	case FieldResetCodeHash:
		return a.ResetCodeHash
	}
	return ""
}

func (f Field) Valid() bool {
	return f >= FieldTrainerName && f <= FieldResetCodeHash
}
