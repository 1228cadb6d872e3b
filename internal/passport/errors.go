package passport

import (
	"errors"
	"fmt"
)

var (
	ErrInput                  = errors.New("invalid input")
	ErrDuplicateAccount       = errors.New("trainer already registered")
	ErrAuthentication         = errors.New("invalid trainer name or pin")
	ErrRecovery               = errors.New("reset code did not match")
	ErrValidation             = errors.New("validation failed")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrExternalService        = errors.New("external service failure")
	ErrUnknownTrainer         = errors.New("trainer not found")
)

// User-facing messages.
const (
	MsgInvalidLogin       = "Invalid trainer name or PIN."
	MsgResetMismatch      = "Reset code didn't match. Try again."
	MsgMemorableIncorrect = "Current memorable password is incorrect."
	MsgPINsDiffer         = "New PINs do not match."
	MsgPINIncorrect       = "Current PIN is incorrect."
	MsgPINUpdated         = "PIN updated successfully."
	MsgMemorableUpdated   = "Memorable password updated successfully."
	MsgTrainerNotFound    = "Trainer not found in database."
	MsgNoFile             = "No file selected."
	MsgNameRequired       = "Trainer name is required."
	MsgBadFilename        = "That file name can't be used. Rename the file and try again."
)

// ValidationError is a rejected account-management form. Message is shown
// to the user as is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Form fields an InputError can refer to.
const (
	FieldScreenshot  = "screenshot"
	FieldTrainerName = "trainer_name"
)

// InputError is a rejected form field or upload. Message is shown to the
// user as is.
type InputError struct {
	Field   string
	Message string
	Err     error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *InputError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInput, e.Err}
	}
	return []error{ErrInput}
}

func external(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrExternalService, err)
}
