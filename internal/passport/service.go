// Package passport implements trainer registration, login, PIN recovery and
// account management on top of the account table.
//
// Every operation reads the table fresh. Two requests updating the same row
// race and the last write wins; nothing here locks or versions rows.
package passport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/credential"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/logging"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/model"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/ocr"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/session"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/store"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/uploads"
)

// PlaceholderScreenshot is recorded when an account is confirmed without a
// screenshot upload in the same session.
const PlaceholderScreenshot = "placeholder.png"

// Upload is a screenshot submitted with a form.
type Upload struct {
	Filename string
	Body     io.Reader
}

type Registration struct {
	TrainerName string
	PIN         string
	ResetCode   string
}

type Reset struct {
	TrainerName string
	ResetCode   string
	NewPIN      string
}

type PINChange struct {
	CurrentMemorable string
	NewPIN           string
	ConfirmPIN       string
}

type MemorableChange struct {
	CurrentPIN   string
	NewMemorable string
}

type Service struct {
	accounts store.AccountStore
	uploads  uploads.Store
	ocr      ocr.Recognizer
	log      logging.Logger
}

func NewService(accounts store.AccountStore, up uploads.Store, rec ocr.Recognizer, log logging.Logger) *Service {
	if log == nil {
		log = logging.Nop()
	}
	return &Service{accounts: accounts, uploads: up, ocr: rec, log: log}
}

// BeginRegistration stores the screenshot, reads a candidate trainer name
// from it and remembers the stored file in the session until confirmation.
func (s *Service) BeginRegistration(ctx context.Context, sess *session.Session, up Upload) (string, error) {
	stored, name, err := s.scan(ctx, up)
	if err != nil {
		return "", err
	}
	sess.ScreenshotPath = stored
	return name, nil
}

// CompleteRegistration creates the account unless the name is taken. The
// duplicate check and the append are not atomic.
func (s *Service) CompleteRegistration(ctx context.Context, sess *session.Session, reg Registration) error {
	if strings.TrimSpace(reg.TrainerName) == "" {
		return &InputError{Field: FieldTrainerName, Message: MsgNameRequired}
	}

	_, found, err := s.accounts.FindByName(ctx, reg.TrainerName)
	if err != nil {
		return external("find trainer", err)
	}
	if found {
		return fmt.Errorf("%w: %s", ErrDuplicateAccount, reg.TrainerName)
	}

	screenshot := PlaceholderScreenshot
	if sess.ScreenshotPath != "" {
		screenshot = path.Base(sess.ScreenshotPath)
	}

	acc := model.Account{
		TrainerName:   reg.TrainerName,
		PINHash:       credential.Hash(reg.PIN),
		ScreenshotURL: uploads.URL(screenshot),
		Progress:      model.DefaultProgress,
		ResetCode:     reg.ResetCode,
		ResetCodeHash: credential.Hash(reg.ResetCode),
	}
	if err := s.accounts.Append(ctx, acc); err != nil {
		return external("create account", err)
	}

	sess.ScreenshotPath = ""
	s.log.Info(ctx, "trainer registered", "trainer", reg.TrainerName)
	return nil
}

// Login does not say whether the name or the PIN was wrong.
func (s *Service) Login(ctx context.Context, sess *session.Session, name, pin string) error {
	rec, found, err := s.accounts.FindByNameAndField(ctx, name, model.FieldPINHash, credential.Hash(pin))
	if err != nil {
		return external("find trainer", err)
	}
	if !found {
		return ErrAuthentication
	}

	sess.TrainerName = rec.Account.TrainerName
	sess.Progress = rec.Account.Progress
	sess.Screenshot = rec.Account.ScreenshotURL
	sess.ResetCode = rec.Account.ResetCode
	return nil
}

// IdentifyForRecovery reads a candidate name from a screenshot. The name is
// not checked against the table.
func (s *Service) IdentifyForRecovery(ctx context.Context, sess *session.Session, up Upload) (string, error) {
	_, name, err := s.scan(ctx, up)
	if err != nil {
		return "", err
	}
	sess.ResetTrainer = name
	return name, nil
}

// ResetPIN sets a new PIN for the trainer whose recovery phrase matches.
func (s *Service) ResetPIN(ctx context.Context, r Reset) error {
	rec, found, err := s.accounts.FindByNameAndField(ctx, r.TrainerName, model.FieldResetCodeHash, credential.Hash(r.ResetCode))
	if err != nil {
		return external("find trainer", err)
	}
	if !found {
		return ErrRecovery
	}

	if err := s.accounts.UpdateField(ctx, rec.Row, model.FieldPINHash, credential.Hash(r.NewPIN)); err != nil {
		return external("update pin", err)
	}
	s.log.Info(ctx, "pin reset", "trainer", r.TrainerName)
	return nil
}

// CurrentAccount loads the logged-in trainer's row.
func (s *Service) CurrentAccount(ctx context.Context, sess *session.Session) (store.Record, error) {
	if !sess.Authenticated() {
		return store.Record{}, ErrAuthenticationRequired
	}

	rec, found, err := s.accounts.FindByName(ctx, sess.TrainerName)
	if err != nil {
		return store.Record{}, external("find trainer", err)
	}
	if !found {
		return store.Record{}, ErrUnknownTrainer
	}
	return rec, nil
}

func (s *Service) UpdatePIN(ctx context.Context, sess *session.Session, c PINChange) error {
	rec, err := s.CurrentAccount(ctx, sess)
	if err != nil {
		return err
	}

	if !credential.Matches(c.CurrentMemorable, rec.Account.ResetCodeHash) {
		return &ValidationError{Message: MsgMemorableIncorrect}
	}
	if c.NewPIN != c.ConfirmPIN {
		return &ValidationError{Message: MsgPINsDiffer}
	}

	digest := credential.Hash(c.NewPIN)
	if err := s.accounts.UpdateField(ctx, rec.Row, model.FieldPINHash, digest); err != nil {
		return external("update pin", err)
	}
	sess.PINHash = digest
	return nil
}

// ResetMemorable replaces the recovery phrase. The plain phrase and its digest
// go out in one write so they cannot disagree.
func (s *Service) ResetMemorable(ctx context.Context, sess *session.Session, c MemorableChange) error {
	rec, err := s.CurrentAccount(ctx, sess)
	if err != nil {
		return err
	}

	if !credential.Matches(c.CurrentPIN, rec.Account.PINHash) {
		return &ValidationError{Message: MsgPINIncorrect}
	}

	// Reset Code and Reset Code Hash are adjacent columns.
	err = s.accounts.UpdateFields(ctx, rec.Row, model.FieldResetCode, c.NewMemorable, credential.Hash(c.NewMemorable))
	if err != nil {
		return external("update reset code", err)
	}
	sess.ResetCode = c.NewMemorable
	return nil
}

func (s *Service) Logout(sess *session.Session) {
	sess.Clear()
}

// scan stores an upload and extracts the candidate trainer name from it.
func (s *Service) scan(ctx context.Context, up Upload) (stored, name string, err error) {
	if up.Body == nil || up.Filename == "" {
		return "", "", &InputError{Field: FieldScreenshot, Message: MsgNoFile}
	}

	data, err := io.ReadAll(up.Body)
	if err != nil {
		return "", "", &InputError{Field: FieldScreenshot, Message: MsgNoFile, Err: err}
	}

	stored, err = s.uploads.Save(ctx, up.Filename, bytes.NewReader(data))
	if errors.Is(err, uploads.ErrInvalidFilename) {
		return "", "", &InputError{Field: FieldScreenshot, Message: MsgBadFilename, Err: err}
	}
	if err != nil {
		return "", "", external("store screenshot", err)
	}

	text, err := s.ocr.Recognize(ctx, bytes.NewReader(data))
	if err != nil {
		return "", "", external("read screenshot", err)
	}

	lines := ocr.Lines(text)
	for i, line := range lines {
		s.log.Debug(ctx, "ocr line", "n", i+1, "text", line)
	}
	name = ocr.ExtractName(lines)
	s.log.Info(ctx, "ocr selected trainer name", "trainer", name, "file", stored)
	return stored, name, nil
}
