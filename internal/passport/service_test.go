package passport

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/credential"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/logging"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/model"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/ocr"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/session"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/store"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/store/memory"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/uploads"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecognizer struct {
	text string
	err  error
	seen []string
}

func (f *fakeRecognizer) Recognize(_ context.Context, image io.Reader) (string, error) {
	b, _ := io.ReadAll(image)
	f.seen = append(f.seen, string(b))
	return f.text, f.err
}

// countingStore records writes made through it.
type countingStore struct {
	store.AccountStore
	mu      sync.Mutex
	appends int
	updates int
}

func (c *countingStore) Append(ctx context.Context, a model.Account) error {
	c.mu.Lock()
	c.appends++
	c.mu.Unlock()
	return c.AccountStore.Append(ctx, a)
}

func (c *countingStore) UpdateField(ctx context.Context, row int, f model.Field, v string) error {
	c.mu.Lock()
	c.updates++
	c.mu.Unlock()
	return c.AccountStore.UpdateField(ctx, row, f, v)
}

func (c *countingStore) UpdateFields(ctx context.Context, row int, from model.Field, vs ...string) error {
	c.mu.Lock()
	c.updates++
	c.mu.Unlock()
	return c.AccountStore.UpdateFields(ctx, row, from, vs...)
}

type fixture struct {
	svc      *Service
	table    *memory.Table
	accounts *countingStore
	ocr      *fakeRecognizer
	uploads  *uploads.Disk
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tbl := memory.NewTable()
	accts := &countingStore{AccountStore: store.NewAccounts(tbl)}
	rec := &fakeRecognizer{text: "FRIENDS\nJournal\nA,B/C\nAshKetchum99\nxy\n"}
	disk, err := uploads.NewDisk(t.TempDir())
	require.NoError(t, err)
	return &fixture{
		svc:      NewService(accts, disk, rec, logging.Nop()),
		table:    tbl,
		accounts: accts,
		ocr:      rec,
		uploads:  disk,
	}
}

func (f *fixture) register(t *testing.T, name, pin, code string) {
	t.Helper()
	require.NoError(t, f.svc.CompleteRegistration(context.Background(), &session.Session{}, Registration{
		TrainerName: name, PIN: pin, ResetCode: code,
	}))
}

func (f *fixture) record(t *testing.T, name string) store.Record {
	t.Helper()
	rec, ok, err := f.accounts.FindByName(context.Background(), name)
	require.NoError(t, err)
	require.True(t, ok, "trainer %s", name)
	return rec
}

func screenshot(name string) Upload {
	return Upload{Filename: name, Body: strings.NewReader("png bytes")}
}

func TestBeginRegistration_ExtractsNameAndRemembersUpload(t *testing.T) {
	f := newFixture(t)
	sess := &session.Session{}

	name, err := f.svc.BeginRegistration(context.Background(), sess, screenshot("my profile.png"))
	require.NoError(t, err)

	assert.Equal(t, "AshKetchum99", name)
	assert.Equal(t, "my_profile.png", sess.ScreenshotPath)
	assert.Equal(t, []string{"png bytes"}, f.ocr.seen)

	rc, err := f.uploads.Open(context.Background(), "my_profile.png")
	require.NoError(t, err)
	_ = rc.Close()
}

func TestBeginRegistration_UnknownWhenNothingQualifies(t *testing.T) {
	f := newFixture(t)
	f.ocr.text = "PARTY\n12%\nab\n"

	name, err := f.svc.BeginRegistration(context.Background(), &session.Session{}, screenshot("x.png"))
	require.NoError(t, err)
	assert.Equal(t, ocr.UnknownName, name)
}

func TestBeginRegistration_InputErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.BeginRegistration(ctx, &session.Session{}, Upload{})
	assert.ErrorIs(t, err, ErrInput)

	_, err = f.svc.BeginRegistration(ctx, &session.Session{}, Upload{Filename: "", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrInput)

	_, err = f.svc.BeginRegistration(ctx, &session.Session{}, screenshot("../.."))
	assert.ErrorIs(t, err, ErrInput)
	var inErr *InputError
	require.ErrorAs(t, err, &inErr)
	assert.Equal(t, FieldScreenshot, inErr.Field)
	assert.Equal(t, MsgBadFilename, inErr.Message)

	assert.Empty(t, f.ocr.seen)
}

func TestBeginRegistration_OCRFailureIsExternal(t *testing.T) {
	f := newFixture(t)
	f.ocr.err = ocr.ErrExtraction
	sess := &session.Session{}

	_, err := f.svc.BeginRegistration(context.Background(), sess, screenshot("x.png"))
	assert.ErrorIs(t, err, ErrExternalService)
	assert.ErrorIs(t, err, ocr.ErrExtraction)
	assert.Empty(t, sess.ScreenshotPath)
}

func TestCompleteRegistration_CreatesRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := &session.Session{ScreenshotPath: "ash.png"}

	err := f.svc.CompleteRegistration(ctx, sess, Registration{TrainerName: "Red", PIN: "1234", ResetCode: "blueberry"})
	require.NoError(t, err)

	rows, err := f.table.Rows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{
		"Red", credential.Hash("1234"), "/uploads/ash.png", "0", "blueberry", credential.Hash("blueberry"),
	}, rows[1])
	assert.Empty(t, sess.ScreenshotPath)
}

func TestCompleteRegistration_PlaceholderWithoutUpload(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Red", "1234", "blueberry")

	assert.Equal(t, "/uploads/placeholder.png", f.record(t, "Red").Account.ScreenshotURL)
}

func TestCompleteRegistration_RejectsDuplicate(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Red", "1234", "blueberry")

	err := f.svc.CompleteRegistration(context.Background(), &session.Session{}, Registration{
		TrainerName: "Red", PIN: "9999", ResetCode: "other",
	})
	assert.ErrorIs(t, err, ErrDuplicateAccount)
	assert.Equal(t, 1, f.accounts.appends)
	assert.Equal(t, 2, f.table.Len())
	assert.Equal(t, credential.Hash("1234"), f.record(t, "Red").Account.PINHash)
}

func TestCompleteRegistration_NamesAreCaseSensitive(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Red", "1234", "blueberry")
	f.register(t, "red", "1234", "blueberry")

	assert.Equal(t, 3, f.table.Len())
}

func TestCompleteRegistration_RequiresName(t *testing.T) {
	f := newFixture(t)

	err := f.svc.CompleteRegistration(context.Background(), &session.Session{}, Registration{TrainerName: "  ", PIN: "1"})
	assert.ErrorIs(t, err, ErrInput)
	var inErr *InputError
	require.ErrorAs(t, err, &inErr)
	assert.Equal(t, FieldTrainerName, inErr.Field)
	assert.Equal(t, MsgNameRequired, inErr.Message)
	assert.Equal(t, 0, f.accounts.appends)
}

func TestLogin_PopulatesSessionFromRow(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Red", "1234", "blueberry")
	require.NoError(t, f.table.UpdateCells(context.Background(), 2, int(model.FieldProgress), "7"))

	sess := &session.Session{}
	require.NoError(t, f.svc.Login(context.Background(), sess, "Red", "1234"))

	assert.Equal(t, "Red", sess.TrainerName)
	assert.Equal(t, "7", sess.Progress)
	assert.Equal(t, "/uploads/placeholder.png", sess.Screenshot)
	assert.Equal(t, "blueberry", sess.ResetCode)
	assert.True(t, sess.Authenticated())
}

func TestLogin_DoesNotDistinguishFailures(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Red", "1234", "blueberry")
	ctx := context.Background()

	wrongPIN := f.svc.Login(ctx, &session.Session{}, "Red", "0000")
	wrongName := f.svc.Login(ctx, &session.Session{}, "Blue", "1234")

	assert.ErrorIs(t, wrongPIN, ErrAuthentication)
	assert.ErrorIs(t, wrongName, ErrAuthentication)
	assert.Equal(t, wrongPIN.Error(), wrongName.Error())
}

func TestIdentifyForRecovery(t *testing.T) {
	f := newFixture(t)
	sess := &session.Session{}

	name, err := f.svc.IdentifyForRecovery(context.Background(), sess, screenshot("forgot.png"))
	require.NoError(t, err)
	assert.Equal(t, "AshKetchum99", name)
	assert.Equal(t, "AshKetchum99", sess.ResetTrainer)
	assert.Empty(t, sess.ScreenshotPath)

	_, err = f.svc.IdentifyForRecovery(context.Background(), sess, Upload{})
	assert.ErrorIs(t, err, ErrInput)
}

func TestResetPIN_WithMatchingPhrase(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Red", "1234", "blueberry")
	ctx := context.Background()

	require.NoError(t, f.svc.ResetPIN(ctx, Reset{TrainerName: "Red", ResetCode: "blueberry", NewPIN: "5678"}))

	assert.Equal(t, credential.Hash("5678"), f.record(t, "Red").Account.PINHash)
	assert.NoError(t, f.svc.Login(ctx, &session.Session{}, "Red", "5678"))
	assert.ErrorIs(t, f.svc.Login(ctx, &session.Session{}, "Red", "1234"), ErrAuthentication)
}

func TestResetPIN_WrongPhraseLeavesPIN(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Red", "1234", "blueberry")

	err := f.svc.ResetPIN(context.Background(), Reset{TrainerName: "Red", ResetCode: "raspberry", NewPIN: "5678"})
	assert.ErrorIs(t, err, ErrRecovery)
	assert.Equal(t, 0, f.accounts.updates)
	assert.Equal(t, credential.Hash("1234"), f.record(t, "Red").Account.PINHash)
}

func TestResetPIN_PhraseMustBelongToTrainer(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Red", "1234", "blueberry")
	f.register(t, "Blue", "4321", "rival")

	err := f.svc.ResetPIN(context.Background(), Reset{TrainerName: "Blue", ResetCode: "blueberry", NewPIN: "0000"})
	assert.ErrorIs(t, err, ErrRecovery)
}

func loggedIn(t *testing.T, f *fixture, name, pin string) *session.Session {
	t.Helper()
	sess := &session.Session{}
	require.NoError(t, f.svc.Login(context.Background(), sess, name, pin))
	return sess
}

func TestUpdatePIN(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Red", "1234", "blueberry")
	sess := loggedIn(t, f, "Red", "1234")

	err := f.svc.UpdatePIN(context.Background(), sess, PINChange{CurrentMemorable: "blueberry", NewPIN: "2468", ConfirmPIN: "2468"})
	require.NoError(t, err)

	assert.Equal(t, credential.Hash("2468"), f.record(t, "Red").Account.PINHash)
	assert.Equal(t, credential.Hash("2468"), sess.PINHash)
}

func TestUpdatePIN_RejectionsDoNotWrite(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Red", "1234", "blueberry")
	sess := loggedIn(t, f, "Red", "1234")
	ctx := context.Background()

	err := f.svc.UpdatePIN(ctx, sess, PINChange{CurrentMemorable: "raspberry", NewPIN: "2468", ConfirmPIN: "2468"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MsgMemorableIncorrect, verr.Message)
	assert.ErrorIs(t, err, ErrValidation)

	err = f.svc.UpdatePIN(ctx, sess, PINChange{CurrentMemorable: "blueberry", NewPIN: "2468", ConfirmPIN: "2469"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MsgPINsDiffer, verr.Message)

	assert.Equal(t, 0, f.accounts.updates)
	assert.Equal(t, credential.Hash("1234"), f.record(t, "Red").Account.PINHash)
	assert.Empty(t, sess.PINHash)
}

func TestResetMemorable(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Red", "1234", "blueberry")
	sess := loggedIn(t, f, "Red", "1234")

	require.NoError(t, f.svc.ResetMemorable(context.Background(), sess, MemorableChange{CurrentPIN: "1234", NewMemorable: "cherry"}))

	acc := f.record(t, "Red").Account
	assert.Equal(t, "cherry", acc.ResetCode)
	assert.Equal(t, credential.Hash("cherry"), acc.ResetCodeHash)
	assert.Equal(t, "cherry", sess.ResetCode)
	assert.Equal(t, 1, f.accounts.updates)

	require.NoError(t, f.svc.ResetPIN(context.Background(), Reset{TrainerName: "Red", ResetCode: "cherry", NewPIN: "1111"}))
}

// readOnlyTable rejects every cell update.
type readOnlyTable struct {
	*memory.Table
	err error
}

func (r readOnlyTable) UpdateCells(context.Context, int, int, ...string) error { return r.err }

func TestResetMemorable_FailedWriteLeavesRowConsistent(t *testing.T) {
	ctx := context.Background()
	tbl := memory.NewTable()
	f := newFixture(t)
	f.register(t, "Red", "1234", "blueberry")
	rows, err := f.table.Rows(ctx)
	require.NoError(t, err)
	require.NoError(t, tbl.AppendRow(ctx, rows[1]))

	boom := errors.New("quota exceeded")
	svc := NewService(store.NewAccounts(readOnlyTable{Table: tbl, err: boom}), nil, &fakeRecognizer{}, nil)
	sess := &session.Session{TrainerName: "Red", PINHash: credential.Hash("1234"), ResetCode: "blueberry"}

	err = svc.ResetMemorable(ctx, sess, MemorableChange{CurrentPIN: "1234", NewMemorable: "cherry"})
	assert.ErrorIs(t, err, ErrExternalService)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "blueberry", sess.ResetCode)

	acc, found, err := store.NewAccounts(tbl).FindByName(ctx, "Red")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "blueberry", acc.Account.ResetCode)
	assert.Equal(t, credential.Hash(acc.Account.ResetCode), acc.Account.ResetCodeHash)
}

func TestResetMemorable_WrongPIN(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Red", "1234", "blueberry")
	sess := loggedIn(t, f, "Red", "1234")

	err := f.svc.ResetMemorable(context.Background(), sess, MemorableChange{CurrentPIN: "0000", NewMemorable: "cherry"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MsgPINIncorrect, verr.Message)
	assert.Equal(t, 0, f.accounts.updates)
	assert.Equal(t, "blueberry", sess.ResetCode)
}

func TestAccountManagement_ReadsFreshRow(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Red", "1234", "blueberry")
	sess := loggedIn(t, f, "Red", "1234")

	// Someone resets the PIN elsewhere after this session logged in.
	require.NoError(t, f.svc.ResetPIN(context.Background(), Reset{TrainerName: "Red", ResetCode: "blueberry", NewPIN: "9999"}))

	err := f.svc.ResetMemorable(context.Background(), sess, MemorableChange{CurrentPIN: "1234", NewMemorable: "cherry"})
	assert.ErrorIs(t, err, ErrValidation)
	require.NoError(t, f.svc.ResetMemorable(context.Background(), sess, MemorableChange{CurrentPIN: "9999", NewMemorable: "cherry"}))
}

func TestAccountManagement_RequiresLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CurrentAccount(ctx, &session.Session{})
	assert.ErrorIs(t, err, ErrAuthenticationRequired)
	assert.ErrorIs(t, f.svc.UpdatePIN(ctx, &session.Session{}, PINChange{}), ErrAuthenticationRequired)
	assert.ErrorIs(t, f.svc.ResetMemorable(ctx, &session.Session{}, MemorableChange{}), ErrAuthenticationRequired)
}

func TestCurrentAccount_UnknownTrainer(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CurrentAccount(context.Background(), &session.Session{TrainerName: "Ghost"})
	assert.ErrorIs(t, err, ErrUnknownTrainer)
}

func TestLogout_ClearsSession(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Red", "1234", "blueberry")
	sess := loggedIn(t, f, "Red", "1234")
	sess.ID = "sid"

	f.svc.Logout(sess)

	assert.False(t, sess.Authenticated())
	assert.Empty(t, sess.ResetCode)
}

type brokenStore struct{ err error }

func (b brokenStore) Append(context.Context, model.Account) error { return b.err }
func (b brokenStore) FindByName(context.Context, string) (store.Record, bool, error) {
	return store.Record{}, false, b.err
}
func (b brokenStore) FindByNameAndField(context.Context, string, model.Field, string) (store.Record, bool, error) {
	return store.Record{}, false, b.err
}
func (b brokenStore) UpdateField(context.Context, int, model.Field, string) error { return b.err }
func (b brokenStore) UpdateFields(context.Context, int, model.Field, ...string) error {
	return b.err
}

func TestStoreFailuresAreExternal(t *testing.T) {
	boom := errors.New("sheet unavailable")
	svc := NewService(brokenStore{err: boom}, nil, &fakeRecognizer{}, nil)
	ctx := context.Background()

	err := svc.CompleteRegistration(ctx, &session.Session{}, Registration{TrainerName: "Red"})
	assert.ErrorIs(t, err, ErrExternalService)
	assert.ErrorIs(t, err, boom)

	assert.ErrorIs(t, svc.Login(ctx, &session.Session{}, "Red", "1"), ErrExternalService)
	assert.ErrorIs(t, svc.ResetPIN(ctx, Reset{TrainerName: "Red"}), ErrExternalService)

	_, err = svc.CurrentAccount(ctx, &session.Session{TrainerName: "Red"})
	assert.ErrorIs(t, err, ErrExternalService)
}
