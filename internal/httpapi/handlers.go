package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/csrf"

	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/passport"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/session"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/uploads"
)

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Hello from Gatekeeper"})
}

func (s *Server) handleSignupForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, nil, http.StatusOK, "signup.html", page{Title: "Sign Up"})
}

func (s *Server) handleSignupUpload(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Load(r)

	up, ok := s.formUpload(w, r)
	if !ok {
		return
	}
	defer up.close()

	name, err := s.passport.BeginRegistration(r.Context(), sess, up.Upload)
	if err != nil {
		s.workflowError(w, r, err)
		return
	}
	s.saveSession(w, r, sess)

	s.render(w, r, nil, http.StatusOK, "confirm.html", page{
		Title: "Confirm Trainer Name",
		Data:  map[string]any{"TrainerName": name},
	})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Load(r)

	reg := passport.Registration{
		TrainerName: r.PostFormValue("trainer_name"),
		PIN:         r.PostFormValue("pin"),
		ResetCode:   r.PostFormValue("reset_code"),
	}
	if err := s.passport.CompleteRegistration(r.Context(), sess, reg); err != nil {
		if errors.Is(err, passport.ErrDuplicateAccount) {
			s.renderError(w, r, http.StatusConflict, "Already Registered",
				fmt.Sprintf("Trainer %s is already registered. Please log in or reset your PIN.", reg.TrainerName))
			return
		}
		s.workflowError(w, r, err)
		return
	}

	s.saveSession(w, r, sess)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, s.sessions.Load(r), http.StatusOK, "login.html", page{Title: "Log In"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Load(r)

	err := s.passport.Login(r.Context(), sess, r.PostFormValue("trainer_name"), r.PostFormValue("pin"))
	if err != nil {
		s.workflowError(w, r, err)
		return
	}

	s.saveSession(w, r, sess)
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Load(r)
	s.passport.Logout(sess)
	s.sessions.Destroy(w, sess)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleForgotForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, nil, http.StatusOK, "forgot.html", page{Title: "Forgot PIN"})
}

func (s *Server) handleForgotUpload(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Load(r)

	up, ok := s.formUpload(w, r)
	if !ok {
		return
	}
	defer up.close()

	name, err := s.passport.IdentifyForRecovery(r.Context(), sess, up.Upload)
	if err != nil {
		s.workflowError(w, r, err)
		return
	}
	s.saveSession(w, r, sess)

	s.render(w, r, nil, http.StatusOK, "reset.html", page{
		Title: "Reset PIN",
		Data:  map[string]any{"TrainerName": name},
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	err := s.passport.ResetPIN(r.Context(), passport.Reset{
		TrainerName: r.PostFormValue("trainer_name"),
		ResetCode:   r.PostFormValue("reset_code"),
		NewPIN:      r.PostFormValue("new_pin"),
	})
	if err != nil {
		s.workflowError(w, r, err)
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Load(r)
	if !sess.Authenticated() {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	progress := sess.Progress
	if progress == "" {
		progress = "0"
	}
	s.render(w, r, sess, http.StatusOK, "dashboard.html", page{
		Title: "Dashboard",
		Wide:  true,
		Data: map[string]any{
			"TrainerName": sess.TrainerName,
			"Progress":    progress,
			"Screenshot":  sess.Screenshot,
			"ResetCode":   sess.ResetCode,
		},
	})
}

func (s *Server) handleManageAccount(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Load(r)

	if _, err := s.passport.CurrentAccount(r.Context(), sess); err != nil {
		s.manageAccountError(w, r, sess, err)
		return
	}
	s.render(w, r, sess, http.StatusOK, "manage_account.html", page{
		Title: "Manage Account",
		Wide:  true,
		Data:  map[string]any{"TrainerName": sess.TrainerName},
	})
}

func (s *Server) handleManageAccountUpdate(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Load(r)
	ctx := r.Context()

	var (
		err     error
		success string
	)
	switch r.PostFormValue("action") {
	case "update_pin":
		err = s.passport.UpdatePIN(ctx, sess, passport.PINChange{
			CurrentMemorable: r.PostFormValue("current_memorable"),
			NewPIN:           r.PostFormValue("new_pin"),
			ConfirmPIN:       r.PostFormValue("confirm_pin"),
		})
		success = passport.MsgPINUpdated
	case "reset_memorable":
		err = s.passport.ResetMemorable(ctx, sess, passport.MemorableChange{
			CurrentPIN:   r.PostFormValue("current_pin"),
			NewMemorable: r.PostFormValue("new_memorable"),
		})
		success = passport.MsgMemorableUpdated
	default:
		s.handleManageAccount(w, r)
		return
	}

	if err != nil {
		s.manageAccountError(w, r, sess, err)
		return
	}

	sess.AddFlash(session.FlashSuccess, success)
	s.saveSession(w, r, sess)
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func (s *Server) manageAccountError(w http.ResponseWriter, r *http.Request, sess *session.Session, err error) {
	var verr *passport.ValidationError
	switch {
	case errors.Is(err, passport.ErrAuthenticationRequired):
		http.Redirect(w, r, "/login", http.StatusFound)
	case errors.Is(err, passport.ErrUnknownTrainer):
		sess.AddFlash(session.FlashDanger, passport.MsgTrainerNotFound)
		s.saveSession(w, r, sess)
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	case errors.As(err, &verr):
		sess.AddFlash(session.FlashDanger, verr.Message)
		s.saveSession(w, r, sess)
		http.Redirect(w, r, "/manage_account", http.StatusFound)
	default:
		s.workflowError(w, r, err)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")

	rc, err := s.uploads.Open(r.Context(), name)
	if errors.Is(err, uploads.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.log.Error(r.Context(), "open upload failed", "file", name, "err", err)
		http.Error(w, "upload unavailable", http.StatusBadGateway)
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxUploadBytes+1))
	if err != nil {
		s.log.Error(r.Context(), "read upload failed", "file", name, "err", err)
		http.Error(w, "upload unavailable", http.StatusBadGateway)
		return
	}
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
}

func (s *Server) handleCampfireTest(w http.ResponseWriter, r *http.Request) {
	if s.campfire == nil || s.campfire.Token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Campfire token missing"})
		return
	}

	me, err := s.campfire.Me(r.Context())
	if err != nil {
		s.log.Warn(r.Context(), "campfire test failed", "err", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "me": me})
}

func (s *Server) handleCampfireGroup(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Load(r)
	groupID := r.PathValue("group_id")

	if s.campfire == nil || s.campfire.Token == "" {
		sess.AddFlash(session.FlashDanger, "Campfire token is missing. Please set CAMPFIRE_TOKEN in your .env file.")
		s.saveSession(w, r, sess)
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}

	history, err := s.campfire.History(r.Context(), groupID)
	if err != nil {
		s.log.Warn(r.Context(), "campfire history failed", "group_id", groupID, "err", err)
		sess.AddFlash(session.FlashDanger, fmt.Sprintf("Error fetching Campfire data: %v", err))
		s.saveSession(w, r, sess)
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}

	s.render(w, r, sess, http.StatusOK, "campfire.html", page{
		Title: "Campfire Group",
		Wide:  true,
		Data: map[string]any{
			"GroupID": history.GroupID,
			"Members": history.Members,
			"History": history.History,
		},
	})
}

func (s *Server) handleCSRFFailure(w http.ResponseWriter, r *http.Request) {
	s.log.Warn(r.Context(), "csrf rejected", "path", r.URL.Path, "reason", csrf.FailureReason(r))
	s.renderError(w, r, http.StatusForbidden, "Form Expired", "Your form has expired. Please go back, reload the page and try again.")
}

// workflowError turns a passport or collaborator error into a response.
func (s *Server) workflowError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		maxErr *http.MaxBytesError
		inErr  *passport.InputError
	)
	switch {
	case errors.As(err, &maxErr):
		s.renderError(w, r, http.StatusRequestEntityTooLarge, "Upload Failed", "That file is too large.")
	case errors.As(err, &inErr):
		title := "Upload Failed"
		if inErr.Field == passport.FieldTrainerName {
			title = "Registration Failed"
		}
		s.renderError(w, r, http.StatusBadRequest, title, inErr.Message)
	case errors.Is(err, passport.ErrInput):
		s.renderError(w, r, http.StatusBadRequest, "Upload Failed", passport.MsgNoFile)
	case errors.Is(err, passport.ErrAuthentication):
		s.renderError(w, r, http.StatusUnauthorized, "Login Failed", passport.MsgInvalidLogin)
	case errors.Is(err, passport.ErrRecovery):
		s.renderError(w, r, http.StatusBadRequest, "Reset Failed", passport.MsgResetMismatch)
	case errors.Is(err, passport.ErrAuthenticationRequired):
		http.Redirect(w, r, "/login", http.StatusFound)
	default:
		s.log.Error(r.Context(), "workflow failed", "path", r.URL.Path, "err", err)
		s.renderError(w, r, http.StatusBadGateway, "Something Went Wrong",
			"We couldn't reach one of our services. Please try again in a moment.")
	}
}

func (s *Server) saveSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := s.sessions.Save(w, sess); err != nil {
		s.log.Error(r.Context(), "save session failed", "err", err)
	}
}

type formFile struct {
	passport.Upload
	closer io.Closer
}

func (f formFile) close() {
	if f.closer != nil {
		_ = f.closer.Close()
	}
}

// formUpload reads the "screenshot" part. A missing part is answered here.
func (s *Server) formUpload(w http.ResponseWriter, r *http.Request) (formFile, bool) {
	file, hdr, err := r.FormFile("screenshot")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		s.renderError(w, r, http.StatusBadRequest, "Upload Failed", "No file uploaded.")
		return formFile{}, false
	case err != nil:
		s.workflowError(w, r, &passport.InputError{Field: passport.FieldScreenshot, Message: passport.MsgNoFile, Err: err})
		return formFile{}, false
	}
	return formFile{
		Upload: passport.Upload{Filename: hdr.Filename, Body: file},
		closer: file,
	}, true
}
