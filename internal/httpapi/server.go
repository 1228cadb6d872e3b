package httpapi

import (
	"crypto/sha256"
	"net/http"

	"github.com/gorilla/csrf"

	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/campfire"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/config"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/logging"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/passport"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/session"
	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/uploads"
)

// maxUploadBytes caps request bodies, screenshots included.
const maxUploadBytes = 10 << 20

type Deps struct {
	Passport *passport.Service
	Sessions *session.Manager
	Uploads  uploads.Store
	Campfire *campfire.Client
	Logger   logging.Logger
}

type Server struct {
	cfg      config.Config
	passport *passport.Service
	sessions *session.Manager
	uploads  uploads.Store
	campfire *campfire.Client
	log      logging.Logger
	mux      *http.ServeMux
	pages    *pageSet
}

func NewServer(cfg config.Config, d Deps) *Server {
	log := d.Logger
	if log == nil {
		log = logging.Nop()
	}
	s := &Server{
		cfg:      cfg,
		passport: d.Passport,
		sessions: d.Sessions,
		uploads:  d.Uploads,
		campfire: d.Campfire,
		log:      log,
		mux:      http.NewServeMux(),
		pages:    mustParsePages(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	key := sha256.Sum256([]byte(s.cfg.SecretKey))
	protect := csrf.Protect(key[:],
		csrf.Secure(s.cfg.SecureCookies),
		csrf.Path("/"),
		csrf.ErrorHandler(http.HandlerFunc(s.handleCSRFFailure)),
	)

	var h http.Handler = s.mux
	h = protect(h)
	if !s.cfg.SecureCookies {
		h = plaintextMiddleware(h)
	}
	h = limitBodyMiddleware(maxUploadBytes, h)
	h = recoverMiddleware(s.log, h)
	h = requestIDMiddleware(h)
	h = loggingMiddleware(s.log, h)
	return h
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleHome)
	s.mux.HandleFunc("GET /ping", s.handlePing)

	s.mux.HandleFunc("GET /signup", s.handleSignupForm)
	s.mux.HandleFunc("POST /signup", s.handleSignupUpload)
	s.mux.HandleFunc("POST /confirm", s.handleConfirm)

	s.mux.HandleFunc("GET /login", s.handleLoginForm)
	s.mux.HandleFunc("POST /login", s.handleLogin)
	s.mux.HandleFunc("GET /logout", s.handleLogout)

	s.mux.HandleFunc("GET /forgot", s.handleForgotForm)
	s.mux.HandleFunc("POST /forgot", s.handleForgotUpload)
	s.mux.HandleFunc("POST /reset", s.handleReset)

	s.mux.HandleFunc("GET /dashboard", s.handleDashboard)
	s.mux.HandleFunc("GET /manage_account", s.handleManageAccount)
	s.mux.HandleFunc("POST /manage_account", s.handleManageAccountUpdate)

	s.mux.HandleFunc("GET /uploads/{filename}", s.handleUpload)

	s.mux.HandleFunc("GET /campfire/test", s.handleCampfireTest)
	s.mux.HandleFunc("GET /campfire/{group_id}", s.handleCampfireGroup)
}
