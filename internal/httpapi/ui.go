package httpapi

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/gorilla/csrf"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"github.com/raidingdoncaster/Snorlax-Gatekeeper/internal/session"
)

//go:embed ui/templates/*.html
var templatesFS embed.FS

var pageNames = []string{
	"signup.html",
	"confirm.html",
	"login.html",
	"forgot.html",
	"reset.html",
	"dashboard.html",
	"manage_account.html",
	"campfire.html",
	"error.html",
}

// Raw HTML in event descriptions is escaped.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

type pageSet struct {
	pages map[string]*template.Template
}

func mustParsePages() *pageSet {
	funcs := template.FuncMap{
		"markdown": renderMarkdown,
	}
	ps := &pageSet{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		ps.pages[name] = template.Must(template.New("layout.html").Funcs(funcs).ParseFS(templatesFS,
			"ui/templates/layout.html",
			"ui/templates/"+name,
		))
	}
	return ps
}

// page is what every template receives.
type page struct {
	Title     string
	Wide      bool
	CSRFField template.HTML
	Flashes   []session.Flash
	Data      map[string]any
}

// render executes a page into a buffer before writing. Pending flashes are
// taken from sess when it is not nil.
func (s *Server) render(w http.ResponseWriter, r *http.Request, sess *session.Session, status int, name string, p page) {
	tpl, ok := s.pages.pages[name]
	if !ok {
		s.log.Error(r.Context(), "unknown template", "template", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	p.CSRFField = csrf.TemplateField(r)
	if sess != nil {
		p.Flashes = sess.PopFlashes()
		if len(p.Flashes) > 0 {
			s.saveSession(w, r, sess)
		}
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, p); err != nil {
		s.log.Error(r.Context(), "render failed", "template", name, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, title, message string) {
	s.render(w, r, nil, status, "error.html", page{
		Title: title,
		Data:  map[string]any{"Message": message},
	})
}
