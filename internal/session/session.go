// Package session keeps per-browser state on the server. The browser only
// holds a signed token naming its session.
package session

// Flash categories used by the templates.
const (
	FlashSuccess = "success"
	FlashDanger  = "danger"
	FlashInfo    = "info"
)

type Flash struct {
	Category string
	Message  string
}

// Session is the state of one browser. The login fields are copied from the
// account row on login; ScreenshotPath only lives between the signup upload
// and confirmation, and ResetTrainer between the two recovery steps.
type Session struct {
	ID string

	TrainerName string
	Progress    string
	Screenshot  string
	ResetCode   string
	PINHash     string

	ScreenshotPath string
	ResetTrainer   string

	Flashes []Flash
}

func (s *Session) Authenticated() bool {
	return s.TrainerName != ""
}

// Clear drops every field but the ID.
func (s *Session) Clear() {
	*s = Session{ID: s.ID}
}

func (s *Session) AddFlash(category, message string) {
	s.Flashes = append(s.Flashes, Flash{Category: category, Message: message})
}

// PopFlashes returns pending flashes and removes them from the session.
func (s *Session) PopFlashes() []Flash {
	out := s.Flashes
	s.Flashes = nil
	return out
}

func (s *Session) clone() *Session {
	c := *s
	if s.Flashes != nil {
		c.Flashes = append([]Flash(nil), s.Flashes...)
	}
	return &c
}
